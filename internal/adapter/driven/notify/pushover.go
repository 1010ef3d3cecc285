// Package notify implements the Notifier port: Pushover, Discord, a fan-out
// and a log-only fallback.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Notifier = (*Pushover)(nil)

const pushoverURL = "https://api.pushover.net/1/messages.json"

// Pushover sends alerts as Pushover push notifications.
type Pushover struct {
	http     *http.Client
	endpoint string
	appToken string
	userKey  string
	title    string
}

// NewPushover creates a Pushover notifier for the given application token and user key.
func NewPushover(appToken, userKey, title string) *Pushover {
	return NewPushoverWithHTTPClient(&http.Client{Timeout: 10 * time.Second}, pushoverURL, appToken, userKey, title)
}

// NewPushoverWithHTTPClient allows injecting an httptest server in tests.
func NewPushoverWithHTTPClient(httpClient *http.Client, endpoint, appToken, userKey, title string) *Pushover {
	if title == "" {
		title = "Trade Bot"
	}
	return &Pushover{http: httpClient, endpoint: endpoint, appToken: appToken, userKey: userKey, title: title}
}

// Alert posts message to the Pushover messages API.
func (p *Pushover) Alert(ctx context.Context, message string) error {
	form := url.Values{
		"token":   {p.appToken},
		"user":    {p.userKey},
		"message": {message},
		"title":   {p.title},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("pushover: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return &driven.TransientError{Op: "pushover", Err: err}
	}
	_ = resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return &driven.TransientError{Op: "pushover", StatusCode: resp.StatusCode, Err: fmt.Errorf("%s", resp.Status)}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pushover: unexpected status %s", resp.Status)
	}

	return nil
}

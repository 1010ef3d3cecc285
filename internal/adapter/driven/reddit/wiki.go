package reddit

import (
	"context"
	"errors"
	"net/http"

	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TemplateStore = (*WikiStore)(nil)

// DefaultWikiPrefix is the wiki folder holding template overrides.
const DefaultWikiPrefix = "trade-confirmation-bot"

// WikiStore reads message template overrides from subreddit wiki pages.
// Requests go through an ETag-aware httpcache layer on top of the client's
// authenticated transport, so unchanged pages are revalidated, not refetched.
type WikiStore struct {
	client *Client
	prefix string
}

// NewWikiStore creates a WikiStore sharing c's authentication.
func NewWikiStore(c *Client, prefix string) *WikiStore {
	if prefix == "" {
		prefix = DefaultWikiPrefix
	}

	cached := &httpcache.Transport{
		Transport:           c.http.Transport,
		Cache:               httpcache.NewMemoryCache(),
		MarkCachedResponses: true,
	}

	return &WikiStore{
		client: &Client{
			http:      &http.Client{Transport: cached, Timeout: c.http.Timeout},
			baseURL:   c.baseURL,
			subreddit: c.subreddit,
			username:  c.username,
		},
		prefix: prefix,
	}
}

// GetOverride returns the wiki page "<prefix>/<name>". Missing or private
// pages report found=false.
func (s *WikiStore) GetOverride(ctx context.Context, name string) (string, bool, error) {
	var page struct {
		Data struct {
			ContentMD string `json:"content_md"`
		} `json:"data"`
	}

	path := "/r/" + s.client.subreddit + "/wiki/" + s.prefix + "/" + name
	err := s.client.get(ctx, "get wiki page", path, nil, &page)
	if errors.Is(err, driven.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	return page.Data.ContentMD, true, nil
}

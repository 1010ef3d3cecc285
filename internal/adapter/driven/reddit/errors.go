package reddit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// checkResponse maps an HTTP response to the port's error taxonomy:
// 429 and 5xx are transient, 403 and 404 are not found, other 4xx are permanent.
func checkResponse(op string, resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	cause := fmt.Errorf("%s: %s", resp.Status, string(body))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return &driven.TransientError{
			Op:         op,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter(resp),
			Err:        cause,
		}
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, driven.ErrNotFound)
	default:
		return fmt.Errorf("%s: %w", op, cause)
	}
}

// classifyTransportError wraps network failures as transient unless the
// caller's context ended.
func classifyTransportError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", op, ctxErr)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &driven.TransientError{Op: op, Err: err}
}

// retryAfter reads Retry-After or Reddit's x-ratelimit-reset header.
func retryAfter(resp *http.Response) time.Duration {
	for _, h := range []string{"Retry-After", "X-Ratelimit-Reset"} {
		if v := resp.Header.Get(h); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
				return time.Duration(secs * float64(time.Second))
			}
		}
	}
	return 0
}

// apiErrors is the {"json": {"errors": [...]}} envelope of api_type=json writes.
type apiErrors struct {
	Errors [][]any `json:"errors"`
}

func (e apiErrors) err(op string) error {
	if len(e.Errors) == 0 {
		return nil
	}
	first := e.Errors[0]
	code := ""
	if len(first) > 0 {
		code, _ = first[0].(string)
	}
	cause := fmt.Errorf("reddit api error: %v", first)
	if code == "RATELIMIT" {
		return &driven.TransientError{Op: op, StatusCode: http.StatusTooManyRequests, Err: cause}
	}
	return fmt.Errorf("%s: %w", op, cause)
}

package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// ErrRetriesExhausted indicates a transient failure persisted through every attempt.
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryPolicy bounds how transient forum and store failures are retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
	}
}

// retryAfterBackOff waits at least as long as the last server-provided
// Retry-After hint before the next attempt.
type retryAfterBackOff struct {
	backoff.BackOff
	hint time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if b.hint > next {
		next = b.hint
	}
	b.hint = 0
	return next
}

// Do runs fn until it succeeds, fails with a non-transient error, the context
// ends, or MaxAttempts is reached. Exhaustion wraps both ErrRetriesExhausted
// and the last error.
func (p RetryPolicy) Do(ctx context.Context, logger *slog.Logger, op string, fn func(ctx context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	exp := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		exp.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		exp.MaxInterval = p.MaxInterval
	}
	exp.MaxElapsedTime = 0

	ra := &retryAfterBackOff{BackOff: backoff.WithMaxRetries(exp, uint64(attempts-1))}
	b := backoff.WithContext(ra, ctx)

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !driven.IsTransient(err) {
			return backoff.Permanent(err)
		}
		var te *driven.TransientError
		if errors.As(err, &te) && te.RetryAfter > 0 {
			ra.hint = te.RetryAfter
		}
		return err
	}, b, func(err error, wait time.Duration) {
		logger.Debug("retrying after transient failure",
			"op", op,
			"attempt", attempt,
			"wait", wait.Round(time.Millisecond),
			"error", err,
		)
	})

	if err == nil {
		return nil
	}
	if driven.IsTransient(err) {
		return fmt.Errorf("%s: %w after %d attempts: %w", op, ErrRetriesExhausted, attempt, err)
	}
	return err
}

package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tradeconfirm/internal/application"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

func fastRetry(attempts int) application.RetryPolicy {
	return application.RetryPolicy{MaxAttempts: attempts, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond}
}

func TestRetryPolicy_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	err := fastRetry(5).Do(context.Background(), nil, "op", func(context.Context) error {
		calls++
		if calls < 3 {
			return &driven.TransientError{Op: "op", StatusCode: 503, Err: errors.New("unavailable")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_PermanentErrorStopsImmediately(t *testing.T) {
	permanent := errors.New("bad request")
	calls := 0
	err := fastRetry(5).Do(context.Background(), nil, "op", func(context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.NotErrorIs(t, err, application.ErrRetriesExhausted)
	assert.Equal(t, 1, calls)
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	calls := 0
	err := fastRetry(3).Do(context.Background(), nil, "op", func(context.Context) error {
		calls++
		return &driven.TransientError{Op: "op", Err: errors.New("timeout")}
	})

	assert.ErrorIs(t, err, application.ErrRetriesExhausted)
	assert.True(t, driven.IsTransient(err))
	assert.Equal(t, 3, calls)
}

func TestRetryPolicy_HonorsRetryAfter(t *testing.T) {
	calls := 0
	start := time.Now()
	err := fastRetry(2).Do(context.Background(), nil, "op", func(context.Context) error {
		calls++
		if calls == 1 {
			return &driven.TransientError{Op: "op", StatusCode: 429, RetryAfter: 50 * time.Millisecond, Err: errors.New("slow down")}
		}
		return nil
	})

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRetryPolicy_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := fastRetry(5).Do(ctx, nil, "op", func(ctx context.Context) error {
		return ctx.Err()
	})

	assert.ErrorIs(t, err, context.Canceled)
}

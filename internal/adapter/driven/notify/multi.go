package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.Notifier = (*Multi)(nil)
	_ driven.Notifier = (*Log)(nil)
)

// Multi fans an alert out to every configured notifier.
type Multi struct {
	notifiers []driven.Notifier
}

// NewMulti combines notifiers. With none configured alerts are only logged.
func NewMulti(logger *slog.Logger, notifiers ...driven.Notifier) *Multi {
	all := []driven.Notifier{NewLog(logger)}
	for _, n := range notifiers {
		if n != nil {
			all = append(all, n)
		}
	}
	return &Multi{notifiers: all}
}

// Alert delivers message to all notifiers and joins their errors.
func (m *Multi) Alert(ctx context.Context, message string) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := n.Alert(ctx, message); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log records alerts in the application log.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a log-only notifier. A nil logger uses slog.Default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Alert logs message at warn level.
func (l *Log) Alert(_ context.Context, message string) error {
	l.logger.Warn("moderator alert", "message", message)
	return nil
}

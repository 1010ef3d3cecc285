package driven

import (
	"context"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

// LedgerStore defines the driven port for per-user trade counters and the
// journal of increment requests. GetCounter and GetEntry return nil, nil when
// the record does not exist.
type LedgerStore interface {
	GetCounter(ctx context.Context, username string) (*model.UserCounter, error)
	ListCounters(ctx context.Context, limit int) ([]model.UserCounter, error)

	GetEntry(ctx context.Context, requestID string) (*model.LedgerEntry, error)
	// Accept records the request as accepted. Accepting an existing request is a no-op.
	Accept(ctx context.Context, entry model.LedgerEntry) error
	// Apply atomically sets the user's counter to entry.NewCount and marks the request applied.
	Apply(ctx context.Context, entry model.LedgerEntry) error
	MarkUntracked(ctx context.Context, requestID string, label string) error
	CountByStatus(ctx context.Context, status model.LedgerStatus) (int, error)
}

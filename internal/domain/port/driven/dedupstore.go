package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

var (
	// ErrOutcomeConflict indicates Complete was called with an outcome that
	// differs from the one already recorded for the comment.
	ErrOutcomeConflict = errors.New("conflicting outcome for comment")

	// ErrNotBegun indicates Complete was called for a comment with no dedup entry.
	ErrNotBegun = errors.New("dedup entry not begun")

	// ErrLeaseLost indicates the caller no longer owns a pending entry.
	ErrLeaseLost = errors.New("dedup lease lost")
)

// DedupStore defines the driven port for the exactly-once comment gate.
// Begin returns BeginAdmitted exactly once per comment, unless the lease of a
// pending entry has expired, in which case the entry is handed to the new owner.
// Complete is idempotent for an identical outcome and returns ErrOutcomeConflict
// for a different one. A Valid outcome records its credited parent
// (outcome.Context.ParentID) as the entry's parent.
type DedupStore interface {
	Begin(ctx context.Context, commentID, parentID, owner string, lease time.Duration) (model.BeginResult, error)
	// Renew extends the lease of a pending entry held by owner. It returns
	// ErrLeaseLost when the entry is done or owned by someone else.
	Renew(ctx context.Context, commentID, owner string, lease time.Duration) error
	Complete(ctx context.Context, commentID string, outcome model.Outcome) error
	Get(ctx context.Context, commentID string) (*model.DedupEntry, error)
	// HasValidOutcome reports whether a completed Valid confirmation credited parentID.
	HasValidOutcome(ctx context.Context, parentID string) (bool, error)
	// ClaimParent atomically reserves parentID for the confirmation in
	// commentID. It returns true when commentID holds the claim, including
	// when it already did, and false when another comment claimed it first.
	ClaimParent(ctx context.Context, parentID, commentID string) (bool, error)
	Stats(ctx context.Context) (model.DedupStats, error)
	ListManualReview(ctx context.Context, limit int) ([]model.DedupEntry, error)
}

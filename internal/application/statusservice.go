package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

const (
	statusOK       = "ok"
	statusDegraded = "degraded"
)

// StatusReport is the operational snapshot served by the CLI, API and dashboard.
type StatusReport struct {
	Status          string           `json:"status"`
	Subreddit       string           `json:"subreddit"`
	BotName         string           `json:"bot_name"`
	CurrentThreadID string           `json:"current_thread_id,omitempty"`
	Watermark       string           `json:"watermark"`
	WatermarkAt     time.Time        `json:"watermark_updated_at"`
	Frontier        string           `json:"frontier"`
	PendingComments int              `json:"pending_comments"`
	Gaps            int              `json:"gaps"`
	Dedup           model.DedupStats `json:"dedup"`
	LedgerAccepted  int              `json:"ledger_accepted"`
	LedgerApplied   int              `json:"ledger_applied"`
	LedgerUntracked int              `json:"ledger_untracked"`
	Poll            *PollStatus      `json:"poll,omitempty"`
	GeneratedAt     time.Time        `json:"generated_at"`
}

// CursorReporter exposes cursor position for status reporting.
type CursorReporter interface {
	Load(ctx context.Context) error
	Stats() CursorStats
}

// PollReporter exposes poll loop state.
type PollReporter interface {
	Status() PollStatus
}

// StatusService assembles status reports from the cursor and stores.
type StatusService struct {
	cursor    CursorReporter
	dedup     driven.DedupStore
	ledger    driven.LedgerStore
	poll      PollReporter
	threads   ThreadContext
	subreddit string
	botName   string
	now       func() time.Time
}

// NewStatusService creates a StatusService. poll and threads may be nil.
func NewStatusService(
	cursor CursorReporter,
	dedup driven.DedupStore,
	ledger driven.LedgerStore,
	poll PollReporter,
	threads ThreadContext,
	subreddit, botName string,
) *StatusService {
	return &StatusService{
		cursor:    cursor,
		dedup:     dedup,
		ledger:    ledger,
		poll:      poll,
		threads:   threads,
		subreddit: subreddit,
		botName:   botName,
		now:       time.Now,
	}
}

// Report builds a status snapshot. The status is degraded when comments are
// parked for manual review or the cursor has seen a gap.
func (s *StatusService) Report(ctx context.Context) (StatusReport, error) {
	if err := s.cursor.Load(ctx); err != nil {
		return StatusReport{}, err
	}
	cs := s.cursor.Stats()

	stats, err := s.dedup.Stats(ctx)
	if err != nil {
		return StatusReport{}, fmt.Errorf("dedup stats: %w", err)
	}

	r := StatusReport{
		Status:          statusOK,
		Subreddit:       s.subreddit,
		BotName:         s.botName,
		Watermark:       cs.Watermark.LastCommentID,
		WatermarkAt:     cs.Watermark.UpdatedAt,
		Frontier:        cs.Frontier,
		PendingComments: cs.Pending,
		Gaps:            cs.Gaps,
		Dedup:           stats,
		GeneratedAt:     s.now().UTC(),
	}

	counts := []struct {
		status model.LedgerStatus
		dst    *int
	}{
		{model.LedgerAccepted, &r.LedgerAccepted},
		{model.LedgerApplied, &r.LedgerApplied},
		{model.LedgerUntracked, &r.LedgerUntracked},
	}
	for _, c := range counts {
		n, err := s.ledger.CountByStatus(ctx, c.status)
		if err != nil {
			return StatusReport{}, fmt.Errorf("count ledger %s: %w", c.status, err)
		}
		*c.dst = n
	}

	if s.poll != nil {
		ps := s.poll.Status()
		r.Poll = &ps
	}
	if s.threads != nil {
		if id, err := s.threads.CurrentThreadID(ctx); err == nil {
			r.CurrentThreadID = id
		}
	}

	if stats.ManualReview > 0 || cs.Gaps > 0 {
		r.Status = statusDegraded
	}
	return r, nil
}

// ManualReview lists comments parked for moderator attention.
func (s *StatusService) ManualReview(ctx context.Context, limit int) ([]model.DedupEntry, error) {
	return s.dedup.ListManualReview(ctx, limit)
}

// TopCounters lists the highest trade counts.
func (s *StatusService) TopCounters(ctx context.Context, limit int) ([]model.UserCounter, error) {
	return s.ledger.ListCounters(ctx, limit)
}

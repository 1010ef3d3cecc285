package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tradeconfirm/internal/application"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

type stubCursor struct {
	stats application.CursorStats
	err   error
}

func (c *stubCursor) Load(_ context.Context) error    { return c.err }
func (c *stubCursor) Stats() application.CursorStats { return c.stats }

type stubPoll struct{ status application.PollStatus }

func (p *stubPoll) Status() application.PollStatus { return p.status }

type stubThreads struct{ id string }

func (s *stubThreads) CurrentThreadID(_ context.Context) (string, error) { return s.id, nil }
func (s *stubThreads) Moderators(_ context.Context) (application.Moderators, error) {
	return application.NewModerators(nil), nil
}

func TestStatusService_ReportHealthy(t *testing.T) {
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	cursor := &stubCursor{stats: application.CursorStats{
		Watermark: model.WatermarkState{LastCommentID: "c9", UpdatedAt: at},
		Frontier:  "cb",
		Pending:   2,
	}}
	dedup := newFakeDedup()
	_, err := dedup.Begin(context.Background(), "c1", "", "o", time.Minute)
	require.NoError(t, err)
	require.NoError(t, dedup.Complete(context.Background(), "c1", model.Valid("bob", "alice")))

	ledger := newFakeLedgerStore()
	require.NoError(t, ledger.Accept(context.Background(), model.LedgerEntry{RequestID: "r1", Username: "bob"}))
	require.NoError(t, ledger.Accept(context.Background(), model.LedgerEntry{RequestID: "r2", Username: "alice"}))
	require.NoError(t, ledger.Apply(context.Background(), model.LedgerEntry{RequestID: "r2", Username: "alice", NewCount: 1}))

	poll := &stubPoll{status: application.PollStatus{Running: true, Tier: "hot"}}
	svc := application.NewStatusService(cursor, dedup, ledger, poll, &stubThreads{id: "s1"}, "testsub", "TradeBot")

	r, err := svc.Report(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "ok", r.Status)
	assert.Equal(t, "testsub", r.Subreddit)
	assert.Equal(t, "TradeBot", r.BotName)
	assert.Equal(t, "s1", r.CurrentThreadID)
	assert.Equal(t, "c9", r.Watermark)
	assert.Equal(t, at, r.WatermarkAt)
	assert.Equal(t, "cb", r.Frontier)
	assert.Equal(t, 2, r.PendingComments)
	assert.Equal(t, 1, r.Dedup.Valid)
	assert.Equal(t, 1, r.LedgerAccepted)
	assert.Equal(t, 1, r.LedgerApplied)
	require.NotNil(t, r.Poll)
	assert.True(t, r.Poll.Running)
}

func TestStatusService_DegradedOnManualReviewOrGap(t *testing.T) {
	tests := []struct {
		name         string
		gaps         int
		manualReview bool
	}{
		{name: "gap", gaps: 1},
		{name: "manual review", manualReview: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dedup := newFakeDedup()
			if tt.manualReview {
				_, err := dedup.Begin(context.Background(), "c1", "", "o", time.Minute)
				require.NoError(t, err)
				require.NoError(t, dedup.Complete(context.Background(), "c1", model.ManualReview(model.ReasonRetriesExhausted)))
			}
			cursor := &stubCursor{stats: application.CursorStats{Gaps: tt.gaps}}
			svc := application.NewStatusService(cursor, dedup, newFakeLedgerStore(), nil, nil, "testsub", "TradeBot")

			r, err := svc.Report(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "degraded", r.Status)
			assert.Nil(t, r.Poll)
		})
	}
}

func TestStatusService_ManualReviewList(t *testing.T) {
	dedup := newFakeDedup()
	_, err := dedup.Begin(context.Background(), "c1", "p1", "o", time.Minute)
	require.NoError(t, err)
	require.NoError(t, dedup.Complete(context.Background(), "c1", model.ManualReview(model.ReasonNoMatchingTemplate)))

	svc := application.NewStatusService(&stubCursor{}, dedup, newFakeLedgerStore(), nil, nil, "testsub", "TradeBot")

	entries, err := svc.ManualReview(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "c1", entries[0].CommentID)
	assert.Equal(t, "manual_review:no_matching_template", entries[0].Outcome)
}

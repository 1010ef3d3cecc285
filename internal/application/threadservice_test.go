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

var march2026 = time.Date(2026, time.March, 1, 0, 0, 5, 0, time.UTC)

func newThreadService(forum *fakeForum, store *fakeThreadStore, notifier *fakeNotifier, now time.Time) *application.ThreadService {
	return application.NewThreadService(forum, store, application.NewTemplateResolver(nil, nil), notifier, application.ThreadConfig{
		BotName:     "TradeBot",
		Subreddit:   "testsub",
		PostFlairID: "flair-1",
		Now:         func() time.Time { return now },
	}, nil)
}

func TestThreadService_RotateMonthlyCreatesThread(t *testing.T) {
	forum := newFakeForum()
	forum.botSubs = []model.Submission{{
		ID:        "feb",
		CreatedAt: time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		Stickied:  true,
		Permalink: "/r/testsub/comments/feb/",
	}}
	store := newFakeThreadStore()
	notifier := &fakeNotifier{}
	svc := newThreadService(forum, store, notifier, march2026)

	res, err := svc.RotateMonthly(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Created)
	assert.Equal(t, "2026-03", res.Period)
	assert.Equal(t, "new1", res.SubmissionID)

	require.Len(t, forum.created, 1)
	sub := forum.created[0]
	assert.Equal(t, "March 2026 Trade Confirmation Thread", sub.Title)
	assert.Contains(t, sub.Body, "https://www.reddit.com/r/testsub/comments/feb/")
	assert.Contains(t, sub.Body, "u/TradeBot")
	assert.Equal(t, "flair-1", sub.FlairID)
	assert.True(t, sub.NoReplies)

	assert.Equal(t, []string{"feb"}, forum.unstickied)
	assert.Equal(t, []string{"new1"}, forum.stickied)
	assert.Equal(t, "new", forum.sorts["new1"])
	assert.Equal(t, []string{"Creating monthly post for r/testsub"}, notifier.alerts())

	current, err := svc.CurrentThreadID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "new1", current)
}

func TestThreadService_RotateMonthlyIsIdempotent(t *testing.T) {
	forum := newFakeForum()
	store := newFakeThreadStore()
	svc := newThreadService(forum, store, nil, march2026)

	first, err := svc.RotateMonthly(context.Background())
	require.NoError(t, err)
	second, err := svc.RotateMonthly(context.Background())
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.SubmissionID, second.SubmissionID)
	assert.Len(t, forum.created, 1)
}

func TestThreadService_RotateMonthlyAdoptsExistingThread(t *testing.T) {
	forum := newFakeForum()
	forum.botSubs = []model.Submission{{ID: "mar", CreatedAt: march2026.Add(-time.Second)}}
	store := newFakeThreadStore()
	svc := newThreadService(forum, store, nil, march2026.Add(time.Hour))

	res, err := svc.RotateMonthly(context.Background())
	require.NoError(t, err)

	assert.False(t, res.Created)
	assert.Equal(t, "mar", res.SubmissionID)
	assert.Empty(t, forum.created)

	rot, err := store.GetRotation(context.Background(), "2026-03")
	require.NoError(t, err)
	require.NotNil(t, rot)
	assert.Equal(t, "mar", rot.SubmissionID)
}

func TestThreadService_RotateMonthlyFirstThreadHasNoPrevious(t *testing.T) {
	forum := newFakeForum()
	svc := newThreadService(forum, newFakeThreadStore(), nil, march2026)

	_, err := svc.RotateMonthly(context.Background())
	require.NoError(t, err)

	assert.Empty(t, forum.unstickied)
	require.Len(t, forum.created, 1)
	assert.NotContains(t, forum.created[0].Body, "{previous_month_submission}")
}

func TestThreadService_LockPreviousSkipsStickiedAndLocked(t *testing.T) {
	forum := newFakeForum()
	forum.botSubs = []model.Submission{
		{ID: "cur", Stickied: true},
		{ID: "prev"},
		{ID: "older", Locked: true},
		{ID: "oldest"},
	}
	svc := newThreadService(forum, newFakeThreadStore(), nil, march2026)

	n, err := svc.LockPrevious(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"prev", "oldest"}, forum.locked)
}

func TestThreadService_RefreshCachesContext(t *testing.T) {
	forum := newFakeForum()
	forum.botSubs = []model.Submission{{ID: "cur"}}
	forum.moderators = []string{"ModMike"}

	now := march2026
	svc := application.NewThreadService(forum, newFakeThreadStore(), nil, nil, application.ThreadConfig{
		RefreshMaxAge: time.Minute,
		Now:           func() time.Time { return now },
	}, nil)

	current, err := svc.CurrentThreadID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cur", current)

	mods, err := svc.Moderators(context.Background())
	require.NoError(t, err)
	assert.True(t, mods.Has("modmike"))

	forum.mu.Lock()
	forum.botSubs = []model.Submission{{ID: "next"}}
	forum.mu.Unlock()

	current, err = svc.CurrentThreadID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cur", current, "cached within max age")

	now = now.Add(2 * time.Minute)
	current, err = svc.CurrentThreadID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "next", current)
}

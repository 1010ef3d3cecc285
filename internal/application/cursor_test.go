package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tradeconfirm/internal/application"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

func comments(ids ...string) []model.Comment {
	out := make([]model.Comment, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Comment{ID: id})
	}
	return out
}

func ids(ds []application.Discovered) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.Comment.ID)
	}
	return out
}

func TestWatermarkCursor_FirstRunReadsOnePage(t *testing.T) {
	forum := newFakeForum()
	forum.pages[""] = driven.CommentPage{Comments: comments("c5", "c4", "c3"), After: "t1_c3"}
	forum.pages["t1_c3"] = driven.CommentPage{Comments: comments("c2", "c1")}
	store := &fakeWatermarkStore{}

	cursor := application.NewWatermarkCursor(forum, store, nil, 3, 9, nil)
	got, err := cursor.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"c3", "c4", "c5"}, ids(got), "chronological order")
	assert.Equal(t, []string{""}, forum.listCalls)
	assert.Less(t, got[0].Seq, got[2].Seq)
}

func TestWatermarkCursor_StopsAtWatermark(t *testing.T) {
	forum := newFakeForum()
	forum.pages[""] = driven.CommentPage{Comments: comments("c9", "c8"), After: "t1_c8"}
	forum.pages["t1_c8"] = driven.CommentPage{Comments: comments("c7", "c6", "c5"), After: "t1_c5"}
	store := &fakeWatermarkStore{state: model.WatermarkState{LastCommentID: "c6"}}
	notifier := &fakeNotifier{}

	cursor := application.NewWatermarkCursor(forum, store, notifier, 2, 9, nil)
	got, err := cursor.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"c7", "c8", "c9"}, ids(got))
	assert.Empty(t, notifier.alerts())
}

func TestWatermarkCursor_NumericComparison(t *testing.T) {
	forum := newFakeForum()
	// "z9" sorts after "kz1" lexically but is numerically older.
	forum.pages[""] = driven.CommentPage{Comments: comments("kz1", "z9")}
	store := &fakeWatermarkStore{state: model.WatermarkState{LastCommentID: "z9"}}

	cursor := application.NewWatermarkCursor(forum, store, nil, 10, 9, nil)
	got, err := cursor.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"kz1"}, ids(got))
}

func TestWatermarkCursor_GapIsAlerted(t *testing.T) {
	forum := newFakeForum()
	forum.pages[""] = driven.CommentPage{Comments: comments("d9", "d8"), After: "t1_d8"}
	forum.pages["t1_d8"] = driven.CommentPage{Comments: comments("d7", "d6"), After: "t1_d6"}
	store := &fakeWatermarkStore{state: model.WatermarkState{LastCommentID: "a1"}}
	notifier := &fakeNotifier{}

	cursor := application.NewWatermarkCursor(forum, store, notifier, 2, 2, nil)
	got, err := cursor.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"d6", "d7", "d8", "d9"}, ids(got), "everything retrieved is still processed")
	require.Len(t, notifier.alerts(), 1)
	assert.Contains(t, notifier.alerts()[0], "gap")
	assert.Equal(t, 1, cursor.Stats().Gaps)
}

func TestWatermarkCursor_AdvanceCommitsContiguousPrefix(t *testing.T) {
	forum := newFakeForum()
	forum.pages[""] = driven.CommentPage{Comments: comments("c4", "c3", "c2")}
	store := &fakeWatermarkStore{state: model.WatermarkState{LastCommentID: "c1"}}
	ctx := context.Background()

	cursor := application.NewWatermarkCursor(forum, store, nil, 10, 9, nil)
	_, err := cursor.Poll(ctx)
	require.NoError(t, err)

	require.NoError(t, cursor.Advance(ctx, "c3"))
	assert.Equal(t, "c1", store.last(), "c2 is still pending")

	require.NoError(t, cursor.Advance(ctx, "c2"))
	assert.Equal(t, "c3", store.last())

	require.NoError(t, cursor.Advance(ctx, "c4"))
	assert.Equal(t, "c4", store.last())
	assert.Equal(t, 0, cursor.Stats().Pending)

	require.NoError(t, cursor.Advance(ctx, "unknown"))
}

func TestWatermarkCursor_DiscoveryRunsAheadOfCommit(t *testing.T) {
	forum := newFakeForum()
	forum.pages[""] = driven.CommentPage{Comments: comments("c3", "c2")}
	store := &fakeWatermarkStore{state: model.WatermarkState{LastCommentID: "c1"}}
	ctx := context.Background()

	cursor := application.NewWatermarkCursor(forum, store, nil, 10, 9, nil)
	first, err := cursor.Poll(ctx)
	require.NoError(t, err)
	require.Len(t, first, 2)

	forum.pages[""] = driven.CommentPage{Comments: comments("c5", "c4", "c3", "c2")}
	second, err := cursor.Poll(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"c4", "c5"}, ids(second), "pending comments are not handed out twice")
	assert.Equal(t, "c1", store.last())
	assert.Equal(t, "c5", cursor.Stats().Frontier)
}

func TestWatermarkCursor_RestartResumesFromDurableWatermark(t *testing.T) {
	forum := newFakeForum()
	forum.pages[""] = driven.CommentPage{Comments: comments("c3", "c2", "c1")}
	store := &fakeWatermarkStore{state: model.WatermarkState{LastCommentID: "c1"}}
	ctx := context.Background()

	first := application.NewWatermarkCursor(forum, store, nil, 10, 9, nil)
	_, err := first.Poll(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Advance(ctx, "c2"))

	restarted := application.NewWatermarkCursor(forum, store, nil, 10, 9, nil)
	got, err := restarted.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c3"}, ids(got))
}

package sqlite

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

func TestDedupRepo_Begin_AdmitsOnce(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDedupRepo(db)
	ctx := context.Background()

	res, err := repo.Begin(ctx, "c1", "t1_p1", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, model.BeginAdmitted, res)

	res, err = repo.Begin(ctx, "c1", "t1_p1", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, model.BeginAlreadyPending, res)

	require.NoError(t, repo.Complete(ctx, "c1", model.NotApplicable(model.ReasonNotAConfirmation)))

	res, err = repo.Begin(ctx, "c1", "t1_p1", "owner-c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, model.BeginAlreadyDone, res)
}

func TestDedupRepo_Begin_ConcurrentCallersAdmitExactlyOne(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDedupRepo(db)
	ctx := context.Background()

	const callers = 16
	results := make([]model.BeginResult, callers)

	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := repo.Begin(ctx, "race", "", "owner", time.Minute)
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, r := range results {
		if r == model.BeginAdmitted {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted)
}

func TestDedupRepo_Begin_ReclaimsExpiredLease(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDedupRepo(db)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return base }

	res, err := repo.Begin(ctx, "c1", "", "crashed", time.Minute)
	require.NoError(t, err)
	require.Equal(t, model.BeginAdmitted, res)

	repo.now = func() time.Time { return base.Add(2 * time.Minute) }

	res, err = repo.Begin(ctx, "c1", "", "restarted", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, model.BeginAdmitted, res)

	entry, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "restarted", entry.Owner)
	assert.Equal(t, 2, entry.Attempts)
	assert.Equal(t, model.DedupPending, entry.Status)
}

func TestDedupRepo_Complete_IdempotentAndConflict(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDedupRepo(db)
	ctx := context.Background()

	_, err := repo.Begin(ctx, "c1", "t1_p1", "owner", time.Minute)
	require.NoError(t, err)

	valid := model.Valid("Bob", "Alice")
	require.NoError(t, repo.Complete(ctx, "c1", valid))
	require.NoError(t, repo.Complete(ctx, "c1", valid), "same outcome twice is a no-op")

	err = repo.Complete(ctx, "c1", model.Invalid(model.ReasonNoParent, model.OutcomeContext{}))
	assert.ErrorIs(t, err, driven.ErrOutcomeConflict)

	entry, err := repo.Get(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, model.DedupDone, entry.Status)
	assert.Equal(t, "valid:bob>alice", entry.Outcome)
}

func TestDedupRepo_Complete_NotBegun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDedupRepo(db)

	err := repo.Complete(context.Background(), "missing", model.NotApplicable(model.ReasonNotBotThread))
	assert.ErrorIs(t, err, driven.ErrNotBegun)
}

func TestDedupRepo_HasValidOutcome(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDedupRepo(db)
	ctx := context.Background()

	ok, err := repo.HasValidOutcome(ctx, "t1_p1")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Begin(ctx, "c1", "t1_p1", "owner", time.Minute)
	require.NoError(t, err)

	ok, err = repo.HasValidOutcome(ctx, "t1_p1")
	require.NoError(t, err)
	assert.False(t, ok, "pending entries do not count")

	require.NoError(t, repo.Complete(ctx, "c1", model.Valid("bob", "alice")))

	ok, err = repo.HasValidOutcome(ctx, "t1_p1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDedupRepo_Complete_RecordsCreditedParent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDedupRepo(db)
	ctx := context.Background()

	_, err := repo.Begin(ctx, "m1", "n1", "owner", time.Minute)
	require.NoError(t, err)

	outcome := model.Valid("bob", "alice")
	outcome.Context = model.OutcomeContext{CommentID: "m1", ParentID: "c1", ParentAuthor: "alice"}
	require.NoError(t, repo.Complete(ctx, "m1", outcome))

	ok, err := repo.HasValidOutcome(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.HasValidOutcome(ctx, "n1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDedupRepo_Renew(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDedupRepo(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	_, err := repo.Begin(ctx, "c1", "p1", "owner-a", time.Minute)
	require.NoError(t, err)

	now = now.Add(50 * time.Second)
	require.NoError(t, repo.Renew(ctx, "c1", "owner-a", time.Minute))

	now = now.Add(30 * time.Second)
	res, err := repo.Begin(ctx, "c1", "p1", "owner-b", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, model.BeginAlreadyPending, res, "renewed lease is still held")

	err = repo.Renew(ctx, "c1", "owner-b", time.Minute)
	assert.ErrorIs(t, err, driven.ErrLeaseLost)

	require.NoError(t, repo.Complete(ctx, "c1", model.NotApplicable(model.ReasonNotAConfirmation)))
	err = repo.Renew(ctx, "c1", "owner-a", time.Minute)
	assert.ErrorIs(t, err, driven.ErrLeaseLost)
}

func TestDedupRepo_ClaimParent_FirstClaimWins(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDedupRepo(db)
	ctx := context.Background()

	const callers = 8
	won := make([]bool, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := repo.ClaimParent(ctx, "c1", fmt.Sprintf("r%d", i))
			assert.NoError(t, err)
			won[i] = ok
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, ok := range won {
		if ok {
			require.Equal(t, -1, winner, "only one claim may win")
			winner = i
		}
	}
	require.NotEqual(t, -1, winner)

	ok, err := repo.ClaimParent(ctx, "c1", fmt.Sprintf("r%d", winner))
	require.NoError(t, err)
	assert.True(t, ok, "the holder may claim again")
}

func TestDedupRepo_StatsAndManualReview(t *testing.T) {
	db := setupTestDB(t)
	repo := NewDedupRepo(db)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := repo.Begin(ctx, id, "", "owner", time.Minute)
		require.NoError(t, err)
	}
	require.NoError(t, repo.Complete(ctx, "a", model.Valid("x", "y")))
	require.NoError(t, repo.Complete(ctx, "b", model.Invalid(model.ReasonOldThread, model.OutcomeContext{})))
	require.NoError(t, repo.Complete(ctx, "c", model.ManualReview(model.ReasonRetriesExhausted)))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DedupStats{Pending: 1, Done: 3, Valid: 1, Invalid: 1, ManualReview: 1}, stats)

	parked, err := repo.ListManualReview(ctx, 10)
	require.NoError(t, err)
	require.Len(t, parked, 1)
	assert.Equal(t, "c", parked[0].CommentID)
	assert.Equal(t, "manual_review:retries_exhausted", parked[0].Outcome)
}

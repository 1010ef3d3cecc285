package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DedupStore = (*DedupRepo)(nil)

// DedupRepo is the SQLite implementation of the DedupStore port interface.
type DedupRepo struct {
	db  *DB
	now func() time.Time
}

// NewDedupRepo creates a new DedupRepo backed by the given DB.
func NewDedupRepo(db *DB) *DedupRepo {
	return &DedupRepo{db: db, now: time.Now}
}

// Begin admits the caller as the single processor of commentID. An existing
// pending entry is only handed over once its lease has expired.
func (r *DedupRepo) Begin(ctx context.Context, commentID, parentID, owner string, lease time.Duration) (model.BeginResult, error) {
	now := r.now().UTC()
	leaseUntil := now.Add(lease).UnixMilli()
	result := model.BeginAlreadyPending

	err := r.db.withTx(ctx, "begin dedup", func(tx *sql.Tx) error {
		const insert = `
			INSERT INTO dedup_entries (comment_id, parent_id, status, owner, lease_until, attempts, created_at, updated_at)
			VALUES (?, ?, 'pending', ?, ?, 1, ?, ?)
			ON CONFLICT(comment_id) DO NOTHING`

		res, err := tx.ExecContext(ctx, insert, commentID, parentID, owner, leaseUntil, formatTime(now), formatTime(now))
		if err != nil {
			return fmt.Errorf("begin dedup %q: insert: %w", commentID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("begin dedup %q: rows affected: %w", commentID, err)
		} else if n == 1 {
			result = model.BeginAdmitted
			return nil
		}

		var status string
		var currentLease int64
		err = tx.QueryRowContext(ctx,
			`SELECT status, lease_until FROM dedup_entries WHERE comment_id = ?`, commentID,
		).Scan(&status, &currentLease)
		if err != nil {
			return fmt.Errorf("begin dedup %q: select existing: %w", commentID, err)
		}

		if model.DedupStatus(status) == model.DedupDone {
			result = model.BeginAlreadyDone
			return nil
		}
		if currentLease > now.UnixMilli() {
			return nil
		}

		const reclaim = `
			UPDATE dedup_entries
			SET owner = ?, lease_until = ?, attempts = attempts + 1, updated_at = ?
			WHERE comment_id = ? AND status = 'pending' AND lease_until <= ?`

		res, err = tx.ExecContext(ctx, reclaim, owner, leaseUntil, formatTime(now), commentID, now.UnixMilli())
		if err != nil {
			return fmt.Errorf("begin dedup %q: reclaim: %w", commentID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("begin dedup %q: rows affected: %w", commentID, err)
		} else if n == 1 {
			result = model.BeginAdmitted
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	return result, nil
}

// Complete records the terminal outcome for commentID.
func (r *DedupRepo) Complete(ctx context.Context, commentID string, outcome model.Outcome) error {
	summary := outcome.Summary()

	return r.db.withTx(ctx, "complete dedup", func(tx *sql.Tx) error {
		var status, existing string
		err := tx.QueryRowContext(ctx,
			`SELECT status, outcome FROM dedup_entries WHERE comment_id = ?`, commentID,
		).Scan(&status, &existing)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("complete dedup %q: %w", commentID, driven.ErrNotBegun)
		}
		if err != nil {
			return fmt.Errorf("complete dedup %q: select: %w", commentID, err)
		}

		if model.DedupStatus(status) == model.DedupDone {
			if existing == summary {
				return nil
			}
			return fmt.Errorf("complete dedup %q: recorded %q, got %q: %w", commentID, existing, summary, driven.ErrOutcomeConflict)
		}

		const update = `
			UPDATE dedup_entries
			SET status = 'done', outcome = ?, outcome_kind = ?, lease_until = 0, updated_at = ?,
			    parent_id = CASE WHEN ? <> '' THEN ? ELSE parent_id END
			WHERE comment_id = ? AND status = 'pending'`

		credited := creditedParent(outcome)
		if _, err := tx.ExecContext(ctx, update, summary, string(outcome.Kind), formatTime(r.now()), credited, credited, commentID); err != nil {
			return fmt.Errorf("complete dedup %q: update: %w", commentID, err)
		}
		return nil
	})
}

// creditedParent is the comment a Valid outcome credited, which differs from
// the direct parent for a moderator approval on a nested reply.
func creditedParent(outcome model.Outcome) string {
	if outcome.Kind != model.OutcomeValid {
		return ""
	}
	return outcome.Context.ParentID
}

// Renew extends the lease on a pending entry still held by owner.
func (r *DedupRepo) Renew(ctx context.Context, commentID, owner string, lease time.Duration) error {
	now := r.now().UTC()
	const update = `
		UPDATE dedup_entries
		SET lease_until = ?, updated_at = ?
		WHERE comment_id = ? AND owner = ? AND status = 'pending'`

	res, err := r.db.Writer.ExecContext(ctx, update, now.Add(lease).UnixMilli(), formatTime(now), commentID, owner)
	if err != nil {
		return fmt.Errorf("renew dedup %q: %w", commentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("renew dedup %q: rows affected: %w", commentID, err)
	}
	if n == 0 {
		return fmt.Errorf("renew dedup %q: %w", commentID, driven.ErrLeaseLost)
	}
	return nil
}

// ClaimParent reserves parentID for commentID. The first claim wins.
func (r *DedupRepo) ClaimParent(ctx context.Context, parentID, commentID string) (bool, error) {
	var holder string
	err := r.db.withTx(ctx, "claim parent", func(tx *sql.Tx) error {
		const insert = `
			INSERT INTO parent_claims (parent_id, comment_id, created_at)
			VALUES (?, ?, ?)
			ON CONFLICT(parent_id) DO NOTHING`

		if _, err := tx.ExecContext(ctx, insert, parentID, commentID, formatTime(r.now())); err != nil {
			return fmt.Errorf("claim parent %q: insert: %w", parentID, err)
		}
		err := tx.QueryRowContext(ctx,
			`SELECT comment_id FROM parent_claims WHERE parent_id = ?`, parentID,
		).Scan(&holder)
		if err != nil {
			return fmt.Errorf("claim parent %q: select: %w", parentID, err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return holder == commentID, nil
}

// Get returns the dedup entry for commentID, or nil, nil if none exists.
func (r *DedupRepo) Get(ctx context.Context, commentID string) (*model.DedupEntry, error) {
	const query = `
		SELECT comment_id, parent_id, status, outcome, outcome_kind, owner, lease_until, attempts, created_at, updated_at
		FROM dedup_entries WHERE comment_id = ?`

	entry, err := scanDedupEntry(r.db.Reader.QueryRowContext(ctx, query, commentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dedup %q: %w", commentID, err)
	}

	return entry, nil
}

// HasValidOutcome reports whether any completed valid confirmation replied to parentID.
func (r *DedupRepo) HasValidOutcome(ctx context.Context, parentID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM dedup_entries
			WHERE parent_id = ? AND status = 'done' AND outcome_kind = 'valid'
		)`

	var exists bool
	if err := r.db.Reader.QueryRowContext(ctx, query, parentID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check valid outcome for parent %q: %w", parentID, err)
	}

	return exists, nil
}

// Stats aggregates entry counts by status and outcome kind.
func (r *DedupRepo) Stats(ctx context.Context) (model.DedupStats, error) {
	const query = `SELECT status, outcome_kind, COUNT(*) FROM dedup_entries GROUP BY status, outcome_kind`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return model.DedupStats{}, fmt.Errorf("dedup stats: %w", err)
	}
	defer rows.Close()

	var stats model.DedupStats
	for rows.Next() {
		var status, kind string
		var n int
		if err := rows.Scan(&status, &kind, &n); err != nil {
			return model.DedupStats{}, fmt.Errorf("scan dedup stats: %w", err)
		}

		if model.DedupStatus(status) == model.DedupPending {
			stats.Pending += n
			continue
		}

		stats.Done += n
		switch model.OutcomeKind(kind) {
		case model.OutcomeValid:
			stats.Valid += n
		case model.OutcomeInvalid:
			stats.Invalid += n
		case model.OutcomeManualReview:
			stats.ManualReview += n
		}
	}

	if err := rows.Err(); err != nil {
		return model.DedupStats{}, fmt.Errorf("iterate dedup stats: %w", err)
	}

	return stats, nil
}

// ListManualReview returns the most recently parked comments, newest first.
func (r *DedupRepo) ListManualReview(ctx context.Context, limit int) ([]model.DedupEntry, error) {
	const query = `
		SELECT comment_id, parent_id, status, outcome, outcome_kind, owner, lease_until, attempts, created_at, updated_at
		FROM dedup_entries
		WHERE status = 'done' AND outcome_kind = 'manual_review'
		ORDER BY updated_at DESC
		LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list manual review: %w", err)
	}
	defer rows.Close()

	var entries []model.DedupEntry
	for rows.Next() {
		entry, err := scanDedupEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dedup entry: %w", err)
		}
		entries = append(entries, *entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manual review: %w", err)
	}

	return entries, nil
}

func scanDedupEntry(s scanner) (*model.DedupEntry, error) {
	var e model.DedupEntry
	var status, kind, createdAt, updatedAt string
	var leaseUntil int64

	err := s.Scan(&e.CommentID, &e.ParentID, &status, &e.Outcome, &kind, &e.Owner, &leaseUntil, &e.Attempts, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.Status = model.DedupStatus(status)
	e.OutcomeKind = model.OutcomeKind(kind)
	if leaseUntil > 0 {
		e.LeaseUntil = time.UnixMilli(leaseUntil).UTC()
	}

	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &e, nil
}

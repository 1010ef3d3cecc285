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
var _ driven.LedgerStore = (*LedgerRepo)(nil)

// LedgerRepo is the SQLite implementation of the LedgerStore port interface.
type LedgerRepo struct {
	db *DB
}

// NewLedgerRepo creates a new LedgerRepo backed by the given DB.
func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// GetCounter returns the stored counter for username, or nil, nil if the user
// has never been credited.
func (r *LedgerRepo) GetCounter(ctx context.Context, username string) (*model.UserCounter, error) {
	const query = `SELECT username, count, updated_at FROM user_counters WHERE username = ?`

	c, err := scanCounter(r.db.Reader.QueryRowContext(ctx, query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get counter %q: %w", username, err)
	}

	return c, nil
}

// ListCounters returns the counters with the most trades first.
func (r *LedgerRepo) ListCounters(ctx context.Context, limit int) ([]model.UserCounter, error) {
	const query = `SELECT username, count, updated_at FROM user_counters ORDER BY count DESC, username LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list counters: %w", err)
	}
	defer rows.Close()

	var counters []model.UserCounter
	for rows.Next() {
		c, err := scanCounter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan counter: %w", err)
		}
		counters = append(counters, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counters: %w", err)
	}

	return counters, nil
}

// GetEntry returns the journal entry for requestID, or nil, nil if absent.
func (r *LedgerRepo) GetEntry(ctx context.Context, requestID string) (*model.LedgerEntry, error) {
	const query = `
		SELECT request_id, username, seq, status, old_count, new_count, old_label, new_label, created_at, updated_at
		FROM ledger_journal WHERE request_id = ?`

	e, err := scanLedgerEntry(r.db.Reader.QueryRowContext(ctx, query, requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ledger entry %q: %w", requestID, err)
	}

	return e, nil
}

// Accept durably records an increment request before it is applied.
func (r *LedgerRepo) Accept(ctx context.Context, entry model.LedgerEntry) error {
	const query = `
		INSERT INTO ledger_journal (request_id, username, seq, status, old_count, new_count, old_label, created_at, updated_at)
		VALUES (?, ?, ?, 'accepted', ?, ?, ?, ?, ?)
		ON CONFLICT(request_id) DO NOTHING`

	now := formatTime(time.Now())
	_, err := r.db.Writer.ExecContext(ctx, query,
		entry.RequestID, entry.Username, entry.Seq, entry.OldCount, entry.NewCount, entry.OldLabel, now, now)
	if err != nil {
		return fmt.Errorf("accept ledger request %q: %w", entry.RequestID, err)
	}

	return nil
}

// Apply sets the user's counter and marks the request applied in one transaction.
func (r *LedgerRepo) Apply(ctx context.Context, entry model.LedgerEntry) error {
	now := formatTime(time.Now())

	return r.db.withTx(ctx, "apply ledger request", func(tx *sql.Tx) error {
		const upsertCounter = `
			INSERT INTO user_counters (username, count, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(username) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at`

		if _, err := tx.ExecContext(ctx, upsertCounter, entry.Username, entry.NewCount, now); err != nil {
			return fmt.Errorf("apply ledger request %q: upsert counter: %w", entry.RequestID, err)
		}

		const markApplied = `
			INSERT INTO ledger_journal (request_id, username, seq, status, old_count, new_count, old_label, new_label, created_at, updated_at)
			VALUES (?, ?, ?, 'applied', ?, ?, ?, ?, ?, ?)
			ON CONFLICT(request_id) DO UPDATE SET
				status = 'applied',
				old_count = excluded.old_count,
				new_count = excluded.new_count,
				old_label = excluded.old_label,
				new_label = excluded.new_label,
				updated_at = excluded.updated_at`

		_, err := tx.ExecContext(ctx, markApplied,
			entry.RequestID, entry.Username, entry.Seq,
			entry.OldCount, entry.NewCount, entry.OldLabel, entry.NewLabel, now, now,
		)
		if err != nil {
			return fmt.Errorf("apply ledger request %q: mark applied: %w", entry.RequestID, err)
		}
		return nil
	})
}

// MarkUntracked records that the request's user carries a custom label.
func (r *LedgerRepo) MarkUntracked(ctx context.Context, requestID string, label string) error {
	const query = `UPDATE ledger_journal SET status = 'untracked', old_label = ?, new_label = ?, updated_at = ? WHERE request_id = ?`

	res, err := r.db.Writer.ExecContext(ctx, query, label, label, formatTime(time.Now()), requestID)
	if err != nil {
		return fmt.Errorf("mark ledger request %q untracked: %w", requestID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("mark ledger request %q untracked: not accepted", requestID)
	}

	return nil
}

// CountByStatus counts journal entries in the given status.
func (r *LedgerRepo) CountByStatus(ctx context.Context, status model.LedgerStatus) (int, error) {
	const query = `SELECT COUNT(*) FROM ledger_journal WHERE status = ?`

	var n int
	if err := r.db.Reader.QueryRowContext(ctx, query, string(status)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ledger entries %s: %w", status, err)
	}

	return n, nil
}

func scanCounter(s scanner) (*model.UserCounter, error) {
	var c model.UserCounter
	var updatedAt string

	if err := s.Scan(&c.Username, &c.Count, &updatedAt); err != nil {
		return nil, err
	}

	var err error
	if c.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &c, nil
}

func scanLedgerEntry(s scanner) (*model.LedgerEntry, error) {
	var e model.LedgerEntry
	var status, createdAt, updatedAt string

	err := s.Scan(&e.RequestID, &e.Username, &e.Seq, &status, &e.OldCount, &e.NewCount, &e.OldLabel, &e.NewLabel, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	e.Status = model.LedgerStatus(status)
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &e, nil
}

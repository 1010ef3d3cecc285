package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ThreadStore = (*ThreadRepo)(nil)

// ThreadRepo is the SQLite implementation of the ThreadStore port interface.
type ThreadRepo struct {
	db *DB
}

// NewThreadRepo creates a new ThreadRepo backed by the given DB.
func NewThreadRepo(db *DB) *ThreadRepo {
	return &ThreadRepo{db: db}
}

// GetRotation returns the rotation recorded for period, or nil, nil.
func (r *ThreadRepo) GetRotation(ctx context.Context, period string) (*model.ThreadRotation, error) {
	const query = `SELECT period, submission_id, created_at FROM thread_rotations WHERE period = ?`

	var rot model.ThreadRotation
	var createdAt string

	err := r.db.Reader.QueryRowContext(ctx, query, period).Scan(&rot.Period, &rot.SubmissionID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rotation %s: %w", period, err)
	}

	if rot.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &rot, nil
}

// SaveRotation records the thread created for a period. The first record wins.
func (r *ThreadRepo) SaveRotation(ctx context.Context, rotation model.ThreadRotation) error {
	const query = `
		INSERT INTO thread_rotations (period, submission_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT(period) DO NOTHING`

	_, err := r.db.Writer.ExecContext(ctx, query, rotation.Period, rotation.SubmissionID, formatTime(rotation.CreatedAt))
	if err != nil {
		return fmt.Errorf("save rotation %s: %w", rotation.Period, err)
	}

	return nil
}

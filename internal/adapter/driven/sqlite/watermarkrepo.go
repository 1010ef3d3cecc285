package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.WatermarkStore = (*WatermarkRepo)(nil)

// WatermarkRepo is the SQLite implementation of the WatermarkStore port interface.
// The watermark is a single row; the id is also stored as its base36 value so
// the monotonic guard can be enforced in SQL.
type WatermarkRepo struct {
	db *DB
}

// NewWatermarkRepo creates a new WatermarkRepo backed by the given DB.
func NewWatermarkRepo(db *DB) *WatermarkRepo {
	return &WatermarkRepo{db: db}
}

// Load returns the stored watermark, or the zero state before the first save.
func (r *WatermarkRepo) Load(ctx context.Context) (model.WatermarkState, error) {
	const query = `SELECT last_comment_id, boundary, window_seq, updated_at FROM watermark WHERE id = 1`

	var state model.WatermarkState
	var updatedAt string

	err := r.db.Reader.QueryRowContext(ctx, query).Scan(&state.LastCommentID, &state.Boundary, &state.Window, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.WatermarkState{}, nil
	}
	if err != nil {
		return model.WatermarkState{}, fmt.Errorf("load watermark: %w", err)
	}

	if state.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return model.WatermarkState{}, fmt.Errorf("parse updated_at: %w", err)
	}

	return state, nil
}

// Save stores state when its comment id is newer than the stored one.
func (r *WatermarkRepo) Save(ctx context.Context, state model.WatermarkState) (bool, error) {
	num, err := strconv.ParseUint(strings.ToLower(state.LastCommentID), 36, 63)
	if err != nil {
		return false, fmt.Errorf("save watermark %q: invalid comment id: %w", state.LastCommentID, err)
	}

	const query = `
		INSERT INTO watermark (id, last_comment_id, last_comment_num, boundary, window_seq, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			last_comment_id = excluded.last_comment_id,
			last_comment_num = excluded.last_comment_num,
			boundary = excluded.boundary,
			window_seq = MAX(watermark.window_seq, excluded.window_seq),
			updated_at = excluded.updated_at
		WHERE excluded.last_comment_num > watermark.last_comment_num`

	res, err := r.db.Writer.ExecContext(ctx, query,
		state.LastCommentID, int64(num), state.Boundary, state.Window, formatTime(time.Now()),
	)
	if err != nil {
		return false, fmt.Errorf("save watermark %q: %w", state.LastCommentID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check rows affected: %w", err)
	}

	return rows > 0, nil
}

package postgresadapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// Store implements every persistence port on one gorm connection.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a Store. A nil logger falls back to slog.Default.
func NewStore(db *gorm.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger, now: time.Now}
}

// Begin admits the caller as the single processor of commentID.
func (s *Store) Begin(ctx context.Context, commentID, parentID, owner string, lease time.Duration) (model.BeginResult, error) {
	now := s.now().UTC()
	result := model.BeginAlreadyPending

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := dedupModel{
			CommentID:  commentID,
			ParentID:   parentID,
			Status:     string(model.DedupPending),
			Owner:      owner,
			LeaseUntil: now.Add(lease),
			Attempts:   1,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		create := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "comment_id"}},
			DoNothing: true,
		}).Create(&row)
		if create.Error != nil {
			return create.Error
		}
		if create.RowsAffected > 0 {
			result = model.BeginAdmitted
			return nil
		}

		var existing dedupModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("comment_id = ?", commentID).
			First(&existing).Error; err != nil {
			return err
		}

		if existing.Status == string(model.DedupDone) {
			result = model.BeginAlreadyDone
			return nil
		}
		if existing.LeaseUntil.After(now) {
			return nil
		}

		update := tx.Model(&dedupModel{}).
			Where("comment_id = ? AND status = ?", commentID, string(model.DedupPending)).
			Updates(map[string]any{
				"owner":       owner,
				"lease_until": now.Add(lease),
				"attempts":    gorm.Expr("attempts + 1"),
				"updated_at":  now,
			})
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 1 {
			result = model.BeginAdmitted
		}
		return nil
	})
	if err != nil {
		return "", s.logError("dedup_begin_failed", err, "comment_id", commentID)
	}

	return result, nil
}

// Complete records the terminal outcome for commentID.
func (s *Store) Complete(ctx context.Context, commentID string, outcome model.Outcome) error {
	summary := outcome.Summary()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing dedupModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("comment_id = ?", commentID).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("complete dedup %q: %w", commentID, driven.ErrNotBegun)
		}
		if err != nil {
			return s.logError("dedup_complete_load_failed", err, "comment_id", commentID)
		}

		if existing.Status == string(model.DedupDone) {
			if existing.Outcome == summary {
				return nil
			}
			return fmt.Errorf("complete dedup %q: recorded %q, got %q: %w", commentID, existing.Outcome, summary, driven.ErrOutcomeConflict)
		}

		updates := map[string]any{
			"status":       string(model.DedupDone),
			"outcome":      summary,
			"outcome_kind": string(outcome.Kind),
			"lease_until":  time.Time{},
			"updated_at":   s.now().UTC(),
		}
		if outcome.Kind == model.OutcomeValid && outcome.Context.ParentID != "" {
			updates["parent_id"] = outcome.Context.ParentID
		}
		err = tx.Model(&dedupModel{}).
			Where("comment_id = ?", commentID).
			Updates(updates).Error
		if err != nil {
			return s.logError("dedup_complete_failed", err, "comment_id", commentID)
		}
		return nil
	})
}

// Get returns the dedup entry for commentID, or nil, nil if none exists.
func (s *Store) Get(ctx context.Context, commentID string) (*model.DedupEntry, error) {
	var row dedupModel
	err := s.db.WithContext(ctx).Where("comment_id = ?", commentID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.logError("dedup_get_failed", err, "comment_id", commentID)
	}
	entry := row.toEntity()
	return &entry, nil
}

// Renew extends the lease on a pending entry still held by owner.
func (s *Store) Renew(ctx context.Context, commentID, owner string, lease time.Duration) error {
	now := s.now().UTC()
	update := s.db.WithContext(ctx).Model(&dedupModel{}).
		Where("comment_id = ? AND owner = ? AND status = ?", commentID, owner, string(model.DedupPending)).
		Updates(map[string]any{"lease_until": now.Add(lease), "updated_at": now})
	if update.Error != nil {
		return s.logError("dedup_renew_failed", update.Error, "comment_id", commentID)
	}
	if update.RowsAffected == 0 {
		return fmt.Errorf("renew dedup %q: %w", commentID, driven.ErrLeaseLost)
	}
	return nil
}

// ClaimParent reserves parentID for commentID. The first claim wins.
func (s *Store) ClaimParent(ctx context.Context, parentID, commentID string) (bool, error) {
	row := claimModel{ParentID: parentID, CommentID: commentID, CreatedAt: s.now().UTC()}
	db := s.db.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "parent_id"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return false, s.logError("claim_parent_failed", err, "parent_id", parentID)
	}

	var holder claimModel
	if err := db.Where("parent_id = ?", parentID).First(&holder).Error; err != nil {
		return false, s.logError("claim_parent_load_failed", err, "parent_id", parentID)
	}
	return holder.CommentID == commentID, nil
}

// HasValidOutcome reports whether a completed valid confirmation credited parentID.
func (s *Store) HasValidOutcome(ctx context.Context, parentID string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&dedupModel{}).
		Where("parent_id = ? AND status = ? AND outcome_kind = ?", parentID, string(model.DedupDone), string(model.OutcomeValid)).
		Count(&n).Error
	if err != nil {
		return false, s.logError("dedup_has_valid_failed", err, "parent_id", parentID)
	}
	return n > 0, nil
}

// Stats aggregates entry counts by status and outcome kind.
func (s *Store) Stats(ctx context.Context) (model.DedupStats, error) {
	var rows []struct {
		Status      string
		OutcomeKind string
		N           int
	}
	err := s.db.WithContext(ctx).Model(&dedupModel{}).
		Select("status, outcome_kind, COUNT(*) AS n").
		Group("status, outcome_kind").
		Scan(&rows).Error
	if err != nil {
		return model.DedupStats{}, s.logError("dedup_stats_failed", err)
	}

	var stats model.DedupStats
	for _, r := range rows {
		if r.Status == string(model.DedupPending) {
			stats.Pending += r.N
			continue
		}
		stats.Done += r.N
		switch model.OutcomeKind(r.OutcomeKind) {
		case model.OutcomeValid:
			stats.Valid += r.N
		case model.OutcomeInvalid:
			stats.Invalid += r.N
		case model.OutcomeManualReview:
			stats.ManualReview += r.N
		}
	}
	return stats, nil
}

// ListManualReview returns the most recently parked comments, newest first.
func (s *Store) ListManualReview(ctx context.Context, limit int) ([]model.DedupEntry, error) {
	var rows []dedupModel
	err := s.db.WithContext(ctx).
		Where("status = ? AND outcome_kind = ?", string(model.DedupDone), string(model.OutcomeManualReview)).
		Order("updated_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, s.logError("dedup_list_manual_review_failed", err)
	}

	entries := make([]model.DedupEntry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, r.toEntity())
	}
	return entries, nil
}

// GetCounter returns the stored counter for username, or nil, nil.
func (s *Store) GetCounter(ctx context.Context, username string) (*model.UserCounter, error) {
	var row counterModel
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.logError("ledger_get_counter_failed", err, "user", username)
	}
	c := row.toEntity()
	return &c, nil
}

// ListCounters returns the counters with the most trades first.
func (s *Store) ListCounters(ctx context.Context, limit int) ([]model.UserCounter, error) {
	var rows []counterModel
	err := s.db.WithContext(ctx).Order("count DESC, username ASC").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, s.logError("ledger_list_counters_failed", err)
	}

	counters := make([]model.UserCounter, 0, len(rows))
	for _, r := range rows {
		counters = append(counters, r.toEntity())
	}
	return counters, nil
}

// GetEntry returns the journal entry for requestID, or nil, nil.
func (s *Store) GetEntry(ctx context.Context, requestID string) (*model.LedgerEntry, error) {
	var row journalModel
	err := s.db.WithContext(ctx).Where("request_id = ?", requestID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.logError("ledger_get_entry_failed", err, "request_id", requestID)
	}
	e := row.toEntity()
	return &e, nil
}

// Accept durably records an increment request before it is applied.
func (s *Store) Accept(ctx context.Context, entry model.LedgerEntry) error {
	now := s.now().UTC()
	row := journalModel{
		RequestID: entry.RequestID,
		Username:  entry.Username,
		Seq:       entry.Seq,
		Status:    string(model.LedgerAccepted),
		OldCount:  entry.OldCount,
		NewCount:  entry.NewCount,
		OldLabel:  entry.OldLabel,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "request_id"}},
		DoNothing: true,
	}).Create(&row).Error
	if err != nil {
		return s.logError("ledger_accept_failed", err, "request_id", entry.RequestID)
	}
	return nil
}

// Apply sets the user's counter and marks the request applied in one transaction.
func (s *Store) Apply(ctx context.Context, entry model.LedgerEntry) error {
	now := s.now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		counter := counterModel{Username: entry.Username, Count: entry.NewCount, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			DoUpdates: clause.AssignmentColumns([]string{"count", "updated_at"}),
		}).Create(&counter).Error; err != nil {
			return err
		}

		row := journalModel{
			RequestID: entry.RequestID,
			Username:  entry.Username,
			Seq:       entry.Seq,
			Status:    string(model.LedgerApplied),
			OldCount:  entry.OldCount,
			NewCount:  entry.NewCount,
			OldLabel:  entry.OldLabel,
			NewLabel:  entry.NewLabel,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "old_count", "new_count", "old_label", "new_label", "updated_at"}),
		}).Create(&row).Error
	})
	if err != nil {
		return s.logError("ledger_apply_failed", err, "request_id", entry.RequestID, "user", entry.Username)
	}
	return nil
}

// MarkUntracked records that the request's user carries a custom label.
func (s *Store) MarkUntracked(ctx context.Context, requestID string, label string) error {
	update := s.db.WithContext(ctx).Model(&journalModel{}).
		Where("request_id = ?", requestID).
		Updates(map[string]any{
			"status":     string(model.LedgerUntracked),
			"old_label":  label,
			"new_label":  label,
			"updated_at": s.now().UTC(),
		})
	if update.Error != nil {
		return s.logError("ledger_mark_untracked_failed", update.Error, "request_id", requestID)
	}
	if update.RowsAffected == 0 {
		return fmt.Errorf("mark ledger request %q untracked: not accepted", requestID)
	}
	return nil
}

// CountByStatus counts journal entries in the given status.
func (s *Store) CountByStatus(ctx context.Context, status model.LedgerStatus) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&journalModel{}).Where("status = ?", string(status)).Count(&n).Error; err != nil {
		return 0, s.logError("ledger_count_failed", err, "status", string(status))
	}
	return int(n), nil
}

// Load returns the stored watermark, or the zero state before the first save.
func (s *Store) Load(ctx context.Context) (model.WatermarkState, error) {
	var row watermarkModel
	err := s.db.WithContext(ctx).Where("id = ?", 1).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.WatermarkState{}, nil
	}
	if err != nil {
		return model.WatermarkState{}, s.logError("watermark_load_failed", err)
	}
	return model.WatermarkState{
		LastCommentID: row.LastCommentID,
		Boundary:      row.Boundary,
		Window:        row.WindowSeq,
		UpdatedAt:     row.UpdatedAt.UTC(),
	}, nil
}

// Save stores state when its comment id is newer than the stored one.
func (s *Store) Save(ctx context.Context, state model.WatermarkState) (bool, error) {
	num, err := strconv.ParseUint(strings.ToLower(state.LastCommentID), 36, 63)
	if err != nil {
		return false, fmt.Errorf("save watermark %q: invalid comment id: %w", state.LastCommentID, err)
	}

	row := watermarkModel{
		ID:             1,
		LastCommentID:  state.LastCommentID,
		LastCommentNum: int64(num),
		Boundary:       state.Boundary,
		WindowSeq:      state.Window,
		UpdatedAt:      s.now().UTC(),
	}
	create := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"last_comment_id":  row.LastCommentID,
			"last_comment_num": row.LastCommentNum,
			"boundary":         row.Boundary,
			"window_seq":       gorm.Expr("GREATEST(watermark.window_seq, ?)", row.WindowSeq),
			"updated_at":       row.UpdatedAt,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "watermark.last_comment_num < ?", Vars: []any{row.LastCommentNum}},
		}},
	}).Create(&row)
	if create.Error != nil {
		return false, s.logError("watermark_save_failed", create.Error, "comment_id", state.LastCommentID)
	}
	return create.RowsAffected > 0, nil
}

// GetRotation returns the rotation recorded for period, or nil, nil.
func (s *Store) GetRotation(ctx context.Context, period string) (*model.ThreadRotation, error) {
	var row rotationModel
	err := s.db.WithContext(ctx).Where("period = ?", period).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.logError("rotation_get_failed", err, "period", period)
	}
	return &model.ThreadRotation{Period: row.Period, SubmissionID: row.SubmissionID, CreatedAt: row.CreatedAt.UTC()}, nil
}

// SaveRotation records the thread created for a period. The first record wins.
func (s *Store) SaveRotation(ctx context.Context, rotation model.ThreadRotation) error {
	createdAt := rotation.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	row := rotationModel{Period: rotation.Period, SubmissionID: rotation.SubmissionID, CreatedAt: createdAt.UTC()}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return s.logError("rotation_save_failed", err, "period", rotation.Period)
	}
	return nil
}

func (s *Store) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+6)
	fields = append(fields,
		"event", event,
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	s.logger.Error("postgres store operation failed", fields...)
	return err
}

var _ driven.DedupStore = (*Store)(nil)
var _ driven.LedgerStore = (*Store)(nil)
var _ driven.WatermarkStore = (*Store)(nil)
var _ driven.ThreadStore = (*Store)(nil)

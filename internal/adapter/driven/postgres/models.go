package postgresadapter

import (
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

type dedupModel struct {
	CommentID   string    `gorm:"column:comment_id;primaryKey"`
	ParentID    string    `gorm:"column:parent_id;index:idx_dedup_parent"`
	Status      string    `gorm:"column:status;index:idx_dedup_status"`
	Outcome     string    `gorm:"column:outcome"`
	OutcomeKind string    `gorm:"column:outcome_kind;index:idx_dedup_parent;index:idx_dedup_status"`
	Owner       string    `gorm:"column:owner"`
	LeaseUntil  time.Time `gorm:"column:lease_until"`
	Attempts    int       `gorm:"column:attempts"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (dedupModel) TableName() string {
	return "dedup_entries"
}

func (m dedupModel) toEntity() model.DedupEntry {
	return model.DedupEntry{
		CommentID:   m.CommentID,
		ParentID:    m.ParentID,
		Status:      model.DedupStatus(m.Status),
		Outcome:     m.Outcome,
		OutcomeKind: model.OutcomeKind(m.OutcomeKind),
		Owner:       m.Owner,
		LeaseUntil:  m.LeaseUntil.UTC(),
		Attempts:    m.Attempts,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

type counterModel struct {
	Username  string    `gorm:"column:username;primaryKey"`
	Count     int       `gorm:"column:count"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (counterModel) TableName() string {
	return "user_counters"
}

func (m counterModel) toEntity() model.UserCounter {
	return model.UserCounter{Username: m.Username, Count: m.Count, UpdatedAt: m.UpdatedAt.UTC()}
}

type journalModel struct {
	RequestID string    `gorm:"column:request_id;primaryKey"`
	Username  string    `gorm:"column:username;index"`
	Seq       int64     `gorm:"column:seq"`
	Status    string    `gorm:"column:status;index"`
	OldCount  int       `gorm:"column:old_count"`
	NewCount  int       `gorm:"column:new_count"`
	OldLabel  string    `gorm:"column:old_label"`
	NewLabel  string    `gorm:"column:new_label"`
	CreatedAt time.Time `gorm:"column:created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (journalModel) TableName() string {
	return "ledger_journal"
}

func (m journalModel) toEntity() model.LedgerEntry {
	return model.LedgerEntry{
		RequestID: m.RequestID,
		Username:  m.Username,
		Seq:       m.Seq,
		Status:    model.LedgerStatus(m.Status),
		OldCount:  m.OldCount,
		NewCount:  m.NewCount,
		OldLabel:  m.OldLabel,
		NewLabel:  m.NewLabel,
		CreatedAt: m.CreatedAt.UTC(),
		UpdatedAt: m.UpdatedAt.UTC(),
	}
}

type watermarkModel struct {
	ID             int       `gorm:"column:id;primaryKey;autoIncrement:false"`
	LastCommentID  string    `gorm:"column:last_comment_id"`
	LastCommentNum int64     `gorm:"column:last_comment_num"`
	Boundary       string    `gorm:"column:boundary"`
	WindowSeq      int64     `gorm:"column:window_seq"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (watermarkModel) TableName() string {
	return "watermark"
}

type rotationModel struct {
	Period       string    `gorm:"column:period;primaryKey"`
	SubmissionID string    `gorm:"column:submission_id"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (rotationModel) TableName() string {
	return "thread_rotations"
}

type claimModel struct {
	ParentID  string    `gorm:"column:parent_id;primaryKey"`
	CommentID string    `gorm:"column:comment_id"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (claimModel) TableName() string {
	return "parent_claims"
}

package model

import "time"

// DedupEntry is the exactly-once gate record for one comment.
type DedupEntry struct {
	CommentID   string      `json:"comment_id"`
	ParentID    string      `json:"parent_id"`
	Status      DedupStatus `json:"status"`
	Outcome     string      `json:"outcome"`
	OutcomeKind OutcomeKind `json:"outcome_kind"`
	Owner       string      `json:"owner"`
	LeaseUntil  time.Time   `json:"lease_until"`
	Attempts    int         `json:"attempts"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// DedupStats summarizes the dedup table for health reporting.
type DedupStats struct {
	Pending      int `json:"pending"`
	Done         int `json:"done"`
	Valid        int `json:"valid"`
	Invalid      int `json:"invalid"`
	ManualReview int `json:"manual_review"`
}

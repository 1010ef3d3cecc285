package model

import (
	"fmt"
	"time"
)

// UserCounter is the authoritative trade count for a tracked user.
type UserCounter struct {
	Username  string
	Count     int
	UpdatedAt time.Time
}

// LedgerRequest asks the ledger to credit one trade to one user.
type LedgerRequest struct {
	ID          string
	CommentID   string
	Role        PartyRole
	Username    string
	Seq         int64 // discovery order of the originating comment
	IsModerator bool
}

// LedgerRequestID derives the journal key for a party of a confirmation.
func LedgerRequestID(commentID string, role PartyRole) string {
	return fmt.Sprintf("%s:%s", commentID, role)
}

// LedgerEntry is the durable journal record of a ledger request.
type LedgerEntry struct {
	RequestID string
	Username  string
	Seq       int64
	Status    LedgerStatus
	OldCount  int
	NewCount  int
	OldLabel  string
	NewLabel  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LedgerResult is what an increment reports back to the pipeline.
type LedgerResult struct {
	Username  string
	OldCount  int
	NewCount  int
	OldLabel  string
	NewLabel  string
	Untracked bool
}

package model

import (
	"strconv"
	"strings"
	"time"
)

// WatermarkState is the durable resume point of comment discovery.
type WatermarkState struct {
	LastCommentID string
	Boundary      string // pagination "after" token of the window it was discovered in
	Window        int64
	UpdatedAt     time.Time
}

// IsZero reports whether no watermark has been recorded yet.
func (w WatermarkState) IsZero() bool { return w.LastCommentID == "" }

// CompareIDs orders two base36 comment ids numerically. Ids that do not parse
// fall back to length-then-lexical ordering, which agrees with numeric order
// for canonical base36.
func CompareIDs(a, b string) int {
	a, b = strings.ToLower(a), strings.ToLower(b)
	na, errA := strconv.ParseUint(a, 36, 64)
	nb, errB := strconv.ParseUint(b, 36, 64)
	if errA == nil && errB == nil {
		switch {
		case na < nb:
			return -1
		case na > nb:
			return 1
		default:
			return 0
		}
	}
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}

// ThreadRotation records the confirmation thread created for a month.
type ThreadRotation struct {
	Period       string // "2006-01"
	SubmissionID string
	CreatedAt    time.Time
}

package model

import "time"

// Submission is a forum thread (post) snapshot.
type Submission struct {
	ID        string
	Title     string
	Author    string
	CreatedAt time.Time
	Stickied  bool
	Locked    bool
	Permalink string
}

// URL returns the absolute link to the submission.
func (s Submission) URL() string {
	if s.Permalink == "" {
		return ""
	}
	return "https://www.reddit.com" + s.Permalink
}

// SameMonth reports whether the submission was created in the same UTC
// calendar month as t.
func (s Submission) SameMonth(t time.Time) bool {
	a, b := s.CreatedAt.UTC(), t.UTC()
	return a.Year() == b.Year() && a.Month() == b.Month()
}

// NewSubmission describes a thread to be created on the forum.
type NewSubmission struct {
	Title     string
	Body      string
	FlairID   string
	NoReplies bool
}

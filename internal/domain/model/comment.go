package model

import "time"

// Comment is an immutable snapshot of a forum comment as fetched from the Forum.
type Comment struct {
	ID           string // base36 id without the kind prefix
	Author       string
	Body         string
	BodyHTML     string
	CreatedAt    time.Time
	ParentID     string // fullname of the parent ("t1_..." comment or "t3_..." submission)
	SubmissionID string // base36 id of the root submission
	IsRoot       bool
	AuthorLabel  string
	Removed      bool
	Locked       bool
	Saved        bool
	Permalink    string
}

// ParentCommentID returns the base36 id of the parent comment, or "" when the
// comment is a top-level reply to its submission.
func (c Comment) ParentCommentID() string {
	if c.IsRoot || len(c.ParentID) < 4 || c.ParentID[:3] != "t1_" {
		return ""
	}
	return c.ParentID[3:]
}

// URL returns the absolute link to the comment.
func (c Comment) URL() string {
	if c.Permalink == "" {
		return ""
	}
	return "https://www.reddit.com" + c.Permalink
}

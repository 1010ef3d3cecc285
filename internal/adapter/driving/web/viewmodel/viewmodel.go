// Package viewmodel defines presentation-ready structs for the dashboard views.
// View models decouple rendering from domain and application types.
package viewmodel

// DashboardViewModel holds everything the main page renders.
type DashboardViewModel struct {
	Status       StatusViewModel
	ManualReview []ManualReviewRow
	TopCounters  []CounterRow
	Templates    []TemplateRow
	CSRFToken    string
	Flash        string
}

// StatusViewModel holds presentation-ready engine status.
type StatusViewModel struct {
	Healthy          bool
	StatusLabel      string
	Subreddit        string
	SubredditURL     string
	BotName          string
	CurrentThread    string
	CurrentThreadURL string
	Watermark        string
	WatermarkAge     string
	Frontier         string
	PendingComments  int
	Gaps             int
	Dedup            []StatRow
	Ledger           []StatRow
	PollRunning      bool
	PollTier         string
	PollDelay        string
	QueueDepth       int
	InFlight         int
	GeneratedAt      string
}

// StatRow is a labelled counter.
type StatRow struct {
	Label string
	Value int
}

// ManualReviewRow holds one parked comment.
type ManualReviewRow struct {
	CommentID string
	Reason    string
	Attempts  int
	Age       string
}

// CounterRow holds one user's trade count.
type CounterRow struct {
	Username   string
	ProfileURL string
	Count      int
}

// TemplateRow links to one message template preview.
type TemplateRow struct {
	Name        string
	PreviewPath string
}

// TemplatePreviewViewModel holds a rendered message template.
type TemplatePreviewViewModel struct {
	Name     string
	Source   string
	Override bool
	HTML     string
	Missing  []string
	Error    string
}

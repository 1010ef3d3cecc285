package web

import (
	"fmt"
	"strings"
	"time"

	vm "github.com/ericfisherdev/tradeconfirm/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/tradeconfirm/internal/application"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

// toStatusViewModel converts a status report for display. now anchors the
// relative ages.
func toStatusViewModel(r application.StatusReport, now time.Time) vm.StatusViewModel {
	s := vm.StatusViewModel{
		Healthy:         r.Status == "ok",
		StatusLabel:     strings.ToUpper(r.Status),
		Subreddit:       r.Subreddit,
		BotName:         r.BotName,
		CurrentThread:   r.CurrentThreadID,
		Watermark:       orDash(r.Watermark),
		Frontier:        orDash(r.Frontier),
		PendingComments: r.PendingComments,
		Gaps:            r.Gaps,
		GeneratedAt:     r.GeneratedAt.UTC().Format(time.RFC3339),
		Dedup: []vm.StatRow{
			{Label: "Pending", Value: r.Dedup.Pending},
			{Label: "Done", Value: r.Dedup.Done},
			{Label: "Valid", Value: r.Dedup.Valid},
			{Label: "Invalid", Value: r.Dedup.Invalid},
			{Label: "Manual review", Value: r.Dedup.ManualReview},
		},
		Ledger: []vm.StatRow{
			{Label: "Accepted", Value: r.LedgerAccepted},
			{Label: "Applied", Value: r.LedgerApplied},
			{Label: "Untracked", Value: r.LedgerUntracked},
		},
	}
	if r.Subreddit != "" {
		s.SubredditURL = "https://www.reddit.com/r/" + r.Subreddit
	}
	if r.CurrentThreadID != "" {
		s.CurrentThreadURL = "https://www.reddit.com/comments/" + r.CurrentThreadID
	}
	if !r.WatermarkAt.IsZero() {
		s.WatermarkAge = humanAge(now.Sub(r.WatermarkAt))
	}
	if r.Poll != nil {
		s.PollRunning = r.Poll.Running
		s.PollTier = r.Poll.Tier
		s.PollDelay = r.Poll.Delay.String()
		s.QueueDepth = r.Poll.QueueDepth
		s.InFlight = r.Poll.InFlight
	}
	return s
}

func toManualReviewRows(entries []model.DedupEntry, now time.Time) []vm.ManualReviewRow {
	rows := make([]vm.ManualReviewRow, 0, len(entries))
	for _, e := range entries {
		reason := e.Outcome
		if _, after, ok := strings.Cut(e.Outcome, ":"); ok {
			reason = after
		}
		rows = append(rows, vm.ManualReviewRow{
			CommentID: e.CommentID,
			Reason:    strings.ReplaceAll(reason, "_", " "),
			Attempts:  e.Attempts,
			Age:       humanAge(now.Sub(e.CreatedAt)),
		})
	}
	return rows
}

func toCounterRows(counters []model.UserCounter) []vm.CounterRow {
	rows := make([]vm.CounterRow, 0, len(counters))
	for _, c := range counters {
		rows = append(rows, vm.CounterRow{
			Username:   c.Username,
			ProfileURL: "https://www.reddit.com/user/" + c.Username,
			Count:      c.Count,
		})
	}
	return rows
}

func toTemplateRows(names []string) []vm.TemplateRow {
	rows := make([]vm.TemplateRow, 0, len(names))
	for _, n := range names {
		rows = append(rows, vm.TemplateRow{Name: n, PreviewPath: "/templates/" + n})
	}
	return rows
}

// humanAge formats a duration as a coarse relative age.
func humanAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

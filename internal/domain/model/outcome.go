package model

import "strings"

// OutcomeContext carries the identifiers already fetched while validating, so
// replies can be rendered without another forum round-trip.
type OutcomeContext struct {
	CommentID    string
	ParentID     string
	ParentAuthor string
}

// Outcome is the terminal decision recorded for a processed comment.
type Outcome struct {
	Kind           OutcomeKind
	Reason         Reason
	Confirmer      string
	ConfirmedParty string
	Context        OutcomeContext
}

// Valid builds a confirmed-trade outcome.
func Valid(confirmer, confirmedParty string) Outcome {
	return Outcome{Kind: OutcomeValid, Confirmer: confirmer, ConfirmedParty: confirmedParty}
}

// Invalid builds a rejected-confirmation outcome that is answered with a reply.
func Invalid(reason Reason, ctx OutcomeContext) Outcome {
	return Outcome{Kind: OutcomeInvalid, Reason: reason, Context: ctx}
}

// NotApplicable builds an outcome for comments the engine ignores silently.
func NotApplicable(reason Reason) Outcome {
	return Outcome{Kind: OutcomeNotApplicable, Reason: reason}
}

// ManualReview builds an outcome for comments parked for moderator attention.
func ManualReview(reason Reason) Outcome {
	return Outcome{Kind: OutcomeManualReview, Reason: reason}
}

// IsValid reports whether the outcome confirms a trade.
func (o Outcome) IsValid() bool { return o.Kind == OutcomeValid }

// Summary returns the stable string persisted with a completed dedup entry.
// Two outcomes are considered identical when their summaries match.
func (o Outcome) Summary() string {
	switch o.Kind {
	case OutcomeValid:
		return string(o.Kind) + ":" + strings.ToLower(o.Confirmer) + ">" + strings.ToLower(o.ConfirmedParty)
	case "":
		return ""
	default:
		return string(o.Kind) + ":" + string(o.Reason)
	}
}

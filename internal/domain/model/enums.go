package model

// OutcomeKind classifies the terminal result of processing a comment.
type OutcomeKind string

const (
	OutcomeValid         OutcomeKind = "valid"
	OutcomeInvalid       OutcomeKind = "invalid"
	OutcomeNotApplicable OutcomeKind = "not_applicable"
	OutcomeManualReview  OutcomeKind = "manual_review"
)

// Reason explains why a comment was rejected, skipped, or parked.
type Reason string

const (
	ReasonNone                 Reason = ""
	ReasonNotBotThread         Reason = "not_bot_thread"
	ReasonRootInCurrentThread  Reason = "root_in_current_thread"
	ReasonOldThread            Reason = "old_thread"
	ReasonNotAConfirmation     Reason = "not_a_confirmation"
	ReasonNoParent             Reason = "no_parent"
	ReasonAlreadyConfirmed     Reason = "already_confirmed"
	ReasonSelfOrBot            Reason = "self_or_bot"
	ReasonUsernameNotTagged    Reason = "username_not_tagged"
	ReasonNestedReply          Reason = "nested_reply"
	ReasonNoMatchingTemplate   Reason = "no_matching_template"
	ReasonRetriesExhausted     Reason = "retries_exhausted"
	ReasonConfigurationError   Reason = "configuration_error"
	ReasonDeterminismViolation Reason = "determinism_violation"
)

// DedupStatus is the lifecycle state of a dedup entry.
type DedupStatus string

const (
	DedupPending DedupStatus = "pending"
	DedupDone    DedupStatus = "done"
)

// BeginResult is the answer of the dedup gate to a begin request.
type BeginResult string

const (
	BeginAdmitted       BeginResult = "admitted"
	BeginAlreadyDone    BeginResult = "already_done"
	BeginAlreadyPending BeginResult = "already_pending"
)

// LedgerStatus is the journal state of a single ledger increment request.
type LedgerStatus string

const (
	LedgerAccepted  LedgerStatus = "accepted"
	LedgerApplied   LedgerStatus = "applied"
	LedgerUntracked LedgerStatus = "untracked"
)

// PartyRole identifies which side of a trade a ledger request credits.
type PartyRole string

const (
	RoleConfirmer      PartyRole = "confirmer"
	RoleConfirmedParty PartyRole = "confirmed_party"
)

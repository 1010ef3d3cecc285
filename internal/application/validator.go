package application

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

const (
	triggerConfirmed = "confirmed"
	triggerApproved  = "approved"
)

// UserKey normalizes a username into the case-folded key used for counters,
// queues and comparisons. A leading "u/" or "/u/" is dropped.
func UserKey(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "/")
	if len(name) > 2 && strings.EqualFold(name[:2], "u/") {
		name = name[2:]
	}
	return cases.Fold().String(name)
}

func sameUser(a, b string) bool {
	return a != "" && b != "" && UserKey(a) == UserKey(b)
}

// Moderators is a set of case-folded moderator usernames.
type Moderators map[string]struct{}

// NewModerators builds a set from raw usernames.
func NewModerators(names []string) Moderators {
	m := make(Moderators, len(names))
	for _, n := range names {
		if k := UserKey(n); k != "" {
			m[k] = struct{}{}
		}
	}
	return m
}

// Has reports whether name is a moderator.
func (m Moderators) Has(name string) bool {
	_, ok := m[UserKey(name)]
	return ok
}

// ValidationInput is everything Validate needs, fetched ahead of time.
type ValidationInput struct {
	Comment     model.Comment
	Submission  model.Submission
	Parent      *model.Comment // nil when missing
	Grandparent *model.Comment // fetched only for nested replies
	BotName     string
	// CurrentThreadID is the bot's newest confirmation thread.
	CurrentThreadID       string
	Moderators            Moderators
	ParentHasValidOutcome bool
	// GrandparentHasValidOutcome is consulted for moderator approvals on
	// nested replies, which credit the grandparent.
	GrandparentHasValidOutcome bool
}

// Validate decides the outcome of a candidate confirmation comment. It is a
// pure function: the first matching rule wins.
func Validate(in ValidationInput) model.Outcome {
	c := in.Comment

	if !sameUser(in.Submission.Author, in.BotName) || in.Submission.Locked {
		return model.NotApplicable(model.ReasonNotBotThread)
	}

	if c.IsRoot {
		if in.CurrentThreadID != "" && c.SubmissionID == in.CurrentThreadID {
			return model.NotApplicable(model.ReasonRootInCurrentThread)
		}
		return model.Invalid(model.ReasonOldThread, model.OutcomeContext{CommentID: c.ID})
	}

	trigger := triggerWord(c.Body)
	if trigger == "" {
		return model.NotApplicable(model.ReasonNotAConfirmation)
	}

	octx := model.OutcomeContext{CommentID: c.ID}
	p := in.Parent
	if p == nil || p.Removed || p.Author == "" {
		if p != nil {
			octx.ParentID = p.ID
		}
		return model.Invalid(model.ReasonNoParent, octx)
	}
	octx.ParentID = p.ID
	octx.ParentAuthor = p.Author

	isMod := in.Moderators.Has(c.Author)

	if !p.IsRoot {
		return validateNested(in, trigger == triggerApproved && isMod)
	}

	if in.ParentHasValidOutcome || p.Saved {
		return model.Invalid(model.ReasonAlreadyConfirmed, octx)
	}

	if sameUser(p.Author, in.BotName) || sameUser(c.Author, p.Author) {
		return model.Invalid(model.ReasonSelfOrBot, octx)
	}

	if !mentions(p.Body, c.Author) && !mentions(p.BodyHTML, c.Author) {
		if trigger == triggerApproved && isMod {
			return withContext(model.Valid(c.Author, p.Author), octx)
		}
		return model.Invalid(model.ReasonUsernameNotTagged, octx)
	}

	return withContext(model.Valid(c.Author, p.Author), octx)
}

// validateNested handles a reply to a reply. Only a moderator "approved" is
// acted upon: it credits the disputed pair one level up, the parent's author
// confirming the root comment's author.
func validateNested(in ValidationInput, modApproval bool) model.Outcome {
	if !modApproval {
		return model.NotApplicable(model.ReasonNestedReply)
	}

	p, gp := in.Parent, in.Grandparent
	if gp == nil || !gp.IsRoot || gp.Removed || gp.Author == "" {
		return model.NotApplicable(model.ReasonNestedReply)
	}
	if sameUser(p.Author, gp.Author) || sameUser(p.Author, in.BotName) || sameUser(gp.Author, in.BotName) {
		return model.NotApplicable(model.ReasonNestedReply)
	}

	octx := model.OutcomeContext{
		CommentID:    in.Comment.ID,
		ParentID:     gp.ID,
		ParentAuthor: gp.Author,
	}
	if in.GrandparentHasValidOutcome || gp.Saved {
		return model.Invalid(model.ReasonAlreadyConfirmed, octx)
	}

	return withContext(model.Valid(p.Author, gp.Author), octx)
}

func withContext(o model.Outcome, octx model.OutcomeContext) model.Outcome {
	o.Context = octx
	return o
}

// triggerWord returns the confirmation keyword found in body, preferring
// "approved" so moderator approvals are recognized even when both appear.
func triggerWord(body string) string {
	folded := cases.Fold().String(body)
	switch {
	case strings.Contains(folded, triggerApproved):
		return triggerApproved
	case strings.Contains(folded, triggerConfirmed):
		return triggerConfirmed
	default:
		return ""
	}
}

// mentions reports whether text tags username as "u/name", matching whole
// usernames only.
func mentions(text, username string) bool {
	key := UserKey(username)
	if key == "" || text == "" {
		return false
	}
	folded := cases.Fold().String(text)
	needle := "u/" + key

	for from := 0; ; {
		i := strings.Index(folded[from:], needle)
		if i < 0 {
			return false
		}
		end := from + i + len(needle)
		if end == len(folded) || !isUsernameByte(folded[end]) {
			return true
		}
		from = from + i + 1
	}
}

func isUsernameByte(b byte) bool {
	return b == '_' || b == '-' || ('a' <= b && b <= 'z') || ('0' <= b && b <= '9')
}

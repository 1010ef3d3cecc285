package driven

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

// ErrNotFound indicates the requested forum object does not exist or is not visible.
var ErrNotFound = errors.New("forum object not found")

// TransientError marks a forum or notifier failure that is worth retrying:
// network errors, timeouts, rate limiting and server-side errors.
type TransientError struct {
	Op         string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or anything it wraps) is a TransientError.
// Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var te *TransientError
	return errors.As(err, &te)
}

// CommentPage is one page of a newest-first comment listing.
type CommentPage struct {
	Comments []model.Comment // newest first
	After    string          // token for the next (older) page; "" when exhausted
}

// LabelTemplateSource lists the operator-declared label variants.
type LabelTemplateSource interface {
	ListLabelTemplates(ctx context.Context) ([]model.LabelTemplate, error)
}

// Forum defines the driven port for the discussion platform the bot runs on.
type Forum interface {
	LabelTemplateSource

	// Read methods

	// Me returns the username of the authenticated bot account.
	Me(ctx context.Context) (string, error)
	// ListNewComments returns one page of the subreddit comment stream, newest first.
	// An empty after token requests the newest page.
	ListNewComments(ctx context.Context, after string, limit int) (CommentPage, error)
	GetComment(ctx context.Context, id string) (*model.Comment, error)
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	// ListBotSubmissions returns the bot account's own submissions, newest first.
	ListBotSubmissions(ctx context.Context, limit int) ([]model.Submission, error)
	ListModerators(ctx context.Context) ([]string, error)
	// GetLabel returns the user's current flair text, "" when unset.
	GetLabel(ctx context.Context, username string) (string, error)

	// Write methods

	// Reply posts a reply to a comment and returns the new comment id.
	Reply(ctx context.Context, commentID string, text string) (string, error)
	// Save sets the processed marker on a comment.
	Save(ctx context.Context, commentID string) error
	SetLabel(ctx context.Context, username string, label model.Label) error
	Lock(ctx context.Context, submissionID string) error
	Sticky(ctx context.Context, submissionID string) error
	Unsticky(ctx context.Context, submissionID string) error
	// CreateSubmission submits a self post and returns its id.
	CreateSubmission(ctx context.Context, sub model.NewSubmission) (string, error)
	SetSuggestedSort(ctx context.Context, submissionID string, sort string) error
}

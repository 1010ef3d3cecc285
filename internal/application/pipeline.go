package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
	"github.com/ericfisherdev/tradeconfirm/internal/templates"
)

// ThreadContext supplies the per-cycle facts validation depends on.
type ThreadContext interface {
	CurrentThreadID(ctx context.Context) (string, error)
	Moderators(ctx context.Context) (Moderators, error)
}

// Incrementer credits one trade to one user.
type Incrementer interface {
	Increment(ctx context.Context, req model.LedgerRequest) (model.LedgerResult, error)
}

// PipelineConfig carries the identity and limits of the pipeline.
type PipelineConfig struct {
	BotName   string
	Subreddit string
	Lease     time.Duration
	Retry     RetryPolicy
}

// ProcessResult reports how far processing of one comment got.
type ProcessResult struct {
	Begin   model.BeginResult
	Outcome model.Outcome
	// Terminal is true once the comment may be committed by the cursor.
	Terminal bool
}

// invalidTemplates maps rejection reasons to the reply sent for them.
var invalidTemplates = map[model.Reason]string{
	model.ReasonOldThread:         templates.OldConfirmationThread,
	model.ReasonAlreadyConfirmed:  templates.AlreadyConfirmed,
	model.ReasonUsernameNotTagged: templates.CantConfirmUsername,
	model.ReasonNoParent:          templates.NoParent,
	model.ReasonSelfOrBot:         templates.SelfConfirmation,
}

// manualReviewError parks a comment for moderators with the given reason.
type manualReviewError struct {
	reason model.Reason
	err    error
}

func (e *manualReviewError) Error() string { return fmt.Sprintf("%s: %v", e.reason, e.err) }
func (e *manualReviewError) Unwrap() error { return e.err }

// ConfirmationPipeline processes discovered comments exactly once: it gates
// on the dedup store, validates, applies ledger increments, replies, and
// records the terminal outcome.
type ConfirmationPipeline struct {
	forum    driven.Forum
	dedup    driven.DedupStore
	ledger   Incrementer
	resolver *TemplateResolver
	threads  ThreadContext
	notifier driven.Notifier
	cfg      PipelineConfig
	logger   *slog.Logger
	owner    string
}

// NewConfirmationPipeline creates a pipeline with a fresh owner id for lease
// bookkeeping. notifier may be nil.
func NewConfirmationPipeline(
	forum driven.Forum,
	dedup driven.DedupStore,
	ledger Incrementer,
	resolver *TemplateResolver,
	threads ThreadContext,
	notifier driven.Notifier,
	cfg PipelineConfig,
	logger *slog.Logger,
) *ConfirmationPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 10 * time.Minute
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	return &ConfirmationPipeline{
		forum:    forum,
		dedup:    dedup,
		ledger:   ledger,
		resolver: resolver,
		threads:  threads,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		owner:    newOwnerID(),
	}
}

func newOwnerID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Owner returns the lease owner id of this pipeline instance.
func (p *ConfirmationPipeline) Owner() string { return p.owner }

// Process runs one discovered comment to a terminal outcome. A non-nil error
// means the comment is still pending and must be offered again later.
func (p *ConfirmationPipeline) Process(ctx context.Context, d Discovered) (ProcessResult, error) {
	start := time.Now()
	c := d.Comment

	var begin model.BeginResult
	err := p.retry(ctx, "begin dedup", func(ctx context.Context) error {
		var err error
		begin, err = p.dedup.Begin(ctx, c.ID, c.ParentCommentID(), p.owner, p.cfg.Lease)
		return err
	})
	if err != nil {
		return ProcessResult{}, fmt.Errorf("begin dedup %q: %w", c.ID, err)
	}

	switch begin {
	case model.BeginAlreadyDone:
		p.logger.Debug("comment already processed", "comment_id", c.ID)
		return ProcessResult{Begin: begin, Terminal: true}, nil
	case model.BeginAlreadyPending:
		p.logger.Debug("comment owned by another run", "comment_id", c.ID)
		return ProcessResult{Begin: begin}, nil
	}

	outcome, err := p.handle(ctx, d)
	if err != nil {
		if ctx.Err() != nil {
			return ProcessResult{Begin: begin}, ctx.Err()
		}
		if errors.Is(err, driven.ErrLeaseLost) {
			p.logger.Warn("dedup lease taken over, leaving comment to its new owner", "comment_id", c.ID)
			return ProcessResult{Begin: begin}, err
		}
		outcome = p.escalate(ctx, c, err)
	}

	if err := p.complete(ctx, c.ID, outcome); err != nil {
		return ProcessResult{Begin: begin, Outcome: outcome}, err
	}

	p.logger.Info("comment processed",
		"comment_id", c.ID,
		"outcome", outcome.Kind,
		"reason", outcome.Reason,
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return ProcessResult{Begin: begin, Outcome: outcome, Terminal: true}, nil
}

// handle validates the comment and performs the side effects of its outcome.
func (p *ConfirmationPipeline) handle(ctx context.Context, d Discovered) (model.Outcome, error) {
	in, err := p.gather(ctx, d.Comment)
	if err != nil {
		return model.Outcome{}, err
	}

	outcome := Validate(in)
	if outcome.Kind == model.OutcomeNotApplicable {
		return outcome, nil
	}

	if err := p.renew(ctx, d.Comment.ID); err != nil {
		return outcome, err
	}

	if outcome.Kind == model.OutcomeValid {
		claimed, err := p.claimParent(ctx, outcome.Context.ParentID, d.Comment.ID)
		if err != nil {
			return outcome, err
		}
		if !claimed {
			p.logger.Info("parent already credited by another confirmation",
				"comment_id", d.Comment.ID,
				"parent_id", outcome.Context.ParentID,
			)
			outcome = model.Invalid(model.ReasonAlreadyConfirmed, outcome.Context)
		}
	}

	switch outcome.Kind {
	case model.OutcomeNotApplicable:
		return outcome, nil
	case model.OutcomeInvalid:
		return outcome, p.rejectReply(ctx, d.Comment, outcome)
	case model.OutcomeValid:
		return outcome, p.confirm(ctx, d, in, outcome)
	default:
		return outcome, nil
	}
}

// gather fetches everything Validate needs.
func (p *ConfirmationPipeline) gather(ctx context.Context, c model.Comment) (ValidationInput, error) {
	in := ValidationInput{Comment: c, BotName: p.cfg.BotName}

	err := p.retry(ctx, "get submission", func(ctx context.Context) error {
		sub, err := p.forum.GetSubmission(ctx, c.SubmissionID)
		if errors.Is(err, driven.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		in.Submission = *sub
		return nil
	})
	if err != nil {
		return in, err
	}

	if err := p.retry(ctx, "load thread context", func(ctx context.Context) error {
		current, err := p.threads.CurrentThreadID(ctx)
		if err != nil {
			return err
		}
		mods, err := p.threads.Moderators(ctx)
		if err != nil {
			return err
		}
		in.CurrentThreadID, in.Moderators = current, mods
		return nil
	}); err != nil {
		return in, err
	}

	if c.IsRoot {
		return in, nil
	}

	if in.Parent, err = p.fetchComment(ctx, c.ParentCommentID()); err != nil {
		return in, err
	}
	if in.Parent == nil {
		return in, nil
	}

	if !in.Parent.IsRoot {
		if in.Grandparent, err = p.fetchComment(ctx, in.Parent.ParentCommentID()); err != nil || in.Grandparent == nil {
			return in, err
		}
		in.GrandparentHasValidOutcome, err = p.hasValidOutcome(ctx, in.Grandparent.ID)
		return in, err
	}

	in.ParentHasValidOutcome, err = p.hasValidOutcome(ctx, in.Parent.ID)
	return in, err
}

func (p *ConfirmationPipeline) hasValidOutcome(ctx context.Context, parentID string) (bool, error) {
	var ok bool
	err := p.retry(ctx, "check parent outcome", func(ctx context.Context) error {
		var err error
		ok, err = p.dedup.HasValidOutcome(ctx, parentID)
		return err
	})
	return ok, err
}

// claimParent reserves the credited parent so concurrent confirmations of the
// same trade cannot both reach the ledger.
func (p *ConfirmationPipeline) claimParent(ctx context.Context, parentID, commentID string) (bool, error) {
	if parentID == "" {
		return true, nil
	}
	var claimed bool
	err := p.retry(ctx, "claim parent", func(ctx context.Context) error {
		var err error
		claimed, err = p.dedup.ClaimParent(ctx, parentID, commentID)
		return err
	})
	return claimed, err
}

// renew extends the dedup lease before each side-effecting stage.
func (p *ConfirmationPipeline) renew(ctx context.Context, commentID string) error {
	return p.retry(ctx, "renew dedup lease", func(ctx context.Context) error {
		return p.dedup.Renew(ctx, commentID, p.owner, p.cfg.Lease)
	})
}

// fetchComment returns nil, nil for an absent comment.
func (p *ConfirmationPipeline) fetchComment(ctx context.Context, id string) (*model.Comment, error) {
	if id == "" {
		return nil, nil
	}
	var out *model.Comment
	err := p.retry(ctx, "get comment", func(ctx context.Context) error {
		cm, err := p.forum.GetComment(ctx, id)
		if errors.Is(err, driven.ErrNotFound) {
			return nil
		}
		out = cm
		return err
	})
	return out, err
}

func (p *ConfirmationPipeline) rejectReply(ctx context.Context, c model.Comment, outcome model.Outcome) error {
	name, ok := invalidTemplates[outcome.Reason]
	if !ok {
		return nil
	}

	text, err := p.resolver.Render(ctx, name, p.replyVars(c, outcome))
	if err != nil {
		return &manualReviewError{reason: model.ReasonConfigurationError, err: err}
	}

	if err := p.reply(ctx, c.ID, text); err != nil {
		return err
	}
	return p.save(ctx, c.ID)
}

func (p *ConfirmationPipeline) confirm(ctx context.Context, d Discovered, in ValidationInput, outcome model.Outcome) error {
	c := d.Comment

	// One party failing must not cancel the other mid-write.
	var confirmer, party model.LedgerResult
	var g errgroup.Group
	g.Go(func() error {
		var err error
		confirmer, err = p.increment(ctx, d, model.RoleConfirmer, outcome.Confirmer, in.Moderators)
		return err
	})
	g.Go(func() error {
		var err error
		party, err = p.increment(ctx, d, model.RoleConfirmedParty, outcome.ConfirmedParty, in.Moderators)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrNoMatchingTemplate) {
			return &manualReviewError{reason: model.ReasonNoMatchingTemplate, err: err}
		}
		return err
	}

	if err := p.renew(ctx, c.ID); err != nil {
		return err
	}

	vars := p.replyVars(c, outcome)
	vars["comment_author"] = outcome.Confirmer
	vars["parent_author"] = outcome.ConfirmedParty
	vars["old_comment_flair"] = labelOrUnknown(confirmer.OldLabel)
	vars["new_comment_flair"] = labelOrUnknown(confirmer.NewLabel)
	vars["old_parent_flair"] = labelOrUnknown(party.OldLabel)
	vars["new_parent_flair"] = labelOrUnknown(party.NewLabel)

	text, err := p.resolver.Render(ctx, templates.TradeConfirmation, vars)
	if err != nil {
		return &manualReviewError{reason: model.ReasonConfigurationError, err: err}
	}

	if err := p.reply(ctx, c.ID, text); err != nil {
		return err
	}
	if err := p.save(ctx, c.ID); err != nil {
		return err
	}
	if outcome.Context.ParentID != "" {
		return p.save(ctx, outcome.Context.ParentID)
	}
	return nil
}

func (p *ConfirmationPipeline) increment(ctx context.Context, d Discovered, role model.PartyRole, username string, mods Moderators) (model.LedgerResult, error) {
	req := model.LedgerRequest{
		ID:          model.LedgerRequestID(d.Comment.ID, role),
		CommentID:   d.Comment.ID,
		Role:        role,
		Username:    username,
		Seq:         d.Seq,
		IsModerator: mods.Has(username),
	}

	var res model.LedgerResult
	err := p.retry(ctx, "increment "+string(role), func(ctx context.Context) error {
		var err error
		res, err = p.ledger.Increment(ctx, req)
		return err
	})
	return res, err
}

func (p *ConfirmationPipeline) reply(ctx context.Context, commentID, text string) error {
	return p.retry(ctx, "reply", func(ctx context.Context) error {
		_, err := p.forum.Reply(ctx, commentID, text)
		return err
	})
}

func (p *ConfirmationPipeline) save(ctx context.Context, commentID string) error {
	err := p.retry(ctx, "save", func(ctx context.Context) error {
		return p.forum.Save(ctx, commentID)
	})
	if err != nil && ctx.Err() == nil {
		// The processed marker is advisory; the dedup entry is authoritative.
		p.logger.Warn("save processed marker failed", "comment_id", commentID, "error", err)
		return nil
	}
	return err
}

// escalate turns a processing failure into a manual-review outcome and pages
// moderators.
func (p *ConfirmationPipeline) escalate(ctx context.Context, c model.Comment, err error) model.Outcome {
	reason := model.ReasonConfigurationError
	var mr *manualReviewError
	switch {
	case errors.As(err, &mr):
		reason = mr.reason
	case errors.Is(err, ErrRetriesExhausted):
		reason = model.ReasonRetriesExhausted
	case errors.Is(err, ErrNoMatchingTemplate):
		reason = model.ReasonNoMatchingTemplate
	}

	p.logger.Error("comment requires manual review",
		"comment_id", c.ID,
		"reason", reason,
		"error", err,
	)
	p.alert(ctx, fmt.Sprintf("Manual review required for comment %s (%s): %v %s", c.ID, reason, err, c.URL()))

	return model.ManualReview(reason)
}

func (p *ConfirmationPipeline) complete(ctx context.Context, commentID string, outcome model.Outcome) error {
	err := p.retry(ctx, "complete dedup", func(ctx context.Context) error {
		return p.dedup.Complete(ctx, commentID, outcome)
	})
	if errors.Is(err, driven.ErrOutcomeConflict) {
		p.logger.Error("conflicting outcome for completed comment",
			"comment_id", commentID,
			"outcome", outcome.Summary(),
			"reason", model.ReasonDeterminismViolation,
		)
		p.alert(ctx, fmt.Sprintf("Determinism violation: comment %s completed again with outcome %s", commentID, outcome.Summary()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete dedup %q: %w", commentID, err)
	}
	return nil
}

func (p *ConfirmationPipeline) replyVars(c model.Comment, outcome model.Outcome) map[string]string {
	return map[string]string{
		"bot_name":       p.cfg.BotName,
		"subreddit_name": p.cfg.Subreddit,
		"comment_author": c.Author,
		"comment_id":     c.ID,
		"comment_url":    c.URL(),
		"parent_author":  outcome.Context.ParentAuthor,
		"parent_id":      outcome.Context.ParentID,
	}
}

func (p *ConfirmationPipeline) retry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return p.cfg.Retry.Do(ctx, p.logger, op, fn)
}

func (p *ConfirmationPipeline) alert(ctx context.Context, msg string) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Alert(ctx, msg); err != nil {
		p.logger.Warn("alert failed", "error", err)
	}
}

func labelOrUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

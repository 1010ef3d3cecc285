package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/badge"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// ErrNoMatchingTemplate indicates no label template covers a user's new count.
var ErrNoMatchingTemplate = badge.ErrNoMatchingTemplate

// LabelForum is the part of the Forum the ledger reads and writes labels through.
type LabelForum interface {
	GetLabel(ctx context.Context, username string) (string, error)
	SetLabel(ctx context.Context, username string, label model.Label) error
}

type ledgerJob struct {
	ctx  context.Context
	req  model.LedgerRequest
	done chan ledgerReply
}

type ledgerReply struct {
	res model.LedgerResult
	err error
}

// userQueue holds the waiting increments of one user ordered by discovery seq.
type userQueue struct {
	jobs []*ledgerJob
}

func (q *userQueue) insert(j *ledgerJob) {
	i := sort.Search(len(q.jobs), func(i int) bool { return q.jobs[i].req.Seq > j.req.Seq })
	q.jobs = append(q.jobs, nil)
	copy(q.jobs[i+1:], q.jobs[i:])
	q.jobs[i] = j
}

// UserLedger applies trade-count increments with a single writer per user.
// Increments for one user run one at a time in discovery order. Different
// users proceed in parallel.
type UserLedger struct {
	forum    LabelForum
	labels   driven.LabelTemplateSource
	store    driven.LedgerStore
	notifier driven.Notifier
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	queues map[string]*userQueue
	wg     sync.WaitGroup

	tmplMu    sync.Mutex
	templates []model.LabelTemplate
}

// NewUserLedger creates a ledger. notifier may be nil.
func NewUserLedger(
	forum LabelForum,
	labels driven.LabelTemplateSource,
	store driven.LedgerStore,
	notifier driven.Notifier,
	logger *slog.Logger,
) *UserLedger {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserLedger{
		forum:    forum,
		labels:   labels,
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		queues:   make(map[string]*userQueue),
	}
}

// Increment credits one trade to req.Username and blocks until it is applied,
// recognized as untracked, or fails. Repeating a request id returns the
// journaled result without writing again.
func (l *UserLedger) Increment(ctx context.Context, req model.LedgerRequest) (model.LedgerResult, error) {
	if req.ID == "" {
		req.ID = model.LedgerRequestID(req.CommentID, req.Role)
	}
	key := UserKey(req.Username)
	if key == "" {
		return model.LedgerResult{}, fmt.Errorf("increment %s: empty username", req.ID)
	}

	job := &ledgerJob{ctx: ctx, req: req, done: make(chan ledgerReply, 1)}

	l.mu.Lock()
	q, ok := l.queues[key]
	if !ok {
		q = &userQueue{}
		l.queues[key] = q
	}
	q.insert(job)
	if !ok {
		l.wg.Add(1)
		go l.drain(key, q)
	}
	l.mu.Unlock()

	select {
	case r := <-job.done:
		return r.res, r.err
	case <-ctx.Done():
		return model.LedgerResult{}, ctx.Err()
	}
}

// Wait blocks until every per-user worker has drained and exited.
func (l *UserLedger) Wait() {
	l.wg.Wait()
}

// ActiveUsers returns the number of users with queued or running increments.
func (l *UserLedger) ActiveUsers() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues)
}

// RefreshLabelTemplates forces the next increment to reload label templates.
func (l *UserLedger) RefreshLabelTemplates() {
	l.tmplMu.Lock()
	l.templates = nil
	l.tmplMu.Unlock()
}

// drain is the single writer for key. It exits and deregisters when the
// queue is empty.
func (l *UserLedger) drain(key string, q *userQueue) {
	defer l.wg.Done()

	for {
		l.mu.Lock()
		if len(q.jobs) == 0 {
			delete(l.queues, key)
			l.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		l.mu.Unlock()

		if err := job.ctx.Err(); err != nil {
			job.done <- ledgerReply{err: err}
			continue
		}

		res, err := l.apply(job.ctx, key, job.req)
		job.done <- ledgerReply{res: res, err: err}
	}
}

func (l *UserLedger) apply(ctx context.Context, key string, req model.LedgerRequest) (model.LedgerResult, error) {
	entry, err := l.store.GetEntry(ctx, req.ID)
	if err != nil {
		return model.LedgerResult{}, fmt.Errorf("load ledger entry %s: %w", req.ID, err)
	}
	if entry != nil {
		switch entry.Status {
		case model.LedgerApplied:
			return resultFromEntry(req.Username, entry), nil
		case model.LedgerUntracked:
			return model.LedgerResult{Username: req.Username, OldLabel: entry.OldLabel, NewLabel: entry.OldLabel, Untracked: true}, nil
		}
	}

	current, err := l.forum.GetLabel(ctx, req.Username)
	if err != nil {
		return model.LedgerResult{}, fmt.Errorf("get label for %s: %w", req.Username, err)
	}

	b, tracked := badge.Parse(current)
	if !tracked {
		if entry == nil {
			if err := l.store.Accept(ctx, model.LedgerEntry{
				RequestID: req.ID,
				Username:  key,
				Seq:       req.Seq,
				Status:    model.LedgerAccepted,
				OldLabel:  current,
				CreatedAt: l.now(),
			}); err != nil {
				return model.LedgerResult{}, fmt.Errorf("accept ledger entry %s: %w", req.ID, err)
			}
		}
		if err := l.store.MarkUntracked(ctx, req.ID, current); err != nil {
			return model.LedgerResult{}, fmt.Errorf("mark %s untracked: %w", req.ID, err)
		}
		l.logger.Info("user label untracked, counter unchanged", "user", req.Username, "label", current)
		return model.LedgerResult{Username: req.Username, OldLabel: current, NewLabel: current, Untracked: true}, nil
	}

	counter, err := l.store.GetCounter(ctx, key)
	if err != nil {
		return model.LedgerResult{}, fmt.Errorf("load counter for %s: %w", key, err)
	}

	// A journaled request whose target count is already visible was written
	// before a crash but never acknowledged.
	if entry != nil && b.Count == entry.NewCount && (counter == nil || counter.Count == entry.OldCount) {
		applied := *entry
		applied.Status = model.LedgerApplied
		applied.NewLabel = current
		applied.UpdatedAt = l.now()
		if err := l.store.Apply(ctx, applied); err != nil {
			return model.LedgerResult{}, fmt.Errorf("apply recovered entry %s: %w", req.ID, err)
		}
		l.logger.Info("recovered applied increment", "user", req.Username, "request_id", req.ID, "count", entry.NewCount)
		return resultFromEntry(req.Username, &applied), nil
	}

	old := b.Count
	if counter != nil {
		if counter.Count != b.Count {
			l.reportDrift(ctx, req.Username, counter.Count, b.Count)
		}
		old = counter.Count
	}
	next := old + 1

	if err := l.store.Accept(ctx, model.LedgerEntry{
		RequestID: req.ID,
		Username:  key,
		Seq:       req.Seq,
		Status:    model.LedgerAccepted,
		OldCount:  old,
		NewCount:  next,
		OldLabel:  current,
		CreatedAt: l.now(),
	}); err != nil {
		return model.LedgerResult{}, fmt.Errorf("accept ledger entry %s: %w", req.ID, err)
	}

	tmpls, err := l.labelTemplates(ctx)
	if err != nil {
		return model.LedgerResult{}, err
	}

	label, err := badge.Encode(tmpls, next, req.IsModerator, current)
	if err != nil {
		return model.LedgerResult{}, fmt.Errorf("label for %s at %d trades: %w", req.Username, next, err)
	}

	if err := l.forum.SetLabel(ctx, req.Username, label); err != nil {
		return model.LedgerResult{}, fmt.Errorf("set label for %s: %w", req.Username, err)
	}

	applied := model.LedgerEntry{
		RequestID: req.ID,
		Username:  key,
		Seq:       req.Seq,
		Status:    model.LedgerApplied,
		OldCount:  old,
		NewCount:  next,
		OldLabel:  current,
		NewLabel:  label.Text,
		UpdatedAt: l.now(),
	}
	// The label is already written; the counter must follow it.
	if err := l.store.Apply(context.WithoutCancel(ctx), applied); err != nil {
		return model.LedgerResult{}, fmt.Errorf("apply ledger entry %s: %w", req.ID, err)
	}

	l.logger.Info("trade counter incremented",
		"user", req.Username,
		"old", old,
		"new", next,
		"label", label.Text,
	)

	return model.LedgerResult{
		Username: req.Username,
		OldCount: old,
		NewCount: next,
		OldLabel: current,
		NewLabel: label.Text,
	}, nil
}

func (l *UserLedger) labelTemplates(ctx context.Context) ([]model.LabelTemplate, error) {
	l.tmplMu.Lock()
	defer l.tmplMu.Unlock()

	if l.templates != nil {
		return l.templates, nil
	}
	tmpls, err := l.labels.ListLabelTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("list label templates: %w", err)
	}
	if len(tmpls) == 0 {
		return nil, fmt.Errorf("list label templates: %w", ErrNoMatchingTemplate)
	}
	l.templates = tmpls
	return tmpls, nil
}

func (l *UserLedger) reportDrift(ctx context.Context, username string, stored, visible int) {
	l.logger.Warn("label count differs from stored counter, stored counter wins",
		"user", username,
		"stored", stored,
		"label", visible,
	)
	if l.notifier == nil {
		return
	}
	msg := fmt.Sprintf("Trade count drift for u/%s: label shows %d, ledger has %d", username, visible, stored)
	if err := l.notifier.Alert(ctx, msg); err != nil {
		l.logger.Warn("drift alert failed", "user", username, "error", err)
	}
}

func resultFromEntry(username string, e *model.LedgerEntry) model.LedgerResult {
	return model.LedgerResult{
		Username: username,
		OldCount: e.OldCount,
		NewCount: e.NewCount,
		OldLabel: e.OldLabel,
		NewLabel: e.NewLabel,
	}
}

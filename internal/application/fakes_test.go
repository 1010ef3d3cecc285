package application_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// --- Forum ---

type replyCall struct {
	CommentID string
	Text      string
}

type labelCall struct {
	Username string
	Label    model.Label
}

type fakeForum struct {
	mu sync.Mutex

	me          string
	pages       map[string]driven.CommentPage
	listCalls   []string
	comments    map[string]model.Comment
	submissions map[string]model.Submission
	botSubs     []model.Submission
	moderators  []string
	labels      map[string]string
	templates   []model.LabelTemplate

	replies    []replyCall
	saved      map[string]bool
	setLabels  []labelCall
	locked     []string
	stickied   []string
	unstickied []string
	created    []model.NewSubmission
	sorts      map[string]string

	// getLabelHook runs (unlocked) before GetLabel returns.
	getLabelHook func(username string)
	// getLabelErrs are returned, in order, by the first GetLabel calls.
	getLabelErrs []error
	replyErr     error
	// setLabelHook runs (unlocked) after SetLabel stores the label.
	setLabelHook func(username string)
}

func newFakeForum() *fakeForum {
	return &fakeForum{
		me:          "TradeBot",
		pages:       map[string]driven.CommentPage{},
		comments:    map[string]model.Comment{},
		submissions: map[string]model.Submission{},
		labels:      map[string]string{},
		saved:       map[string]bool{},
		sorts:       map[string]string{},
	}
}

func (f *fakeForum) addComment(c model.Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[c.ID] = c
}

func (f *fakeForum) setLabel(user, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels[strings.ToLower(user)] = text
}

func (f *fakeForum) label(user string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.labels[strings.ToLower(user)]
}

func (f *fakeForum) replyCalls() []replyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]replyCall(nil), f.replies...)
}

func (f *fakeForum) isSaved(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saved[id]
}

func (f *fakeForum) Me(_ context.Context) (string, error) { return f.me, nil }

func (f *fakeForum) ListNewComments(_ context.Context, after string, _ int) (driven.CommentPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, after)
	return f.pages[after], nil
}

func (f *fakeForum) GetComment(_ context.Context, id string) (*model.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.comments[id]
	if !ok {
		return nil, driven.ErrNotFound
	}
	c.Saved = f.saved[id]
	return &c, nil
}

func (f *fakeForum) GetSubmission(_ context.Context, id string) (*model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.submissions[id]
	if !ok {
		return nil, driven.ErrNotFound
	}
	return &s, nil
}

func (f *fakeForum) ListBotSubmissions(_ context.Context, limit int) ([]model.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subs := f.botSubs
	if len(subs) > limit {
		subs = subs[:limit]
	}
	return append([]model.Submission(nil), subs...), nil
}

func (f *fakeForum) ListModerators(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.moderators...), nil
}

func (f *fakeForum) ListLabelTemplates(_ context.Context) ([]model.LabelTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.LabelTemplate(nil), f.templates...), nil
}

func (f *fakeForum) GetLabel(_ context.Context, username string) (string, error) {
	f.mu.Lock()
	if len(f.getLabelErrs) > 0 {
		err := f.getLabelErrs[0]
		f.getLabelErrs = f.getLabelErrs[1:]
		f.mu.Unlock()
		return "", err
	}
	text := f.labels[strings.ToLower(username)]
	hook := f.getLabelHook
	f.mu.Unlock()

	if hook != nil {
		hook(username)
	}
	return text, nil
}

func (f *fakeForum) Reply(_ context.Context, commentID string, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return "", f.replyErr
	}
	f.replies = append(f.replies, replyCall{CommentID: commentID, Text: text})
	return fmt.Sprintf("r%d", len(f.replies)), nil
}

func (f *fakeForum) Save(_ context.Context, commentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[commentID] = true
	return nil
}

func (f *fakeForum) SetLabel(_ context.Context, username string, label model.Label) error {
	f.mu.Lock()
	f.labels[strings.ToLower(username)] = label.Text
	f.setLabels = append(f.setLabels, labelCall{Username: username, Label: label})
	hook := f.setLabelHook
	f.mu.Unlock()

	if hook != nil {
		hook(username)
	}
	return nil
}

func (f *fakeForum) Lock(_ context.Context, submissionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.locked = append(f.locked, submissionID)
	return nil
}

func (f *fakeForum) Sticky(_ context.Context, submissionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stickied = append(f.stickied, submissionID)
	return nil
}

func (f *fakeForum) Unsticky(_ context.Context, submissionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unstickied = append(f.unstickied, submissionID)
	return nil
}

func (f *fakeForum) CreateSubmission(_ context.Context, sub model.NewSubmission) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, sub)
	return fmt.Sprintf("new%d", len(f.created)), nil
}

func (f *fakeForum) SetSuggestedSort(_ context.Context, submissionID string, sort string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sorts[submissionID] = sort
	return nil
}

// --- DedupStore ---

type fakeDedup struct {
	mu       sync.Mutex
	entries  map[string]*model.DedupEntry
	claims   map[string]string
	renewed  int
	renewErr error
	now      func() time.Time
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{entries: map[string]*model.DedupEntry{}, claims: map[string]string{}, now: time.Now}
}

func (d *fakeDedup) Renew(_ context.Context, commentID, owner string, lease time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.renewErr != nil {
		return d.renewErr
	}
	e, ok := d.entries[commentID]
	if !ok || e.Status != model.DedupPending || e.Owner != owner {
		return driven.ErrLeaseLost
	}
	e.LeaseUntil = d.now().Add(lease)
	d.renewed++
	return nil
}

func (d *fakeDedup) ClaimParent(_ context.Context, parentID, commentID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	holder, ok := d.claims[parentID]
	if !ok {
		d.claims[parentID] = commentID
		return true, nil
	}
	return holder == commentID, nil
}

func (d *fakeDedup) Begin(_ context.Context, commentID, parentID, owner string, lease time.Duration) (model.BeginResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	e, ok := d.entries[commentID]
	if !ok {
		d.entries[commentID] = &model.DedupEntry{
			CommentID:  commentID,
			ParentID:   parentID,
			Status:     model.DedupPending,
			Owner:      owner,
			LeaseUntil: now.Add(lease),
			Attempts:   1,
			CreatedAt:  now,
		}
		return model.BeginAdmitted, nil
	}
	if e.Status == model.DedupDone {
		return model.BeginAlreadyDone, nil
	}
	if now.Before(e.LeaseUntil) {
		return model.BeginAlreadyPending, nil
	}
	e.Owner = owner
	e.LeaseUntil = now.Add(lease)
	e.Attempts++
	return model.BeginAdmitted, nil
}

func (d *fakeDedup) Complete(_ context.Context, commentID string, outcome model.Outcome) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[commentID]
	if !ok {
		return driven.ErrNotBegun
	}
	if e.Status == model.DedupDone {
		if e.Outcome == outcome.Summary() {
			return nil
		}
		return driven.ErrOutcomeConflict
	}
	e.Status = model.DedupDone
	e.Outcome = outcome.Summary()
	e.OutcomeKind = outcome.Kind
	if outcome.Kind == model.OutcomeValid && outcome.Context.ParentID != "" {
		e.ParentID = outcome.Context.ParentID
	}
	return nil
}

func (d *fakeDedup) Get(_ context.Context, commentID string) (*model.DedupEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.entries[commentID]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (d *fakeDedup) HasValidOutcome(_ context.Context, parentID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, e := range d.entries {
		if e.ParentID == parentID && e.Status == model.DedupDone && e.OutcomeKind == model.OutcomeValid {
			return true, nil
		}
	}
	return false, nil
}

func (d *fakeDedup) Stats(_ context.Context) (model.DedupStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var s model.DedupStats
	for _, e := range d.entries {
		if e.Status == model.DedupPending {
			s.Pending++
			continue
		}
		s.Done++
		switch e.OutcomeKind {
		case model.OutcomeValid:
			s.Valid++
		case model.OutcomeInvalid:
			s.Invalid++
		case model.OutcomeManualReview:
			s.ManualReview++
		}
	}
	return s, nil
}

func (d *fakeDedup) ListManualReview(_ context.Context, limit int) ([]model.DedupEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []model.DedupEntry
	for _, e := range d.entries {
		if e.OutcomeKind == model.OutcomeManualReview && len(out) < limit {
			out = append(out, *e)
		}
	}
	return out, nil
}

// --- LedgerStore ---

type fakeLedgerStore struct {
	mu       sync.Mutex
	counters map[string]int
	entries  map[string]model.LedgerEntry
	applies  int
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{counters: map[string]int{}, entries: map[string]model.LedgerEntry{}}
}

func (s *fakeLedgerStore) GetCounter(_ context.Context, username string) (*model.UserCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.counters[username]
	if !ok {
		return nil, nil
	}
	return &model.UserCounter{Username: username, Count: n}, nil
}

func (s *fakeLedgerStore) ListCounters(_ context.Context, _ int) ([]model.UserCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.UserCounter
	for u, n := range s.counters {
		out = append(out, model.UserCounter{Username: u, Count: n})
	}
	return out, nil
}

func (s *fakeLedgerStore) GetEntry(_ context.Context, requestID string) (*model.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[requestID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *fakeLedgerStore) Accept(_ context.Context, entry model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[entry.RequestID]; ok {
		return nil
	}
	entry.Status = model.LedgerAccepted
	s.entries[entry.RequestID] = entry
	return nil
}

func (s *fakeLedgerStore) Apply(ctx context.Context, entry model.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Status = model.LedgerApplied
	s.entries[entry.RequestID] = entry
	s.counters[entry.Username] = entry.NewCount
	s.applies++
	return nil
}

func (s *fakeLedgerStore) MarkUntracked(_ context.Context, requestID string, label string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[requestID]
	if !ok {
		return fmt.Errorf("no entry %s", requestID)
	}
	e.Status = model.LedgerUntracked
	e.OldLabel, e.NewLabel = label, label
	s.entries[requestID] = e
	return nil
}

func (s *fakeLedgerStore) CountByStatus(_ context.Context, status model.LedgerStatus) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if e.Status == status {
			n++
		}
	}
	return n, nil
}

// --- WatermarkStore ---

type fakeWatermarkStore struct {
	mu    sync.Mutex
	state model.WatermarkState
	saves []string
}

func (s *fakeWatermarkStore) Load(_ context.Context) (model.WatermarkState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *fakeWatermarkStore) Save(_ context.Context, state model.WatermarkState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.LastCommentID != "" && model.CompareIDs(state.LastCommentID, s.state.LastCommentID) <= 0 {
		return false, nil
	}
	s.state = state
	s.saves = append(s.saves, state.LastCommentID)
	return true, nil
}

func (s *fakeWatermarkStore) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.LastCommentID
}

// --- ThreadStore ---

type fakeThreadStore struct {
	mu        sync.Mutex
	rotations map[string]model.ThreadRotation
}

func newFakeThreadStore() *fakeThreadStore {
	return &fakeThreadStore{rotations: map[string]model.ThreadRotation{}}
}

func (s *fakeThreadStore) GetRotation(_ context.Context, period string) (*model.ThreadRotation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rotations[period]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *fakeThreadStore) SaveRotation(_ context.Context, r model.ThreadRotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rotations[r.Period]; !ok {
		s.rotations[r.Period] = r
	}
	return nil
}

// --- TemplateStore ---

type fakeTemplateStore struct {
	mu        sync.Mutex
	overrides map[string]string
	err       error
	calls     int
}

func (s *fakeTemplateStore) GetOverride(_ context.Context, name string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", false, s.err
	}
	text, ok := s.overrides[name]
	return text, ok, nil
}

func (s *fakeTemplateStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// --- Notifier ---

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *fakeNotifier) Alert(_ context.Context, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	return nil
}

func (n *fakeNotifier) alerts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

// --- fixtures ---

func standardTemplates() []model.LabelTemplate {
	return []model.LabelTemplate{
		{ID: "t0", Text: "Trades: 0-9", Min: 0, Max: 9},
		{ID: "t10", Text: "Trades: 10-19", Min: 10, Max: 19},
		{ID: "t20", Text: "Trades: 20-49", Min: 20, Max: 49},
	}
}

var (
	_ driven.Forum          = (*fakeForum)(nil)
	_ driven.DedupStore     = (*fakeDedup)(nil)
	_ driven.LedgerStore    = (*fakeLedgerStore)(nil)
	_ driven.WatermarkStore = (*fakeWatermarkStore)(nil)
	_ driven.ThreadStore    = (*fakeThreadStore)(nil)
	_ driven.TemplateStore  = (*fakeTemplateStore)(nil)
	_ driven.Notifier       = (*fakeNotifier)(nil)
)

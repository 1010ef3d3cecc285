package application

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
	"github.com/ericfisherdev/tradeconfirm/internal/templates"
)

const (
	lockScanLimit  = 10
	suggestedSort  = "new"
	rotationLayout = "2006-01"
)

// ThreadConfig identifies the bot and subreddit for thread management.
type ThreadConfig struct {
	BotName       string
	Subreddit     string
	PostFlairID   string
	RefreshMaxAge time.Duration
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// RotationResult reports what a monthly rotation did.
type RotationResult struct {
	Period       string `json:"period"`
	SubmissionID string `json:"submission_id"`
	Created      bool   `json:"created"`
}

// ThreadService manages the monthly confirmation thread and caches the
// current thread id and moderator set used during validation.
type ThreadService struct {
	forum    driven.Forum
	store    driven.ThreadStore
	resolver *TemplateResolver
	notifier driven.Notifier
	cfg      ThreadConfig
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.RWMutex
	currentID   string
	moderators  Moderators
	refreshedAt time.Time
}

// NewThreadService creates a ThreadService. notifier may be nil.
func NewThreadService(
	forum driven.Forum,
	store driven.ThreadStore,
	resolver *TemplateResolver,
	notifier driven.Notifier,
	cfg ThreadConfig,
	logger *slog.Logger,
) *ThreadService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RefreshMaxAge <= 0 {
		cfg.RefreshMaxAge = 5 * time.Minute
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &ThreadService{
		forum:    forum,
		store:    store,
		resolver: resolver,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      now,
	}
}

// Refresh reloads the current thread id and the moderator set.
func (s *ThreadService) Refresh(ctx context.Context) error {
	subs, err := s.forum.ListBotSubmissions(ctx, 1)
	if err != nil {
		return fmt.Errorf("list bot submissions: %w", err)
	}
	mods, err := s.forum.ListModerators(ctx)
	if err != nil {
		return fmt.Errorf("list moderators: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentID = ""
	if len(subs) > 0 {
		s.currentID = subs[0].ID
	}
	s.moderators = NewModerators(mods)
	s.refreshedAt = s.now()
	return nil
}

func (s *ThreadService) ensureFresh(ctx context.Context) error {
	s.mu.RLock()
	fresh := !s.refreshedAt.IsZero() && s.now().Sub(s.refreshedAt) < s.cfg.RefreshMaxAge
	s.mu.RUnlock()
	if fresh {
		return nil
	}
	return s.Refresh(ctx)
}

// CurrentThreadID returns the bot's newest submission id.
func (s *ThreadService) CurrentThreadID(ctx context.Context) (string, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return "", err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID, nil
}

// Moderators returns the cached moderator set.
func (s *ThreadService) Moderators(ctx context.Context) (Moderators, error) {
	if err := s.ensureFresh(ctx); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.moderators, nil
}

// RotateMonthly creates this month's confirmation thread unless it already
// exists. It is safe to call repeatedly.
func (s *ThreadService) RotateMonthly(ctx context.Context) (RotationResult, error) {
	now := s.now().UTC()
	period := now.Format(rotationLayout)

	rot, err := s.store.GetRotation(ctx, period)
	if err != nil {
		return RotationResult{}, fmt.Errorf("load rotation %s: %w", period, err)
	}
	if rot != nil {
		return RotationResult{Period: period, SubmissionID: rot.SubmissionID}, nil
	}

	subs, err := s.forum.ListBotSubmissions(ctx, 1)
	if err != nil {
		return RotationResult{}, fmt.Errorf("list bot submissions: %w", err)
	}

	var previous *model.Submission
	if len(subs) > 0 {
		previous = &subs[0]
		if previous.SameMonth(now) {
			s.logger.Info("monthly thread already exists", "period", period, "submission_id", previous.ID)
			if err := s.store.SaveRotation(ctx, model.ThreadRotation{Period: period, SubmissionID: previous.ID, CreatedAt: previous.CreatedAt}); err != nil {
				return RotationResult{}, fmt.Errorf("record rotation %s: %w", period, err)
			}
			return RotationResult{Period: period, SubmissionID: previous.ID}, nil
		}
	}

	vars := map[string]string{
		"bot_name":                  s.cfg.BotName,
		"subreddit_name":            s.cfg.Subreddit,
		"month_name":                now.Month().String(),
		"year":                      strconv.Itoa(now.Year()),
		"previous_month_submission": "",
	}
	if previous != nil {
		vars["previous_month_submission"] = previous.URL()
	}

	title, err := s.resolver.Render(ctx, templates.MonthlyPostTitle, vars)
	if err != nil {
		return RotationResult{}, fmt.Errorf("render monthly title: %w", err)
	}
	body, err := s.resolver.Render(ctx, templates.MonthlyPost, vars)
	if err != nil {
		return RotationResult{}, fmt.Errorf("render monthly post: %w", err)
	}

	s.alert(ctx, fmt.Sprintf("Creating monthly post for r/%s", s.cfg.Subreddit))

	if previous != nil && previous.Stickied {
		if err := s.forum.Unsticky(ctx, previous.ID); err != nil {
			return RotationResult{}, fmt.Errorf("unsticky %s: %w", previous.ID, err)
		}
	}

	id, err := s.forum.CreateSubmission(ctx, model.NewSubmission{
		Title:     strings.TrimSpace(title),
		Body:      body,
		FlairID:   s.cfg.PostFlairID,
		NoReplies: true,
	})
	if err != nil {
		return RotationResult{}, fmt.Errorf("create monthly thread: %w", err)
	}

	if err := s.store.SaveRotation(ctx, model.ThreadRotation{Period: period, SubmissionID: id, CreatedAt: now}); err != nil {
		return RotationResult{}, fmt.Errorf("record rotation %s: %w", period, err)
	}

	if err := s.forum.Sticky(ctx, id); err != nil {
		s.logger.Warn("sticky monthly thread failed", "submission_id", id, "error", err)
	}
	if err := s.forum.SetSuggestedSort(ctx, id, suggestedSort); err != nil {
		s.logger.Warn("set suggested sort failed", "submission_id", id, "error", err)
	}

	s.mu.Lock()
	s.currentID = id
	s.mu.Unlock()

	s.logger.Info("created monthly confirmation thread", "period", period, "submission_id", id)
	return RotationResult{Period: period, SubmissionID: id, Created: true}, nil
}

// LockPrevious locks the bot's recent threads that are no longer stickied.
// It returns the number of threads locked.
func (s *ThreadService) LockPrevious(ctx context.Context) (int, error) {
	subs, err := s.forum.ListBotSubmissions(ctx, lockScanLimit)
	if err != nil {
		return 0, fmt.Errorf("list bot submissions: %w", err)
	}

	locked := 0
	for _, sub := range subs {
		if sub.Stickied || sub.Locked {
			continue
		}
		if err := s.forum.Lock(ctx, sub.ID); err != nil {
			return locked, fmt.Errorf("lock %s: %w", sub.ID, err)
		}
		s.logger.Info("locked previous thread", "submission_id", sub.ID, "url", sub.URL())
		locked++
	}
	return locked, nil
}

func (s *ThreadService) alert(ctx context.Context, msg string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Alert(ctx, msg); err != nil {
		s.logger.Warn("alert failed", "error", err)
	}
}

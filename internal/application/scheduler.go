package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Default cron specs (UTC): rotate on the 1st, lock previous threads on the 5th.
const (
	DefaultRotateSpec = "0 0 1 * *"
	DefaultLockSpec   = "0 0 5 * *"
)

const scheduledJobTimeout = 5 * time.Minute

// ThreadMaintainer is the thread housekeeping the scheduler runs.
type ThreadMaintainer interface {
	RotateMonthly(ctx context.Context) (RotationResult, error)
	LockPrevious(ctx context.Context) (int, error)
}

// Scheduler runs monthly thread rotation and locking on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	threads ThreadMaintainer
	logger  *slog.Logger

	mu  sync.Mutex
	ctx context.Context
}

// NewScheduler registers the rotation and lock jobs. An empty spec disables that job.
func NewScheduler(threads ThreadMaintainer, rotateSpec, lockSpec string, logger *slog.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		threads: threads,
		logger:  logger,
		ctx:     context.Background(),
	}

	if rotateSpec != "" {
		if _, err := s.cron.AddFunc(rotateSpec, s.rotate); err != nil {
			return nil, fmt.Errorf("schedule rotation %q: %w", rotateSpec, err)
		}
	}
	if lockSpec != "" {
		if _, err := s.cron.AddFunc(lockSpec, s.lock); err != nil {
			return nil, fmt.Errorf("schedule lock %q: %w", lockSpec, err)
		}
	}
	return s, nil
}

// Start runs the scheduler until ctx is canceled, then waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Next returns the next run time of each scheduled job.
func (s *Scheduler) Next() []time.Time {
	entries := s.cron.Entries()
	out := make([]time.Time, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Next)
	}
	return out
}

func (s *Scheduler) jobContext() (context.Context, context.CancelFunc) {
	s.mu.Lock()
	base := s.ctx
	s.mu.Unlock()
	return context.WithTimeout(base, scheduledJobTimeout)
}

func (s *Scheduler) rotate() {
	ctx, cancel := s.jobContext()
	defer cancel()

	res, err := s.threads.RotateMonthly(ctx)
	if err != nil {
		s.logger.Error("scheduled rotation failed", "error", err)
		return
	}
	s.logger.Info("scheduled rotation complete", "period", res.Period, "submission_id", res.SubmissionID, "created", res.Created)
}

func (s *Scheduler) lock() {
	ctx, cancel := s.jobContext()
	defer cancel()

	n, err := s.threads.LockPrevious(ctx)
	if err != nil {
		s.logger.Error("scheduled lock failed", "locked", n, "error", err)
		return
	}
	s.logger.Info("scheduled lock complete", "locked", n)
}

// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrNotRunning indicates a cycle was requested while the poll loop is not running.
var ErrNotRunning = errors.New("poll service is not running")

// Discoverer hands out newly seen comments and accepts terminal notifications.
type Discoverer interface {
	Poll(ctx context.Context) ([]Discovered, error)
	Advance(ctx context.Context, id string) error
}

// Processor runs one discovered comment to a terminal outcome.
type Processor interface {
	Process(ctx context.Context, d Discovered) (ProcessResult, error)
}

// Refresher reloads per-cycle caches before discovery.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// PollConfig tunes the discovery loop and worker pool.
type PollConfig struct {
	MinInterval  time.Duration
	MaxInterval  time.Duration
	Workers      int
	DrainTimeout time.Duration
}

// CycleReport summarizes a synchronous discovery and processing cycle.
type CycleReport struct {
	Discovered int           `json:"discovered"`
	Processed  int           `json:"processed"`
	Deferred   int           `json:"deferred"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// PollStatus is a point-in-time view of the poll loop.
type PollStatus struct {
	Running        bool          `json:"running"`
	Tier           string        `json:"tier"`
	Delay          time.Duration `json:"delay"`
	QueueDepth     int           `json:"queue_depth"`
	InFlight       int           `json:"in_flight"`
	Deferred       int           `json:"deferred"`
	Processed      int64         `json:"processed"`
	Failed         int64         `json:"failed"`
	LastCycleAt    time.Time     `json:"last_cycle_at"`
	LastDiscovered int           `json:"last_discovered"`
}

type cycleRequest struct {
	done chan cycleReply
}

type cycleReply struct {
	discovered int
	err        error
}

// PollService owns the discovery timer loop and a bounded pool of workers fed
// from an unbounded queue. Discovery never waits on processing.
type PollService struct {
	cursor   Discoverer
	pipeline Processor
	threads  Refresher
	cfg      PollConfig
	delay    *pollDelay
	logger   *slog.Logger

	queue    *workQueue
	cycleCh  chan cycleRequest
	stopCh   chan struct{}
	stopOnce sync.Once

	mu             sync.Mutex
	running        bool
	deferred       []Discovered
	inFlight       int
	processed      int64
	failed         int64
	lastCycleAt    time.Time
	lastDiscovered int
}

// NewPollService creates a PollService. threads may be nil.
func NewPollService(cursor Discoverer, pipeline Processor, threads Refresher, cfg PollConfig, logger *slog.Logger) *PollService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	return &PollService{
		cursor:   cursor,
		pipeline: pipeline,
		threads:  threads,
		cfg:      cfg,
		delay:    newPollDelay(cfg.MinInterval, cfg.MaxInterval),
		logger:   logger,
		queue:    newWorkQueue(),
		cycleCh:  make(chan cycleRequest),
		stopCh:   make(chan struct{}),
	}
}

// Start runs an immediate discovery, then keeps discovering on the adaptive
// delay while workers process the queue. It blocks until the context is
// canceled or Stop is called, then drains in-flight work.
func (s *PollService) Start(ctx context.Context) {
	s.setRunning(true)
	defer s.setRunning(false)

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	var wg sync.WaitGroup
	for range s.cfg.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(workCtx)
		}()
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-s.stopCh:
			break loop
		case <-timer.C:
			n, _ := s.discover(ctx)
			timer.Reset(s.nextDelay(n))
		case req := <-s.cycleCh:
			n, err := s.discover(ctx)
			req.done <- cycleReply{discovered: n, err: err}
		}
	}

	dropped := s.queue.close()
	s.logger.Info("poll service stopping, draining in-flight work", "dropped_queued", dropped)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.cfg.DrainTimeout):
		s.logger.Warn("drain timeout reached, canceling in-flight work")
		cancelWork()
		<-done
	}

	s.logger.Info("poll service stopped")
}

// Stop ends the discovery loop. Start returns once in-flight work has drained.
func (s *PollService) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// TriggerCycle asks the running loop for an immediate discovery, bypassing
// the delay. It returns the number of comments queued.
func (s *PollService) TriggerCycle(ctx context.Context) (int, error) {
	if !s.isRunning() {
		return 0, ErrNotRunning
	}

	req := cycleRequest{done: make(chan cycleReply, 1)}
	select {
	case s.cycleCh <- req:
	case <-s.stopCh:
		return 0, ErrNotRunning
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	select {
	case r := <-req.done:
		return r.discovered, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// RunOnce performs one discovery and processes every discovered comment
// before returning. It must not be used while Start is running.
func (s *PollService) RunOnce(ctx context.Context) (CycleReport, error) {
	start := time.Now()
	s.refresh(ctx)

	found, err := s.cursor.Poll(ctx)
	if err != nil {
		return CycleReport{}, err
	}
	items := append(s.takeDeferred(), found...)

	report := CycleReport{Discovered: len(found)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for _, d := range items {
		g.Go(func() error {
			state := s.handle(gctx, d)
			mu.Lock()
			defer mu.Unlock()
			switch state {
			case handledTerminal:
				report.Processed++
			case handledDeferred:
				report.Deferred++
			case handledFailed:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Duration = time.Since(start).Round(time.Millisecond)
	s.logger.Info("cycle complete",
		"discovered", report.Discovered,
		"processed", report.Processed,
		"deferred", report.Deferred,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report, ctx.Err()
}

// Status returns the current loop state.
func (s *PollService) Status() PollStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return PollStatus{
		Running:        s.running,
		Tier:           s.delay.tier().String(),
		Delay:          s.delay.current,
		QueueDepth:     s.queue.len(),
		InFlight:       s.inFlight,
		Deferred:       len(s.deferred),
		Processed:      s.processed,
		Failed:         s.failed,
		LastCycleAt:    s.lastCycleAt,
		LastDiscovered: s.lastDiscovered,
	}
}

// discover polls the cursor and queues new and previously deferred comments.
func (s *PollService) discover(ctx context.Context) (int, error) {
	start := time.Now()
	s.refresh(ctx)

	found, err := s.cursor.Poll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("poll cycle failed", "error", err)
		}
		return 0, err
	}

	requeued := s.takeDeferred()
	s.queue.push(requeued...)
	s.queue.push(found...)

	s.mu.Lock()
	s.lastCycleAt = time.Now()
	s.lastDiscovered = len(found)
	s.mu.Unlock()

	s.logger.Info("poll cycle complete",
		"discovered", len(found),
		"requeued", len(requeued),
		"queue_depth", s.queue.len(),
		"duration", time.Since(start).Round(time.Millisecond),
	)
	return len(found), nil
}

func (s *PollService) refresh(ctx context.Context) {
	if s.threads == nil {
		return
	}
	if err := s.threads.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("refresh thread context failed", "error", err)
	}
}

func (s *PollService) nextDelay(found int) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay.observe(found)
}

func (s *PollService) worker(ctx context.Context) {
	for {
		d, ok := s.queue.pop(ctx)
		if !ok {
			return
		}
		s.handle(ctx, d)
	}
}

type handleState int

const (
	handledTerminal handleState = iota
	handledDeferred
	handledFailed
)

func (s *PollService) handle(ctx context.Context, d Discovered) handleState {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	res, err := s.pipeline.Process(ctx, d)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("process comment failed", "comment_id", d.Comment.ID, "error", err)
		}
		s.deferItem(d, true)
		return handledFailed
	}

	if !res.Terminal {
		s.deferItem(d, false)
		return handledDeferred
	}

	if err := s.cursor.Advance(ctx, d.Comment.ID); err != nil {
		s.logger.Error("advance watermark failed", "comment_id", d.Comment.ID, "error", err)
	}

	s.mu.Lock()
	s.processed++
	s.mu.Unlock()
	return handledTerminal
}

// deferItem keeps a non-terminal comment for the next discovery cycle.
func (s *PollService) deferItem(d Discovered, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferred = append(s.deferred, d)
	if failed {
		s.failed++
	}
}

func (s *PollService) takeDeferred() []Discovered {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.deferred
	s.deferred = nil
	return out
}

func (s *PollService) setRunning(v bool) {
	s.mu.Lock()
	s.running = v
	s.mu.Unlock()
}

func (s *PollService) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// workQueue is an unbounded FIFO with a one-slot wake-up signal.
type workQueue struct {
	mu     sync.Mutex
	items  []Discovered
	signal chan struct{}
	closed bool
}

func newWorkQueue() *workQueue {
	return &workQueue{signal: make(chan struct{}, 1)}
}

func (q *workQueue) push(items ...Discovered) {
	if len(items) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, items...)
	q.notifyLocked()
}

func (q *workQueue) notifyLocked() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop blocks until an item is available, the queue is closed, or ctx ends.
func (q *workQueue) pop(ctx context.Context) (Discovered, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Discovered{}, false
		}
		if len(q.items) > 0 {
			d := q.items[0]
			q.items = q.items[1:]
			if len(q.items) > 0 {
				q.notifyLocked()
			}
			q.mu.Unlock()
			return d, true
		}
		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return Discovered{}, false
		}
	}
}

// close stops the queue, dropping items not yet started, and wakes all waiters.
func (q *workQueue) close() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return 0
	}
	q.closed = true
	dropped := len(q.items)
	q.items = nil
	close(q.signal)
	return dropped
}

func (q *workQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
)

// CommentLister is the part of the Forum the cursor pages through.
type CommentLister interface {
	ListNewComments(ctx context.Context, after string, limit int) (driven.CommentPage, error)
}

// Discovered is a comment handed out by the cursor with its discovery order.
type Discovered struct {
	Comment model.Comment
	Seq     int64
}

type cursorItem struct {
	id       string
	boundary string
	window   int64
	terminal bool
}

// CursorStats is a point-in-time view of the cursor for status reporting.
type CursorStats struct {
	Watermark model.WatermarkState
	Frontier  string
	Pending   int
	Window    int64
	Gaps      int
	LastGapAt time.Time
}

// WatermarkCursor tracks the position in the comment stream. Discovery runs
// ahead of processing: the in-memory frontier is the newest comment handed
// out, while the durable watermark only moves over a contiguous prefix of
// terminal comments.
type WatermarkCursor struct {
	forum    CommentLister
	store    driven.WatermarkStore
	notifier driven.Notifier
	logger   *slog.Logger
	now      func() time.Time

	pageLimit int
	maxPages  int

	mu        sync.Mutex
	loaded    bool
	state     model.WatermarkState
	frontier  string
	seq       int64
	window    int64
	pending   []*cursorItem
	index     map[string]*cursorItem
	gaps      int
	lastGapAt time.Time
}

// NewWatermarkCursor creates a cursor. pageLimit is the page size requested
// from the forum and maxPages bounds how far back one poll may look.
func NewWatermarkCursor(
	forum CommentLister,
	store driven.WatermarkStore,
	notifier driven.Notifier,
	pageLimit, maxPages int,
	logger *slog.Logger,
) *WatermarkCursor {
	if logger == nil {
		logger = slog.Default()
	}
	if pageLimit <= 0 {
		pageLimit = 100
	}
	if maxPages <= 0 {
		maxPages = 1
	}
	return &WatermarkCursor{
		forum:     forum,
		store:     store,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
		pageLimit: pageLimit,
		maxPages:  maxPages,
		index:     make(map[string]*cursorItem),
	}
}

// Poll returns the comments newer than the last one discovered, oldest
// first. Each returned comment is pending until Advance is called for it.
func (c *WatermarkCursor) Poll(ctx context.Context) ([]Discovered, error) {
	if err := c.load(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	stop := c.frontier
	if stop == "" {
		stop = c.state.LastCommentID
	}
	c.mu.Unlock()

	type fetched struct {
		comment  model.Comment
		boundary string
	}

	var (
		collected []fetched
		after     string
		found     bool
		exhausted bool
		pages     int
	)

	for pages < c.maxPages {
		page, err := c.forum.ListNewComments(ctx, after, c.pageLimit)
		if err != nil {
			return nil, fmt.Errorf("list new comments: %w", err)
		}
		pages++

		for _, cm := range page.Comments {
			if stop != "" && model.CompareIDs(cm.ID, stop) <= 0 {
				found = true
				break
			}
			collected = append(collected, fetched{comment: cm, boundary: after})
		}

		if found || stop == "" {
			break
		}
		if page.After == "" {
			exhausted = true
			break
		}
		after = page.After
	}

	gap := stop != "" && !found
	if gap {
		c.reportGap(ctx, stop, len(collected), pages, exhausted)
	}

	slices.Reverse(collected)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(collected) > 0 {
		c.window++
	}

	out := make([]Discovered, 0, len(collected))
	for _, f := range collected {
		cm := f.comment
		if _, dup := c.index[cm.ID]; dup {
			continue
		}
		c.seq++
		item := &cursorItem{id: cm.ID, boundary: f.boundary, window: c.window}
		c.pending = append(c.pending, item)
		c.index[cm.ID] = item
		out = append(out, Discovered{Comment: cm, Seq: c.seq})
		if c.frontier == "" || model.CompareIDs(cm.ID, c.frontier) > 0 {
			c.frontier = cm.ID
		}
	}

	return out, nil
}

// Advance marks id terminal and persists the watermark over the contiguous
// prefix of terminal comments. Unknown ids are ignored.
func (c *WatermarkCursor) Advance(ctx context.Context, id string) error {
	c.mu.Lock()
	item, ok := c.index[id]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	item.terminal = true

	var last *cursorItem
	for len(c.pending) > 0 && c.pending[0].terminal {
		last = c.pending[0]
		delete(c.index, last.id)
		c.pending = c.pending[1:]
	}
	c.mu.Unlock()

	if last == nil {
		return nil
	}

	state := model.WatermarkState{
		LastCommentID: last.id,
		Boundary:      last.boundary,
		Window:        last.window,
		UpdatedAt:     c.now().UTC(),
	}
	advanced, err := c.store.Save(ctx, state)
	if err != nil {
		return fmt.Errorf("save watermark %s: %w", last.id, err)
	}
	if advanced {
		c.mu.Lock()
		if model.CompareIDs(state.LastCommentID, c.state.LastCommentID) > 0 {
			c.state = state
		}
		c.mu.Unlock()
	}
	return nil
}

// Stats returns the current cursor position.
func (c *WatermarkCursor) Stats() CursorStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CursorStats{
		Watermark: c.state,
		Frontier:  c.frontier,
		Pending:   len(c.pending),
		Window:    c.window,
		Gaps:      c.gaps,
		LastGapAt: c.lastGapAt,
	}
}

// Load reads the durable watermark if it has not been read yet.
func (c *WatermarkCursor) Load(ctx context.Context) error {
	return c.load(ctx)
}

func (c *WatermarkCursor) load(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return nil
	}

	state, err := c.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load watermark: %w", err)
	}
	c.state = state
	c.window = state.Window
	c.loaded = true
	return nil
}

// reportGap records that the window was exhausted before the previous
// position was found. The retrieved comments are still processed and the
// oldest of them becomes the new baseline.
func (c *WatermarkCursor) reportGap(ctx context.Context, stop string, retrieved, pages int, exhausted bool) {
	c.mu.Lock()
	c.gaps++
	c.lastGapAt = c.now()
	c.mu.Unlock()

	c.logger.Warn("comment stream gap, previous position not found",
		"watermark", stop,
		"retrieved", retrieved,
		"pages", pages,
		"listing_exhausted", exhausted,
	)

	if c.notifier == nil {
		return
	}
	msg := fmt.Sprintf("Comment gap detected: %d comments scanned over %d pages without reaching %s; older comments may have been missed.",
		retrieved, pages, stop)
	if err := c.notifier.Alert(ctx, msg); err != nil {
		c.logger.Warn("gap alert failed", "error", err)
	}
}

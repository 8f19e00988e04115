// Package session implements the stock adjustment session controller: it
// owns the scanned product, the staged adjustment, the processing flag and
// the session history, and moves them through lookup, commit and undo.
//
// A Controller is safe for concurrent use. Presentation code reads it through
// State or Subscribe and sends operator intents through its methods.
package session

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fairyhunter13/stock-adjustment-service/internal/model"
	"github.com/fairyhunter13/stock-adjustment-service/internal/obs"
	"github.com/fairyhunter13/stock-adjustment-service/internal/store"
)

// Gateway is the remote inventory the controller mirrors.
type Gateway interface {
	Lookup(ctx context.Context, code string) (model.Item, error)
	SetQuantity(ctx context.Context, product model.ProductRef, quantity int64) error
	SetPrice(ctx context.Context, product model.ProductRef, price decimal.Decimal) error
}

// Recorder receives adjustment events after successful commits and undos.
// Enqueue must not block.
type Recorder interface {
	Enqueue(ev model.AdjustmentEvent) bool
}

// Confirmation is asked before an undo reaches the gateway.
type Confirmation func(entry model.HistoryEntry) bool

// Options tunes timing and wiring of a Controller.
type Options struct {
	SessionID string

	LookupDebounce time.Duration
	MinCodeLength  int
	LookupTimeout  time.Duration

	// NoticeDelay <= 0 keeps notifications until dismissed.
	NoticeDelay time.Duration
	// CounterDuration <= 0 moves the displayed quantity without rolling.
	CounterDuration time.Duration
	CounterMinStep  time.Duration

	Mirror   *store.Mirror
	Recorder Recorder
}

// Controller owns all mutable session state.
type Controller struct {
	gw     Gateway
	opts   Options
	mirror *store.Mirror
	seq    store.Sequencer

	baseCtx context.Context
	cancel  context.CancelFunc

	mu           sync.Mutex
	closed       bool
	version      uint64
	code         string
	lookup       model.LookupStatus
	busy         bool
	product      *model.ProductRef
	stock        *model.StockSnapshot
	displayed    int64
	pending      int64
	processing   bool
	awaitingScan bool
	history      []model.HistoryEntry
	notice       *model.Notification

	lookupGen    uint64
	debounce     *time.Timer
	lookupCancel context.CancelFunc

	noticeSeq   uint64
	noticeTimer *time.Timer

	rollStop chan struct{}

	subSeq uint64
	subs   map[uint64]func(State)
}

// New builds a Controller over gw. Missing options fall back to the
// reference timings.
func New(gw Gateway, opts Options) *Controller {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.MinCodeLength < 1 {
		opts.MinCodeLength = 3
	}
	if opts.LookupDebounce < 0 {
		opts.LookupDebounce = 0
	}
	if opts.CounterMinStep <= 0 {
		opts.CounterMinStep = 20 * time.Millisecond
	}
	mirror := opts.Mirror
	if mirror == nil {
		mirror = store.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		gw:      gw,
		opts:    opts,
		mirror:  mirror,
		baseCtx: ctx,
		cancel:  cancel,
		lookup:  model.LookupIdle,
		pending: 1,
		subs:    make(map[uint64]func(State)),
	}
}

// SessionID identifies this session in journals and published events.
func (c *Controller) SessionID() string { return c.opts.SessionID }

// State returns a copy of the current session state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

// Subscribe registers fn to receive every new state. Deliveries from
// different goroutines may interleave; State.Version orders them. fn must
// not block for long. The returned func removes the subscription.
func (c *Controller) Subscribe(fn func(State)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	c.subSeq++
	id := c.subSeq
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Close stops every timer and in-flight lookup. No callback mutates state
// after Close returns.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.stopLookupLocked()
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
		c.noticeTimer = nil
	}
	c.stopRollLocked()
	c.subs = nil
	c.cancel()
}

// SetPending stages n as the adjustment; values below 1 become 1.
func (c *Controller) SetPending(n int64) int64 {
	c.mu.Lock()
	c.pending = clampPending(n)
	v := c.pending
	emit := c.changedLocked()
	c.mu.Unlock()
	emit()
	return v
}

// SetPendingText parses operator input; anything that is not an integer
// counts as 1.
func (c *Controller) SetPendingText(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		n = 1
	}
	return c.SetPending(n)
}

// AdjustPendingBy steps the staged adjustment by delta with the same clamp.
func (c *Controller) AdjustPendingBy(delta int64) int64 {
	c.mu.Lock()
	n := c.pending
	if delta > 0 && n > math.MaxInt64-delta {
		n = math.MaxInt64
	} else {
		n += delta
	}
	c.pending = clampPending(n)
	v := c.pending
	emit := c.changedLocked()
	c.mu.Unlock()
	emit()
	return v
}

func clampPending(n int64) int64 {
	if n < 1 {
		return 1
	}
	return n
}

// DismissNotice hides the current notification.
func (c *Controller) DismissNotice() {
	c.mu.Lock()
	if c.notice == nil {
		c.mu.Unlock()
		return
	}
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
		c.noticeTimer = nil
	}
	c.notice = nil
	emit := c.changedLocked()
	c.mu.Unlock()
	emit()
}

func (c *Controller) showNoticeLocked(msg string, level model.NoticeLevel) {
	c.noticeSeq++
	id := c.noticeSeq
	c.notice = &model.Notification{ID: id, Message: msg, Level: level, ShownAt: time.Now()}
	if c.noticeTimer != nil {
		c.noticeTimer.Stop()
		c.noticeTimer = nil
	}
	if c.opts.NoticeDelay > 0 {
		c.noticeTimer = time.AfterFunc(c.opts.NoticeDelay, func() { c.expireNotice(id) })
	}
}

func (c *Controller) expireNotice(id uint64) {
	c.mu.Lock()
	if c.closed || c.notice == nil || c.notice.ID != id {
		c.mu.Unlock()
		return
	}
	c.notice = nil
	c.noticeTimer = nil
	emit := c.changedLocked()
	c.mu.Unlock()
	emit()
}

// changedLocked bumps the version and returns a func that delivers the new
// state to subscribers. Call it after releasing the lock.
func (c *Controller) changedLocked() func() {
	c.version++
	if c.closed || len(c.subs) == 0 {
		return func() {}
	}
	st := c.stateLocked()
	subs := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	return func() {
		for _, fn := range subs {
			fn(st)
		}
	}
}

func (c *Controller) record(kind model.AdjustmentKind, entry model.HistoryEntry, qty int64, price *decimal.Decimal) {
	if c.opts.Recorder == nil {
		return
	}
	ev := model.AdjustmentEvent{
		Sequence:   c.seq.Next(),
		SessionID:  c.opts.SessionID,
		Kind:       kind,
		Entry:      entry,
		Quantity:   qty,
		Price:      price,
		OccurredAt: time.Now().UTC(),
	}
	if !c.opts.Recorder.Enqueue(ev) {
		obs.Logger.Warn("adjustment_event_dropped", "kind", kind, "entry_id", entry.ID)
	}
}

func newEntryID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

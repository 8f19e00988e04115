package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/stock-adjustment-service/internal/model"
	"github.com/fairyhunter13/stock-adjustment-service/internal/obs"
)

// Queue holds adjustment events between the session and the sink workers.
// Enqueue never blocks: events wait in an unbounded backlog until the
// broker moves them into the bounded out channel.
type Queue struct {
	mu      sync.Mutex
	backlog []model.AdjustmentEvent
	notify  chan struct{}
	out     chan model.AdjustmentEvent
	closed  atomic.Bool

	enqueued  atomic.Uint64
	processed atomic.Uint64
}

// New creates a Queue whose out channel buffers outBuffer events.
func New(outBuffer int) *Queue {
	if outBuffer <= 0 {
		outBuffer = 128
	}
	return &Queue{
		notify: make(chan struct{}, 1),
		out:    make(chan model.AdjustmentEvent, outBuffer),
	}
}

// Start runs the broker until ctx is done.
func (q *Queue) Start(ctx context.Context) {
	go q.broker(ctx)
}

func (q *Queue) broker(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if n := q.flushOnce(); n > 0 {
			obs.Logger.Debug("queue_flushed", "moved", n, "backlog_size", q.BacklogSize())
		}
		select {
		case <-ctx.Done():
			return
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

func (q *Queue) flushOnce() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	moved := 0
	for len(q.backlog) > 0 && len(q.out) < cap(q.out) {
		q.out <- q.backlog[0]
		q.backlog[0] = model.AdjustmentEvent{}
		q.backlog = q.backlog[1:]
		moved++
	}
	return moved
}

// Enqueue appends ev to the backlog. It reports false once intake is closed.
func (q *Queue) Enqueue(ev model.AdjustmentEvent) bool {
	if q.closed.Load() {
		return false
	}
	q.enqueued.Add(1)
	q.mu.Lock()
	q.backlog = append(q.backlog, ev)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// Out is the channel workers read from.
func (q *Queue) Out() <-chan model.AdjustmentEvent { return q.out }

// BacklogSize returns events not yet moved to the out channel.
func (q *Queue) BacklogSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.backlog)
}

// Depth returns backlog plus buffered out events.
func (q *Queue) Depth() int {
	q.mu.Lock()
	bl := len(q.backlog)
	q.mu.Unlock()
	return bl + len(q.out)
}

// MarkProcessed counts one event as handled by every sink.
func (q *Queue) MarkProcessed() { q.processed.Add(1) }

// Metrics returns counters and sizes for observability.
func (q *Queue) Metrics() (enq, proc uint64, backlog, depth int) {
	enq = q.enqueued.Load()
	proc = q.processed.Load()
	backlog = q.BacklogSize()
	depth = q.Depth()
	return enq, proc, backlog, depth
}

// CloseIntake rejects future enqueues.
func (q *Queue) CloseIntake() { q.closed.Store(true) }

// IsShuttingDown reports if intake has been closed.
func (q *Queue) IsShuttingDown() bool { return q.closed.Load() }

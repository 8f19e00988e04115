// Package queue dispatches adjustment events to their sinks (journal,
// broker) on background workers so the session never waits on them.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fairyhunter13/stock-adjustment-service/internal/model"
	"github.com/fairyhunter13/stock-adjustment-service/internal/obs"
)

// Sink consumes adjustment events. Handle errors are logged and counted;
// the event is not retried.
type Sink interface {
	Name() string
	Handle(ctx context.Context, ev model.AdjustmentEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc struct {
	Label string
	Fn    func(ctx context.Context, ev model.AdjustmentEvent) error
}

func (s SinkFunc) Name() string { return s.Label }

func (s SinkFunc) Handle(ctx context.Context, ev model.AdjustmentEvent) error { return s.Fn(ctx, ev) }

// Manager runs a fixed pool of workers draining the queue into sinks.
type Manager struct {
	q       *Queue
	sinks   []Sink
	workers int
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	running   int
	sinkFails atomic.Uint64
}

// NewManager builds a Manager with workers goroutines (at least one).
// timeout bounds every sink call; zero means no bound.
func NewManager(q *Queue, workers int, timeout time.Duration, sinks ...Sink) *Manager {
	if workers < 1 {
		workers = 1
	}
	return &Manager{q: q, sinks: sinks, workers: workers, timeout: timeout}
}

// Start begins the broker and the workers.
func (m *Manager) Start(parent context.Context) {
	m.ctx, m.cancel = context.WithCancel(parent)
	m.q.Start(m.ctx)
	m.mu.Lock()
	for i := 0; i < m.workers; i++ {
		m.wg.Add(1)
		m.running++
		go m.worker(i)
	}
	n := m.running
	m.mu.Unlock()
	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.Name())
	}
	obs.Logger.Info("dispatcher_started", "worker_count", n, "sinks", names)
}

// Stop cancels the broker and workers and waits for them to exit.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) worker(id int) {
	defer func() {
		m.mu.Lock()
		m.running--
		m.mu.Unlock()
		m.wg.Done()
	}()
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-m.q.Out():
			m.dispatch(id, ev)
			m.q.MarkProcessed()
		}
	}
}

func (m *Manager) dispatch(worker int, ev model.AdjustmentEvent) {
	for _, s := range m.sinks {
		ctx, cancel := m.ctx, context.CancelFunc(func() {})
		if m.timeout > 0 {
			ctx, cancel = context.WithTimeout(m.ctx, m.timeout)
		}
		err := s.Handle(ctx, ev)
		cancel()
		if err != nil {
			m.sinkFails.Add(1)
			obs.Logger.Warn("sink_failed",
				"sink", s.Name(),
				"worker", worker,
				"sequence", ev.Sequence,
				"kind", ev.Kind,
				"error", err,
			)
		}
	}
}

// Enqueue proxies to the queue.
func (m *Manager) Enqueue(ev model.AdjustmentEvent) bool { return m.q.Enqueue(ev) }

// WorkerCount returns the number of running workers.
func (m *Manager) WorkerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// SinkFailures counts sink calls that returned an error.
func (m *Manager) SinkFailures() uint64 { return m.sinkFails.Load() }

// IsShuttingDown reports whether new enqueues are rejected.
func (m *Manager) IsShuttingDown() bool { return m.q.IsShuttingDown() }

// CloseIntake disallows future enqueues.
func (m *Manager) CloseIntake() { m.q.CloseIntake() }

// QueueMetrics exposes the underlying queue metrics.
func (m *Manager) QueueMetrics() (enq, proc uint64, backlog, depth int) {
	return m.q.Metrics()
}

// DrainUntil blocks until every enqueued event has been processed or ctx
// is done.
func (m *Manager) DrainUntil(ctx context.Context) bool {
	for {
		enq, proc, backlog, depth := m.q.Metrics()
		if backlog == 0 && depth == 0 && enq == proc {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(50 * time.Millisecond):
		}
	}
}

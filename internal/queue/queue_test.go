package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fairyhunter13/stock-adjustment-service/internal/model"
)

type recordingSink struct {
	mu   sync.Mutex
	name string
	seen []uint64
	err  error
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Handle(ctx context.Context, ev model.AdjustmentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, ev.Sequence)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

func TestQueueNonBlockingEnqueue(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	for i := 0; i < 1000; i++ {
		if !q.Enqueue(model.AdjustmentEvent{Sequence: uint64(i + 1)}) {
			t.Fatalf("enqueue failed at %d", i)
		}
	}
	if q.Depth() == 0 {
		t.Fatalf("expected queued events with no consumer")
	}
}

func TestQueueShutdownIntake(t *testing.T) {
	q := New(1)
	q.CloseIntake()
	if !q.IsShuttingDown() {
		t.Fatalf("expected shutting down true")
	}
	if q.Enqueue(model.AdjustmentEvent{Sequence: 1}) {
		t.Fatalf("expected enqueue false when shutting down")
	}
}

func TestManagerDeliversToEverySink(t *testing.T) {
	a := &recordingSink{name: "a"}
	b := &recordingSink{name: "b"}
	mgr := NewManager(New(4), 2, time.Second, a, b)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	for i := 0; i < 50; i++ {
		_ = mgr.Enqueue(model.AdjustmentEvent{Sequence: uint64(i + 1), Kind: model.AdjustmentCommitted})
	}
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDrain()
	if !mgr.DrainUntil(drainCtx) {
		t.Fatalf("expected drain true")
	}
	if a.count() != 50 || b.count() != 50 {
		t.Fatalf("expected 50 deliveries per sink, got %d and %d", a.count(), b.count())
	}
	if enq, proc, _, _ := mgr.QueueMetrics(); enq != 50 || proc != 50 {
		t.Fatalf("unexpected metrics enq=%d proc=%d", enq, proc)
	}
	if mgr.WorkerCount() != 2 {
		t.Fatalf("expected 2 workers, got %d", mgr.WorkerCount())
	}
}

func TestManagerSinkFailureDoesNotStopDelivery(t *testing.T) {
	bad := &recordingSink{name: "bad", err: errors.New("broker down")}
	good := &recordingSink{name: "good"}
	mgr := NewManager(New(4), 1, 0, bad, good)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.Start(ctx)
	defer mgr.Stop()

	for i := 0; i < 3; i++ {
		_ = mgr.Enqueue(model.AdjustmentEvent{Sequence: uint64(i + 1)})
	}
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelDrain()
	if !mgr.DrainUntil(drainCtx) {
		t.Fatalf("expected drain true")
	}
	if good.count() != 3 {
		t.Fatalf("expected good sink to see 3 events, got %d", good.count())
	}
	if mgr.SinkFailures() != 3 {
		t.Fatalf("expected 3 failures, got %d", mgr.SinkFailures())
	}
}

func TestManagerDrainTimesOutWithoutWorkers(t *testing.T) {
	mgr := NewManager(New(1), 1, 0)
	_ = mgr.Enqueue(model.AdjustmentEvent{Sequence: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if mgr.DrainUntil(ctx) {
		t.Fatalf("expected drain false when nothing consumes")
	}
}

func TestSinkFunc(t *testing.T) {
	var got uint64
	s := SinkFunc{Label: "fn", Fn: func(ctx context.Context, ev model.AdjustmentEvent) error {
		got = ev.Sequence
		return nil
	}}
	if s.Name() != "fn" {
		t.Fatalf("unexpected name %q", s.Name())
	}
	if err := s.Handle(context.Background(), model.AdjustmentEvent{Sequence: 9}); err != nil || got != 9 {
		t.Fatalf("unexpected handle result err=%v got=%d", err, got)
	}
}

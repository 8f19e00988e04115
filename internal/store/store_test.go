package store

import (
	"sync"
	"testing"
)

func TestMirrorApplyAndGet(t *testing.T) {
	s := New()
	if _, ok := s.Get("8839"); ok {
		t.Fatalf("expected empty mirror")
	}
	q, applied := s.Apply("8839", 45, 1)
	if !applied || q.Value != 45 {
		t.Fatalf("unexpected apply result: %+v %v", q, applied)
	}
	got, ok := s.Get("8839")
	if !ok || got.Value != 45 || got.Sequence != 1 {
		t.Fatalf("unexpected: %+v", got)
	}
}

func TestMirrorLastWriteWins(t *testing.T) {
	s := New()
	s.Apply("p2", 48, 2)
	q, applied := s.Apply("p2", 45, 1)
	if applied {
		t.Fatalf("stale sequence must not apply")
	}
	if q.Value != 48 {
		t.Fatalf("expected 48, got %d", q.Value)
	}
	if _, applied := s.Apply("p2", 50, 2); applied {
		t.Fatalf("equal sequence must not apply")
	}
}

func TestMirrorIgnoresEmptyCode(t *testing.T) {
	s := New()
	if _, applied := s.Apply("", 1, 1); applied {
		t.Fatalf("empty code must not apply")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty mirror, got %d", s.Len())
	}
}

func TestMirrorConcurrentApply(t *testing.T) {
	s := New()
	var seq Sequencer
	seqs := make([]uint64, 100)
	for i := range seqs {
		seqs[i] = seq.Next()
	}
	var wg sync.WaitGroup
	for i, n := range seqs {
		v := int64(i + 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Apply("p3", v, n)
		}()
	}
	wg.Wait()
	got, ok := s.Get("p3")
	if !ok {
		t.Fatalf("not found")
	}
	if got.Value != 100 || got.Sequence != 100 {
		t.Fatalf("expected 100, got %+v", got)
	}
}

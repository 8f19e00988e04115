// Package store keeps the session's mirror of remote product quantities.
package store

import (
	"sync"
	"time"
)

// Quantity is the mirrored remote quantity of one product code.
type Quantity struct {
	Value     int64
	UpdatedAt time.Time
	Sequence  uint64
}

// Mirror is a last-write-wins map of product code to quantity ordered by
// sequence number. Older sequences never overwrite newer ones.
type Mirror struct {
	mu sync.RWMutex
	m  map[string]Quantity
}

func New() *Mirror {
	return &Mirror{m: make(map[string]Quantity)}
}

func (s *Mirror) Get(code string) (Quantity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.m[code]
	return q, ok
}

// Apply stores value for code when seq is newer than the stored sequence.
// It returns the quantity held after the call and whether value was applied.
func (s *Mirror) Apply(code string, value int64, seq uint64) (Quantity, bool) {
	if code == "" {
		return Quantity{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.m[code]
	if ok && seq <= cur.Sequence {
		return cur, false
	}
	q := Quantity{Value: value, UpdatedAt: time.Now(), Sequence: seq}
	s.m[code] = q
	return q, true
}

// Len returns the number of mirrored codes.
func (s *Mirror) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}

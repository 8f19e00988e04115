// Package journal keeps an append-only audit trail of committed and
// reverted adjustments in a BoltDB file.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"

	"github.com/fairyhunter13/stock-adjustment-service/internal/model"
)

const (
	bucketName = "adjustments"
	// indexBucket maps session id and sequence to the record key.
	indexBucket = "adjustment_ids"
)

// ErrNotFound is returned by Get for an unknown session and sequence.
var ErrNotFound = errors.New("journal record not found")

// Journal wraps a BoltDB database. Records are keyed by occurrence time,
// session and sequence, so cursor order is time order across sessions.
// Sequences restart with every session; a record is unique per session id
// and sequence.
type Journal struct {
	db *bolt.DB
}

// Open opens (or creates) the journal file at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketName, indexBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db: db}, nil
}

// Close releases the database file lock.
func (j *Journal) Close() error { return j.db.Close() }

func recordKey(ev model.AdjustmentEvent) []byte {
	return []byte(fmt.Sprintf("%020d/%s/%020d", ev.OccurredAt.UnixNano(), ev.SessionID, ev.Sequence))
}

func indexKey(sessionID string, seq uint64) []byte {
	return []byte(fmt.Sprintf("%s/%020d", sessionID, seq))
}

// Name identifies the journal as a dispatcher sink.
func (j *Journal) Name() string { return "journal" }

// Handle stores ev unless the session already recorded its sequence.
func (j *Journal) Handle(ctx context.Context, ev model.AdjustmentEvent) error {
	_, err := j.Append(ev)
	return err
}

// Append stores ev and reports whether a write happened. Appending the same
// session and sequence twice keeps the first record.
func (j *Journal) Append(ev model.AdjustmentEvent) (bool, error) {
	written := false
	err := j.db.Update(func(tx *bolt.Tx) error {
		idx := tx.Bucket([]byte(indexBucket))
		ik := indexKey(ev.SessionID, ev.Sequence)
		if idx.Get(ik) != nil {
			return nil
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		rk := recordKey(ev)
		if err := tx.Bucket([]byte(bucketName)).Put(rk, data); err != nil {
			return err
		}
		written = true
		return idx.Put(ik, rk)
	})
	if err != nil {
		return false, err
	}
	return written, nil
}

// Get returns the record stored for sessionID and seq.
func (j *Journal) Get(sessionID string, seq uint64) (model.AdjustmentEvent, error) {
	var ev model.AdjustmentEvent
	err := j.db.View(func(tx *bolt.Tx) error {
		rk := tx.Bucket([]byte(indexBucket)).Get(indexKey(sessionID, seq))
		if rk == nil {
			return ErrNotFound
		}
		v := tx.Bucket([]byte(bucketName)).Get(rk)
		if v == nil {
			return ErrNotFound
		}
		return json.Unmarshal(v, &ev)
	})
	return ev, err
}

// List returns up to limit records, newest first. limit <= 0 returns all.
// The result is never nil.
func (j *Journal) List(limit int) ([]model.AdjustmentEvent, error) {
	items := []model.AdjustmentEvent{}
	err := j.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketName)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(items) >= limit {
				return nil
			}
			var ev model.AdjustmentEvent
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("decode journal record %s: %w", k, err)
			}
			items = append(items, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

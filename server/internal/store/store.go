package store

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/obsidianstack/aggregator/pkg/reading"
)

const defaultShards = 16

// Record is a stored Reading together with its acceptance clock value and
// the time it arrived. Records are immutable once stored; replacing an
// identity swaps in a new Record.
type Record struct {
	Reading   reading.Reading
	Clock     uint64
	UpdatedAt time.Time
}

// Expired reports whether r is older than threshold at now. A threshold of
// zero or less never expires anything.
func (r Record) Expired(now time.Time, threshold time.Duration) bool {
	return threshold > 0 && now.Sub(r.UpdatedAt) > threshold
}

// Store is a concurrent map from source identity to its latest Record.
type Store struct {
	shards []*shard
	now    func() time.Time // injectable for deterministic tests
}

type shard struct {
	mu   sync.RWMutex
	data map[string]Record
}

// New creates an empty Store using the system clock.
func New() *Store {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty Store whose arrival times and ages are taken
// from now.
func NewWithClock(now func() time.Time) *Store {
	s := &Store{
		shards: make([]*shard, defaultShards),
		now:    now,
	}
	for i := range s.shards {
		s.shards[i] = &shard{data: make(map[string]Record)}
	}
	return s
}

func (s *Store) shardFor(id string) *shard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return s.shards[h.Sum32()%uint32(len(s.shards))]
}

// Upsert stores r as the latest reading for id, stamped with clock and the
// current time. It reports whether id was previously absent.
func (s *Store) Upsert(id string, r reading.Reading, clock uint64) (Record, bool) {
	rec := Record{Reading: r.Clone(), Clock: clock}

	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	rec.UpdatedAt = s.now()
	_, existed := sh.data[id]
	sh.data[id] = rec
	return rec.clone(), !existed
}

// Get returns the Record for id. The record may be older than the expiry
// threshold if no eviction pass has run since.
func (s *Store) Get(id string) (Record, bool) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	rec, ok := sh.data[id]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Records returns a point-in-time copy of every record. All shards are
// read-locked together so the result reflects a single instant.
func (s *Store) Records() []Record {
	for _, sh := range s.shards {
		sh.mu.RLock()
	}
	n := 0
	for _, sh := range s.shards {
		n += len(sh.data)
	}
	out := make([]Record, 0, n)
	for _, sh := range s.shards {
		for _, rec := range sh.data {
			out = append(out, rec.clone())
		}
	}
	for _, sh := range s.shards {
		sh.mu.RUnlock()
	}
	return out
}

// Snapshot returns a point-in-time copy of every stored Reading, in no
// particular order.
func (s *Store) Snapshot() []reading.Reading {
	recs := s.Records()
	out := make([]reading.Reading, len(recs))
	for i, rec := range recs {
		out[i] = rec.Reading
	}
	return out
}

// EvictOlderThan removes every record whose age exceeds threshold and
// returns how many were removed.
func (s *Store) EvictOlderThan(threshold time.Duration) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		now := s.now()
		for id, rec := range sh.data {
			if now.Sub(rec.UpdatedAt) > threshold {
				delete(sh.data, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of records held, including ones past expiry that
// have not been evicted yet.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.data)
		sh.mu.RUnlock()
	}
	return n
}

// IsEmpty reports whether the store holds no records.
func (s *Store) IsEmpty() bool {
	return s.Len() == 0
}

// Clear removes every record.
func (s *Store) Clear() {
	for _, sh := range s.shards {
		sh.mu.Lock()
		sh.data = make(map[string]Record)
		sh.mu.Unlock()
	}
}

func (r Record) clone() Record {
	r.Reading = r.Reading.Clone()
	return r
}

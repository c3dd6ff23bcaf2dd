// Package lifecycle tracks soft-deleted fingerprints in memory for the
// duration of their 30-day recovery window, and reclaims them once that
// window closes.
package lifecycle

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/corvidmem/corvid/internal/fingerprint"
	"github.com/corvidmem/corvid/internal/store"
)

// shardCount matches preference for a fixed, small power-of-
// two shard count over a dynamically sized map, trading a little memory
// for lock contention that scales with concurrent callers rather than
// total tombstone count.
const shardCount = 32

type tombstoneShard struct {
	mu      sync.RWMutex
	entries map[fingerprint.ID]store.Tombstone
}

// TombstoneSet is a 32-way sharded concurrent set of soft-deleted
// fingerprint ids, rehydrated from the primary store at startup so that
// Get's tombstone check never has to round-trip to SQLite on the hot
// path.
type TombstoneSet struct {
	shards [shardCount]*tombstoneShard
}

// NewTombstoneSet returns an empty set; call Rehydrate before serving
// traffic.
func NewTombstoneSet() *TombstoneSet {
	ts := &TombstoneSet{}
	for i := range ts.shards {
		ts.shards[i] = &tombstoneShard{entries: make(map[fingerprint.ID]store.Tombstone)}
	}
	return ts
}

func (ts *TombstoneSet) shardFor(id fingerprint.ID) *tombstoneShard {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return ts.shards[h.Sum32()%shardCount]
}

// Add records t as tombstoned.
func (ts *TombstoneSet) Add(t store.Tombstone) {
	shard := ts.shardFor(t.FingerprintID)
	shard.mu.Lock()
	shard.entries[t.FingerprintID] = t
	shard.mu.Unlock()
}

// Remove clears id's tombstone entry, used after a successful Restore.
func (ts *TombstoneSet) Remove(id fingerprint.ID) {
	shard := ts.shardFor(id)
	shard.mu.Lock()
	delete(shard.entries, id)
	shard.mu.Unlock()
}

// Contains reports whether id is currently tombstoned.
func (ts *TombstoneSet) Contains(id fingerprint.ID) bool {
	shard := ts.shardFor(id)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	_, ok := shard.entries[id]
	return ok
}

// Get returns id's tombstone record, if any.
func (ts *TombstoneSet) Get(id fingerprint.ID) (store.Tombstone, bool) {
	shard := ts.shardFor(id)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	t, ok := shard.entries[id]
	return t, ok
}

// Snapshot returns every tracked tombstone in no particular order.
func (ts *TombstoneSet) Snapshot() []store.Tombstone {
	var out []store.Tombstone
	for _, shard := range ts.shards {
		shard.mu.RLock()
		for _, t := range shard.entries {
			out = append(out, t)
		}
		shard.mu.RUnlock()
	}
	return out
}

// Len returns the total number of tracked tombstones across all shards.
func (ts *TombstoneSet) Len() int {
	n := 0
	for _, shard := range ts.shards {
		shard.mu.RLock()
		n += len(shard.entries)
		shard.mu.RUnlock()
	}
	return n
}

// Rehydrate loads every tombstone row from st into the set. Run once at
// daemon startup so an in-process Contains/Get never misses a tombstone
// created by a previous run.
func (ts *TombstoneSet) Rehydrate(ctx context.Context, st *store.Store) error {
	tombstones, err := st.AllTombstones(ctx)
	if err != nil {
		return err
	}
	for _, t := range tombstones {
		ts.Add(t)
	}
	return nil
}

// ReapExpired permanently deletes, from both st and this set, every
// tombstoned fingerprint whose recovery deadline has passed. It returns the ids it reclaimed. Intended to run on a
// periodic tick owned by the caller, not a goroutine of its own, so the
// caller controls cadence and shutdown.
func (ts *TombstoneSet) ReapExpired(ctx context.Context, st *store.Store, now time.Time) ([]fingerprint.ID, error) {
	var reaped []fingerprint.ID
	for _, t := range ts.Snapshot() {
		if !t.Expired(now) {
			continue
		}
		if err := st.Delete(ctx, t.FingerprintID); err != nil {
			return reaped, err
		}
		ts.Remove(t.FingerprintID)
		reaped = append(reaped, t.FingerprintID)
	}
	return reaped, nil
}

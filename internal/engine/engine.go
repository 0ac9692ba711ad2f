// Package engine owns the MirrorRecord map, the two inverse mapping tables,
// the startup sets, and the per-order locks required by spec.md §5's
// concurrency model. Components are wired together in cmd/mirrorengine.
package engine

import (
	"sync"
	"time"

	"github.com/web3guy0/polybot/types"
)

// Store owns every piece of state the Supervisor exclusively manages:
// the MirrorRecord map, both mapping tables, guarded by a single
// read-mostly mutex, plus per-order-ID locks layered on top for the
// Immediate-Fill Executor and Placement Pipeline.
type Store struct {
	mu sync.RWMutex

	bySource map[string]*types.MirrorRecord
	byMirror map[string]*types.MirrorRecord

	orderLocksMu sync.Mutex
	orderLocks   map[string]*sync.Mutex

	startupSourcePositions     map[string]bool
	startupSourceTriggers      map[string]bool
	startupMirrorPositions     map[string]bool
	startupMirrorTriggerHashes map[string]bool
}

func NewStore() *Store {
	return &Store{
		bySource:                   make(map[string]*types.MirrorRecord),
		byMirror:                   make(map[string]*types.MirrorRecord),
		orderLocks:                 make(map[string]*sync.Mutex),
		startupSourcePositions:     make(map[string]bool),
		startupSourceTriggers:      make(map[string]bool),
		startupMirrorPositions:     make(map[string]bool),
		startupMirrorTriggerHashes: make(map[string]bool),
	}
}

// LockOrder returns the per-order-ID mutex, creating it on first use. The
// caller must not hold the component lock (mu) while blocked on this one.
func (s *Store) LockOrder(sourceOrderID string) *sync.Mutex {
	s.orderLocksMu.Lock()
	defer s.orderLocksMu.Unlock()
	l, ok := s.orderLocks[sourceOrderID]
	if !ok {
		l = &sync.Mutex{}
		s.orderLocks[sourceOrderID] = l
	}
	return l
}

// Insert adds a new MirrorRecord to both mapping tables. The invariant that
// SourceOrderID and MirrorOrderID are each unique is enforced by the caller
// having already deduped via hashcache and RecentlyProcessed.
func (s *Store) Insert(rec types.MirrorRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := rec
	s.bySource[rec.SourceOrderID] = &r
	s.byMirror[rec.MirrorOrderID] = &r
}

func (s *Store) BySource(sourceOrderID string) (types.MirrorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.bySource[sourceOrderID]
	if !ok {
		return types.MirrorRecord{}, false
	}
	return *r, true
}

func (s *Store) ByMirror(mirrorOrderID string) (types.MirrorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.byMirror[mirrorOrderID]
	if !ok {
		return types.MirrorRecord{}, false
	}
	return *r, true
}

// Remove deletes a MirrorRecord from both mapping tables.
func (s *Store) Remove(sourceOrderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.bySource[sourceOrderID]
	if !ok {
		return
	}
	delete(s.bySource, sourceOrderID)
	delete(s.byMirror, rec.MirrorOrderID)
}

// All returns a snapshot copy of every live MirrorRecord.
func (s *Store) All() []types.MirrorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.MirrorRecord, 0, len(s.bySource))
	for _, r := range s.bySource {
		out = append(out, *r)
	}
	return out
}

// InitStartupSets populates the immutable startup sets from the initial
// scan; they are never mirrored, canceled, or counted as new.
func (s *Store) InitStartupSets(sourcePositions, mirrorPositions []string, sourceTriggerIDs []string, mirrorTriggerHashes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startupSourcePositions = toSet(sourcePositions)
	s.startupMirrorPositions = toSet(mirrorPositions)
	s.startupSourceTriggers = toSet(sourceTriggerIDs)
	s.startupMirrorTriggerHashes = toSet(mirrorTriggerHashes)
}

func toSet(values []string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

func (s *Store) IsStartupSourceTrigger(orderID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startupSourceTriggers[orderID]
}

func (s *Store) IsStartupMirrorPosition(contract string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startupMirrorPositions[contract]
}

func (s *Store) IsStartupMirrorTriggerHash(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.startupMirrorTriggerHashes[hash]
}

func (s *Store) StartupCardinalities() (sourcePositions, sourceTriggers, mirrorPositions, mirrorTriggerHashes int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.startupSourcePositions), len(s.startupSourceTriggers), len(s.startupMirrorPositions), len(s.startupMirrorTriggerHashes)
}

// Now returns the current wall-clock time (time.Now).
func Now() time.Time { return time.Now() }

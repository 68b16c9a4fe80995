// Package state holds the in-memory tracking ledger: which vessels are
// known, when they were first and last seen, and per-cycle statistics.
package state

import (
	"sort"
	"sync"
)

// Store maps vessel identity to its last known record.
//
// Only the Detector writes to a Store, always from inside a single cycle.
// Readers (diagnostics, websocket feed, metrics) may call it at any time.
type Store struct {
	mu      sync.RWMutex
	vessels map[string]Vessel
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{vessels: make(map[string]Vessel)}
}

// Upsert inserts or replaces the record for v.Identity.
func (s *Store) Upsert(v Vessel) {
	if v.Identity == "" {
		return
	}
	s.mu.Lock()
	s.vessels[v.Identity] = v
	s.mu.Unlock()
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (Vessel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vessels[id]
	return v, ok
}

// Remove deletes id and reports whether it was present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vessels[id]; !ok {
		return false
	}
	delete(s.vessels, id)
	return true
}

// AllIdentities returns the set of tracked identities.
func (s *Store) AllIdentities() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[string]struct{}, len(s.vessels))
	for id := range s.vessels {
		ids[id] = struct{}{}
	}
	return ids
}

// Len returns the number of tracked vessels.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vessels)
}

// Snapshot returns copies of all records ordered by distance, then identity.
func (s *Store) Snapshot() []Vessel {
	s.mu.RLock()
	out := make([]Vessel, 0, len(s.vessels))
	for _, v := range s.vessels {
		out = append(out, v)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Identity < out[j].Identity
	})
	return out
}

package state

import (
	"sync"
	"time"
)

// CycleSnapshot is a read-only copy of the cycle counters.
type CycleSnapshot struct {
	LastRun                time.Time `json:"lastRun"`
	TotalChecks            int64     `json:"totalChecks"`
	LastShipsFound         int       `json:"lastShipsFound"`
	TotalNotificationsSent int64     `json:"totalNotificationsSent"`
}

// CycleStats accumulates per-cycle counters. It is owned by whoever
// constructs the scheduler and is safe for concurrent readers.
type CycleStats struct {
	mu   sync.RWMutex
	snap CycleSnapshot
}

// NewCycleStats creates zeroed statistics.
func NewCycleStats() *CycleStats {
	return &CycleStats{}
}

// Record registers one completed cycle. notified counts dispatch attempts,
// not confirmed deliveries.
func (s *CycleStats) Record(at time.Time, shipsFound, notified int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastRun = at
	s.snap.TotalChecks++
	s.snap.LastShipsFound = shipsFound
	s.snap.TotalNotificationsSent += int64(notified)
}

// Snapshot returns the current counters.
func (s *CycleStats) Snapshot() CycleSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

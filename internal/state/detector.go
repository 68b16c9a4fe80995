package state

import (
	"time"
)

// DefaultGracePeriod is how long a vessel may be absent before eviction.
const DefaultGracePeriod = 5 * time.Minute

// Reconciliation is the outcome of one Detector pass.
type Reconciliation struct {
	Arrivals []Vessel // Newly inserted, in the order they were observed.
	Updated  []Vessel // Already known and refreshed.
	Evicted  []Vessel // Removed after exceeding the grace period.
	Skipped  int      // Observations without an identity.
}

// Detector decides which observed vessels are new arrivals and reaps the
// ones that have been absent for longer than the grace period.
type Detector struct {
	store *Store
	grace time.Duration
}

// NewDetector creates a detector over store. A non-positive grace uses
// DefaultGracePeriod.
func NewDetector(store *Store, grace time.Duration) *Detector {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Detector{store: store, grace: grace}
}

// GracePeriod returns the configured eviction threshold.
func (d *Detector) GracePeriod() time.Duration {
	return d.grace
}

// Reconcile merges the current observation set into the store at time now.
//
// Unknown identities are inserted with FirstSeen = LastSeen = now and
// reported as arrivals. Known identities get their observation fields and
// LastSeen refreshed; FirstSeen is preserved. Known identities missing from
// current are evicted once now - LastSeen exceeds the grace period.
func (d *Detector) Reconcile(now time.Time, current []Vessel) Reconciliation {
	var res Reconciliation
	seen := make(map[string]struct{}, len(current))

	for _, obs := range current {
		if obs.Identity == "" {
			res.Skipped++
			continue
		}
		seen[obs.Identity] = struct{}{}

		known, ok := d.store.Get(obs.Identity)
		if !ok {
			v := obs
			v.FirstSeen = now
			v.LastSeen = now
			d.store.Upsert(v)
			res.Arrivals = append(res.Arrivals, v)
			continue
		}

		known.refresh(obs)
		known.LastSeen = now
		d.store.Upsert(known)
		res.Updated = append(res.Updated, known)
	}

	for id := range d.store.AllIdentities() {
		if _, ok := seen[id]; ok {
			continue
		}
		v, ok := d.store.Get(id)
		if !ok {
			continue
		}
		if now.Sub(v.LastSeen) > d.grace {
			d.store.Remove(id)
			res.Evicted = append(res.Evicted, v)
		}
	}

	return res
}

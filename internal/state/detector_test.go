package state

import (
	"testing"
	"time"

	"trackship/internal/geo"
)

var t0 = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func vessel(id string, distance float64) Vessel {
	return Vessel{
		Identity: id,
		Name:     "MS " + id,
		Position: geo.Point{Lat: 48.86, Lon: 2.22},
		Distance: distance,
	}
}

func TestReconcileScenario(t *testing.T) {
	store := NewStore()
	d := NewDetector(store, 5*time.Minute)

	// Cycle 1: T1 appears at 850m.
	res := d.Reconcile(t0, []Vessel{vessel("T1", 850)})
	if len(res.Arrivals) != 1 || res.Arrivals[0].Identity != "T1" {
		t.Fatalf("cycle 1: expected T1 arrival, got %+v", res.Arrivals)
	}
	got, ok := store.Get("T1")
	if !ok {
		t.Fatal("cycle 1: T1 not stored")
	}
	if !got.FirstSeen.Equal(t0) || !got.LastSeen.Equal(t0) {
		t.Errorf("cycle 1: first/last seen = %v/%v, want %v", got.FirstSeen, got.LastSeen, t0)
	}

	// Cycle 2: same vessel at 900m.
	t1 := t0.Add(30 * time.Second)
	res = d.Reconcile(t1, []Vessel{vessel("T1", 900)})
	if len(res.Arrivals) != 0 {
		t.Fatalf("cycle 2: unexpected arrivals %+v", res.Arrivals)
	}
	got, _ = store.Get("T1")
	if !got.FirstSeen.Equal(t0) {
		t.Errorf("cycle 2: FirstSeen changed to %v", got.FirstSeen)
	}
	if !got.LastSeen.Equal(t1) {
		t.Errorf("cycle 2: LastSeen = %v, want %v", got.LastSeen, t1)
	}
	if got.Distance != 900 {
		t.Errorf("cycle 2: Distance = %v, want 900", got.Distance)
	}

	// Absent cycles inside the grace period keep T1.
	for i := 1; i <= 9; i++ {
		now := t1.Add(time.Duration(i) * 30 * time.Second)
		res = d.Reconcile(now, nil)
		if len(res.Evicted) != 0 {
			t.Fatalf("absent cycle %d: evicted %+v within grace", i, res.Evicted)
		}
		if _, ok := store.Get("T1"); !ok {
			t.Fatalf("absent cycle %d: T1 missing", i)
		}
	}

	// Exactly the grace period is not enough.
	res = d.Reconcile(t1.Add(5*time.Minute), nil)
	if len(res.Evicted) != 0 {
		t.Fatalf("evicted at exactly the grace period")
	}

	// Past the grace period T1 goes.
	res = d.Reconcile(t1.Add(5*time.Minute+time.Second), nil)
	if len(res.Evicted) != 1 || res.Evicted[0].Identity != "T1" {
		t.Fatalf("expected T1 eviction, got %+v", res.Evicted)
	}
	if store.Len() != 0 {
		t.Errorf("store not empty after eviction: %d", store.Len())
	}
}

func TestReconcileFlickerDoesNotRenotify(t *testing.T) {
	store := NewStore()
	d := NewDetector(store, 5*time.Minute)

	arrivals := 0
	schedule := []bool{true, false, false, false, true, false, true}
	for i, present := range schedule {
		var current []Vessel
		if present {
			current = []Vessel{vessel("A", 1200)}
		}
		res := d.Reconcile(t0.Add(time.Duration(i)*time.Minute), current)
		arrivals += len(res.Arrivals)
	}
	if arrivals != 1 {
		t.Errorf("expected exactly 1 arrival across flicker, got %d", arrivals)
	}
}

func TestReconcileEvictionThenReturn(t *testing.T) {
	store := NewStore()
	d := NewDetector(store, 5*time.Minute)

	d.Reconcile(t0, []Vessel{vessel("A", 500)})
	d.Reconcile(t0.Add(6*time.Minute), nil)
	if _, ok := store.Get("A"); ok {
		t.Fatal("A should have been evicted")
	}

	later := t0.Add(7 * time.Minute)
	res := d.Reconcile(later, []Vessel{vessel("A", 400)})
	if len(res.Arrivals) != 1 {
		t.Fatalf("returning vessel should be a new arrival, got %+v", res)
	}
	got, _ := store.Get("A")
	if !got.FirstSeen.Equal(later) {
		t.Errorf("FirstSeen = %v, want %v", got.FirstSeen, later)
	}
}

func TestReconcileDuplicatesAndMissingIdentity(t *testing.T) {
	store := NewStore()
	d := NewDetector(store, time.Minute)

	res := d.Reconcile(t0, []Vessel{
		vessel("A", 100),
		vessel("", 200),
		vessel("A", 150),
	})
	if len(res.Arrivals) != 1 {
		t.Errorf("duplicate identity produced %d arrivals", len(res.Arrivals))
	}
	if len(res.Updated) != 1 {
		t.Errorf("expected the duplicate to count as an update, got %d", len(res.Updated))
	}
	if res.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", res.Skipped)
	}
	got, _ := store.Get("A")
	if got.Distance != 150 {
		t.Errorf("Distance = %v, want last observation 150", got.Distance)
	}
}

func TestReconcileRefreshKeepsKnownFields(t *testing.T) {
	store := NewStore()
	d := NewDetector(store, time.Minute)

	first := vessel("A", 100)
	first.MMSI = "226000000"
	first.ShipType = "cargo"
	d.Reconcile(t0, []Vessel{first})

	second := vessel("A", 120)
	second.Name = ""
	second.Speed = 7.5
	d.Reconcile(t0.Add(time.Second), []Vessel{second})

	got, _ := store.Get("A")
	if got.Name != "MS A" {
		t.Errorf("Name overwritten with empty value: %q", got.Name)
	}
	if got.MMSI != "226000000" || got.ShipType != "cargo" {
		t.Errorf("identity fields lost: %+v", got)
	}
	if got.Speed != 7.5 {
		t.Errorf("Speed = %v, want 7.5", got.Speed)
	}
}

func TestNewDetectorDefaultGrace(t *testing.T) {
	d := NewDetector(NewStore(), 0)
	if d.GracePeriod() != DefaultGracePeriod {
		t.Errorf("GracePeriod() = %v, want %v", d.GracePeriod(), DefaultGracePeriod)
	}
}

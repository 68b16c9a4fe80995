package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"trackship/internal/notify"
	"trackship/internal/scheduler"
	"trackship/internal/state"
)

type staticStats scheduler.Diagnostics

func (s staticStats) GetStats() scheduler.Diagnostics { return scheduler.Diagnostics(s) }

func TestCollector(t *testing.T) {
	src := staticStats{
		IsRunning:        true,
		KnownVesselCount: 2,
		Cycle: state.CycleSnapshot{
			LastRun:                time.Unix(1773478800, 0),
			TotalChecks:            12,
			LastShipsFound:         3,
			TotalNotificationsSent: 5,
		},
	}

	expected := `
# HELP trackship_checks_total Completed polling cycles.
# TYPE trackship_checks_total counter
trackship_checks_total 12
# HELP trackship_known_vessels Vessels currently tracked.
# TYPE trackship_known_vessels gauge
trackship_known_vessels 2
# HELP trackship_last_run_timestamp_seconds Unix time of the last completed cycle.
# TYPE trackship_last_run_timestamp_seconds gauge
trackship_last_run_timestamp_seconds 1.7734788e+09
# HELP trackship_last_ships_found Vessels inside the notification area during the last cycle.
# TYPE trackship_last_ships_found gauge
trackship_last_ships_found 3
# HELP trackship_notifications_sent_total Arrival notifications dispatched.
# TYPE trackship_notifications_sent_total counter
trackship_notifications_sent_total 5
# HELP trackship_scheduler_running 1 when the scheduler is running.
# TYPE trackship_scheduler_running gauge
trackship_scheduler_running 1
`
	if err := testutil.CollectAndCompare(NewCollector(src), strings.NewReader(expected)); err != nil {
		t.Error(err)
	}
}

func TestCollectorBeforeFirstRun(t *testing.T) {
	c := NewCollector(staticStats{})
	if n := testutil.CollectAndCount(c); n != 6 {
		t.Errorf("metrics = %d, want 6", n)
	}
}

func TestDispatchObserver(t *testing.T) {
	reg, obs := NewRegistry(staticStats{})

	obs.Observe(context.Background(), scheduler.ArrivalReport{
		Outcome: notify.Outcome{Sent: 3, Errors: 2, InvalidRecipients: []string{"a"}},
	})
	obs.Observe(context.Background(), scheduler.ArrivalReport{
		Outcome: notify.Outcome{Sent: 1},
	})

	if got := testutil.ToFloat64(obs.outcomes.WithLabelValues("sent")); got != 4 {
		t.Errorf("sent = %v, want 4", got)
	}
	if got := testutil.ToFloat64(obs.outcomes.WithLabelValues("error")); got != 2 {
		t.Errorf("error = %v, want 2", got)
	}
	if got := testutil.ToFloat64(obs.outcomes.WithLabelValues("invalid")); got != 1 {
		t.Errorf("invalid = %v, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "trackship_checks_total" {
			found = true
		}
	}
	if !found {
		t.Error("collector not registered")
	}
}

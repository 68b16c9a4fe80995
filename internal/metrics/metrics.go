// Package metrics exposes scheduler and dispatch figures to Prometheus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"trackship/internal/scheduler"
)

// StatsSource provides the diagnostics read on each scrape.
type StatsSource interface {
	GetStats() scheduler.Diagnostics
}

// Collector reads scheduler diagnostics at scrape time, so the exported
// values are always the current ones.
type Collector struct {
	src StatsSource

	checks        *prometheus.Desc
	shipsFound    *prometheus.Desc
	notifications *prometheus.Desc
	known         *prometheus.Desc
	running       *prometheus.Desc
	lastRun       *prometheus.Desc
}

// NewCollector creates a collector over src.
func NewCollector(src StatsSource) *Collector {
	return &Collector{
		src: src,
		checks: prometheus.NewDesc("trackship_checks_total",
			"Completed polling cycles.", nil, nil),
		shipsFound: prometheus.NewDesc("trackship_last_ships_found",
			"Vessels inside the notification area during the last cycle.", nil, nil),
		notifications: prometheus.NewDesc("trackship_notifications_sent_total",
			"Arrival notifications dispatched.", nil, nil),
		known: prometheus.NewDesc("trackship_known_vessels",
			"Vessels currently tracked.", nil, nil),
		running: prometheus.NewDesc("trackship_scheduler_running",
			"1 when the scheduler is running.", nil, nil),
		lastRun: prometheus.NewDesc("trackship_last_run_timestamp_seconds",
			"Unix time of the last completed cycle.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.checks
	ch <- c.shipsFound
	ch <- c.notifications
	ch <- c.known
	ch <- c.running
	ch <- c.lastRun
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	d := c.src.GetStats()

	running := 0.0
	if d.IsRunning {
		running = 1
	}
	lastRun := 0.0
	if !d.Cycle.LastRun.IsZero() {
		lastRun = float64(d.Cycle.LastRun.UnixNano()) / 1e9
	}

	ch <- prometheus.MustNewConstMetric(c.checks, prometheus.CounterValue, float64(d.Cycle.TotalChecks))
	ch <- prometheus.MustNewConstMetric(c.shipsFound, prometheus.GaugeValue, float64(d.Cycle.LastShipsFound))
	ch <- prometheus.MustNewConstMetric(c.notifications, prometheus.CounterValue, float64(d.Cycle.TotalNotificationsSent))
	ch <- prometheus.MustNewConstMetric(c.known, prometheus.GaugeValue, float64(d.KnownVesselCount))
	ch <- prometheus.MustNewConstMetric(c.running, prometheus.GaugeValue, running)
	ch <- prometheus.MustNewConstMetric(c.lastRun, prometheus.GaugeValue, lastRun)
}

// DispatchObserver counts per-recipient dispatch results.
type DispatchObserver struct {
	outcomes *prometheus.CounterVec
}

// NewDispatchObserver creates the observer and registers it with reg.
func NewDispatchObserver(reg prometheus.Registerer) *DispatchObserver {
	o := &DispatchObserver{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trackship_dispatch_outcomes_total",
			Help: "Push notification results by outcome.",
		}, []string{"result"}),
	}
	reg.MustRegister(o.outcomes)
	return o
}

// Observe is a scheduler arrival hook.
func (o *DispatchObserver) Observe(_ context.Context, r scheduler.ArrivalReport) {
	o.outcomes.WithLabelValues("sent").Add(float64(r.Outcome.Sent))
	o.outcomes.WithLabelValues("error").Add(float64(r.Outcome.Errors))
	o.outcomes.WithLabelValues("invalid").Add(float64(len(r.Outcome.InvalidRecipients)))
}

// NewRegistry returns a registry holding the collector, the observer and
// the standard Go and process collectors.
func NewRegistry(src StatsSource) (*prometheus.Registry, *DispatchObserver) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		NewCollector(src),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, NewDispatchObserver(reg)
}

// Package scheduler drives the polling loop: fetch vessels around the watch
// point, reconcile them against tracked state, and notify recipients once
// per arrival.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"trackship/internal/geo"
	"trackship/internal/notify"
	"trackship/internal/state"
)

// Default timings.
const (
	DefaultInterval    = 30 * time.Second
	DefaultWarmupDelay = 5 * time.Second
)

// VesselSource returns the vessels currently around center. It never fails;
// an upstream problem yields an empty list.
type VesselSource interface {
	FetchVessels(ctx context.Context, center geo.Point, radius float64) []state.Vessel
}

// RecipientSource is a live handle on the registered recipients.
type RecipientSource interface {
	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, token string) (bool, error)
}

// Config holds the scheduler settings.
type Config struct {
	Watch       geo.Point
	Zones       geo.Zones
	Interval    time.Duration
	WarmupDelay time.Duration
	GracePeriod time.Duration
	Now         func() time.Time
}

// Deps are the collaborators of a Scheduler. Source and Gateway are
// required; Store and Stats default to fresh values.
type Deps struct {
	Source  VesselSource
	Gateway notify.Gateway
	Store   *state.Store
	Stats   *state.CycleStats
	Logger  *zap.Logger
}

// SkipReason explains why a cycle did not run to completion.
type SkipReason string

const (
	SkipNone            SkipReason = ""
	SkipBusy            SkipReason = "busy"
	SkipNoRecipients    SkipReason = "no_recipients"
	SkipRecipientsError SkipReason = "recipients_error"
	SkipPanic           SkipReason = "panic"
)

// CycleReport summarises one call to RunCycle.
type CycleReport struct {
	At         time.Time
	Skipped    SkipReason
	ShipsFound int
	Arrivals   int
	Updated    int
	Evicted    int
}

// ArrivalReport is handed to arrival hooks after a vessel was dispatched.
type ArrivalReport struct {
	Vessel     state.Vessel
	Outcome    notify.Outcome
	Recipients int
	At         time.Time
}

// Diagnostics is a read-only snapshot of the scheduler.
type Diagnostics struct {
	IsRunning        bool                `json:"isRunning"`
	Watch            geo.Point           `json:"watch"`
	Boundary         float64             `json:"boundary"`
	Interval         string              `json:"interval"`
	KnownVesselCount int                 `json:"knownVesselCount"`
	KnownVessels     []state.KnownVessel `json:"knownVessels"`
	Cycle            state.CycleSnapshot `json:"cycle"`
}

// Scheduler runs reconciliation cycles on a fixed interval.
type Scheduler struct {
	cfg      Config
	source   VesselSource
	gateway  notify.Gateway
	store    *state.Store
	detector *state.Detector
	stats    *state.CycleStats
	log      *zap.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	// cycleMu is held for the duration of a cycle.
	cycleMu sync.Mutex

	hookMu    sync.RWMutex
	onArrival []func(context.Context, ArrivalReport)
}

// New creates a stopped scheduler.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if deps.Source == nil {
		return nil, errors.New("scheduler: source is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("scheduler: gateway is required")
	}
	if !cfg.Watch.Valid() {
		return nil, fmt.Errorf("scheduler: invalid watch point %v", cfg.Watch)
	}
	if len(cfg.Zones) == 0 {
		cfg.Zones = geo.DefaultZones()
	}
	if err := cfg.Zones.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.WarmupDelay <= 0 {
		cfg.WarmupDelay = DefaultWarmupDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	store := deps.Store
	if store == nil {
		store = state.NewStore()
	}
	stats := deps.Stats
	if stats == nil {
		stats = state.NewCycleStats()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scheduler{
		cfg:      cfg,
		source:   deps.Source,
		gateway:  deps.Gateway,
		store:    store,
		detector: state.NewDetector(store, cfg.GracePeriod),
		stats:    stats,
		log:      logger.Named("scheduler"),
	}, nil
}

// OnArrival registers a callback run after each arrival dispatch. Hooks run
// sequentially on the cycle goroutine; a panicking hook is logged and skipped.
func (s *Scheduler) OnArrival(fn func(context.Context, ArrivalReport)) {
	s.hookMu.Lock()
	defer s.hookMu.Unlock()
	s.onArrival = append(s.onArrival, fn)
}

// Watch returns the watch point.
func (s *Scheduler) Watch() geo.Point { return s.cfg.Watch }

// Zones returns the configured zones.
func (s *Scheduler) Zones() geo.Zones { return s.cfg.Zones }

// Store returns the tracking state.
func (s *Scheduler) Store() *state.Store { return s.store }

// Start begins polling. It returns false, doing nothing, if already running.
// Cycles run on a context that is not cancelled with ctx; use Stop.
func (s *Scheduler) Start(ctx context.Context, recipients RecipientSource) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn("scheduler already running")
		return false
	}
	s.running = true
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	cycleCtx := context.WithoutCancel(ctx)

	s.wg.Add(2)
	go s.warmup(cycleCtx, stop, recipients)
	go s.loop(cycleCtx, stop, recipients)

	s.log.Info("scheduler started",
		zap.Float64("lat", s.cfg.Watch.Lat),
		zap.Float64("lon", s.cfg.Watch.Lon),
		zap.Float64("boundary", s.cfg.Zones.Boundary()),
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("warmup", s.cfg.WarmupDelay),
		zap.Duration("grace", s.detector.GracePeriod()),
	)
	return true
}

// Stop prevents further cycles. A cycle already in flight completes.
// Tracked vessels are kept. It returns false if the scheduler was not running.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	close(s.stop)
	s.running = false
	s.log.Info("scheduler stopped")
	return true
}

// Wait blocks until the polling goroutines have exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// IsRunning reports whether the scheduler is started.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) warmup(ctx context.Context, stop <-chan struct{}, recipients RecipientSource) {
	defer s.wg.Done()

	timer := time.NewTimer(s.cfg.WarmupDelay)
	defer timer.Stop()

	select {
	case <-stop:
	case <-timer.C:
		s.RunCycle(ctx, recipients)
	}
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}, recipients RecipientSource) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.RunCycle(ctx, recipients)
		}
	}
}

// RunCycle performs one reconciliation cycle. If another cycle is in
// progress it returns immediately with SkipBusy. With no recipients nothing
// is fetched, reconciled or recorded.
func (s *Scheduler) RunCycle(ctx context.Context, recipients RecipientSource) (report CycleReport) {
	if !s.cycleMu.TryLock() {
		s.log.Debug("cycle already in progress, skipping")
		return CycleReport{Skipped: SkipBusy}
	}
	defer s.cycleMu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("cycle panicked", zap.Any("panic", r), zap.Stack("stack"))
			report.Skipped = SkipPanic
		}
	}()

	now := s.cfg.Now()
	report.At = now

	if recipients == nil {
		report.Skipped = SkipNoRecipients
		return report
	}
	tokens, err := recipients.List(ctx)
	if err != nil {
		s.log.Error("list recipients", zap.Error(err))
		report.Skipped = SkipRecipientsError
		return report
	}
	if len(tokens) == 0 {
		s.log.Debug("no registered recipients, skipping cycle")
		report.Skipped = SkipNoRecipients
		return report
	}

	vessels := s.source.FetchVessels(ctx, s.cfg.Watch, s.cfg.Zones.Boundary())
	for i := range vessels {
		vessels[i].Zone = s.cfg.Zones.Classify(vessels[i].Distance)
	}

	rec := s.detector.Reconcile(now, vessels)
	if rec.Skipped > 0 {
		s.log.Warn("vessels without identity skipped", zap.Int("count", rec.Skipped))
	}
	for _, v := range rec.Evicted {
		s.log.Info("vessel left the area",
			zap.String("identity", v.Identity),
			zap.String("name", v.Name),
			zap.Time("lastSeen", v.LastSeen),
		)
	}

	for _, v := range rec.Arrivals {
		tokens = s.dispatch(ctx, recipients, tokens, v, now)
	}

	s.stats.Record(now, len(vessels), len(rec.Arrivals))

	report.ShipsFound = len(vessels)
	report.Arrivals = len(rec.Arrivals)
	report.Updated = len(rec.Updated)
	report.Evicted = len(rec.Evicted)

	s.log.Info("cycle complete",
		zap.Int("totalShips", report.ShipsFound),
		zap.Int("newShips", report.Arrivals),
		zap.Int("knownShips", s.store.Len()),
		zap.Int("removedShips", report.Evicted),
	)
	return report
}

// dispatch notifies tokens about v and returns the tokens still valid.
func (s *Scheduler) dispatch(ctx context.Context, recipients RecipientSource, tokens []string, v state.Vessel, now time.Time) []string {
	msg := notify.ArrivalMessage(v, now)

	s.log.Info("new vessel detected",
		zap.String("identity", v.Identity),
		zap.String("name", v.Name),
		zap.Float64("distance", v.Distance),
		zap.String("zone", v.Zone),
	)

	out := s.gateway.Dispatch(ctx, tokens, msg.Title, msg.Body, msg.Metadata)
	if out.Errors > 0 {
		s.log.Warn("arrival dispatch had errors",
			zap.String("identity", v.Identity),
			zap.Int("sent", out.Sent),
			zap.Int("errors", out.Errors),
		)
	}

	s.fireArrival(ctx, ArrivalReport{Vessel: v, Outcome: out, Recipients: len(tokens), At: now})

	if len(out.InvalidRecipients) == 0 {
		return tokens
	}
	return s.prune(ctx, recipients, tokens, out.InvalidRecipients)
}

func (s *Scheduler) prune(ctx context.Context, recipients RecipientSource, tokens, invalid []string) []string {
	drop := make(map[string]struct{}, len(invalid))
	for _, t := range invalid {
		drop[t] = struct{}{}
		if _, err := recipients.Remove(ctx, t); err != nil {
			s.log.Error("remove invalid recipient", zap.Error(err))
		}
	}
	s.log.Info("pruned invalid recipients", zap.Int("count", len(drop)))

	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := drop[t]; !ok {
			kept = append(kept, t)
		}
	}
	return kept
}

func (s *Scheduler) fireArrival(ctx context.Context, r ArrivalReport) {
	s.hookMu.RLock()
	hooks := make([]func(context.Context, ArrivalReport), len(s.onArrival))
	copy(hooks, s.onArrival)
	s.hookMu.RUnlock()

	for _, fn := range hooks {
		func() {
			defer func() {
				if p := recover(); p != nil {
					s.log.Error("arrival hook panicked", zap.Any("panic", p))
				}
			}()
			fn(ctx, r)
		}()
	}
}

// GetStats returns a diagnostics snapshot. It has no side effects.
func (s *Scheduler) GetStats() Diagnostics {
	vessels := s.store.Snapshot()
	known := make([]state.KnownVessel, 0, len(vessels))
	for _, v := range vessels {
		known = append(known, v.Known())
	}

	return Diagnostics{
		IsRunning:        s.IsRunning(),
		Watch:            s.cfg.Watch,
		Boundary:         s.cfg.Zones.Boundary(),
		Interval:         s.cfg.Interval.String(),
		KnownVesselCount: len(known),
		KnownVessels:     known,
		Cycle:            s.stats.Snapshot(),
	}
}

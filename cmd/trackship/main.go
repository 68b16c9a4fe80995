// Package main runs the TrackShip vessel arrival tracker.
//
// The service polls the EuRIS position feed around a watch point, detects
// vessels entering the outermost zone and pushes one notification per
// arrival to every registered device.
//
// Usage:
//
//	trackship [options]
//
// Options:
//
//	-config PATH   YAML configuration file (env: TRACKSHIP_CONFIG)
//	-port N        HTTP port, overrides the configuration when non-zero
//	-log-dev       Human readable development logging
//
// Every setting can also be given through the environment, see
// internal/config (PORT, BASE_LAT, BASE_LON, CHECK_INTERVAL, ...).
//
// API Endpoints:
//
//	GET  /health             Liveness and registered device count.
//	POST /register-token     Body: {"token": "..."}; sends a confirmation push.
//	POST /unregister-token   Body: {"token": "..."}.
//	GET  /ships              Live vessels around ?lat=&lon=&radius= (default 5000 m).
//	GET  /tokens/count       Registered devices, tokens masked.
//	GET  /stats              Scheduler diagnostics.
//	GET  /dispatches         Recent arrivals from the ClickHouse log (?limit=).
//	GET  /metrics            Prometheus metrics.
//	GET  /ws                 Live feed of snapshots and arrivals.
//
// Authentication:
//
//	When API keys are configured, the register routes require a key via:
//	  - X-API-Key header
//	  - Authorization: Bearer <key> header
//	  - ?api_key=<key> query parameter
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"trackship/internal/api"
	"trackship/internal/config"
	"trackship/internal/events"
	"trackship/internal/metrics"
	"trackship/internal/notify"
	"trackship/internal/recipients"
	"trackship/internal/scheduler"
	"trackship/internal/source"
	"trackship/internal/state"
	"trackship/internal/storage"
)

func main() {
	configPath := flag.String("config", envOrDefault("TRACKSHIP_CONFIG", ""), "YAML configuration file")
	port := flag.Int("port", 0, "HTTP port (overrides configuration)")
	logDev := flag.Bool("log-dev", false, "Development logging")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	logger, err := newLogger(cfg.LogLevel, *logDev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("trackship stopped", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	// Device registry.
	registry, closeRegistry, err := openRegistry(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	closers = append(closers, closeRegistry)

	// Push channels.
	var expo, fcm notify.Channel
	if cfg.Push.ExpoEnabled {
		expo = notify.NewExpoChannel(notify.ExpoConfig{
			Host:    cfg.Push.ExpoHost,
			Timeout: cfg.Push.ExpoTimeout,
		}, logger)
	}
	fcmCfg := notify.FCMConfig{
		ProjectID:       cfg.Push.FirebaseProjectID,
		CredentialsFile: cfg.Push.FirebaseCredentials,
		ClientEmail:     cfg.Push.FirebaseClientEmail,
		PrivateKey:      cfg.Push.FirebasePrivateKey,
	}
	if fcmCfg.Enabled() {
		ch, err := notify.NewFCMChannel(ctx, fcmCfg, logger)
		if err != nil {
			// Expo devices keep working without Firebase.
			logger.Error("firebase disabled", zap.Error(err))
		} else {
			fcm = ch
		}
	}
	gateway := notify.NewRouter(expo, fcm, logger)

	positions := source.NewClient(cfg.SourceClientConfig(), logger)

	sched, err := scheduler.New(scheduler.Config{
		Watch:       cfg.Watch,
		Zones:       cfg.Zones,
		Interval:    cfg.Interval,
		WarmupDelay: cfg.WarmupDelay,
		GracePeriod: cfg.GracePeriod,
	}, scheduler.Deps{
		Source:  positions,
		Gateway: gateway,
		Store:   state.NewStore(),
		Stats:   state.NewCycleStats(),
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	// Arrival event streams.
	var publishers events.Multi
	if cfg.NATS.URL != "" {
		p, err := events.NewNATSPublisher(ctx, cfg.NATS)
		if err != nil {
			return fmt.Errorf("connect NATS: %w", err)
		}
		publishers = append(publishers, p)
		logger.Info("publishing arrivals to NATS", zap.String("url", cfg.NATS.URL), zap.String("subject", cfg.NATS.Subject))
	}
	if len(cfg.Kafka.Brokers) > 0 {
		p, err := events.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("create Kafka writer: %w", err)
		}
		publishers = append(publishers, p)
		logger.Info("publishing arrivals to Kafka", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	if len(publishers) > 0 {
		closers = append(closers, func() {
			if err := publishers.Close(); err != nil {
				logger.Warn("close publishers", zap.Error(err))
			}
		})
		sched.OnArrival(events.ArrivalHook(publishers, logger))
	}

	// Dispatch audit log.
	var dispatches api.DispatchLog
	if cfg.Storage.AuditLog {
		ch, err := storage.OpenClickHouse(ctx, cfg.Storage.ClickHouse)
		if err != nil {
			return fmt.Errorf("open ClickHouse: %w", err)
		}
		closers = append(closers, func() { _ = ch.Close() })
		if err := ch.CreateSchema(ctx); err != nil {
			return fmt.Errorf("create ClickHouse schema: %w", err)
		}
		dispatches = ch
		sched.OnArrival(auditHook(ch, logger))
	}

	// Metrics.
	promReg, observer := metrics.NewRegistry(sched)
	sched.OnArrival(observer.Observe)

	server := api.NewServer(api.Config{
		Port:              cfg.Port,
		APIKeys:           cfg.API.Keys,
		CORSOrigins:       cfg.API.CORSOrigins,
		BroadcastInterval: cfg.API.BroadcastInterval,
		Watch:             cfg.Watch,
		Zones:             cfg.Zones,
	}, api.Deps{
		Registry:   registry,
		Gateway:    gateway,
		Stats:      sched,
		Ships:      positions,
		Dispatches: dispatches,
		Metrics:    promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg}),
		Logger:     logger,
	})
	sched.OnArrival(server.Hub().ArrivalHook)

	logger.Info("starting trackship",
		zap.Float64("lat", cfg.Watch.Lat),
		zap.Float64("lon", cfg.Watch.Lon),
		zap.Float64("boundary", cfg.Zones.Boundary()),
		zap.Duration("interval", cfg.Interval),
		zap.String("store", cfg.Storage.Backend),
		zap.Stringer("gateway", gateway),
	)
	sched.Start(ctx, registry)

	// The scheduler stops before the HTTP server does.
	srvCtx, stopServer := context.WithCancel(context.Background())
	defer stopServer()
	errCh := make(chan error, 1)
	go func() { errCh <- server.Run(srvCtx) }()

	var srvErr error
	serverDone := false
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case srvErr = <-errCh:
		serverDone = true
	}

	sched.Stop()
	sched.Wait()

	if !serverDone {
		stopServer()
		srvErr = <-errCh
	}
	logger.Info("trackship stopped")
	return srvErr
}

// openRegistry opens the configured device registry and returns its closer.
func openRegistry(ctx context.Context, cfg storage.Config) (recipients.Registry, func(), error) {
	switch cfg.Backend {
	case storage.BackendSQLite:
		db, err := storage.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open SQLite: %w", err)
		}
		return db, func() { _ = db.Close() }, nil
	case storage.BackendPostgres:
		db, err := storage.OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, fmt.Errorf("open PostgreSQL: %w", err)
		}
		if err := db.CreateSchema(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("create PostgreSQL schema: %w", err)
		}
		return db, db.Close, nil
	default:
		return recipients.NewMemory(), func() {}, nil
	}
}

// auditHook records each dispatched arrival in ClickHouse.
func auditHook(ch *storage.ClickHouseDB, logger *zap.Logger) func(context.Context, scheduler.ArrivalReport) {
	return func(ctx context.Context, r scheduler.ArrivalReport) {
		rec := storage.DispatchRecord{
			ID:           uuid.NewString(),
			DispatchedAt: r.At,
			Identity:     r.Vessel.Identity,
			MMSI:         r.Vessel.MMSI,
			Name:         r.Vessel.Name,
			Zone:         r.Vessel.Zone,
			Distance:     r.Vessel.Distance,
			Latitude:     r.Vessel.Position.Lat,
			Longitude:    r.Vessel.Position.Lon,
			Sent:         uint32(r.Outcome.Sent),
			Errors:       uint32(r.Outcome.Errors),
			Invalid:      uint32(len(r.Outcome.InvalidRecipients)),
		}
		if err := ch.InsertDispatches(ctx, []storage.DispatchRecord{rec}); err != nil {
			logger.Error("record dispatch", zap.String("identity", rec.Identity), zap.Error(err))
		}
	}
}

func newLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if dev {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

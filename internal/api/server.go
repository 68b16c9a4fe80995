// Package api provides the HTTP endpoints for device registration,
// diagnostics and the live vessel feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"trackship/internal/geo"
	"trackship/internal/notify"
	"trackship/internal/recipients"
	"trackship/internal/scheduler"
	"trackship/internal/storage"
)

// StatsProvider exposes scheduler diagnostics.
type StatsProvider interface {
	GetStats() scheduler.Diagnostics
}

// DispatchLog lists recorded arrival dispatches.
type DispatchLog interface {
	RecentDispatches(ctx context.Context, limit int) ([]storage.DispatchRecord, error)
}

// Config holds configuration for the API server.
type Config struct {
	Port              int
	APIKeys           []string // Enables auth on mutating routes when non-empty.
	CORSOrigins       []string
	BroadcastInterval time.Duration
	Watch             geo.Point
	Zones             geo.Zones // Classifies /ships results; the boundary is announced on registration.
}

// Deps are the collaborators behind the endpoints. Dispatches and Metrics
// are optional.
type Deps struct {
	Registry   recipients.Registry
	Gateway    notify.Gateway
	Stats      StatsProvider
	Ships      scheduler.VesselSource
	Dispatches DispatchLog
	Metrics    http.Handler
	Logger     *zap.Logger
}

// Server serves the TrackShip HTTP API.
type Server struct {
	cfg     Config
	deps    Deps
	apiKeys map[string]bool
	started time.Time
	hub     *Hub
	log     *zap.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config, deps Deps) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	if len(cfg.Zones) == 0 {
		cfg.Zones = geo.DefaultZones()
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = 2 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	log := deps.Logger.Named("api")

	return &Server{
		cfg:     cfg,
		deps:    deps,
		apiKeys: keys,
		started: time.Now(),
		hub:     NewHub(log),
		log:     log,
	}
}

// Hub returns the websocket hub, for wiring arrival hooks.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(s.cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go s.hub.Run(ctx, s.cfg.BroadcastInterval, func() any {
		return s.deps.Stats.GetStats()
	})

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("API listening",
			zap.String("addr", srv.Addr),
			zap.Bool("auth", len(s.apiKeys) > 0),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Router returns the configured chi router.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	// CORS for browser access.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})

	// Long-lived connections stay outside the request timeout.
	r.Get("/ws", s.hub.ServeWS)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Get("/health", s.handleHealth)
		r.Get("/ships", s.handleShips)
		r.Get("/tokens/count", s.handleTokenCount)
		r.Get("/stats", s.handleStats)
		r.Get("/dispatches", s.handleDispatches)

		r.Group(func(r chi.Router) {
			// Optional authentication.
			if len(s.apiKeys) > 0 {
				r.Use(s.authMiddleware)
			}
			r.Post("/register-token", s.handleRegister)
			r.Post("/unregister-token", s.handleUnregister)
		})
	})

	return r
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Fall back to query parameter (for simple testing).
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"trackship/internal/notify"
	"trackship/internal/scheduler"
	"trackship/internal/state"
	"trackship/internal/storage"
)

const (
	defaultShipsRadius = 5000
	maxShipsRadius     = 50000
	defaultDispatches  = 50
	maxDispatches      = 500
	maskedTokenLength  = 20
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status           string  `json:"status"`
	Timestamp        string  `json:"timestamp"`
	Uptime           float64 `json:"uptime"`
	RegisteredTokens int     `json:"registeredTokens"`
}

// TokenRequest is the body of the register and unregister routes.
type TokenRequest struct {
	Token string `json:"token"`
}

// TokenResponse acknowledges a registration change.
type TokenResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	TotalTokens int    `json:"totalTokens"`
}

// ShipsResponse is returned by GET /ships.
type ShipsResponse struct {
	Success bool           `json:"success"`
	Count   int            `json:"count"`
	Ships   []state.Vessel `json:"ships"`
}

// TokenCountResponse is returned by GET /tokens/count.
type TokenCountResponse struct {
	Count  int      `json:"count"`
	Tokens []string `json:"tokens"`
}

// StatsResponse is returned by GET /stats.
type StatsResponse struct {
	scheduler.Diagnostics
	RegisteredTokens int `json:"registeredTokens"`
}

// DispatchesResponse is returned by GET /dispatches.
type DispatchesResponse struct {
	Count      int                      `json:"count"`
	Dispatches []storage.DispatchRecord `json:"dispatches"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Registry.Count(r.Context())
	if err != nil {
		s.log.Error("count recipients", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		Timestamp:        time.Now().UTC().Format(time.RFC3339),
		Uptime:           time.Since(s.started).Seconds(),
		RegisteredTokens: n,
	})
}

// decodeToken reads the token from the request body, writing a 400 when it
// is missing.
func decodeToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return "", false
	}
	token := strings.TrimSpace(req.Token)
	if token == "" {
		writeError(w, http.StatusBadRequest, "Token is required")
		return "", false
	}
	return token, true
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	token, ok := decodeToken(w, r)
	if !ok {
		return
	}
	if !notify.ValidToken(token) {
		s.log.Warn("invalid token format", zap.String("token", maskToken(token)))
		writeError(w, http.StatusBadRequest, "Invalid token format")
		return
	}

	ctx := r.Context()
	if _, err := s.deps.Registry.Add(ctx, token); err != nil {
		s.log.Error("register token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to register token")
		return
	}
	total, err := s.deps.Registry.Count(ctx)
	if err != nil {
		s.log.Error("count recipients", zap.Error(err))
	}
	s.log.Info("token registered", zap.String("token", maskToken(token)), zap.Int("totalTokens", total))

	msg := notify.ConfirmationMessage(s.cfg.Zones.Boundary())
	out := s.deps.Gateway.Dispatch(ctx, []string{token}, msg.Title, msg.Body, msg.Metadata)
	if out.Errors > 0 {
		s.log.Warn("confirmation push failed", zap.String("token", maskToken(token)))
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		Success:     true,
		Message:     "Token registered successfully",
		TotalTokens: total,
	})
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	token, ok := decodeToken(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	removed, err := s.deps.Registry.Remove(ctx, token)
	if err != nil {
		s.log.Error("unregister token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to unregister token")
		return
	}
	total, err := s.deps.Registry.Count(ctx)
	if err != nil {
		s.log.Error("count recipients", zap.Error(err))
	}

	message := "Token was not registered"
	if removed {
		message = "Token unregistered successfully"
		s.log.Info("token unregistered", zap.String("token", maskToken(token)), zap.Int("totalTokens", total))
	} else {
		s.log.Warn("unregister of unknown token", zap.String("token", maskToken(token)))
	}

	writeJSON(w, http.StatusOK, TokenResponse{
		Success:     true,
		Message:     message,
		TotalTokens: total,
	})
}

func (s *Server) handleShips(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	center := s.cfg.Watch
	radius := float64(defaultShipsRadius)

	if v := q.Get("lat"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid lat")
			return
		}
		center.Lat = f
	}
	if v := q.Get("lon"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid lon")
			return
		}
		center.Lon = f
	}
	if v := q.Get("radius"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxShipsRadius {
			writeError(w, http.StatusBadRequest, "Invalid radius")
			return
		}
		radius = float64(n)
	}
	if !center.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid coordinates")
		return
	}

	ships := s.deps.Ships.FetchVessels(r.Context(), center, radius)
	for i := range ships {
		ships[i].Zone = s.cfg.Zones.Classify(ships[i].Distance)
	}
	writeJSON(w, http.StatusOK, ShipsResponse{
		Success: true,
		Count:   len(ships),
		Ships:   ships,
	})
}

func (s *Server) handleTokenCount(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.deps.Registry.List(r.Context())
	if err != nil {
		s.log.Error("list recipients", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list tokens")
		return
	}
	masked := make([]string, len(tokens))
	for i, t := range tokens {
		masked[i] = maskToken(t)
	}
	writeJSON(w, http.StatusOK, TokenCountResponse{Count: len(tokens), Tokens: masked})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Registry.Count(r.Context())
	if err != nil {
		s.log.Error("count recipients", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, StatsResponse{
		Diagnostics:      s.deps.Stats.GetStats(),
		RegisteredTokens: n,
	})
}

func (s *Server) handleDispatches(w http.ResponseWriter, r *http.Request) {
	if s.deps.Dispatches == nil {
		writeError(w, http.StatusNotFound, "Dispatch log not configured")
		return
	}

	limit := defaultDispatches
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxDispatches)
	}

	records, err := s.deps.Dispatches.RecentDispatches(r.Context(), limit)
	if err != nil {
		s.log.Error("query dispatch log", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to query dispatches")
		return
	}
	if records == nil {
		records = []storage.DispatchRecord{}
	}
	writeJSON(w, http.StatusOK, DispatchesResponse{Count: len(records), Dispatches: records})
}

func maskToken(token string) string {
	if len(token) <= maskedTokenLength {
		return token + "..."
	}
	return token[:maskedTokenLength] + "..."
}

// Package source fetches vessel positions from the EuRIS proxy, normalises
// them and returns the ones inside the watched radius, nearest first.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"trackship/internal/geo"
	"trackship/internal/state"
)

// ErrUpstreamStatus wraps non-2xx responses from the proxy.
var ErrUpstreamStatus = errors.New("upstream status")

// Defaults for the upstream client. NewClient applies all but
// DefaultRetryDelay, which is set by the config layer.
const (
	DefaultBaseURL       = "https://bakabi.fr/trackship/api/euris-proxy.php"
	DefaultTimeout       = 10 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 2 * time.Second
	DefaultQueryMargin   = 500.0
)

// Config configures the upstream client.
type Config struct {
	BaseURL       string
	Timeout       time.Duration // Per attempt.
	RetryAttempts int
	RetryDelay    time.Duration // Zero retries immediately.
	QueryMargin   float64       // Meters added to the upstream query radius.
	IdentityKey   IdentityKey
	UserAgent     string
}

// Client queries the proxy. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

// NewClient creates a client. A nil logger discards output.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.QueryMargin < 0 {
		cfg.QueryMargin = 0
	}
	if cfg.IdentityKey == "" {
		cfg.IdentityKey = IdentityTrack
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "trackship/1.0"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  logger.Named("source"),
	}
}

// FetchVessels returns vessels within radius meters of center, sorted by
// ascending distance. Any failure is logged and yields an empty slice.
func (c *Client) FetchVessels(ctx context.Context, center geo.Point, radius float64) []state.Vessel {
	res := c.Fetch(ctx, center, radius)
	if !res.OK() {
		c.log.Error("position fetch failed",
			zap.Error(res.Err),
			zap.Int("attempts", res.Attempts),
			zap.Float64("radius", radius),
		)
		return []state.Vessel{}
	}
	return res.Vessels
}

// Fetch performs the query with retries and reports the outcome.
func (c *Client) Fetch(ctx context.Context, center geo.Point, radius float64) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Failed(fmt.Errorf("panic while fetching positions: %v", r))
		}
	}()

	if !center.Valid() {
		return Failed(fmt.Errorf("invalid center %v", center))
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		payload, err := c.fetchJSON(ctx, center, radius+c.cfg.QueryMargin)
		if err == nil {
			vessels, dropped, err := Normalize(payload, c.cfg.IdentityKey)
			if err != nil {
				return Failed(err).withAttempts(attempt)
			}
			if dropped > 0 {
				c.log.Debug("dropped unusable upstream records", zap.Int("dropped", dropped))
			}
			return Ok(filterAndSort(vessels, center, radius)).withAttempts(attempt)
		}

		lastErr = err
		if !retryable(err) || attempt == c.cfg.RetryAttempts {
			return Failed(lastErr).withAttempts(attempt)
		}
		c.log.Warn("position fetch attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Duration("delay", c.cfg.RetryDelay),
		)

		select {
		case <-ctx.Done():
			return Failed(ctx.Err()).withAttempts(attempt)
		case <-time.After(c.cfg.RetryDelay):
		}
	}
	return Failed(lastErr).withAttempts(c.cfg.RetryAttempts)
}

func (c *Client) fetchJSON(ctx context.Context, center geo.Point, radius float64) (any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.queryURL(center, radius), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return payload, nil
}

func (c *Client) queryURL(center geo.Point, radius float64) string {
	bound := geo.BoundAround(center, radius)
	q := url.Values{}
	q.Set("lat", formatCoord(center.Lat))
	q.Set("lon", formatCoord(center.Lon))
	q.Set("radius", strconv.Itoa(int(radius)))
	q.Set("minLat", formatCoord(bound.Min.Lat()))
	q.Set("minLon", formatCoord(bound.Min.Lon()))
	q.Set("maxLat", formatCoord(bound.Max.Lat()))
	q.Set("maxLon", formatCoord(bound.Max.Lon()))

	sep := "?"
	if strings.Contains(c.cfg.BaseURL, "?") {
		sep = "&"
	}
	return c.cfg.BaseURL + sep + q.Encode()
}

func formatCoord(f float64) string {
	return strconv.FormatFloat(f, 'f', 6, 64)
}

// filterAndSort computes distances, keeps vessels within radius and
// orders them nearest first.
func filterAndSort(vessels []state.Vessel, center geo.Point, radius float64) []state.Vessel {
	out := make([]state.Vessel, 0, len(vessels))
	for _, v := range vessels {
		v.Distance = geo.Distance(center, v.Position)
		if v.Distance <= radius {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Distance < out[j].Distance
	})
	return out
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	if e.body == "" {
		return fmt.Sprintf("upstream status %d", e.code)
	}
	return fmt.Sprintf("upstream status %d: %s", e.code, e.body)
}

func (e *statusError) Unwrap() error { return ErrUpstreamStatus }

// retryable reports whether another attempt may succeed. Malformed bodies
// and client errors other than 429 are not retried.
func retryable(err error) bool {
	if errors.Is(err, ErrMalformedPayload) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return true
}

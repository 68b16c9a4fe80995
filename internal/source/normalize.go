package source

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"trackship/internal/geo"
	"trackship/internal/state"
)

// ErrMalformedPayload is returned when the upstream body has none of the
// supported shapes.
var ErrMalformedPayload = errors.New("malformed payload")

// IdentityKey selects which upstream field becomes Vessel.Identity.
type IdentityKey string

const (
	// IdentityTrack prefers the session-scoped track identifier. The same
	// hull can be reported again after an upstream session reset.
	IdentityTrack IdentityKey = "track"
	// IdentityMMSI prefers the MMSI, which some feeds omit.
	IdentityMMSI IdentityKey = "mmsi"
)

// ParseIdentityKey validates s. An empty string selects IdentityTrack.
func ParseIdentityKey(s string) (IdentityKey, error) {
	switch IdentityKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", IdentityTrack:
		return IdentityTrack, nil
	case IdentityMMSI:
		return IdentityMMSI, nil
	}
	return "", fmt.Errorf("unknown identity key %q (want track or mmsi)", s)
}

// resolve picks the identity, falling back to the other field when the
// preferred one is absent.
func (k IdentityKey) resolve(mmsi, track string) string {
	if k == IdentityMMSI {
		if mmsi != "" {
			return mmsi
		}
		return track
	}
	if track != "" {
		return track
	}
	return mmsi
}

var (
	mmsiKeys    = []string{"mmsi", "MMSI"}
	trackKeys   = []string{"trackId", "track_id", "TRACKID", "sessionId", "session_id"}
	nameKeys    = []string{"name", "shipname", "SHIPNAME"}
	latKeys     = []string{"lat", "latitude", "LAT"}
	lonKeys     = []string{"lon", "longitude", "LON"}
	courseKeys  = []string{"course", "COG", "cog"}
	speedKeys   = []string{"speed", "SOG", "sog"}
	headingKeys = []string{"heading", "HEADING"}
	typeKeys    = []string{"shipType", "ship_type", "SHIP_TYPE"}
	lengthKeys  = []string{"length", "A"}
	widthKeys   = []string{"width", "B"}
	timeKeys    = []string{"timestamp", "time"}
)

const unknownName = "Unknown"

// Normalize turns a decoded upstream payload into vessel records. It
// accepts {"ships": [...]}, a bare array, and a GeoJSON FeatureCollection.
// Items without coordinates or identity are dropped.
func Normalize(payload any, key IdentityKey) ([]state.Vessel, int, error) {
	items, err := extractItems(payload)
	if err != nil {
		return nil, 0, err
	}

	vessels := make([]state.Vessel, 0, len(items))
	dropped := 0
	for _, item := range items {
		v, ok := parseItem(item, key)
		if !ok {
			dropped++
			continue
		}
		vessels = append(vessels, v)
	}
	return vessels, dropped, nil
}

func extractItems(payload any) ([]map[string]any, error) {
	var raw []any
	switch p := payload.(type) {
	case []any:
		raw = p
	case map[string]any:
		if ships, ok := p["ships"].([]any); ok {
			raw = ships
		} else if features, ok := p["features"].([]any); ok {
			raw = features
		} else {
			return nil, fmt.Errorf("%w: object without ships or features", ErrMalformedPayload)
		}
	default:
		return nil, fmt.Errorf("%w: unexpected %T", ErrMalformedPayload, payload)
	}

	items := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		if m, ok := r.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items, nil
}

func parseItem(item map[string]any, key IdentityKey) (state.Vessel, bool) {
	fields := item
	var pos geo.Point
	var okPos bool

	if geometry, ok := item["geometry"].(map[string]any); ok {
		if props, ok := item["properties"].(map[string]any); ok {
			fields = props
		}
		pos, okPos = geoJSONPosition(geometry)
	}
	if !okPos {
		lat, okLat := getNumber(fields, latKeys...)
		lon, okLon := getNumber(fields, lonKeys...)
		pos, okPos = geo.Point{Lat: lat, Lon: lon}, okLat && okLon
	}
	if !okPos || !pos.Valid() {
		return state.Vessel{}, false
	}

	mmsi := getIdentifier(fields, mmsiKeys...)
	track := getIdentifier(fields, trackKeys...)
	id := key.resolve(mmsi, track)
	if id == "" {
		return state.Vessel{}, false
	}

	name := strings.TrimSpace(getString(fields, nameKeys...))
	if name == "" {
		name = unknownName
	}

	v := state.Vessel{
		Identity:  id,
		MMSI:      mmsi,
		TrackID:   track,
		Name:      name,
		Position:  pos,
		ShipType:  getIdentifier(fields, typeKeys...),
		Timestamp: getTimestamp(fields, timeKeys...),
	}
	v.Course, _ = getNumber(fields, courseKeys...)
	v.Speed, _ = getNumber(fields, speedKeys...)
	v.Length, _ = getNumber(fields, lengthKeys...)
	v.Width, _ = getNumber(fields, widthKeys...)
	if h, ok := getNumber(fields, headingKeys...); ok {
		v.Heading = &h
	}
	return v, true
}

func geoJSONPosition(geometry map[string]any) (geo.Point, bool) {
	coords, ok := geometry["coordinates"].([]any)
	if !ok || len(coords) < 2 {
		return geo.Point{}, false
	}
	lon, okLon := toFloat64(coords[0])
	lat, okLat := toFloat64(coords[1])
	return geo.Point{Lat: lat, Lon: lon}, okLon && okLat
}

func getString(item map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := item[key].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func getNumber(item map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		raw, ok := item[key]
		if !ok || raw == nil {
			continue
		}
		if value, ok := toFloat64(raw); ok {
			return value, true
		}
	}
	return 0, false
}

// getIdentifier reads a string or integral number as a trimmed string.
func getIdentifier(item map[string]any, keys ...string) string {
	for _, key := range keys {
		raw, ok := item[key]
		if !ok || raw == nil {
			continue
		}
		if s := toIdentifier(raw); s != "" {
			return s
		}
	}
	return ""
}

func toIdentifier(value any) string {
	switch v := value.(type) {
	case string:
		v = strings.TrimSpace(v)
		if strings.Contains(v, ".") {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				return strconv.FormatInt(int64(f), 10)
			}
		}
		return v
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := v.Float64(); err == nil {
			return strconv.FormatInt(int64(f), 10)
		}
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	}
	return ""
}

func getTimestamp(item map[string]any, keys ...string) time.Time {
	for _, key := range keys {
		raw, ok := item[key]
		if !ok || raw == nil {
			continue
		}
		if ts := toTimestamp(raw); !ts.IsZero() {
			return ts
		}
	}
	return time.Time{}
}

func toTimestamp(value any) time.Time {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return fromEpoch(i)
		}
		if f, err := v.Float64(); err == nil {
			return fromEpoch(int64(f))
		}
	case float64:
		return fromEpoch(int64(v))
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpoch(i)
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// fromEpoch accepts seconds, milliseconds or microseconds.
func fromEpoch(ts int64) time.Time {
	switch {
	case ts <= 0:
		return time.Time{}
	case ts > 1_000_000_000_000_000:
		return time.UnixMicro(ts).UTC()
	case ts > 1_000_000_000_000:
		return time.UnixMilli(ts).UTC()
	default:
		return time.Unix(ts, 0).UTC()
	}
}

func toFloat64(value any) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

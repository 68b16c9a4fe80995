package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"trackship/internal/source"
)

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the process environment, then validates it.
func Load(path string) (Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	// Unknown keys are left as is for Validate to reject.
	if k, err := source.ParseIdentityKey(cfg.IdentityKey); err == nil {
		cfg.IdentityKey = string(k)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// env reads overrides and remembers the first parse error.
type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) str(dst *string, keys ...string) {
	for _, k := range keys {
		if v, ok := e.lookup(k); ok && v != "" {
			*dst = v
			return
		}
	}
}

func (e *env) integer(dst *int, key string) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = n
}

func (e *env) float(dst *float64, keys ...string) {
	for _, k := range keys {
		v, ok := e.lookup(k)
		if !ok || v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(k, err)
			return
		}
		*dst = f
		return
	}
}

func (e *env) boolean(dst *bool, key string) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = b
}

func (e *env) duration(dst *time.Duration, key string) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return
	}
	*dst = d
}

// millis reads a plain integer as milliseconds, falling back to a Go duration.
func (e *env) millis(dst *time.Duration, key string) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = time.Duration(n) * time.Millisecond
		return
	}
	e.duration(dst, key)
}

func (e *env) list(dst *[]string, key string) {
	v, ok := e.lookup(key)
	if !ok || v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func (e *env) fail(key string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("%w: %s: %w", ErrInvalidConfig, key, err)
	}
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	e := &env{lookup: lookup}

	e.integer(&cfg.Port, "PORT")
	e.str(&cfg.LogLevel, "LOG_LEVEL")

	e.float(&cfg.Watch.Lat, "WATCH_LAT", "BASE_LAT")
	e.float(&cfg.Watch.Lon, "WATCH_LON", "BASE_LON")
	for i, key := range []string{"ZONE1_RADIUS", "ZONE2_RADIUS", "ZONE3_RADIUS"} {
		if i < len(cfg.Zones) {
			e.float(&cfg.Zones[i].RadiusMeters, key)
		}
	}
	e.millis(&cfg.Interval, "CHECK_INTERVAL")
	e.duration(&cfg.GracePeriod, "GRACE_PERIOD")
	e.duration(&cfg.WarmupDelay, "WARMUP_DELAY")
	e.str(&cfg.IdentityKey, "IDENTITY_KEY")

	e.str(&cfg.Source.BaseURL, "EURIS_API_URL")
	e.duration(&cfg.Source.Timeout, "EURIS_TIMEOUT")

	e.str(&cfg.Storage.Backend, "RECIPIENT_STORE")
	e.str(&cfg.Storage.SQLitePath, "SQLITE_PATH")
	e.str(&cfg.Storage.Postgres.Host, "POSTGRES_HOST")
	e.integer(&cfg.Storage.Postgres.Port, "POSTGRES_PORT")
	e.str(&cfg.Storage.Postgres.Database, "POSTGRES_DB")
	e.str(&cfg.Storage.Postgres.User, "POSTGRES_USER")
	e.str(&cfg.Storage.Postgres.Password, "POSTGRES_PASSWORD")
	e.boolean(&cfg.Storage.AuditLog, "AUDIT_LOG")
	e.str(&cfg.Storage.ClickHouse.Host, "CLICKHOUSE_HOST")
	e.integer(&cfg.Storage.ClickHouse.Port, "CLICKHOUSE_PORT")
	e.str(&cfg.Storage.ClickHouse.Database, "CLICKHOUSE_DB")
	e.str(&cfg.Storage.ClickHouse.User, "CLICKHOUSE_USER")
	e.str(&cfg.Storage.ClickHouse.Password, "CLICKHOUSE_PASSWORD")

	e.str(&cfg.NATS.URL, "NATS_URL")
	e.str(&cfg.NATS.Subject, "NATS_SUBJECT")
	e.list(&cfg.Kafka.Brokers, "KAFKA_BROKERS")
	e.str(&cfg.Kafka.Topic, "KAFKA_TOPIC")

	e.boolean(&cfg.Push.ExpoEnabled, "EXPO_ENABLED")
	e.str(&cfg.Push.ExpoHost, "EXPO_HOST")
	e.str(&cfg.Push.FirebaseProjectID, "FIREBASE_PROJECT_ID")
	e.str(&cfg.Push.FirebaseCredentials, "FIREBASE_CREDENTIALS", "GOOGLE_APPLICATION_CREDENTIALS")
	e.str(&cfg.Push.FirebaseClientEmail, "FIREBASE_CLIENT_EMAIL")
	e.str(&cfg.Push.FirebasePrivateKey, "FIREBASE_PRIVATE_KEY")

	e.list(&cfg.API.Keys, "API_KEYS")
	e.list(&cfg.API.CORSOrigins, "CORS_ORIGINS")
	e.duration(&cfg.API.BroadcastInterval, "BROADCAST_INTERVAL")

	return e.err
}

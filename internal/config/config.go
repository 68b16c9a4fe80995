// Package config loads service settings from defaults, an optional YAML file
// and environment variables, in that order, and validates the result.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"trackship/internal/events"
	"trackship/internal/geo"
	"trackship/internal/source"
	"trackship/internal/storage"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete service configuration.
type Config struct {
	Port     int    `yaml:"port" validate:"min=1,max=65535"`
	LogLevel string `yaml:"logLevel" validate:"oneof=debug info warn error"`

	Watch       geo.Point     `yaml:"watch"`
	Zones       geo.Zones     `yaml:"zones" validate:"min=1,dive"`
	Interval    time.Duration `yaml:"interval" validate:"gt=0"`
	GracePeriod time.Duration `yaml:"gracePeriod" validate:"gt=0"`
	WarmupDelay time.Duration `yaml:"warmupDelay" validate:"gte=0"`
	IdentityKey string        `yaml:"identityKey" validate:"oneof=track mmsi"`

	Source  SourceConfig       `yaml:"source"`
	Storage storage.Config     `yaml:"storage"`
	NATS    events.NATSConfig  `yaml:"nats"`
	Kafka   events.KafkaConfig `yaml:"kafka"`
	Push    PushConfig         `yaml:"push"`
	API     APIConfig          `yaml:"api"`
}

// SourceConfig configures the upstream position feed.
type SourceConfig struct {
	BaseURL       string        `yaml:"baseURL" validate:"required,url"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	RetryAttempts int           `yaml:"retryAttempts" validate:"min=1,max=10"`
	RetryDelay    time.Duration `yaml:"retryDelay" validate:"gte=0"`
	QueryMargin   float64       `yaml:"queryMargin" validate:"gte=0"`
}

// PushConfig configures the notification channels.
type PushConfig struct {
	ExpoEnabled         bool          `yaml:"expoEnabled"`
	ExpoHost            string        `yaml:"expoHost" validate:"omitempty,url"`
	ExpoTimeout         time.Duration `yaml:"expoTimeout"`
	FirebaseProjectID   string        `yaml:"firebaseProjectID"`
	FirebaseCredentials string        `yaml:"firebaseCredentials"`
	FirebaseClientEmail string        `yaml:"firebaseClientEmail" validate:"omitempty,email"`
	FirebasePrivateKey  string        `yaml:"firebasePrivateKey"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Keys              []string      `yaml:"keys"`
	CORSOrigins       []string      `yaml:"corsOrigins"`
	BroadcastInterval time.Duration `yaml:"broadcastInterval" validate:"gt=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:        3000,
		LogLevel:    "info",
		Watch:       geo.Point{Lat: 48.853229, Lon: 2.225328},
		Zones:       geo.DefaultZones(),
		Interval:    30 * time.Second,
		GracePeriod: 5 * time.Minute,
		WarmupDelay: 5 * time.Second,
		IdentityKey: string(source.IdentityTrack),
		Source: SourceConfig{
			BaseURL:       source.DefaultBaseURL,
			Timeout:       source.DefaultTimeout,
			RetryAttempts: source.DefaultRetryAttempts,
			RetryDelay:    source.DefaultRetryDelay,
			QueryMargin:   source.DefaultQueryMargin,
		},
		Storage: storage.DefaultConfig(),
		NATS: events.NATSConfig{
			Subject: "trackship.arrivals",
			Stream:  "TRACKSHIP_ARRIVALS",
		},
		Kafka: events.KafkaConfig{
			Topic: "trackship.arrivals",
		},
		Push: PushConfig{
			ExpoEnabled: true,
			ExpoTimeout: 15 * time.Second,
		},
		API: APIConfig{
			CORSOrigins:       []string{"*"},
			BroadcastInterval: 2 * time.Second,
		},
	}
}

// Validate checks struct tags, the watch point and zone ordering.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if !c.Watch.Valid() {
		return fmt.Errorf("%w: watch point %v out of range", ErrInvalidConfig, c.Watch)
	}
	if err := c.Zones.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// SourceClientConfig converts the source settings for source.NewClient.
func (c Config) SourceClientConfig() source.Config {
	return source.Config{
		BaseURL:       c.Source.BaseURL,
		Timeout:       c.Source.Timeout,
		RetryAttempts: c.Source.RetryAttempts,
		RetryDelay:    c.Source.RetryDelay,
		QueryMargin:   c.Source.QueryMargin,
		IdentityKey:   source.IdentityKey(c.IdentityKey),
	}
}

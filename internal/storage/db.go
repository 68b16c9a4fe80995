package storage

// Recipient registry backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds the persistence settings.
type Config struct {
	Backend    string           `yaml:"backend" validate:"oneof=memory sqlite postgres"`
	SQLitePath string           `yaml:"sqlitePath"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	AuditLog   bool             `yaml:"auditLog"` // Record dispatches in ClickHouse.
}

// DefaultConfig returns a configuration with default local development settings.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendMemory,
		SQLitePath: "trackship.db",
		ClickHouse: ClickHouseConfig{
			Host:     "localhost",
			Port:     9000,
			Database: "trackship",
			User:     "default",
			Password: "",
		},
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "trackship",
			User:     "trackship",
			Password: "trackship",
		},
	}
}

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ClickHouseDB stores the append-only log of arrival dispatches.
type ClickHouseDB struct {
	conn driver.Conn
}

// OpenClickHouse opens a connection to ClickHouse.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the dispatch log table.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	err := d.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS arrival_dispatches (
			id              String,
			dispatched_at   DateTime64(3),
			identity        String,
			mmsi            LowCardinality(String),
			name            String,
			zone            LowCardinality(String),
			distance_m      Float64,
			latitude        Float64,
			longitude       Float64,
			sent            UInt32,
			errors          UInt32,
			invalid         UInt32
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(dispatched_at)
		ORDER BY (dispatched_at, identity)`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// DispatchRecord is one arrival notification fan-out.
type DispatchRecord struct {
	ID           string    `json:"id"`
	DispatchedAt time.Time `json:"dispatchedAt"`
	Identity     string    `json:"identity"`
	MMSI         string    `json:"mmsi,omitempty"`
	Name         string    `json:"name,omitempty"`
	Zone         string    `json:"zone"`
	Distance     float64   `json:"distance"`
	Latitude     float64   `json:"lat"`
	Longitude    float64   `json:"lon"`
	Sent         uint32    `json:"sent"`
	Errors       uint32    `json:"errors"`
	Invalid      uint32    `json:"invalid"`
}

// InsertDispatches appends records to the log in one batch.
func (d *ClickHouseDB) InsertDispatches(ctx context.Context, records []DispatchRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO arrival_dispatches (id, dispatched_at, identity, mmsi, name, zone, distance_m, latitude, longitude, sent, errors, invalid)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err := batch.Append(r.ID, r.DispatchedAt, r.Identity, r.MMSI, r.Name, r.Zone,
			r.Distance, r.Latitude, r.Longitude, r.Sent, r.Errors, r.Invalid)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// RecentDispatches returns the newest records first.
func (d *ClickHouseDB) RecentDispatches(ctx context.Context, limit int) ([]DispatchRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.conn.Query(ctx, `
		SELECT id, dispatched_at, identity, mmsi, name, zone, distance_m, latitude, longitude, sent, errors, invalid
		FROM arrival_dispatches
		ORDER BY dispatched_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatches: %w", err)
	}
	defer rows.Close()

	var records []DispatchRecord
	for rows.Next() {
		var r DispatchRecord
		err := rows.Scan(&r.ID, &r.DispatchedAt, &r.Identity, &r.MMSI, &r.Name, &r.Zone,
			&r.Distance, &r.Latitude, &r.Longitude, &r.Sent, &r.Errors, &r.Invalid)
		if err != nil {
			return nil, fmt.Errorf("scan dispatch: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatches: %w", err)
	}
	return records, nil
}

// CountDispatches returns how many dispatches have been logged.
func (d *ClickHouseDB) CountDispatches(ctx context.Context) (uint64, error) {
	var count uint64
	if err := d.conn.QueryRow(ctx, "SELECT count() FROM arrival_dispatches").Scan(&count); err != nil {
		return 0, fmt.Errorf("count dispatches: %w", err)
	}
	return count, nil
}

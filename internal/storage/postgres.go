package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"omitempty,min=1,max=65535"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// PostgresDB is a recipient registry shared between service instances.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{pool: pool}, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() {
	d.pool.Close()
}

// CreateSchema creates the recipients table.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	_, err := d.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS recipients (
		id              BIGSERIAL PRIMARY KEY,
		token           TEXT NOT NULL UNIQUE,
		registered_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Add registers token and reports whether it was new.
func (d *PostgresDB) Add(ctx context.Context, token string) (bool, error) {
	tag, err := d.pool.Exec(ctx, `
		INSERT INTO recipients (token) VALUES ($1)
		ON CONFLICT (token) DO NOTHING
	`, token)
	if err != nil {
		return false, fmt.Errorf("insert recipient: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Remove unregisters token and reports whether it was present.
func (d *PostgresDB) Remove(ctx context.Context, token string) (bool, error) {
	tag, err := d.pool.Exec(ctx, `DELETE FROM recipients WHERE token = $1`, token)
	if err != nil {
		return false, fmt.Errorf("delete recipient: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns the registered tokens in registration order.
func (d *PostgresDB) List(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT token FROM recipients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query recipients: %w", err)
	}
	defer rows.Close()

	tokens := []string{}
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// Count returns the number of registered tokens.
func (d *PostgresDB) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.pool.QueryRow(ctx, `SELECT COUNT(*) FROM recipients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recipients: %w", err)
	}
	return n, nil
}

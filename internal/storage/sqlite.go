// Package storage persists recipient tokens and the arrival dispatch log.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteDB is a single-file recipient registry.
type SQLiteDB struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return newSQLiteDB(db), nil
}

func newSQLiteDB(db *sql.DB) *SQLiteDB {
	return &SQLiteDB{db: db, now: time.Now}
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

func createSQLiteSchema(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS recipients (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		token TEXT NOT NULL UNIQUE,
		registered_at TEXT NOT NULL
	);
	`)
	return err
}

// Add registers token and reports whether it was new.
func (d *SQLiteDB) Add(ctx context.Context, token string) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO recipients (token, registered_at) VALUES (?, ?)`,
		token, d.now().UTC().Format(time.RFC3339))
	if err != nil {
		return false, fmt.Errorf("insert recipient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert recipient: %w", err)
	}
	return n > 0, nil
}

// Remove unregisters token and reports whether it was present.
func (d *SQLiteDB) Remove(ctx context.Context, token string) (bool, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM recipients WHERE token = ?`, token)
	if err != nil {
		return false, fmt.Errorf("delete recipient: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete recipient: %w", err)
	}
	return n > 0, nil
}

// List returns the registered tokens in registration order.
func (d *SQLiteDB) List(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT token FROM recipients ORDER BY id`)
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
func (d *SQLiteDB) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipients`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recipients: %w", err)
	}
	return n, nil
}

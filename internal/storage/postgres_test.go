package storage

import (
	"context"
	"os"
	"testing"
)

// setupTestPostgres creates a test database connection.
// Returns nil if no PostgreSQL connection is available.
func setupTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()

	// Check for environment variable or use defaults.
	host := os.Getenv("POSTGRES_HOST")
	if host == "" {
		host = "localhost"
	}
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		user = "trackship"
	}
	password := os.Getenv("POSTGRES_PASSWORD")
	if password == "" {
		password = "trackship"
	}
	database := os.Getenv("POSTGRES_DB")
	if database == "" {
		database = "trackship"
	}

	ctx := context.Background()
	pg, err := OpenPostgres(ctx, PostgresConfig{
		Host:     host,
		Port:     5432,
		User:     user,
		Password: password,
		Database: database,
	})
	if err != nil {
		return nil
	}

	// Ensure schema exists.
	if err := pg.CreateSchema(ctx); err != nil {
		pg.Close()
		return nil
	}

	return pg
}

func TestPostgresRegistry(t *testing.T) {
	pg := setupTestPostgres(t)
	if pg == nil {
		t.Skip("No PostgreSQL connection available")
	}
	defer pg.Close()

	ctx := context.Background()
	tokens := []string{"ExponentPushToken[pg-test-a]", "ExponentPushToken[pg-test-b]"}

	// Clean up test data before and after the test.
	cleanup := func() {
		_, _ = pg.pool.Exec(ctx, "DELETE FROM recipients WHERE token = ANY($1)", tokens)
	}
	cleanup()
	defer cleanup()

	before, err := pg.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error: %v", err)
	}

	for _, tok := range tokens {
		added, err := pg.Add(ctx, tok)
		if err != nil || !added {
			t.Fatalf("Add(%q) = %v, %v", tok, added, err)
		}
	}
	if added, _ := pg.Add(ctx, tokens[0]); added {
		t.Error("duplicate Add() reported new")
	}

	after, _ := pg.Count(ctx)
	if after != before+2 {
		t.Errorf("Count() = %d, want %d", after, before+2)
	}

	list, err := pg.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	seen := 0
	for _, tok := range list {
		if tok == tokens[0] || tok == tokens[1] {
			seen++
		}
	}
	if seen != 2 {
		t.Errorf("List() missing test tokens: %v", list)
	}

	removed, err := pg.Remove(ctx, tokens[0])
	if err != nil || !removed {
		t.Errorf("Remove() = %v, %v", removed, err)
	}
	if removed, _ := pg.Remove(ctx, tokens[0]); removed {
		t.Error("second Remove() reported removal")
	}
}

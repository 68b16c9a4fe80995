package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// setupTestClickHouse returns nil unless CLICKHOUSE_HOST points at a server.
func setupTestClickHouse(t *testing.T) *ClickHouseDB {
	t.Helper()

	host := os.Getenv("CLICKHOUSE_HOST")
	if host == "" {
		return nil
	}
	database := os.Getenv("CLICKHOUSE_DB")
	if database == "" {
		database = "default"
	}

	ctx := context.Background()
	ch, err := OpenClickHouse(ctx, ClickHouseConfig{
		Host:     host,
		Port:     9000,
		Database: database,
		User:     "default",
		Password: os.Getenv("CLICKHOUSE_PASSWORD"),
	})
	if err != nil {
		return nil
	}
	if err := ch.CreateSchema(ctx); err != nil {
		_ = ch.Close()
		return nil
	}
	return ch
}

func TestClickHouseDispatchLog(t *testing.T) {
	ch := setupTestClickHouse(t)
	if ch == nil {
		t.Skip("No ClickHouse connection available")
	}
	defer ch.Close()

	ctx := context.Background()
	before, err := ch.CountDispatches(ctx)
	if err != nil {
		t.Fatalf("CountDispatches() error: %v", err)
	}

	id := uuid.New().String()
	err = ch.InsertDispatches(ctx, []DispatchRecord{{
		ID:           id,
		DispatchedAt: time.Now().Add(time.Hour).UTC(),
		Identity:     "T1",
		MMSI:         "226000001",
		Name:         "MARIE-LOUISE",
		Zone:         "zone1",
		Distance:     850,
		Latitude:     48.86,
		Longitude:    2.22,
		Sent:         2,
		Errors:       1,
		Invalid:      1,
	}})
	if err != nil {
		t.Fatalf("InsertDispatches() error: %v", err)
	}

	after, _ := ch.CountDispatches(ctx)
	if after != before+1 {
		t.Errorf("CountDispatches() = %d, want %d", after, before+1)
	}

	recent, err := ch.RecentDispatches(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ID != id || recent[0].Distance != 850 {
		t.Errorf("RecentDispatches() = %+v", recent)
	}
}

func TestInsertDispatchesEmpty(t *testing.T) {
	var ch ClickHouseDB
	if err := ch.InsertDispatches(context.Background(), nil); err != nil {
		t.Errorf("InsertDispatches(nil) = %v", err)
	}
}

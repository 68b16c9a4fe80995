package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func openTestSQLite(t *testing.T) *SQLiteDB {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "recipients.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteRegistry(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t)

	added, err := db.Add(ctx, "ExponentPushToken[a]")
	if err != nil || !added {
		t.Fatalf("Add() = %v, %v", added, err)
	}
	added, err = db.Add(ctx, "ExponentPushToken[a]")
	if err != nil || added {
		t.Errorf("duplicate Add() = %v, %v", added, err)
	}
	if _, err := db.Add(ctx, "ExponentPushToken[b]"); err != nil {
		t.Fatal(err)
	}

	tokens, err := db.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 2 || tokens[0] != "ExponentPushToken[a]" || tokens[1] != "ExponentPushToken[b]" {
		t.Errorf("List() = %v", tokens)
	}

	removed, err := db.Remove(ctx, "ExponentPushToken[a]")
	if err != nil || !removed {
		t.Errorf("Remove() = %v, %v", removed, err)
	}
	removed, _ = db.Remove(ctx, "ExponentPushToken[a]")
	if removed {
		t.Error("second Remove() reported removal")
	}

	n, err := db.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count() = %d, %v", n, err)
	}
}

func TestSQLiteRegistryReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "recipients.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = db.Add(ctx, "ExponentPushToken[persisted]")
	_ = db.Close()

	db, err = OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	tokens, _ := db.List(ctx)
	if len(tokens) != 1 || tokens[0] != "ExponentPushToken[persisted]" {
		t.Errorf("List() after reopen = %v", tokens)
	}
}

func TestSQLiteAddUsesClock(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	reg := newSQLiteDB(db)
	reg.now = func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) }

	mock.ExpectExec(`INSERT OR IGNORE INTO recipients`).
		WithArgs("ExponentPushToken[a]", "2026-03-14T09:00:00Z").
		WillReturnResult(sqlmock.NewResult(1, 1))

	added, err := reg.Add(context.Background(), "ExponentPushToken[a]")
	if err != nil || !added {
		t.Fatalf("Add() = %v, %v", added, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteErrorsAreWrapped(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	reg := newSQLiteDB(db)
	ctx := context.Background()

	mock.ExpectExec(`DELETE FROM recipients`).
		WithArgs("tok").
		WillReturnError(sqlmock.ErrCancelled)
	if _, err := reg.Remove(ctx, "tok"); !errors.Is(err, sqlmock.ErrCancelled) {
		t.Errorf("Remove() error = %v", err)
	}

	mock.ExpectQuery(`SELECT token FROM recipients`).
		WillReturnError(sqlmock.ErrCancelled)
	if _, err := reg.List(ctx); !errors.Is(err, sqlmock.ErrCancelled) {
		t.Errorf("List() error = %v", err)
	}

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM recipients`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	if n, err := reg.Count(ctx); err != nil || n != 3 {
		t.Errorf("Count() = %d, %v", n, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

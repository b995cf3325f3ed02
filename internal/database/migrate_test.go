package database

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/TobiSchelling/newsbridge/internal/logger"
)

func TestMigrateNewDB(t *testing.T) {
	db := openTestDB(t)

	version, err := getSchemaVersion(db.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestMigrateFromVersionOne(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "v1.db")

	// Simulate a database that only has the first migration applied.
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	tx, err := raw.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := migrations[0].Up(tx); err != nil {
		t.Fatalf("apply v1: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := raw.Exec("PRAGMA user_version = 1"); err != nil {
		t.Fatalf("stamp v1: %v", err)
	}
	raw.Close()

	db, err := Open(dbPath, logger.Discard())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	version, err := getSchemaVersion(db.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d after upgrade, got %d", latestVersion(), version)
	}

	var count int
	if err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='import_runs'",
	).Scan(&count); err != nil {
		t.Fatalf("checking import_runs: %v", err)
	}
	if count != 1 {
		t.Error("expected import_runs table after upgrade")
	}
}

func TestMigrateIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "idem.db")

	db1, err := Open(dbPath, logger.Discard())
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db1.Close()

	db2, err := Open(dbPath, logger.Discard())
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer db2.Close()

	version, err := getSchemaVersion(db2.conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("expected version %d, got %d", latestVersion(), version)
	}
}

func TestGetSchemaVersionNewDB(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "empty.db")
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	version, err := getSchemaVersion(conn)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != 0 {
		t.Errorf("expected version 0 on new db, got %d", version)
	}
}

func TestMigrateLogsAppliedSteps(t *testing.T) {
	conn, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "logged.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()

	var logs bytes.Buffer
	applied, err := migrate(conn, logger.NewWithWriter(&logs, "DEBUG"))
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if applied != len(migrations) {
		t.Errorf("expected %d migrations applied, got %d", len(migrations), applied)
	}
	if got := strings.Count(logs.String(), "applying schema migration"); got != len(migrations) {
		t.Errorf("expected one log line per migration, got %d:\n%s", got, logs.String())
	}

	logs.Reset()
	applied, err = migrate(conn, logger.NewWithWriter(&logs, "DEBUG"))
	if err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	if applied != 0 || logs.Len() != 0 {
		t.Errorf("expected a quiet no-op, applied %d, logs %q", applied, logs.String())
	}
}

package database

import (
	"database/sql"
	"fmt"
	"log/slog"
)

func getSchemaVersion(conn *sql.DB) (int, error) {
	var version int
	if err := conn.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// migrate applies every migration newer than PRAGMA user_version, in order,
// and returns how many ran.
func migrate(conn *sql.DB, log *slog.Logger) (int, error) {
	current, err := getSchemaVersion(conn)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range pending(current) {
		log.Info("applying schema migration", "from", current, "to", m.Version, "description", m.Description)
		if err := applyMigration(conn, m); err != nil {
			return applied, err
		}
		current = m.Version
		applied++
	}
	if applied > 0 {
		log.Debug("schema up to date", "version", current, "applied", applied)
	}
	return applied, nil
}

func pending(current int) []Migration {
	var out []Migration
	for _, m := range migrations {
		if m.Version > current {
			out = append(out, m)
		}
	}
	return out
}

func applyMigration(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}

	// modernc/sqlite rejects user_version inside a transaction. The DDL is
	// idempotent, so a crash before this stamp re-runs the step safely.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("setting version %d: %w", m.Version, err)
	}
	return nil
}

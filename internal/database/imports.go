package database

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertImportRun records the outcome of an import run.
func (db *DB) InsertImportRun(ctx context.Context, run *ImportRun) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO import_runs (id, source, state, found, persisted, duplicates, rejected, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.State, run.Found, run.Persisted, run.Duplicates, run.Rejected,
		run.Error, formatTime(run.StartedAt), formatTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting import run: %w", err)
	}
	return nil
}

// ListImportRuns returns the most recent import runs, newest first.
func (db *DB) ListImportRuns(ctx context.Context, limit int) ([]ImportRun, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, source, state, found, persisted, duplicates, rejected, error, started_at, finished_at
		FROM import_runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ImportRun
	for rows.Next() {
		var r ImportRun
		var runErr sql.NullString
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Source, &r.State, &r.Found, &r.Persisted, &r.Duplicates,
			&r.Rejected, &runErr, &started, &finished); err != nil {
			return nil, err
		}
		if runErr.Valid {
			r.Error = &runErr.String
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

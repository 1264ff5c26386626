// Package history persists the outcome of every sync run to sqlite
// so operators can answer "when did group X last sync" without
// digging through logs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"reportsync/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	db *sql.DB
}

func NewDB(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &DB{db: db}, nil
}

func createTables(db *sql.DB) error {
	query := `CREATE TABLE IF NOT EXISTS sync_runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        kind TEXT NOT NULL,
        group_name TEXT NOT NULL,
        sheet_name TEXT NOT NULL,
        data_date TEXT NOT NULL,
        row_count INTEGER NOT NULL DEFAULT 0,
        status TEXT NOT NULL,
        last_error TEXT,
        started_at DATETIME NOT NULL,
        finished_at DATETIME
    )`
	if _, err := db.Exec(query); err != nil {
		return err
	}

	_, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_sync_runs_group ON sync_runs (group_name, started_at)`)
	return err
}

func (d *DB) Close() error {
	return d.db.Close()
}

// CreateRun inserts a started run and fills in its id.
func (d *DB) CreateRun(ctx context.Context, run *models.SyncRun) error {
	query := `INSERT INTO sync_runs (kind, group_name, sheet_name, data_date, row_count, status, last_error, started_at, finished_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := d.db.ExecContext(ctx, query,
		run.Kind,
		run.GroupName,
		run.SheetName,
		run.DataDate,
		run.RowCount,
		run.Status,
		run.LastError,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// FinishRun marks a run completed or failed.
func (d *DB) FinishRun(ctx context.Context, id int64, status string, errMsg *string, rowCount int) error {
	now := time.Now()
	query := `UPDATE sync_runs SET status = ?, last_error = ?, row_count = ?, finished_at = ? WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, query, status, errMsg, rowCount, &now, id); err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}
	return nil
}

// RecentRuns returns the latest runs, newest first.
func (d *DB) RecentRuns(ctx context.Context, limit int) ([]models.SyncRun, error) {
	query := `SELECT id, kind, group_name, sheet_name, data_date, row_count, status, last_error, started_at, finished_at
              FROM sync_runs ORDER BY started_at DESC, id DESC LIMIT ?`
	rows, err := d.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

// LastRunForGroup returns the newest run of the given kind for a
// group, or nil when the group never synced.
func (d *DB) LastRunForGroup(ctx context.Context, groupName, kind string) (*models.SyncRun, error) {
	query := `SELECT id, kind, group_name, sheet_name, data_date, row_count, status, last_error, started_at, finished_at
              FROM sync_runs WHERE group_name = ? AND kind = ? ORDER BY started_at DESC, id DESC LIMIT 1`
	rows, err := d.db.QueryContext(ctx, query, groupName, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to get last run: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// FailedRuns returns failed runs since the given time, newest first.
func (d *DB) FailedRuns(ctx context.Context, since time.Time) ([]models.SyncRun, error) {
	query := `SELECT id, kind, group_name, sheet_name, data_date, row_count, status, last_error, started_at, finished_at
              FROM sync_runs WHERE status = ? AND started_at >= ? ORDER BY started_at DESC, id DESC`
	rows, err := d.db.QueryContext(ctx, query, models.RunStatusFailed, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]models.SyncRun, error) {
	var runs []models.SyncRun
	for rows.Next() {
		var r models.SyncRun
		err := rows.Scan(
			&r.ID, &r.Kind, &r.GroupName, &r.SheetName, &r.DataDate, &r.RowCount, &r.Status, &r.LastError, &r.StartedAt, &r.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

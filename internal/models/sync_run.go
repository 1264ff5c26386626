package models

import "time"

// Sync run outcomes as stored in history.
const (
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusSkipped   = "skipped"
)

// Report kinds.
const (
	RunKindDaily  = "daily"
	RunKindHourly = "hourly"
)

// SyncRun records a single per-group sheet write attempt.
type SyncRun struct {
	ID         int64      `json:"id"`
	Kind       string     `json:"kind"`
	GroupName  string     `json:"group_name"`
	SheetName  string     `json:"sheet_name"`
	DataDate   string     `json:"data_date"`
	RowCount   int        `json:"row_count"`
	Status     string     `json:"status"`
	LastError  *string    `json:"last_error"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
}

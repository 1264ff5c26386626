// Package metrics exposes Prometheus counters for sync activity.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportsync",
			Name:      "sync_runs_total",
			Help:      "Sync runs by kind and outcome.",
		},
		[]string{"kind", "status"},
	)

	rowsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportsync",
			Name:      "rows_written_total",
			Help:      "Report rows written to sheets by group.",
		},
		[]string{"group"},
	)

	sheetsCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportsync",
			Name:      "sheets_operations_total",
			Help:      "Sheets API operations by name.",
		},
		[]string{"op"},
	)

	logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "reportsync",
			Name:      "logins_total",
			Help:      "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(syncRuns, rowsWritten, sheetsCalls, logins)
	})
}

// IncSyncRun counts one finished run.
func IncSyncRun(kind, status string) {
	syncRuns.WithLabelValues(kind, status).Inc()
}

// AddRowsWritten counts rows landed in a group's sheet.
func AddRowsWritten(group string, n int) {
	rowsWritten.WithLabelValues(group).Add(float64(n))
}

// IncSheetsOp counts one executed Sheets API operation.
func IncSheetsOp(op string) {
	sheetsCalls.WithLabelValues(op).Inc()
}

// IncLogin counts one login attempt outcome.
func IncLogin(outcome string) {
	logins.WithLabelValues(outcome).Inc()
}

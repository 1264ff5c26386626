// Package report runs the hourly and daily sync jobs: fetch metrics
// from the reporting API, route rows to each group's spreadsheet and
// record the outcome.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"reportsync/internal/config"
	"reportsync/internal/metrics"
	"reportsync/internal/models"
	"reportsync/internal/scheduler"

	"github.com/rs/zerolog"
)

// RowFetcher pulls one day's report rows from the API.
type RowFetcher interface {
	FetchRows(ctx context.Context, date string) ([]models.ReportRow, error)
}

// SheetWriter is the upsert surface of the sheets writer.
type SheetWriter interface {
	WriteDaily(ctx context.Context, spreadsheetID, title string, rows []models.ReportRow) error
	WriteHourly(ctx context.Context, spreadsheetID, title string, rows []models.ReportRow, today string) error
}

// SessionKeeper refreshes the login before a run needs it.
type SessionKeeper interface {
	EnsureValid(ctx context.Context) bool
}

// HistoryStore records per-group run outcomes.
type HistoryStore interface {
	CreateRun(ctx context.Context, run *models.SyncRun) error
	FinishRun(ctx context.Context, id int64, status string, errMsg *string, rowCount int) error
	LastRunForGroup(ctx context.Context, groupName, kind string) (*models.SyncRun, error)
}

// SnapshotExporter writes a local backup of synced rows.
type SnapshotExporter interface {
	WriteSnapshot(kind string, rows []models.ReportRow, at time.Time) (string, error)
}

// StatusNotifier tells group chats about finished and failed runs.
type StatusNotifier interface {
	ReportUpdated(kind string, chatIDs []int64, at time.Time) int
	SyncFailed(chatID int64, kind, groupName string, cause error)
}

// Manager drives both report jobs. History, exporter and notifier are
// optional; a nil collaborator disables that side effect.
type Manager struct {
	cfg      *config.Config
	fetcher  RowFetcher
	writer   SheetWriter
	sessions SessionKeeper
	history  HistoryStore
	exporter SnapshotExporter
	notifier StatusNotifier
	logger   zerolog.Logger
	now      func() time.Time
	loc      *time.Location
}

func NewManager(
	cfg *config.Config,
	fetcher RowFetcher,
	writer SheetWriter,
	sessions SessionKeeper,
	history HistoryStore,
	exporter SnapshotExporter,
	notifier StatusNotifier,
	logger *zerolog.Logger,
) (*Manager, error) {
	loc, err := time.LoadLocation(models.ReportTimezone)
	if err != nil {
		return nil, fmt.Errorf("load report timezone: %w", err)
	}

	return &Manager{
		cfg:      cfg,
		fetcher:  fetcher,
		writer:   writer,
		sessions: sessions,
		history:  history,
		exporter: exporter,
		notifier: notifier,
		logger:   logger.With().Str("component", "report").Logger(),
		now:      time.Now,
		loc:      loc,
	}, nil
}

// SetupTasks registers the enabled jobs on the scheduler. The daily
// send time is configured as a wall-clock time in the reporting
// timezone and converted to UTC here.
func (m *Manager) SetupTasks(sched *scheduler.Scheduler) error {
	sending := m.cfg.API.DataSending

	if sending.HourlyReport.Enabled {
		interval := time.Duration(sending.HourlyReport.IntervalMinutes) * time.Minute
		// The first snapshot goes out right at startup, then every
		// interval after the previous run finished.
		sched.Every("hourly_report", interval, true, func(ctx context.Context) {
			if err := m.RunHourly(ctx); err != nil {
				m.logger.Error().Err(err).Msg("hourly run failed")
			}
		})
	}

	if sending.DailyReport.Enabled {
		hour, minute, err := sending.DailyReport.ParseSendTime()
		if err != nil {
			return fmt.Errorf("daily send time: %w", err)
		}

		utcHour, utcMinute := m.toUTCWallClock(hour, minute)
		sched.DailyAtUTC("daily_report", utcHour, utcMinute, func(ctx context.Context) {
			if err := m.RunDaily(ctx); err != nil {
				m.logger.Error().Err(err).Msg("daily run failed")
			}
		})
	}

	return nil
}

// toUTCWallClock converts an hour:minute in the reporting timezone to
// the equivalent UTC wall-clock time.
func (m *Manager) toUTCWallClock(hour, minute int) (int, int) {
	now := m.now().In(m.loc)
	local := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, m.loc)
	utc := local.UTC()
	return utc.Hour(), utc.Minute()
}

// RunHourly syncs today's snapshot to every group's hourly sheet.
func (m *Manager) RunHourly(ctx context.Context) error {
	today := m.now().In(m.loc).Format(models.DateLayout)
	return m.run(ctx, models.RunKindHourly, today, m.cfg.Google.HourlySheetName)
}

// RunDaily syncs yesterday's finalized numbers to every group's daily
// sheet and writes an xlsx backup.
func (m *Manager) RunDaily(ctx context.Context) error {
	yesterday := m.now().In(m.loc).AddDate(0, 0, -1).Format(models.DateLayout)
	return m.run(ctx, models.RunKindDaily, yesterday, m.cfg.Google.DailySheetName)
}

func (m *Manager) run(ctx context.Context, kind, date, sheetName string) error {
	logger := m.logger.With().Str("kind", kind).Str("date", date).Logger()

	if m.sessions != nil && !m.sessions.EnsureValid(ctx) {
		metrics.IncSyncRun(kind, models.RunStatusFailed)
		return fmt.Errorf("no valid session for %s run", kind)
	}

	rows, err := m.fetcher.FetchRows(ctx, date)
	if err != nil {
		metrics.IncSyncRun(kind, models.RunStatusFailed)
		return fmt.Errorf("fetch rows: %w", err)
	}
	if len(rows) == 0 {
		logger.Warn().Msg("no rows fetched, skipping run")
		metrics.IncSyncRun(kind, models.RunStatusSkipped)
		return nil
	}

	byGroup := m.routeRows(rows)
	if len(byGroup) == 0 {
		logger.Warn().Msg("no rows matched a configured group")
		metrics.IncSyncRun(kind, models.RunStatusSkipped)
		return nil
	}

	groups := make([]string, 0, len(byGroup))
	for g := range byGroup {
		groups = append(groups, g)
	}
	sort.Strings(groups)

	var written []models.ReportRow
	var syncedChats []int64
	failures := 0

	for _, group := range groups {
		groupRows := byGroup[group]
		spreadsheetID := m.cfg.GroupSpreadsheetID(group)
		if spreadsheetID == "" {
			logger.Warn().Str("group", group).Msg("group has no spreadsheet, skipping")
			continue
		}

		if err := m.writeGroup(ctx, kind, date, sheetName, group, spreadsheetID, groupRows); err != nil {
			logger.Error().Str("group", group).Err(err).Msg("group sync failed")
			failures++
			if m.notifier != nil {
				if g, ok := m.cfg.Groups[group]; ok && g.TgGroup != 0 {
					m.notifier.SyncFailed(g.TgGroup, kind, m.cfg.GroupDisplayName(group), err)
				}
			}
			continue
		}

		written = append(written, groupRows...)
		metrics.AddRowsWritten(group, len(groupRows))
		if g, ok := m.cfg.Groups[group]; ok && g.TgGroup != 0 {
			syncedChats = append(syncedChats, g.TgGroup)
		}
	}

	if len(written) > 0 {
		if kind == models.RunKindDaily && m.exporter != nil {
			if _, err := m.exporter.WriteSnapshot(kind, written, m.now()); err != nil {
				logger.Error().Err(err).Msg("xlsx export failed")
			}
		}
		if m.notifier != nil {
			m.notifier.ReportUpdated(kind, syncedChats, m.now().In(m.loc))
		}
	}

	status := models.RunStatusCompleted
	if failures > 0 && len(written) == 0 {
		status = models.RunStatusFailed
	}
	metrics.IncSyncRun(kind, status)

	logger.Info().
		Int("rows", len(written)).
		Int("groups", len(groups)).
		Int("failures", failures).
		Msg("run finished")

	if status == models.RunStatusFailed {
		return fmt.Errorf("%s run failed for all %d groups", kind, failures)
	}
	return nil
}

// routeRows maps fetched rows to their owning groups and stamps the
// group display name into each row.
func (m *Manager) routeRows(rows []models.ReportRow) map[string][]models.ReportRow {
	byGroup := make(map[string][]models.ReportRow)
	for _, row := range rows {
		group, ok := m.cfg.GroupForChannel(row.Channel)
		if !ok {
			m.logger.Debug().Str("channel", row.Channel).Msg("channel not mapped to a group")
			continue
		}
		row.GroupName = m.cfg.GroupDisplayName(group)
		byGroup[group] = append(byGroup[group], row)
	}
	return byGroup
}

func (m *Manager) writeGroup(ctx context.Context, kind, date, sheetName, group, spreadsheetID string, rows []models.ReportRow) error {
	var runID int64
	if m.history != nil {
		if last, err := m.history.LastRunForGroup(ctx, group, kind); err == nil && last != nil {
			m.logger.Debug().
				Str("group", group).
				Str("kind", kind).
				Time("last_started", last.StartedAt).
				Str("last_status", last.Status).
				Msg("previous run")
		}

		run := &models.SyncRun{
			Kind:      kind,
			GroupName: group,
			SheetName: sheetName,
			DataDate:  date,
			Status:    "running",
			StartedAt: m.now(),
		}
		if err := m.history.CreateRun(ctx, run); err != nil {
			m.logger.Warn().Err(err).Msg("record run start failed")
		} else {
			runID = run.ID
		}
	}

	var err error
	switch kind {
	case models.RunKindDaily:
		err = m.writer.WriteDaily(ctx, spreadsheetID, sheetName, rows)
	case models.RunKindHourly:
		today := m.now().In(m.loc).Format(models.DateLayout)
		err = m.writer.WriteHourly(ctx, spreadsheetID, sheetName, rows, today)
	default:
		err = fmt.Errorf("unknown run kind %q", kind)
	}

	if m.history != nil && runID != 0 {
		if err != nil {
			msg := err.Error()
			if herr := m.history.FinishRun(ctx, runID, models.RunStatusFailed, &msg, 0); herr != nil {
				m.logger.Warn().Err(herr).Msg("record run failure failed")
			}
		} else {
			if herr := m.history.FinishRun(ctx, runID, models.RunStatusCompleted, nil, len(rows)); herr != nil {
				m.logger.Warn().Err(herr).Msg("record run completion failed")
			}
		}
	}

	return err
}

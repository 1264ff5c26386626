// Package logging builds the root zerolog logger for the sync daemon.
// Every component derives its own child via
// .With().Str("component", name) so log lines can be filtered per
// subsystem (scheduler, sheets_queue, report, ...).
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"reportsync/internal/config"

	"github.com/rs/zerolog"
)

// New constructs the root logger from config. Unset fields fall back
// to JSON output on stdout at info level. When logging to a file the
// returned closer owns the handle; it is nil otherwise.
func New(cfg config.LoggingConfig, app config.AppConfig) (*zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level))); err == nil {
		level = parsed
	}

	output := io.Writer(os.Stdout)
	var closer io.Closer

	switch strings.ToLower(strings.TrimSpace(cfg.Output)) {
	case "stderr":
		output = os.Stderr
	case "file":
		if cfg.FilePath == "" {
			return nil, nil, fmt.Errorf("logging.output=file requires logging.file_path")
		}
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		output = file
		closer = file
	}

	// Console format is for running the daemon by hand; sheet sync
	// timestamps matter down to the sub-second when correlating with
	// the API's own rate-limit responses, hence RFC3339Nano for JSON.
	if strings.ToLower(strings.TrimSpace(cfg.Format)) == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	root := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("app", app.Name).
		Str("env", app.Environment).
		Str("version", app.Version).
		Logger()

	return &root, closer, nil
}

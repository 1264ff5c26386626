package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reportsync/internal/config"
	"reportsync/internal/export"
	"reportsync/internal/history"
	"reportsync/internal/logging"
	"reportsync/internal/metrics"
	"reportsync/internal/notify"
	"reportsync/internal/report"
	"reportsync/internal/reportapi"
	"reportsync/internal/scheduler"
	"reportsync/internal/session"
	"reportsync/internal/sheets"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}
	logger := baseLogger.With().Str("component", "main").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	// Session store: redis when configured, in-process otherwise.
	store, redisClient := initSessionStore(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	apiClient := reportapi.NewClient(cfg.API.Login, cfg.SSLVerify(), baseLogger)
	fileStore := session.NewFileStore(cfg.Session.TokenFile)
	sessions := session.NewManager(store, fileStore, apiClient, cfg.API.Login.TOTPSecret, baseLogger)
	reader := reportapi.NewReader(apiClient, sessions, cfg, baseLogger)

	sheetsAPI, err := sheets.NewAPI(ctx, cfg.Google.CredentialsFile)
	if err != nil {
		return fmt.Errorf("init google sheets: %w", err)
	}
	executor := sheets.NewExecutor(sheetsAPI, sheets.ExecutorConfig{}, baseLogger)
	queue := sheets.NewQueue(ctx, executor, baseLogger)
	writer := sheets.NewWriter(queue, baseLogger)

	historyDB, err := history.NewDB(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("init history db: %w", err)
	}
	defer historyDB.Close()
	logger.Info().Str("path", cfg.History.Path).Msg("history database ready")
	logHistorySummary(ctx, historyDB, &logger)

	var exporter report.SnapshotExporter
	if cfg.Exports.Enabled {
		exporter = export.NewExporter(cfg.Exports.Path, baseLogger)
	}

	var notifier report.StatusNotifier
	if cfg.Telegram.BotToken != "" {
		n, err := notify.New(cfg.Telegram.BotToken, baseLogger)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram init failed, continuing without notifications")
		} else {
			notifier = n
		}
	}

	manager, err := report.NewManager(cfg, reader, writer, sessions, historyDB, exporter, notifier, baseLogger)
	if err != nil {
		return err
	}

	sched := scheduler.New(baseLogger)
	defer sched.Stop()
	if err := manager.SetupTasks(sched); err != nil {
		return err
	}

	logger.Info().
		Str("environment", cfg.App.Environment).
		Bool("hourly", cfg.API.DataSending.HourlyReport.Enabled).
		Bool("daily", cfg.API.DataSending.DailyReport.Enabled).
		Msg("report sync started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	return nil
}

// logHistorySummary tells the operator where the last restart left
// off: the most recent recorded run and any failures from the past
// day that may need a manual re-sync.
func logHistorySummary(ctx context.Context, db *history.DB, logger *zerolog.Logger) {
	if recent, err := db.RecentRuns(ctx, 1); err == nil && len(recent) > 0 {
		logger.Info().
			Str("group", recent[0].GroupName).
			Str("kind", recent[0].Kind).
			Str("status", recent[0].Status).
			Time("started_at", recent[0].StartedAt).
			Msg("last recorded sync run")
	}
	if failed, err := db.FailedRuns(ctx, time.Now().Add(-24*time.Hour)); err == nil && len(failed) > 0 {
		logger.Warn().Int("count", len(failed)).Msg("failed sync runs in the last 24h")
	}
}

func initSessionStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (session.Store, *redis.Client) {
	if !cfg.Session.UseRedis {
		return session.NewMemoryStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, falling back to in-memory session store")
		_ = client.Close()
		return session.NewMemoryStore(), nil
	}

	logger.Info().Str("address", cfg.Redis.Address).Msg("redis session store connected")
	return session.NewRedisStore(client), client
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goodtune/weekwatch/internal/api"
	"github.com/goodtune/weekwatch/internal/clock"
	"github.com/goodtune/weekwatch/internal/config"
	"github.com/goodtune/weekwatch/internal/metrics"
	"github.com/goodtune/weekwatch/internal/notify"
	"github.com/goodtune/weekwatch/internal/presence"
	"github.com/goodtune/weekwatch/internal/reminder"
	"github.com/goodtune/weekwatch/internal/storage"
	"github.com/goodtune/weekwatch/internal/storage/bolt"
	"github.com/goodtune/weekwatch/internal/storage/redis"
	"github.com/goodtune/weekwatch/internal/systemd"
	"github.com/goodtune/weekwatch/internal/tracker"
	"github.com/goodtune/weekwatch/internal/weekly"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the WeekWatch server",
	Long:  `Start the WeekWatch tracking server with the event API, weekly rollover scheduler, and metrics endpoints.`,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Setup logger
	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting WeekWatch")

	// Check for systemd socket activation
	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	// Initialize storage
	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("path", cfg.Storage.Path).
		Msg("Storage initialized")

	loc, err := time.LoadLocation(cfg.Tracking.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}

	// Notifications
	var notifier notify.Notifier = notify.Nop{}
	if cfg.Webhook.Enabled {
		notifier = notify.NewWebhook(cfg.Webhook.URL, parseDuration(cfg.Webhook.Timeout, 10*time.Second), logger)
		logger.Info().Str("url", cfg.Webhook.URL).Msg("Webhook notifications enabled")
	}

	// Bridge gateway for presence, roster, and display names
	gateway := presence.NewHTTPGateway(presence.Config{
		BaseURL:       cfg.Bridge.BaseURL,
		Timeout:       parseDuration(cfg.Bridge.Timeout, 10*time.Second),
		NameCacheSize: cfg.Bridge.NameCacheSize,
		NameCacheTTL:  parseDuration(cfg.Bridge.NameCacheTTL, time.Hour),
	}, logger)

	// Tracking engine
	clk := clock.RealClock{}
	tr := tracker.New(store.Week(), tracker.Config{
		MinSessionDuration: parseDuration(cfg.Tracking.MinSessionDuration, 20*time.Minute),
		OptOutCutoffDays:   cfg.Tracking.OptOutCutoffDays,
		Location:           loc,
	}, clk, notifier, logger)

	ctx := context.Background()
	if err := tr.Load(ctx); err != nil {
		return fmt.Errorf("failed to load persisted state: %w", err)
	}

	// Repair the ledger against live presence. The bridge may still be
	// starting up; sessions stay open and usage keeps accruing either way.
	if err := tr.Reconcile(ctx, gateway); err != nil {
		logger.Warn().Err(err).Msg("Startup reconciliation skipped, keeping persisted sessions open")
	}

	tiers := tracker.Tiers{
		SingleDayMinimum: parseDuration(cfg.Evaluation.SingleDayMinimum, 4*time.Hour),
		MultiDayMinimum:  parseDuration(cfg.Evaluation.MultiDayMinimum, time.Hour),
		WeeklyGoal:       parseDuration(cfg.Evaluation.WeeklyGoal, 4*time.Hour),
	}

	// Weekly rollover scheduler
	scheduler := weekly.NewScheduler(tr, gateway, notifier, clk, loc, tiers, logger)
	scheduler.Start()

	// Reminder timers
	reminders := reminder.New(notifier, logger)

	// API server
	apiAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.APIPort)
	apiServer := api.NewServer(api.Config{ListenAddr: apiAddr}, tr, reminders, gateway, clk, tiers, logger)
	if sdListeners.Activated && sdListeners.API != nil {
		apiServer.SetListener(sdListeners.API)
	}
	if err := apiServer.Start(); err != nil {
		return fmt.Errorf("failed to start API server: %w", err)
	}
	logger.Info().Str("addr", apiAddr).Msg("API server started")

	// Metrics server
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.MetricsPort)
	metricsServer := metrics.NewServer(metricsAddr, logger)
	if sdListeners.Activated && sdListeners.Metrics != nil {
		metricsServer.SetListener(sdListeners.Metrics)
	}
	if err := metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	logger.Info().Str("addr", metricsAddr).Msg("Metrics server started")

	logger.Info().Msg("WeekWatch startup complete")
	logger.Info().Msgf("API: http://%s/v1", apiAddr)
	logger.Info().Msgf("Metrics: http://%s/metrics", metricsAddr)

	// Notify systemd that we're ready to serve requests
	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	}

	// Wait for signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan

		if sig == syscall.SIGHUP {
			// Tier and timezone changes need a restart; re-running the
			// reconciler is the only useful live action.
			logger.Info().Msg("SIGHUP received, re-reconciling sessions against presence")
			if err := tr.Reconcile(ctx, gateway); err != nil {
				logger.Error().Err(err).Msg("Reconciliation failed")
			}
			continue
		}

		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		break
	}

	// Notify systemd that we're stopping
	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	scheduler.Stop()
	reminders.Stop()

	if err := apiServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping API server")
	}
	if err := metricsServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("Error stopping metrics server")
	}

	logger.Info().Msg("WeekWatch stopped")
	return nil
}

func openStorage(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "bolt", "":
		return bolt.Open(cfg.Path)
	case "redis":
		return redis.Open(cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (must be 'bolt' or 'redis')", cfg.Type)
	}
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// parseDuration parses a duration string with a fallback
func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"sessionbook/internal/api"
	"sessionbook/internal/availability"
	"sessionbook/internal/calendar"
	"sessionbook/internal/config"
	"sessionbook/internal/db"
	"sessionbook/internal/events"
	"sessionbook/internal/ledger"
	"sessionbook/internal/lock"
	"sessionbook/internal/metrics"
	"sessionbook/internal/report"
	"sessionbook/internal/schedule"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	database, err := db.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer database.Close()

	catalog := config.NewCatalogWatcher(cfg.CatalogPath, cfg.CatalogWatchInterval(), logger, func(c *config.CatalogConfig) error {
		return database.SyncCatalogFromConfig(ctx, c)
	})
	if _, err := catalog.Reload(); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	go catalog.Run(ctx)

	var rdb *redis.Client
	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.Address != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer rdb.Close()
		locker = lock.NewFailoverLocker(
			lock.NewRedisLocker(rdb, cfg.LockTTL(), logger),
			locker,
			lock.BreakerSettings{},
			logger,
		)
	}

	bus := events.NewEventBus(logger)
	subscribeEvents(bus)

	if cfg.Backup.Enabled {
		backups := db.NewBackupService(database, cfg.Backup.Path, cfg.BackupInterval(), cfg.Backup.RetentionDays, logger)
		go backups.Start(ctx)
	}

	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, database, rdb)
	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort)
	}

	cal := calendar.NewService(database, database, database, calendar.Options{ClampAvailable: cfg.ClampAvailable()}, logger)
	perMinute, burst := cfg.RateLimit()
	server := api.NewHTTPServer(api.Options{
		Address:        cfg.HTTP.Address,
		APIKey:         cfg.HTTP.APIKey,
		RatePerMinute:  perMinute,
		RateBurst:      burst,
		TrustedProxies: cfg.HTTP.TrustedProxies,
		ReadTimeout:    cfg.ReadTimeout(),
	}, api.Services{
		Ledger:       ledger.New(database, database, database, locker, bus, ledger.Options{LockWait: cfg.LockWait()}, logger),
		Availability: availability.NewService(database, database, database, logger),
		Calendar:     cal,
		Exporter:     report.NewExporter(cal, database, database, logger),
		Schedules:    schedule.NewService(database, database, logger),
	}, logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("http shutdown")
		}
	}()

	logger.Info().Str("db", cfg.Database.Path).Bool("redis", rdb != nil).Msg("scheduler started")
	return server.Start()
}

// subscribeEvents counts and audits every booking event.
func subscribeEvents(bus *events.EventBus) {
	audit := logger.With().Str("component", "audit").Logger()
	bus.SubscribeAll(events.AllBookingTypes, func(e events.Event) error {
		metrics.IncBookingEvent(e.Type)
		audit.Info().
			Str("event", e.Type).
			Str("booking_id", e.BookingID).
			Str("provider_id", e.ProviderID).
			Str("actor", e.Actor).
			RawJSON("payload", e.Payload).
			Msg("booking event")
		return nil
	})
}

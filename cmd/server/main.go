package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/tradeyodha-signals/internal/api"
	"github.com/irfndi/tradeyodha-signals/internal/api/handlers"
	"github.com/irfndi/tradeyodha-signals/internal/cache"
	"github.com/irfndi/tradeyodha-signals/internal/config"
	"github.com/irfndi/tradeyodha-signals/internal/database"
	"github.com/irfndi/tradeyodha-signals/internal/logging"
	"github.com/irfndi/tradeyodha-signals/internal/middleware"
	"github.com/irfndi/tradeyodha-signals/internal/services"
	"github.com/irfndi/tradeyodha-signals/internal/telemetry"
	"github.com/irfndi/tradeyodha-signals/pkg/marketdata"
)

const (
	serviceName     = "tradeyodha-signals"
	serviceVersion  = "1.0.0"
	shutdownTimeout = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.NewLogrusLogger(cfg.LogLevel, logging.FileOptions{
		Path:       cfg.LogFile.Path,
		MaxSizeMB:  cfg.LogFile.MaxSizeMB,
		MaxBackups: cfg.LogFile.MaxBackups,
		MaxAgeDays: cfg.LogFile.MaxAgeDays,
		Compress:   cfg.LogFile.Compress,
	})
	events := newEventLogger(cfg)

	ctx := context.Background()

	provider, err := telemetry.InitTelemetry(ctx, telemetry.TelemetryConfig{
		Enabled:        cfg.Telemetry.Enabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Stdout:         cfg.Telemetry.Stdout,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to shutdown telemetry")
		}
		if err := events.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Failed to flush event logs")
		}
	}()

	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	pool := database.NewTracedDB(db.Pool)

	if err := database.ApplyMigrations(ctx, pool, logger); err != nil {
		return err
	}

	rdb, err := database.NewRedisConnection(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer rdb.Close()

	cooldowns, err := newCooldownStore(cfg.Signals, pool, rdb.Client)
	if err != nil {
		return err
	}

	subscribers := database.NewSubscriberRepository(pool)
	alerts := database.NewAlertRepository(pool)

	cleanupService := services.NewCleanupService(cooldowns, alerts, subscribers, logger)
	if cfg.Cleanup.Enabled {
		cleanupService.Start(cfg.Cleanup.Interval)
		defer cleanupService.Stop()
	}

	session, err := services.NewMarketSession(cfg.Session)
	if err != nil {
		return fmt.Errorf("failed to configure market session: %w", err)
	}

	marketData := marketdata.NewClient(cfg.MarketData)
	breakers := services.NewCircuitBreakerManager(services.CircuitBreakerConfig{
		FailureThreshold: cfg.MarketData.BreakerMaxFailures,
		Timeout:          cfg.MarketData.BreakerResetTimeout,
	}, logger)
	resources := services.NewResourceMonitor(logger)

	deps := services.JobDeps{
		Config:   cfg,
		Session:  session,
		Universe: subscribers,
		Fetcher:  services.NewMarketDataFetcher(marketData, breakers, cfg.MarketData.NewsEnabled, logger),
		Stores: []services.StoreCheck{
			{Name: "postgres", Ping: pool.Ping},
			{Name: "redis", Ping: rdb.HealthCheck},
		},
		Resources: resources,
		Logger:    logger,
	}

	stateCache := cache.NewTickerStateCache(rdb.Client, cfg.Signals.StateTTL, logger)
	cleanupService.SetStateCache(stateCache)

	filter := services.NewCooldownFilter(cooldowns, cfg.Signals.CooldownWindow, logger)
	fanout := services.NewAlertFanOut(subscribers, filter, alerts, cfg.Signals.AlertTTL, logger)
	engine := services.NewSignalEngine(
		deps,
		stateCache,
		services.NewDetectorBank(cfg.Signals.Detectors, logger),
		fanout,
		cleanupService,
	)

	timelineStore := cache.NewTimelineStore(rdb.Client, cache.TimelineStoreConfig{
		MaxPoints: cfg.Timeline.MaxPoints,
		TTL:       cfg.Timeline.TTL,
		ThesisMax: cfg.Timeline.ThesisMax,
		ThesisTTL: cfg.Timeline.ThesisTTL,
	})
	recorder := services.NewTimelineRecorder(timelineStore, cfg.Timeline.MinInterval, logger)
	timelineJob := services.NewTimelineJob(deps, recorder)

	router := newRouter(cfg, events, api.RouteDeps{
		Cron:     handlers.NewCronHandler(engine, timelineJob, events),
		Timeline: handlers.NewTimelineHandler(recorder, cfg.Timeline.EMAPeriod, cfg.Timeline.MaxPoints),
		Health: handlers.NewHealthHandler([]handlers.DependencyCheck{
			{Name: "postgres", Critical: true, Check: db.HealthCheck},
			{Name: "redis", Critical: true, Check: rdb.HealthCheck},
			{Name: "market_data", Check: func(ctx context.Context) error {
				_, err := marketData.HealthCheck(ctx)
				return err
			}},
		}, breakers, resources, serviceVersion),
		Cleanup:  handlers.NewCleanupHandler(cleanupService),
		CronAuth: middleware.NewCronAuth(cfg.Cron.Secret, cfg.IsProduction()),
	})

	srv := newHTTPServer(cfg, router)

	serverErr := make(chan error, 1)
	go func() {
		events.LogStartup(serviceName, serviceVersion, cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		events.LogShutdown(serviceName, "signal received: "+sig.String())
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

func newEventLogger(cfg *config.Config) *logging.StandardLogger {
	if cfg.Telemetry.LogsEnabled && cfg.Telemetry.OTLPEndpoint != "" {
		return logging.NewStandardOTLPLogger(logging.OTLPConfig{
			Enabled:        true,
			Endpoint:       cfg.Telemetry.OTLPEndpoint,
			ServiceName:    serviceName,
			ServiceVersion: serviceVersion,
			Environment:    cfg.Environment,
			LogLevel:       cfg.LogLevel,
		})
	}
	return logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
}

// newCooldownStore selects where suppression windows live.
func newCooldownStore(cfg config.SignalsConfig, pool database.DatabasePool, client redis.Cmdable) (services.CooldownStore, error) {
	switch cfg.CooldownBackend {
	case config.CooldownBackendPostgres:
		return database.NewCooldownRepository(pool), nil
	case config.CooldownBackendRedis:
		return cache.NewCooldownCache(client), nil
	default:
		return nil, fmt.Errorf("unknown cooldown backend %q", cfg.CooldownBackend)
	}
}

func newRouter(cfg *config.Config, events middleware.RequestLogger, deps api.RouteDeps) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(middleware.RequestTelemetry(events))

	api.SetupRoutes(router, deps)
	return router
}

// newHTTPServer leaves room for a full run to finish before the write deadline.
func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Signals.RunTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}
}


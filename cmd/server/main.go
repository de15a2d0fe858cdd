package main

// @title           Engagement Service API
// @version         1.0
// @description     Real-time engagement engine: session registry, attention scoring and alerts.
// @host            localhost:5000
// @BasePath        /api/v1
// @schemes         http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"engagement-service/internal/adapters/database"
	"engagement-service/internal/adapters/kafka"
	"engagement-service/internal/api/handlers"
	"engagement-service/internal/api/middleware"
	"engagement-service/internal/api/routes"
	"engagement-service/internal/config"
	sqldb "engagement-service/internal/database"
	"engagement-service/internal/repositories"
	"engagement-service/internal/repositories/memory"
	"engagement-service/internal/repositories/postgres"
	"engagement-service/internal/services"
	"engagement-service/internal/websocket"
	"engagement-service/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("Starting engagement server", "storeDriver", cfg.Store.Driver, "scope", cfg.Engine.BroadcastScope)
	ctx := context.Background()

	store, closeStore, err := openStore(cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeStore()

	var (
		publishers services.FanoutPublisher
		hubOpts    []websocket.HubOption
		limiter    middleware.RateLimiter
		pingers    = map[string]handlers.Pinger{}
		objects    services.ObjectStore
	)

	// Initialize Redis connection
	if cfg.Redis.Enabled() {
		redisClient, err := sqldb.NewRedisConnection(cfg.Redis, log)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		redisService := services.NewRedisService(redisClient, log)
		hubOpts = append(hubOpts, websocket.WithPresence(redisService))
		publishers = append(publishers, redisService)
		limiter = redisService
		pingers["redis"] = redisClient
	}

	// Initialize Kafka producer
	if cfg.Kafka.Enabled() {
		producer, err := kafka.InitKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			return err
		}
		publisher := kafka.NewPublisher(producer, cfg.Kafka)
		defer publisher.Close()
		publishers = append(publishers, publisher)
		log.Info("Kafka publisher ready", "brokers", cfg.Kafka.Brokers)
	}

	// Initialize MinIO for report export
	if cfg.MinIO.Enabled() {
		minioClient, err := database.NewMinIOClient(ctx, cfg.MinIO, log)
		if err != nil {
			return err
		}
		objects = minioClient
	}

	if len(publishers) > 0 {
		hubOpts = append(hubOpts, websocket.WithPublisher(publishers))
	}

	scope, err := websocket.ParseBroadcastScope(cfg.Engine.BroadcastScope)
	if err != nil {
		return err
	}

	// Initialize WebSocket hub and the evaluation scheduler
	hub := websocket.NewHub(store, websocket.HubConfig{
		Scope:        scope,
		SendBuffer:   cfg.Engine.SendBuffer,
		StoreTimeout: cfg.Engine.StoreTimeout,
	}, log, hubOpts...)

	scheduler := websocket.NewScheduler(hub, websocket.SchedulerConfig{
		Interval:        cfg.Engine.TickInterval,
		SessionTimeout:  cfg.Engine.SessionTimeout,
		HistoryCapacity: cfg.Engine.HistoryCapacity,
		WindowedAlerts:  cfg.Engine.WindowedAlerts,
		AlertCooldown:   cfg.Engine.AlertCooldown,
	})
	schedCtx, stopScheduler := context.WithCancel(ctx)
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		scheduler.Run(schedCtx)
	}()

	// Initialize router with all dependencies
	router := routes.NewRouter(cfg.Server, routes.Dependencies{
		Store:     store,
		Hub:       hub,
		Scheduler: scheduler,
		Reports:   services.NewReportService(store, scheduler, objects),
		Limiter:   limiter,
		Pingers:   pingers,
		Logger:    log,
	})
	router.SetupRoutes()

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		if err != nil {
			stopScheduler()
			<-schedDone
			hub.Shutdown()
			return fmt.Errorf("server failed to start: %w", err)
		}
	}

	log.Info("Server shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopScheduler()
	<-schedDone
	hub.Shutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}

	log.Info("Server stopped")
	return nil
}

// openStore builds the durable store for the configured driver, guarded by
// the circuit breaker when enabled.
func openStore(cfg config.StoreConfig, log *logger.Logger) (repositories.Store, func(), error) {
	var (
		store     repositories.Store
		closeFunc = func() {}
	)

	switch cfg.Driver {
	case config.DriverMemory:
		var opts []memory.Option
		if cfg.SeedSession != "" {
			opts = append(opts, memory.WithSeedSession(cfg.SeedSession))
		}
		store = memory.New(opts...)
	default:
		db, err := sqldb.NewSQLConnection(cfg.Driver, cfg.DSN, log)
		if err != nil {
			return nil, nil, err
		}
		store = postgres.NewStore(db)
		closeFunc = func() {
			if err := sqldb.CloseSQL(db); err != nil {
				log.Warn("Failed to close database", "error", err)
			}
		}
	}

	if !cfg.Breaker.Enabled {
		return store, closeFunc, nil
	}
	breakerCfg := repositories.DefaultBreakerConfig()
	if cfg.Breaker.Timeout > 0 {
		breakerCfg.Timeout = cfg.Breaker.Timeout
	}
	if cfg.Breaker.FailureRatio > 0 {
		breakerCfg.FailureThreshold = cfg.Breaker.FailureRatio
	}
	if cfg.Breaker.MinRequests > 0 {
		breakerCfg.MinRequests = cfg.Breaker.MinRequests
	}
	return repositories.NewBreakerStore(store, breakerCfg, log), closeFunc, nil
}

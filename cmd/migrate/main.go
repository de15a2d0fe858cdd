package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"engagement-service/internal/config"
	"engagement-service/internal/database"
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

	if cfg.Store.Driver == config.DriverMemory {
		log.Info("STORE_DRIVER is memory, nothing to migrate")
		return
	}

	log.Info("Starting database migration...", "driver", cfg.Store.Driver)

	// Connecting runs the schema migration
	db, err := database.NewSQLConnection(cfg.Store.Driver, cfg.Store.DSN, log)
	if err != nil {
		log.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = database.CloseSQL(db) }()

	sqlDB, err := db.DB()
	if err != nil {
		log.Error("Failed to get database instance", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		log.Error("Failed to ping database", "error", err)
		os.Exit(1)
	}

	log.Info("Database migration completed successfully!")
}

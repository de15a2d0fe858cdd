package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"engagement-service/internal/config"
	"engagement-service/internal/database"
	"engagement-service/internal/models"
	"engagement-service/internal/repositories/postgres"
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
		log.Info("STORE_DRIVER is memory; the server seeds its own session")
		return
	}
	if cfg.Store.SeedSession == "" {
		log.Info("STORE_SEED_SESSION is empty, nothing to seed")
		return
	}

	log.Info("Starting database seeding...")

	db, err := database.NewSQLConnection(cfg.Store.Driver, cfg.Store.DSN, log)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = database.CloseSQL(db) }()

	store := postgres.NewStore(db)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	active, err := store.ActiveSessions(ctx)
	if err != nil {
		log.Error("Failed to list sessions", "error", err)
		os.Exit(1)
	}
	for _, s := range active {
		if s.Name == cfg.Store.SeedSession {
			log.Info("Seed session already exists", "id", s.ID, "name", s.Name)
			return
		}
	}

	session, err := store.CreateSession(ctx, models.NewSession{Name: cfg.Store.SeedSession, OwnerID: 1})
	if err != nil {
		log.Error("Failed to create seed session", "error", err)
		os.Exit(1)
	}

	log.Info("Created seed session", "id", session.ID, "name", session.Name)
	log.Info("Database seeding completed successfully!")
}

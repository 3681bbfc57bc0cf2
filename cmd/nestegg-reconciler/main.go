package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"nestegg/internal/config"
	"nestegg/internal/log"
	"nestegg/internal/services"
	"nestegg/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentReconciler})
	log.SetDefault(logger)

	logger.Info("Starting nestegg-reconciler")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository",
			log.FieldError, err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	reconciler := services.NewReconciler(repo)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	run := func() {
		runCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		repaired, err := reconciler.ReconcileInstallments(runCtx)
		if err != nil {
			logger.Error("Reconciliation run failed", log.FieldError, err)
			return
		}
		logger.Info("Reconciliation run finished", "repaired", repaired)
	}

	// One pass at startup so drift never waits for the first scheduled run.
	run()

	c := cron.New()
	if _, err := c.AddFunc(cfg.ReconcileSchedule, run); err != nil {
		logger.Error("Invalid reconcile schedule",
			log.FieldError, err, "schedule", cfg.ReconcileSchedule)
		os.Exit(1)
	}
	c.Start()
	logger.Info("Reconciliation scheduled", "schedule", cfg.ReconcileSchedule)

	<-ctx.Done()
	cronCtx := c.Stop()
	<-cronCtx.Done()
	logger.Info("nestegg-reconciler stopped")
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/panjf2000/ants/v2"

	"github.com/switchdesk-settlements-console/internal/clients/ledger"
	"github.com/switchdesk-settlements-console/internal/clients/settlements"
	"github.com/switchdesk-settlements-console/internal/config"
	"github.com/switchdesk-settlements-console/internal/console"
	"github.com/switchdesk-settlements-console/internal/console/service"
	"github.com/switchdesk-settlements-console/internal/data/mongo"
	"github.com/switchdesk-settlements-console/internal/data/postgres"
	"github.com/switchdesk-settlements-console/internal/finalizer"
	"github.com/switchdesk-settlements-console/internal/logger"
	"github.com/switchdesk-settlements-console/internal/platform/persistence"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("console_api")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// HTTP clients for the switch collaborator services
	httpClient := &http.Client{Timeout: cfg.Switch.RequestTimeout}
	settlementClient := settlements.NewClient(log, cfg.Switch.SettlementServiceURL, httpClient)
	ledgerClient := ledger.NewClient(log, cfg.Switch.LedgerServiceURL, httpClient)

	// Worker pool for the collector's concurrent reference-data fetches
	pool, err := ants.NewPool(cfg.WorkerPool.Size)
	if err != nil {
		log.Error("Failed to initialize worker pool", "error", err)
		os.Exit(1)
	}

	collector := finalizer.NewCollector(log, ledgerClient, pool)
	engine := finalizer.NewEngine(log, settlementClient, ledgerClient, finalizer.EngineConfig{
		BalancePollAttempts: cfg.Finalizer.BalancePollAttempts,
		BalancePollInterval: cfg.Finalizer.BalancePollInterval,
		StatePollAttempts:   cfg.Finalizer.StatePollAttempts,
		StatePollInterval:   cfg.Finalizer.StatePollInterval,
	})

	// Initialize repositories
	attemptRepo := postgres.NewAttemptRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	archiveRepo := mongo.NewArchiveRepository(log, mongoDB.Database())

	// Initialize services
	reportService := service.NewReportService(log, settlementClient, collector, archiveRepo)
	finalizeService := service.NewFinalizeService(
		log,
		settlementClient,
		collector,
		engine,
		archiveRepo,
		attemptRepo,
		outboxRepo,
		postgresDB,
	)
	adminService := service.NewSettlementAdminService(log, settlementClient)

	// Initialize REST server
	server := console.NewServer(log, cfg, reportService, finalizeService, adminService)
	log.Info("REST server initialized")

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first so in-flight finalizations drain
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	pool.Release()
	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}

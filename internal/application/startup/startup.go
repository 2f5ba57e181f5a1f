// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LinguaQuest/linguaquest-go/internal/application/container"
	"github.com/LinguaQuest/linguaquest-go/internal/infrastructure/caching/cleanup"
	"github.com/LinguaQuest/linguaquest-go/internal/presentation/http/server"
	"github.com/LinguaQuest/linguaquest-go/pkg/config"
)

// Initialize performs the complete startup sequence
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("\033[32m" + `

  ██   ▀█▀ ██▄ █ ▄██▀ █ █ ██▄ ▄██▄ ▄██▀▄ █ █ ██▀ ▄██▀ ▀██▀
  ██    █  █ ██ █ █ ▄▄█ █ █▄█ █  █ █  ▄█ █ █ █▄▄ ▀██▄  ██
  ██▄▄ ▄█▄ █  ██▄ ▀██▀█▄█ █ █ █▄▄█ ▀██▀▀▄█▄█▄█▄▄ ▄▄██  ██
` + "\033[97m" + `
  reward ledger & sync engine
` + "\033[0m")

	// Step 1: Configuration loads in the config package init; announce it
	log.Println("Initializing...")

	// Step 2: Build the dependency injection container (logger, store,
	// schema, cache, bus, limiter, services)
	log.Println("Initializing dependency injection container...")
	appContainer, err := container.NewContainer()
	if err != nil {
		return fmt.Errorf("container initialization failed: %w", err)
	}
	log.Println("✓ Dependency injection container created with singleton services.")

	logger := appContainer.Logger
	logger.Startup().Info("Container initialization complete - switching to channeled logging")

	// Step 3: Start the sync queue flush loop
	logger.Startup().Info("Starting sync queue flush loop...")
	go appContainer.SyncService.Start(ctx)

	// Step 4: Start the reconciliation audit loop
	logger.Startup().Info("Starting reconciliation loop...")
	go appContainer.ReconciliationService.Start(ctx)

	// Step 5: Start background cleanup worker
	logger.Startup().Info("Starting background cleanup worker...")
	startWorkerTime := time.Now()

	cleanupConfig := cleanup.NewConfig()
	cleanupWorker := cleanup.NewWorker(appContainer.CacheManager, cleanupConfig, appContainer.RateLimiter)
	go cleanupWorker.Start(ctx)

	logger.Startup().Info("Background cleanup worker started", "duration", time.Since(startWorkerTime))

	// Step 6: Start the system health monitor
	logger.Startup().Info("Starting system monitor...")
	go appContainer.Monitor.Start(ctx)

	// Step 7: Start HTTP server
	logger.Startup().Info("Starting HTTP server...")
	startServerTime := time.Now()

	port := config.Port
	httpServer := server.New(port, appContainer)

	logger.Startup().Info("HTTP server initialized", "port", port, "duration", time.Since(startServerTime))

	// Step 8: Setup graceful shutdown
	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	totalStartupTime := time.Since(start)
	logger.Startup().Info("Application startup complete",
		"totalDuration", totalStartupTime,
		"port", port)

	// Wait for shutdown signal
	<-gracefulShutdown
	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")

	shutdownStart := time.Now()

	// Cancel background tasks
	cancelBackgroundTasks()

	// Stop server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	// Drain in-flight sync work and close held resources
	logger.Shutdown().Info("Closing container...")
	if err := appContainer.Close(); err != nil {
		logger.Shutdown().Error("Error closing container", "error", err.Error())
	} else {
		logger.Shutdown().Info("Container closed successfully")
	}

	elapsed := time.Since(start)
	log.Printf("Application shutdown complete (uptime %v, shutdown %v)", elapsed, time.Since(shutdownStart))

	return nil
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

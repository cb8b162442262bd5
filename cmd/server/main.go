/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the shop engine server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Load configuration (.env honored, SHOP_* env overrides)
  3. Initialize logging and the SQLite store
  4. Wire reconciler, coordinator, planner, handler, router
  5. Seed a fresh shop (no-op when already seeded)
  6. Start the restock scheduler and the HTTP server

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: shop.db)
           Use ":memory:" for an in-memory database
  -env     Environment name: "production" switches to JSON logs

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the restock scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/shop.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on a different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/alembic/shop-engine/api"
	"github.com/alembic/shop-engine/ledger"
	"github.com/alembic/shop-engine/shop"
	"github.com/alembic/shop-engine/store/sqlite"
	"github.com/alembic/shop-engine/telemetry"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "shop.db", "SQLite database path")
	env := flag.String("env", "development", "environment name (development|production)")
	flag.Parse()

	if err := telemetry.InitLogger(*env); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer telemetry.Sync()
	log := telemetry.Logger()

	// Configuration
	cfg, err := shop.Load()
	if err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	// Wire the engine
	reconciler := ledger.NewReconciler(store, store, nil, log)
	coordinator := shop.NewCoordinator(store, reconciler, cfg, nil, log)
	planner := shop.NewPlanner(store, cfg)

	if err := coordinator.EnsureSeed(context.Background()); err != nil {
		log.Fatal("failed to seed shop", zap.Error(err))
	}

	handler := api.NewHandler(coordinator, planner, store, cfg, log)
	router := api.NewRouter(handler)

	// Background restocking
	scheduler := api.NewRestockScheduler(coordinator, planner, log)
	scheduler.Start()
	defer scheduler.Stop()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server starting",
			zap.Int("port", *port),
			zap.String("db", *dbPath),
			zap.String("env", *env))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

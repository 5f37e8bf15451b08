/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the pantry server: dish preparation, FIFO
  inventory consumption and the consumption log over HTTP.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (environment, then flags)
  2. Open the SQLite or PostgreSQL store
  3. Optionally seed a menu from JSON
  4. Create API handler and reconciliation scheduler
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port                HTTP server port (default: 8080)
  -driver              sqlite or postgres (default: sqlite)
  -db                  SQLite database path (default: pantry.db)
                       Use ":memory:" for in-memory database
  -dsn                 PostgreSQL DSN
  -cors                Comma-separated allowed origins
  -reconcile-interval  Scheduler interval, 0 disables (default: 1h)
  -seed                Menu JSON file to load on startup

ENVIRONMENT:
  PANTRY_PORT, PANTRY_DRIVER, PANTRY_DB, DATABASE_DSN,
  CORS_ALLOWED_ORIGINS, PANTRY_RECONCILE_INTERVAL, PANTRY_SEED
  Flags take precedence.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection

EXAMPLES:
  # Run with in-memory database and demo menu
  ./server -db=":memory:" -seed=menu.json

  # Run against PostgreSQL
  DATABASE_DSN="host=db user=pantry dbname=pantry sslmode=disable" ./server -driver=postgres

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go, store/postgres/postgres.go: Stores
*/
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/pantry/api"
	"github.com/warp/pantry/factory"
	"github.com/warp/pantry/store/postgres"
	"github.com/warp/pantry/store/sqlite"
)

type closableStore interface {
	api.Store
	io.Closer
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize store
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	if cfg.SeedFile != "" {
		if err := seed(context.Background(), store, cfg.SeedFile); err != nil {
			log.Fatalf("Failed to seed menu: %v", err)
		}
		log.Printf("Seeded menu from %s", cfg.SeedFile)
	}

	// Initialize handler and scheduler
	handler := api.NewHandler(store)

	scheduler := api.NewReconciliationScheduler(handler.Reconciler)
	scheduler.CheckInterval = cfg.ReconcileInterval
	scheduler.Start()

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      api.NewRouter(handler, cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d (%s store)", cfg.Port, cfg.Driver)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func openStore(cfg *Config) (closableStore, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlite.New(cfg.DBPath)
	case "postgres":
		return postgres.Open(cfg.DatabaseDSN)
	}
	return nil, fmt.Errorf("unknown driver %q (want sqlite or postgres)", cfg.Driver)
}

func seed(ctx context.Context, store api.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	menu, err := factory.NewMenuFactory().ParseMenu(string(data))
	if err != nil {
		return err
	}
	return menu.Load(ctx, store)
}

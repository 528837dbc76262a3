/*
main.go - Application entry point

PURPOSE:
  Starts the consultation ledger API server. Handles configuration,
  dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load config (.env, environment, flags)
  2. Build the zap logger
  3. Open the store (SQLite or PostgreSQL)
  4. Create API handler and router
  5. Optionally seed a demo scenario
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (overrides PORT)
  -db      SQLite database path (overrides DB_PATH)
           Use ":memory:" for in-memory database
  -driver  sqlite | postgres (overrides DB_DRIVER)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  JWT_SECRET=dev ./server -db="./data/ledger.db"

  # Run in memory with demo data and the scenario routes
  JWT_SECRET=dev SEED_SCENARIO=paid-booking ENABLE_SCENARIOS=true ./server -db=":memory:"

  # Run against PostgreSQL
  JWT_SECRET=dev DATABASE_URL=postgres://... ./server -driver=postgres

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/warp/consult-ledger/api"
	"github.com/warp/consult-ledger/config"
	"github.com/warp/consult-ledger/store/postgres"
	"github.com/warp/consult-ledger/store/sqlite"
)

type closableStore interface {
	api.Store
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags
	port := flag.Int("port", cfg.Server.Port, "HTTP server port")
	dbPath := flag.String("db", cfg.Database.Path, "SQLite database path")
	driver := flag.String("driver", cfg.Database.Driver, "Database driver: sqlite or postgres")
	flag.Parse()
	cfg.Server.Port = *port
	cfg.Database.Path = *dbPath
	cfg.Database.Driver = *driver

	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// Initialize store
	store, err := openStore(cfg.Database)
	if err != nil {
		logger.Fatal("failed to initialize database", zap.String("driver", cfg.Database.Driver), zap.Error(err))
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, api.NewAuthenticator(cfg.JWT), logger)

	if cfg.SeedScenario != "" {
		if err := handler.Seed(context.Background(), cfg.SeedScenario); err != nil {
			logger.Fatal("failed to seed scenario", zap.String("scenario", cfg.SeedScenario), zap.Error(err))
		}
	}

	// Create router
	router := api.NewRouter(handler, api.RouterOptions{
		AllowedOrigins:  cfg.Server.CORSOrigins,
		EnableScenarios: cfg.Server.EnableScenarios,
	})
	if cfg.Server.EnableScenarios {
		logger.Warn("demo scenario routes enabled; POST /api/scenarios/reset wipes the store")
	}

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("driver", cfg.Database.Driver),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}

func openStore(cfg config.DatabaseConfig) (closableStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(cfg.URL)
	default:
		return sqlite.New(cfg.Path)
	}
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the budget cost engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (file + BUDGET_* env)
  2. Build the zap logger
  3. Open the SQLite store (migrations run on open)
  4. Wire engine, recorder and catalog service to the metrics observer
  5. Configure HTTP router
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Optional YAML config file
  -db      SQLite database path, overrides database.path
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests (http.shutdown_timeout)
  3. Close database connection

EXAMPLES:
  ./server -config=./budget.yaml
  BUDGET_HTTP_ADDR=:3000 BUDGET_LOGGING_FORMAT=console ./server -db=":memory:"

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/budget-engine/api"
	"github.com/warp/budget-engine/catalog"
	"github.com/warp/budget-engine/config"
	"github.com/warp/budget-engine/cost"
	"github.com/warp/budget-engine/logging"
	"github.com/warp/budget-engine/metrics"
	"github.com/warp/budget-engine/store/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "YAML config file")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer store.Close()

	m := metrics.New()
	engine := cost.NewEngine(store, cost.WithLogger(logger), cost.WithObserver(m))
	recorder := cost.NewRecorder(store, logger)
	recorder.Observer = m
	svc := catalog.NewService(store, recorder, logger)

	opts := api.RouterOptions{AllowedOrigins: cfg.CORS.AllowedOrigins}
	if cfg.Metrics.Enabled {
		opts.Metrics = m
	}
	router := api.NewRouter(api.NewHandler(store, engine, svc, logger), opts)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("database", cfg.Database.Path),
			zap.Bool("metrics", cfg.Metrics.Enabled))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

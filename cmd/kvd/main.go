package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/leafsii/sqlkv/internal/api"
	"github.com/leafsii/sqlkv/internal/config"
	"github.com/leafsii/sqlkv/internal/log"
	"github.com/leafsii/sqlkv/internal/metrics"
	"github.com/leafsii/sqlkv/pkg/kv"

	_ "github.com/leafsii/sqlkv/pkg/kv/postgres"
	_ "github.com/leafsii/sqlkv/pkg/kv/sqlite"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger, err := log.NewSugar(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infow("Starting sqlkv server",
		"env", cfg.Env,
		"addr", cfg.HTTP.Addr,
		"driver", cfg.Store.Driver,
		"table", cfg.Store.Table,
	)

	// Setup metrics
	metricsObj, metricsHandler, err := metrics.Setup("sqlkv")
	if err != nil {
		logger.Fatalw("Failed to setup metrics", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	kvCfg := cfg.KV(log.KVLogFunc(logger))
	db, err := kv.OpenDatabase(ctx, kvCfg)
	if err != nil {
		logger.Fatalw("Failed to initialize database", "error", err)
	}
	defer db.Close()
	logger.Infow("Database initialized", "auto_migrate", kvCfg.AutoMigrate)

	store, err := kv.New(metrics.InstrumentBackend(db, metricsObj),
		kv.WithTable(kvCfg.Table),
		kv.WithReapThreshold(*kvCfg.ReapThreshold),
		kv.WithLogger(kvCfg.Logger),
	)
	if err != nil {
		logger.Fatalw("Failed to create store", "error", err)
	}

	// Setup API handler and middleware
	handler := api.NewHandler(store, db, logger, metricsObj)
	middleware := api.NewMiddleware(logger, metricsObj)

	router := handler.Routes(middleware, api.RouteOptions{
		CORSAllowedOrigins: cfg.Security.CORSAllowedOrigins,
		RateLimitRPM:       cfg.Security.RateLimitRPM,
		RequestTimeout:     cfg.HTTP.RequestTimeout,
		Metrics:            metricsHandler,
	})

	logger.Infow("CORS configured", "allowed_origins", cfg.Security.CORSAllowedOrigins)

	// Setup HTTP server
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.HTTP.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		logger.Infow("API server starting", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	// Wait for interrupt signal
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Fatalw("Server startup failed", "error", err)
	case sig := <-shutdown:
		logger.Infow("Shutdown signal received", "signal", sig.String())

		// Give outstanding requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			logger.Errorw("Graceful shutdown failed", "error", err)
			server.Close()
		}

		logger.Infow("Server stopped")
	}
}

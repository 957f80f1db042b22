package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/recallhq/recall/internal/api"
	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/graph"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if err := config.Load(); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	db, err := graph.Connect(ctx, config.MemgraphURL(), config.MemgraphUser(), config.MemgraphPassword(), logger)
	if err != nil {
		logger.Fatal("failed to connect to memgraph", zap.Error(err))
	}
	defer func() { _ = db.Close(ctx) }()

	if err := db.InitSchema(ctx, config.EmbeddingDims()); err != nil {
		logger.Fatal("failed to initialize schema", zap.Error(err))
	}
	logger.Info("connected to memgraph", zap.String("url", config.MemgraphURL()))

	app, err := api.NewApp(db, logger)
	if err != nil {
		logger.Fatal("failed to build application", zap.Error(err))
	}

	// Start background services
	app.Pool.Start()
	app.Reaper.Start()

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	// Stop background services after the listener drains so in-flight
	// requests can still enqueue extraction jobs.
	app.Pool.Stop()
	app.Reaper.Stop()

	logger.Info("server stopped")
}

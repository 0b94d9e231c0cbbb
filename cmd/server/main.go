// Package main is the entry point for the frontier portfolio optimization service.
// It serves efficient-frontier optimization, Monte Carlo projections and portfolio
// risk metrics over HTTP, backed by three SQLite databases:
//   - portfolio.db: portfolios and their current positions
//   - history.db: daily closing prices
//   - calculations.db: memoized optimization and simulation results
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/di"
	"github.com/aristath/frontier/internal/server"
	"github.com/aristath/frontier/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Int("frontier_points", cfg.FrontierPoints).
		Int("simulation_workers", cfg.SimulationWorkers).
		Msg("Starting frontier")

	// Wire all dependencies (databases, repositories, engines, jobs)
	container, jobs, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	// Cleanup databases on exit
	defer container.Close()

	container.Scheduler.Start()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Container: container,
		Jobs:      jobs,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// In-flight simulations observe request cancellation and return partial results
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	container.Scheduler.Stop()

	log.Info().Msg("Server stopped")
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/expass/internal/config"
	"github.com/jwalitptl/expass/internal/handler/health"
	"github.com/jwalitptl/expass/internal/repository/postgres"
	"github.com/jwalitptl/expass/internal/worker"
	"github.com/jwalitptl/expass/pkg/logger"
)

func setupHealthCheck(port int, checks map[string]health.Check) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	health.NewHandler(checks).RegisterRoutes(engine.Group(""))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func main() {
	// Load config
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize logger
	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	}).WithFields(map[string]interface{}{"component": "worker"})
	log.Logger = appLogger.ZL

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Setup health check endpoints
	srv := setupHealthCheck(cfg.Worker.HealthPort, map[string]health.Check{"database": db.PingContext})
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health check server failed")
			stop()
		}
	}()

	tokens := postgres.NewTokenRepository(postgres.NewBaseRepository(db))
	cleanup := worker.NewTokenCleanupWorker(tokens, cfg.Worker.TokenRetention, cfg.Worker.TokenCleanupInterval, appLogger)

	log.Info().Dur("interval", cfg.Worker.TokenCleanupInterval).Msg("worker started")
	cleanup.Start(ctx)
	log.Info().Msg("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}
}

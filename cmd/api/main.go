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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/expass/internal/config"
	"github.com/jwalitptl/expass/internal/email"
	authHandler "github.com/jwalitptl/expass/internal/handler/auth"
	"github.com/jwalitptl/expass/internal/handler/health"
	policyHandler "github.com/jwalitptl/expass/internal/handler/policy"
	promHandler "github.com/jwalitptl/expass/internal/handler/prometheus"
	userHandler "github.com/jwalitptl/expass/internal/handler/user"
	"github.com/jwalitptl/expass/internal/middleware"
	"github.com/jwalitptl/expass/internal/repository/postgres"
	"github.com/jwalitptl/expass/internal/router"
	authService "github.com/jwalitptl/expass/internal/service/auth"
	"github.com/jwalitptl/expass/internal/service/credential"
	"github.com/jwalitptl/expass/internal/service/enforcement"
	"github.com/jwalitptl/expass/internal/service/expiration"
	"github.com/jwalitptl/expass/internal/service/policy"
	"github.com/jwalitptl/expass/internal/service/reuse"
	userService "github.com/jwalitptl/expass/internal/service/user"
	"github.com/jwalitptl/expass/internal/session"
	"github.com/jwalitptl/expass/pkg/auth"
	"github.com/jwalitptl/expass/pkg/event"
	"github.com/jwalitptl/expass/pkg/logger"
	"github.com/jwalitptl/expass/pkg/messaging"
	"github.com/jwalitptl/expass/pkg/messaging/redis"
	"github.com/jwalitptl/expass/pkg/metrics"
	"github.com/jwalitptl/expass/pkg/security"
)

const metricsNamespace = "expass"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
	})
	log.Logger = appLogger.ZL
	zerolog.SetGlobalLevel(logger.ParseLevel(cfg.Log.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis
	redisClient, err := redis.NewClient(redis.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure Redis")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer redisClient.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(metricsNamespace, reg)

	// Events
	broker := redis.NewRedisBroker(redisClient, &appLogger.ZL, m)
	events := event.NewService(messaging.NewChannelPublisher(broker, cfg.Events.Channel), appLogger)

	// Initialize repositories
	base := postgres.NewBaseRepository(db)
	userRepo := postgres.NewUserRepository(base)
	roleRepo := postgres.NewRoleRepository(base)
	credentialRepo := postgres.NewCredentialRepository(base)
	policyRepo := postgres.NewPolicyRepository(base)
	tokenRepo := postgres.NewTokenRepository(base)

	// Initialize services
	hasher := security.NewBcryptHasher(bcrypt.DefaultCost)
	jwtSvc := auth.NewJWTService(cfg.Session.Secret, metricsNamespace)
	sessions := session.NewManager(redisClient, jwtSvc, cfg.Session.TTL, m)

	policySvc := policy.NewService(policyRepo, roleRepo, policy.Config{
		DefaultLimit:  policy.StaticDefault(cfg.Policy.DefaultLimitDays),
		ProtectedRole: cfg.Policy.ProtectedRole,
		CacheTTL:      cfg.Policy.CacheTTL,
	}, appLogger, m, events)
	// Policy changes saved by other replicas flush this replica's cache.
	go func() {
		if err := policySvc.WatchUpdates(ctx, broker, cfg.Events.Channel); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("policy update watcher stopped")
		}
	}()
	credentialSvc := credential.NewService(credentialRepo, time.Now)
	engine := expiration.NewEngine(userRepo, policySvc, credentialSvc, cfg.Policy.Location(), time.Now, m)
	machine := enforcement.NewMachine(credentialSvc, engine, sessions, policySvc,
		cfg.Recovery.LoginURL, appLogger, m, events)
	guard := reuse.NewGuard(policySvc, hasher, appLogger, m)

	smtpCfg, err := email.LoadSMTPConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load SMTP configuration")
	}

	authSvc := authService.NewService(authService.Dependencies{
		Users:       userRepo,
		Tokens:      tokenRepo,
		Hasher:      hasher,
		Sessions:    sessions,
		Enforcer:    machine,
		Reuse:       guard,
		Credentials: credentialSvc,
		Email:       email.NewSMTPService(smtpCfg),
		Events:      events,
		Logger:      appLogger,
		Metrics:     m,
		DefaultRole: cfg.Registration.DefaultRole,
	})
	userSvc := userService.NewService(userRepo, engine)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(authSvc)
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:  rate.Limit(cfg.RateLimit.RequestsPerSecond),
		Burst: cfg.RateLimit.Burst,
	})
	go rateLimiter.Run(ctx, time.Minute)

	// Setup router
	r := router.NewRouter(
		authMiddleware,
		rateLimiter,
		promHandler.New(metricsNamespace, reg),
		router.Handlers{
			Health: health.NewHandler(map[string]health.Check{
				"database": db.PingContext,
				"redis": func(ctx context.Context) error {
					return redisClient.Ping(ctx).Err()
				},
			}),
			Auth:   authHandler.NewHandler(authSvc, machine),
			Policy: policyHandler.NewHandler(policySvc),
			User:   userHandler.NewHandler(userSvc),
		},
		router.Config{ProtectedRole: cfg.Policy.ProtectedRole},
	)
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

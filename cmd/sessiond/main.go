// Package main is the entry point for the Solvio session daemon.
// It hosts the session lifecycle manager, the authorization guard and the
// role change workflow behind a single HTTP API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/solvio/solvio-core/internal/api"
	"github.com/solvio/solvio-core/internal/audit"
	"github.com/solvio/solvio-core/internal/common/config"
	"github.com/solvio/solvio-core/internal/common/database"
	apperrors "github.com/solvio/solvio-core/internal/common/errors"
	"github.com/solvio/solvio-core/internal/common/events"
	"github.com/solvio/solvio-core/internal/common/logger"
	"github.com/solvio/solvio-core/internal/health"
	"github.com/solvio/solvio-core/internal/identity"
	"github.com/solvio/solvio-core/internal/metrics"
	"github.com/solvio/solvio-core/internal/middleware"
	"github.com/solvio/solvio-core/internal/rolechange"
	"github.com/solvio/solvio-core/internal/securecache"
	"github.com/solvio/solvio-core/internal/server"
	"github.com/solvio/solvio-core/internal/session"
)

var (
	Version    = "dev"
	BuildTime  = "unknown"
	CommitHash = "unknown"
)

func main() {
	log := logger.New()
	defer log.Sync()

	log.Info("Starting Solvio session daemon",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("commit", CommitHash),
	)

	cfg, err := config.Load("sessiond")
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}
	cfg.LogSecurityWarnings(log)

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	if err := applySchema(context.Background(), db); err != nil {
		log.Fatal("Failed to apply database schema", zap.Error(err))
	}

	// Storage and messaging
	users := identity.NewPostgresStore(db.Pool, log)
	requests := rolechange.NewPostgresRequestStore(db.Pool, log)

	sink, err := audit.NewPostgresSink(db.Pool, cfg.AuditSecret, log)
	if err != nil {
		log.Fatal("Failed to initialize audit sink", zap.Error(err))
	}

	bus := events.NewMemoryBus()

	encrypter, err := securecache.NewAES256GCMEncrypter(cfg.CacheEncryptionKey)
	if err != nil {
		log.Fatal("Failed to initialize cache encrypter", zap.Error(err))
	}
	kv := securecache.NewRedisStore(redis.Client, "solvio:session")
	cache := securecache.New(kv, encrypter, log)

	provider := identity.NewLocalProvider(users, kv, identity.ProviderConfig{
		SessionTTL: cfg.SessionTTL(),
		JWTSecret:  cfg.JWTSecret,
		JWTIssuer:  cfg.JWTIssuer,
	}, log)

	// One-time elevated account bootstrap. Safe to run on every boot.
	if cfg.BootstrapEmail != "" && cfg.BootstrapPassword != "" {
		bootstrapper := identity.NewBootstrapper(users, users, sink, log)
		_, err := bootstrapper.EnsureElevated(context.Background(), cfg.BootstrapEmail, "Administrator", cfg.BootstrapPassword)
		if err != nil && !apperrors.IsErrorCode(err, apperrors.ErrElevatedExists) {
			log.Fatal("Failed to bootstrap elevated account", zap.Error(err))
		}
	}

	manager := session.NewManager(provider, users, cache, sink, bus, session.Config{
		RevalidateInterval: cfg.RevalidateInterval(),
	}, log)

	// Session recovery failures are fatal: a daemon that cannot reach its
	// backends must not come up looking signed out.
	if err := manager.Initialize(context.Background()); err != nil {
		log.Fatal("Session initialization failed", zap.Error(err))
	}

	roles := rolechange.NewService(users, requests, sink, bus, log)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS(cfg.GetCORSOrigins()))
	if cfg.EnableRateLimit {
		router.Use(middleware.SlidingWindowRateLimit(redis.Client, middleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimitRequests,
			Window:            time.Duration(cfg.RateLimitWindow) * time.Second,
			SkipPaths:         []string{"/health", "/health/ready", "/health/live", "/metrics"},
		}))
	}

	router.GET("/metrics", metrics.Handler())

	handler := api.NewHandler(manager, roles, log)
	handler.RegisterRoutes(router)

	healthService := health.NewService(log)
	healthService.SetVersion(Version)
	healthService.Register(health.NewPostgresChecker(db))
	healthService.Register(health.NewRedisChecker(redis))
	healthService.Register(health.NewFuncChecker("session", false, func(ctx context.Context) health.Probe {
		state := manager.State()
		status := health.StatusUp
		if state == session.StateUninitialized || state == session.StateInitializing {
			status = health.StatusDegraded
		}
		return health.Probe{Status: status, Detail: string(state)}
	}))
	healthService.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	graceful := server.New(server.Config{
		Server: httpServer,
		Logger: log,
		Shutdownables: []server.Shutdownable{
			server.NewShutdownFunc("session-manager", func(ctx context.Context) error {
				return manager.Close()
			}),
			server.NewShutdownFunc("event-bus", func(ctx context.Context) error {
				return bus.Close()
			}),
			server.CloseRedis(redis),
			server.CloseDB(db),
		},
	})

	log.Info("Session daemon listening",
		zap.Int("port", cfg.Port),
		zap.String("environment", cfg.Environment),
		zap.Duration("revalidate_interval", cfg.RevalidateInterval()),
	)
	if err := graceful.ListenAndServe(); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}
}

// applySchema creates the tables the daemon owns. All statements are
// idempotent so repeated boots are harmless.
func applySchema(ctx context.Context, db *database.PostgresDB) error {
	for _, ddl := range []string{identity.Schema, audit.Schema, rolechange.Schema} {
		if _, err := db.Pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-gateway/internal/api"
	"github.com/hackgods/clinic-appointment-gateway/internal/appointment"
	"github.com/hackgods/clinic-appointment-gateway/internal/config"
	"github.com/hackgods/clinic-appointment-gateway/internal/db"
	"github.com/hackgods/clinic-appointment-gateway/internal/identity"
	"github.com/hackgods/clinic-appointment-gateway/internal/logging"
	redisclient "github.com/hackgods/clinic-appointment-gateway/internal/redis"
	"github.com/hackgods/clinic-appointment-gateway/internal/transport"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("gateway-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("backend", cfg.BackendBaseURL),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Duration("lock_ttl", cfg.LockTTL),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	store := identity.NewRedisStore(rdb, cfg.IdentityNamespace)

	client := transport.NewClient(cfg.BackendBaseURL, store,
		transport.WithTimeout(cfg.RequestTimeout),
		transport.WithLogger(logger.Named("transport")),
		transport.WithUnauthorizedHandler(func(ctx context.Context) {
			logger.Warn("clinic API rejected the stored credential, sign-in required")
		}),
	)

	opts := []appointment.Option{
		appointment.WithLogger(logger.Named("gateway")),
		appointment.WithMetrics(appointment.NewMetrics(prometheus.DefaultRegisterer)),
		appointment.WithLocker(redisclient.NewRedisLocker(rdb, "draft", cfg.LockTTL)),
		appointment.WithCacheTTL(cfg.CacheTTL),
		appointment.WithDefaultDuration(cfg.DefaultDuration),
	}

	routerCfg := api.RouterConfig{
		Backend:        client,
		Redis:          rdb,
		Logger:         logger.Named("http"),
		AllowedOrigins: cfg.AllowedOrigins,
		RateLimit:      cfg.RateLimit,
		Env:            cfg.Env,
		Version:        version,
	}

	// Connect Postgres when the event log is enabled
	if cfg.PostgresDSN != "" {
		pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
		pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
		if err == nil {
			err = db.EnsureEventLogSchema(pgCtx, pgPool)
		}
		cancelPg()
		if err != nil {
			logger.Fatal("postgres connection error", zap.Error(err))
		}
		defer pgPool.Close()
		logger.Info("connected to Postgres, event log enabled")

		events := appointment.NewPgEventLog(pgPool)
		opts = append(opts, appointment.WithEventRecorder(events))
		routerCfg.Events = events
		routerCfg.Postgres = pgPool
	} else {
		logger.Info("POSTGRES_DSN not set, event log disabled")
	}

	svc := appointment.NewService(client, appointment.NewStoreClinicResolver(store, logger.Named("identity")), opts...)
	routerCfg.Service = svc

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.NewRouter(routerCfg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down gateway-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

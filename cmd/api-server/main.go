package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medbook/booking-assistant/internal/api"
	"github.com/medbook/booking-assistant/internal/booking"
	"github.com/medbook/booking-assistant/internal/config"
	"github.com/medbook/booking-assistant/internal/db"
	"github.com/medbook/booking-assistant/internal/logging"
	redisclient "github.com/medbook/booking-assistant/internal/redis"
	"github.com/medbook/booking-assistant/internal/reply"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	migCtx, cancelMig := context.WithTimeout(rootCtx, 10*time.Second)
	err = db.EnsureSchema(migCtx, pgPool)
	cancelMig()
	if err != nil {
		logger.Error("schema error", "error", err)
		os.Exit(1)
	}

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Error("redis connection error", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	store := booking.NewRedisStore(rdb, cfg.SessionTTL)
	catalog := booking.NewPgCatalogRepository(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)

	svc := booking.NewService(store, store, catalog, locker, logger)
	if cfg.OpenAIAPIKey != "" {
		svc = svc.WithParaphraser(reply.NewOpenAIParaphraser(cfg.OpenAIAPIKey, cfg.OpenAIModel))
		logger.Info("LLM paraphrasing enabled", "model", cfg.OpenAIModel)
	}

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Logger:  logger,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	logger.Info("api-server stopped")
}

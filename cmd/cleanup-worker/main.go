package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medbook/booking-assistant/internal/booking"
	"github.com/medbook/booking-assistant/internal/config"
	"github.com/medbook/booking-assistant/internal/db"
	"github.com/medbook/booking-assistant/internal/logging"
	redisclient "github.com/medbook/booking-assistant/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("cleanup-worker starting up", "env", cfg.Env, "interval", cfg.WorkerInterval.String())

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

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Error("redis connection error", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = rdb.Close()
	}()

	store := booking.NewRedisStore(rdb, cfg.SessionTTL)
	catalog := booking.NewPgCatalogRepository(pgPool)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	svc := booking.NewService(store, store, catalog, locker, logger)

	// Run once at startup
	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping cleanup worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *booking.Service, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	removed, err := svc.CleanupExpired(runCtx)
	if err != nil {
		logger.Error("cleanup run error", "error", err)
		return
	}
	logger.Info("cleanup run complete", "removed", removed, "duration", time.Since(start).String())
}

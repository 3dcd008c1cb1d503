package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/vinlotto-backend/internal/cron"
	"github.com/angelmondragon/vinlotto-backend/internal/locks"
	"github.com/angelmondragon/vinlotto-backend/internal/manifest"
	"github.com/angelmondragon/vinlotto-backend/internal/offers"
	"github.com/angelmondragon/vinlotto-backend/pkg/clock"
	"github.com/angelmondragon/vinlotto-backend/pkg/config"
	"github.com/angelmondragon/vinlotto-backend/pkg/db"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
	"github.com/angelmondragon/vinlotto-backend/pkg/metrics"
	"github.com/angelmondragon/vinlotto-backend/pkg/migrate"
	"github.com/angelmondragon/vinlotto-backend/pkg/redis"
)

const lockName = "cron-worker"

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	flag.Parse()

	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(cfg.App.Env, lockName), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"jobs":        registry.Names(),
		"lock_key":    lock.Key(),
	})
	logg.Info(ctx, "starting cron worker")

	if *once {
		if err := service.RunOnce(ctx); err != nil {
			logg.Error(ctx, "cron cycle failed", err)
			os.Exit(1)
		}
		return
	}

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	clk := clock.NewSystem()
	conn := dbClient.DB()
	orderLock, err := locks.NewOrderLock(conn, clk)
	if err != nil {
		return nil, err
	}

	sweep, err := cron.NewOrderLockSweepJob(cron.OrderLockSweepJobParams{Logger: logg, Locks: orderLock})
	if err != nil {
		return nil, fmt.Errorf("order lock sweep: %w", err)
	}
	archive, err := cron.NewOfferArchiveJob(cron.OfferArchiveJobParams{
		Logger: logg,
		Offers: offers.NewRepository(conn),
		Claims: manifest.NewRepository(conn, clk),
		Locks:  orderLock,
		Clock:  clk,
		Grace:  cfg.Cron.OfferArchiveGrace,
	})
	if err != nil {
		return nil, fmt.Errorf("offer archive: %w", err)
	}
	return cron.NewRegistry(sweep, archive), nil
}

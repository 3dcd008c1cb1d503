package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/vinlotto-backend/internal/bootstrap"
	"github.com/angelmondragon/vinlotto-backend/internal/consumer"
	"github.com/angelmondragon/vinlotto-backend/pkg/config"
	"github.com/angelmondragon/vinlotto-backend/pkg/db"
	"github.com/angelmondragon/vinlotto-backend/pkg/instance"
	"github.com/angelmondragon/vinlotto-backend/pkg/logger"
	"github.com/angelmondragon/vinlotto-backend/pkg/migrate"
	"github.com/angelmondragon/vinlotto-backend/pkg/pubsub"
	"github.com/angelmondragon/vinlotto-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	shop, err := bootstrap.NewStorefront(cfg.Storefront)
	if err != nil {
		logg.Error(ctx, "failed to create storefront client", err)
		os.Exit(1)
	}

	built, err := bootstrap.NewProcessing(bootstrap.Deps{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient.DB(),
		Storefront: shop,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		logg.Error(ctx, "failed to assemble processing", err)
		os.Exit(1)
	}

	guard, err := consumer.NewIdempotencyGuard(redisClient, cfg.Eventing.DeliveryIdempotencyTTL, consumer.DeliveryScope)
	if err != nil {
		logg.Error(ctx, "failed to create delivery guard", err)
		os.Exit(1)
	}
	orderConsumer, err := consumer.NewConsumer(built.Coordinator, pubsubClient.OrderEventsSubscription(), guard, logg)
	if err != nil {
		logg.Error(ctx, "failed to create order consumer", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:    cfg,
		Logger:    logg,
		DB:        dbClient,
		Redis:     redisClient,
		PubSub:    pubsubClient,
		Consumer:  orderConsumer,
		Processor: built.Coordinator,
		Events:    built.Events,
		Gatherer:  prometheus.DefaultGatherer,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	if cfg.Storefront.StoreID != "" {
		ctx = logg.WithStoreID(ctx, cfg.Storefront.StoreID)
	}
	logg.Info(ctx, "starting worker")
	if err := service.Run(ctx); err != nil {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}

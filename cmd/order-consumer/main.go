package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/adeyemio/tradefair-backend/internal/consumers/orders"
	"github.com/adeyemio/tradefair-backend/internal/schedule"
	"github.com/adeyemio/tradefair-backend/internal/vendorlease"
	"github.com/adeyemio/tradefair-backend/internal/wallet"
	"github.com/adeyemio/tradefair-backend/pkg/config"
	"github.com/adeyemio/tradefair-backend/pkg/db"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
	"github.com/adeyemio/tradefair-backend/pkg/migrate"
	"github.com/adeyemio/tradefair-backend/pkg/pubsub"
	"github.com/adeyemio/tradefair-backend/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "order-consumer"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "order-consumer"

	logg = logger.New(logger.Options{
		ServiceName: "order-consumer",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database client", err)
		}
	}()

	requireResource(ctx, logg, "migrations", migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient))

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	subscription := pubsubClient.OrdersSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "orders subscription", errors.New("subscription not configured"))
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	scheduleService, err := schedule.NewService(schedule.NewRepository(dbClient.DB()))
	requireResource(ctx, logg, "schedule service", err)

	walletService, err := wallet.NewService(wallet.NewRepository(dbClient.DB()), scheduleService)
	requireResource(ctx, logg, "wallet service", err)

	leases, err := vendorlease.NewManager(redisClient, cfg.Payouts.LeaseTTL)
	requireResource(ctx, logg, "vendor leases", err)

	consumer, err := orders.NewConsumer(walletService, dbClient, leases, logg, cfg.Wallet.HoldWindow())
	requireResource(ctx, logg, "order consumer", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "order consumer ready")

	if err := consumer.Run(runCtx, subscription); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "order consumer failed", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

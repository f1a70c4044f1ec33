package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adeyemio/tradefair-backend/internal/bankaccounts"
	"github.com/adeyemio/tradefair-backend/internal/cron"
	"github.com/adeyemio/tradefair-backend/internal/eligibility"
	"github.com/adeyemio/tradefair-backend/internal/payouts"
	"github.com/adeyemio/tradefair-backend/internal/schedule"
	"github.com/adeyemio/tradefair-backend/internal/vendorlease"
	"github.com/adeyemio/tradefair-backend/internal/wallet"
	"github.com/adeyemio/tradefair-backend/pkg/config"
	"github.com/adeyemio/tradefair-backend/pkg/db"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
	"github.com/adeyemio/tradefair-backend/pkg/metrics"
	"github.com/adeyemio/tradefair-backend/pkg/migrate"
	"github.com/adeyemio/tradefair-backend/pkg/redis"
	"github.com/adeyemio/tradefair-backend/pkg/transfer"
)

const lockKeyFormat = "tf:payout-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "payout-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "payout-worker"

	logg = logger.New(logger.Options{
		ServiceName: "payout-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
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

	scheduleService, err := schedule.NewService(schedule.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create schedule service", err)
		os.Exit(1)
	}

	walletRepo := wallet.NewRepository(dbClient.DB())
	walletService, err := wallet.NewService(walletRepo, scheduleService)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	transferClient, err := transfer.NewClient(cfg.Transfer)
	if err != nil {
		logg.Error(context.Background(), "failed to create transfer client", err)
		os.Exit(1)
	}

	leases, err := vendorlease.NewManager(redisClient, cfg.Payouts.LeaseTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create vendor lease manager", err)
		os.Exit(1)
	}

	eligibilityService, err := eligibility.NewService(logg, dbClient, walletRepo, leases, scheduleService)
	if err != nil {
		logg.Error(context.Background(), "failed to create eligibility service", err)
		os.Exit(1)
	}

	payoutService, err := payouts.NewService(
		logg,
		dbClient,
		payouts.NewRepository(dbClient.DB()),
		walletRepo,
		bankaccounts.NewRepository(dbClient.DB()),
		scheduleService,
		transferClient,
		leases,
		metrics.NewPayoutMetrics(prometheus.DefaultRegisterer),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payout service", err)
		os.Exit(1)
	}

	eligibilityJob, err := cron.NewEligibilityJob(logg, eligibilityService)
	if err != nil {
		logg.Error(context.Background(), "failed to create eligibility job", err)
		os.Exit(1)
	}
	payoutJob, err := cron.NewPayoutJob(logg, payoutService)
	if err != nil {
		logg.Error(context.Background(), "failed to create payout job", err)
		os.Exit(1)
	}
	inFlightJob, err := cron.NewInFlightJob(logg, payoutService)
	if err != nil {
		logg.Error(context.Background(), "failed to create in-flight job", err)
		os.Exit(1)
	}
	consistencyJob, err := cron.NewConsistencyJob(logg, walletRepo, walletService)
	if err != nil {
		logg.Error(context.Background(), "failed to create consistency job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(eligibilityJob, payoutJob, inFlightJob, consistencyJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Payouts.WorkerInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting payout worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "payout worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "payout worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

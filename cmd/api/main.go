package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adeyemio/tradefair-backend/api/routes"
	"github.com/adeyemio/tradefair-backend/internal/bankaccounts"
	"github.com/adeyemio/tradefair-backend/internal/payouts"
	"github.com/adeyemio/tradefair-backend/internal/reconciliation"
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

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	bankRepo := bankaccounts.NewRepository(dbClient.DB())
	bankAccountService, err := bankaccounts.NewService(logg, bankRepo)
	if err != nil {
		logg.Error(context.Background(), "failed to create bank account service", err)
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

	payoutRepo := payouts.NewRepository(dbClient.DB())
	payoutService, err := payouts.NewService(
		logg,
		dbClient,
		payoutRepo,
		walletRepo,
		bankRepo,
		scheduleService,
		transferClient,
		leases,
		metrics.NewPayoutMetrics(prometheus.DefaultRegisterer),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create payout service", err)
		os.Exit(1)
	}

	reconciliationService, err := reconciliation.NewService(logg, dbClient, walletRepo, payoutRepo, leases, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciliation service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			walletService,
			scheduleService,
			bankAccountService,
			payoutService,
			reconciliationService,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adeyemio/tradefair-backend/api/controllers"
	webhookcontrollers "github.com/adeyemio/tradefair-backend/api/controllers/webhooks"
	"github.com/adeyemio/tradefair-backend/api/middleware"
	"github.com/adeyemio/tradefair-backend/internal/bankaccounts"
	"github.com/adeyemio/tradefair-backend/internal/payouts"
	"github.com/adeyemio/tradefair-backend/internal/reconciliation"
	"github.com/adeyemio/tradefair-backend/internal/schedule"
	"github.com/adeyemio/tradefair-backend/internal/wallet"
	"github.com/adeyemio/tradefair-backend/pkg/config"
	"github.com/adeyemio/tradefair-backend/pkg/db"
	"github.com/adeyemio/tradefair-backend/pkg/enums"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
	"github.com/adeyemio/tradefair-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	walletService wallet.Service,
	scheduleService schedule.Service,
	bankAccountService bankaccounts.Service,
	payoutService payouts.Service,
	reconciliationService reconciliation.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.CORS(),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, dbP, redisClient, logg))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/transfers", webhookcontrollers.TransferWebhook(cfg.Transfer.WebhookSecret, payoutService, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1/vendors/{vendorID}", func(r chi.Router) {
			r.Use(middleware.VendorScope(logg))

			r.Route("/wallet", func(r chi.Router) {
				r.Get("/", controllers.GetWalletSummary(walletService, logg))
				r.Get("/ledger", controllers.ListLedger(walletService, logg))
				r.Get("/upcoming-payout", controllers.GetUpcomingPayout(walletService, logg))
			})

			r.Get("/schedule", controllers.GetSchedule(scheduleService, logg))
			r.Put("/schedule", controllers.SetSchedule(scheduleService, logg))

			r.Get("/bank-account", controllers.GetBankAccount(bankAccountService, logg))
			r.Put("/bank-account", controllers.SetBankAccount(bankAccountService, logg))

			r.Route("/payouts", func(r chi.Router) {
				r.Get("/", controllers.ListPayouts(payoutService, logg))
				r.Get("/{batchID}/entries", controllers.GetPayoutBatchEntries(payoutService, logg))
			})
		})

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(enums.ActorRoleAdmin), logg))
			r.Get("/ping", controllers.AdminPing())

			r.Route("/vendors/{vendorID}", func(r chi.Router) {
				r.Use(middleware.VendorScope(logg))
				r.Post("/bank-account/verify", controllers.VerifyBankAccount(bankAccountService, logg))
				r.Post("/payouts/run", controllers.RunPayout(payoutService, logg))
				r.Get("/wallet/consistency", controllers.CheckWalletConsistency(walletService, logg))
			})

			r.Route("/reconciliation", func(r chi.Router) {
				r.Post("/preview", controllers.PreviewReconciliation(reconciliationService, logg))
				r.Post("/commit", controllers.CommitReconciliation(reconciliationService, logg))
				r.Post("/backfill", controllers.BackfillBatch(reconciliationService, logg))
			})
		})
	})

	return r
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/localtable/localtable-backend/api/controllers"
	webhookcontrollers "github.com/localtable/localtable-backend/api/controllers/webhooks"
	"github.com/localtable/localtable-backend/api/middleware"
	checkoutsvc "github.com/localtable/localtable-backend/internal/checkout"
	paymentsvc "github.com/localtable/localtable-backend/internal/payments"
	"github.com/localtable/localtable-backend/internal/vendoraccounts"
	stripewebhook "github.com/localtable/localtable-backend/internal/webhooks/stripe"
	"github.com/localtable/localtable-backend/pkg/config"
	"github.com/localtable/localtable-backend/pkg/db"
	"github.com/localtable/localtable-backend/pkg/logger"
	"github.com/localtable/localtable-backend/pkg/redis"
	"github.com/localtable/localtable-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	metricsRegistry *prometheus.Registry,
	checkoutService *checkoutsvc.Service,
	paymentsService *paymentsvc.Service,
	vendorAccountService *vendoraccounts.Service,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if metricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Post("/checkout", controllers.Checkout(checkoutService, logg))

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Post("/capture", controllers.CaptureOrder(paymentsService, logg))
			r.Post("/cancel", controllers.CancelOrderPayment(paymentsService, logg))
			r.Post("/refund", controllers.RefundOrder(paymentsService, logg))
		})

		r.Route("/vendors/{vendorId}", func(r chi.Router) {
			r.Post("/account", controllers.VendorAccountCreate(vendorAccountService, logg))
			r.Post("/onboarding-link", controllers.VendorOnboardingLink(vendorAccountService, logg))
			r.Post("/onboarding/refresh", controllers.VendorOnboardingRefresh(vendorAccountService, logg))
			r.Get("/payment-readiness", controllers.VendorPaymentReadiness(vendorAccountService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Get("/orders/{orderId}/payments", controllers.AdminOrderPayments(paymentsService, logg))
	})

	return r
}

package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lootbay/marketplace-backend/api/controllers"
	webhookcontrollers "github.com/lootbay/marketplace-backend/api/controllers/webhooks"
	"github.com/lootbay/marketplace-backend/api/middleware"
	"github.com/lootbay/marketplace-backend/internal/checkout"
	"github.com/lootbay/marketplace-backend/internal/disputes"
	"github.com/lootbay/marketplace-backend/internal/inventory"
	"github.com/lootbay/marketplace-backend/internal/ledger"
	"github.com/lootbay/marketplace-backend/internal/orders"
	"github.com/lootbay/marketplace-backend/internal/payments"
	"github.com/lootbay/marketplace-backend/internal/settlement"
	"github.com/lootbay/marketplace-backend/pkg/config"
	"github.com/lootbay/marketplace-backend/pkg/enums"
	"github.com/lootbay/marketplace-backend/pkg/logger"
	"github.com/lootbay/marketplace-backend/pkg/metrics"
	"github.com/lootbay/marketplace-backend/pkg/redis"
)

// Services bundles the domain services the HTTP surface exposes.
type Services struct {
	Checkout   *checkout.Service
	Orders     *orders.Service
	Payments   *payments.Service
	Ledger     *ledger.Service
	Inventory  *inventory.Service
	Disputes   *disputes.Service
	Settlement *settlement.Service
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	// a nil *redis.Client must stay a nil interface so the middleware skips it
	var (
		idempotencyStore redis.IdempotencyStore
		limiter          middleware.RateLimiter
		cachePinger      controllers.Pinger
	)
	if redisClient != nil {
		idempotencyStore, limiter, cachePinger = redisClient, redisClient, redisClient
	}

	currency := enums.Currency(cfg.Settlement.Currency)
	webhookPolicy := middleware.NewRateLimitPolicy("payments-webhook", time.Minute, cfg.Webhook.RateLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, cachePinger))
	})
	if gatherer != nil {
		r.Handle("/metrics", metrics.Handler(gatherer))
	}

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, limiter, logg)).
			Post("/payments", webhookcontrollers.PaymentsWebhook(svc.Payments, cfg.Webhook.MaxBodySize, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.Get("/ping", controllers.PrivatePing())

		r.Route("/v1", func(r chi.Router) {
			r.Get("/orders", controllers.OrdersList(svc.Orders, logg))
			r.Get("/orders/{orderId}", controllers.OrderDetail(svc.Orders, svc.Inventory, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.RoleBuyer))
				r.Post("/checkout", controllers.Checkout(svc.Checkout, logg))
				r.Post("/orders/{orderId}/confirm", controllers.OrderConfirm(svc.Settlement, logg))
				r.Post("/orders/{orderId}/disputes", controllers.OrderOpenDispute(svc.Disputes, logg))
			})

			r.Route("/seller", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.RoleSeller))
				r.Post("/orders/{orderId}/deliver", controllers.SellerDeliver(svc.Settlement, logg))
				r.Post("/listings/{listingId}/inventory", controllers.SellerAddInventory(svc.Inventory, logg))
				r.Get("/balance", controllers.SellerBalance(svc.Ledger, currency, logg))
				r.Get("/ledger", controllers.SellerLedger(svc.Ledger, logg))
				r.Post("/payouts", controllers.SellerPayout(svc.Ledger, currency, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
				r.Post("/orders/{orderId}/release", controllers.AdminReleaseOrder(svc.Settlement, logg))
				r.Post("/orders/{orderId}/refund", controllers.AdminRefundOrder(svc.Settlement, logg))
				r.Get("/disputes", controllers.AdminListDisputes(svc.Disputes, logg))
				r.Post("/disputes/{disputeId}/resolve", controllers.AdminResolveDispute(svc.Disputes, logg))
				r.Get("/webhooks/rejections", controllers.AdminWebhookRejections(svc.Payments, logg))
			})
		})
	})

	return otelhttp.NewHandler(r, "api")
}

package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/cart"
	paymentcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/payments"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// routerRedis is what the router needs from redis: readiness, rate limits
// and idempotency replay.
type routerRedis interface {
	redis.Pinger
	redis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string) string
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient routerRedis,
	gatherer prometheus.Gatherer,
	cartService cart.Service,
	paymentService payments.Service,
	verifier paymentcontrollers.CallbackVerifier,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	paymentPolicy := middleware.NewRateLimitPolicy("payments", cfg.Payments.RateLimitWindow, cfg.Payments.RateLimit)
	callbackPolicy := middleware.NewRateLimitPolicy("gateway", cfg.Payments.RateLimitWindow, cfg.Payments.RateLimit*callbackLimitFactor)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"postgres": dbP,
			"redis":    redisClient,
		}))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Use(middleware.GuestSession(logg))

		r.Get("/", cartcontrollers.CartFetch(cartService, logg))
		r.Delete("/", cartcontrollers.CartClear(cartService, logg))
		r.Get("/summary", cartcontrollers.CartSummary(cartService, logg))
		r.Post("/merge", cartcontrollers.CartMerge(cartService, logg))
		r.Route("/items", func(r chi.Router) {
			r.Post("/", cartcontrollers.CartAddItem(cartService, logg))
			r.Patch("/", cartcontrollers.CartUpdateQuantity(cartService, logg))
			r.Delete("/", cartcontrollers.CartRemoveItem(cartService, logg))
		})
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.With(
				middleware.RateLimit(paymentPolicy, redisClient, logg),
				middleware.Idempotency(redisClient, cfg.Payments.IdempotencyTTL, logg),
			).Post("/", paymentcontrollers.CreatePayment(paymentService, logg))
			r.Get("/{txnRef}", paymentcontrollers.PaymentStatus(paymentService, logg))
		})

		r.Route("/vnpay", func(r chi.Router) {
			r.Use(middleware.RateLimit(callbackPolicy, redisClient, logg))
			r.Get("/return", paymentcontrollers.GatewayReturn(verifier, cfg.Payments, logg))
			r.Get("/ipn", paymentcontrollers.GatewayIPN(verifier))
			r.Get("/cancel", paymentcontrollers.GatewayCancel(verifier, cfg.Payments, logg))
		})
	})

	return r
}

// Gateway callbacks share one source address per gateway, so they get more
// headroom than shopper traffic.
const callbackLimitFactor = 10

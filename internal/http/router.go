package http

import (
	"github.com/dropinmorocco/booking-core/internal/idempotency"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter mounts the API. rl and idemp may be nil.
func SetupRouter(h *Handlers, logger observability.Logger, rl Limiter, limits Limits, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(rl, limits))

		r.Get("/v1/products", h.ListProducts)
		r.Get("/v1/quotes", h.Quote)
		r.Get("/v1/orders", h.ListOrders)
		r.Get("/v1/orders/{id}", h.GetOrder)

		r.Group(func(r chi.Router) {
			r.Use(IdempotencyMiddleware(idemp, false))
			r.Post("/v1/orders", h.CreateOrder)
			r.Post("/v1/orders/{id}/cancel", h.CancelOrder)
			r.Post("/v1/orders/{id}/refund", h.RefundOrder)
			r.Post("/v1/payments/{id}/refund", h.RefundPayment)
			r.Post("/v1/redemptions", h.Redeem)
		})

		r.Group(func(r chi.Router) {
			r.Use(IdempotencyMiddleware(idemp, true))
			r.Post("/v1/purchases", h.Purchase)
			r.Post("/v1/orders/{id}/payments", h.PayOrder)
		})
	})

	return r
}

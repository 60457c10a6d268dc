package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropin_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	DBTxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dropin_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dropin_outbox_lag_seconds",
			Help: "Age of the oldest event in the last relayed outbox batch",
		},
	)

	PublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dropin_publish_retries_total",
			Help: "Total event publish failures left for the next relay tick",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dropin_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)

	OrdersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dropin_orders_created_total",
			Help: "Total orders created",
		},
	)

	PaymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropin_payments_total",
			Help: "Payment attempts by outcome",
		},
		[]string{"method", "status"},
	)

	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropin_tokens_issued_total",
			Help: "Access tokens issued by product type",
		},
		[]string{"product_type"},
	)

	RedemptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dropin_redemptions_total",
			Help: "Redemption attempts by reason code",
		},
		[]string{"reason"},
	)
)

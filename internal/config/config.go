package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/pricing"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr     string
	CRDBDSN      string
	MongoURI     string
	MongoDB      string
	RedisAddr    string
	RabbitURL    string
	KafkaBrokers []string
	KafkaGroup   string
	AuditQueue   string
	EventBus     string // rabbit, kafka
	Store        string // crdb, memory
	OTLPEndpoint string
	LogLevel     string

	IdempotencyTTL  time.Duration
	CatalogCacheTTL time.Duration
	CatalogSeed     string
	VenueTimezone   string

	CommissionRate    float64
	Pack5Discount     float64
	Pack10Discount    float64
	SingleFromMonthly float64

	OutboxInterval time.Duration
	OutboxBatch    int

	RateLimitUser int
	RateLimitIP   int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	defaults := pricing.DefaultRates()
	p := &parser{}
	cfg := &Config{
		HTTPAddr:     env("HTTP_ADDR", ":8080"),
		CRDBDSN:      os.Getenv("CRDB_DSN"),
		MongoURI:     os.Getenv("MONGO_URI"),
		MongoDB:      env("MONGO_DB", "dropin"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RabbitURL:    os.Getenv("RABBIT_URL"),
		KafkaBrokers: list(os.Getenv("KAFKA_BROKERS")),
		KafkaGroup:   env("KAFKA_GROUP", "dropin-auditor"),
		AuditQueue:   env("AUDIT_QUEUE", "dropin.audit.q"),
		EventBus:     env("EVENT_BUS", "rabbit"),
		Store:        env("STORE", "crdb"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		LogLevel:     env("LOG_LEVEL", "info"),

		IdempotencyTTL:  p.duration("IDEMPOTENCY_TTL", 24*time.Hour),
		CatalogCacheTTL: p.duration("CATALOG_CACHE_TTL", 5*time.Minute),
		CatalogSeed:     os.Getenv("CATALOG_SEED"),
		VenueTimezone:   env("VENUE_TIMEZONE", "Africa/Casablanca"),

		CommissionRate:    p.float("COMMISSION_RATE", defaults.CommissionRate),
		Pack5Discount:     p.float("PACK5_DISCOUNT", defaults.Pack5Discount),
		Pack10Discount:    p.float("PACK10_DISCOUNT", defaults.Pack10Discount),
		SingleFromMonthly: p.float("SINGLE_FROM_MONTHLY", defaults.SingleFromMonthly),

		OutboxInterval: p.duration("OUTBOX_INTERVAL", 5*time.Second),
		OutboxBatch:    p.int("OUTBOX_BATCH", 50),

		RateLimitUser: p.int("RATE_LIMIT_USER", 60),
		RateLimitIP:   p.int("RATE_LIMIT_IP", 600),
	}
	if p.err != nil {
		return nil, p.err
	}

	switch cfg.EventBus {
	case "rabbit", "kafka":
	default:
		return nil, errors.Newf("EVENT_BUS must be rabbit or kafka, got %q", cfg.EventBus)
	}
	switch cfg.Store {
	case "crdb", "memory":
	default:
		return nil, errors.Newf("STORE must be crdb or memory, got %q", cfg.Store)
	}
	return cfg, nil
}

// Rates returns the pricing rates with the configured overrides applied.
func (c *Config) Rates() pricing.Rates {
	r := pricing.DefaultRates()
	r.CommissionRate = c.CommissionRate
	r.Pack5Discount = c.Pack5Discount
	r.Pack10Discount = c.Pack10Discount
	r.SingleFromMonthly = c.SingleFromMonthly
	return r
}

func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.VenueTimezone)
	return loc, errors.Wrapf(err, "VENUE_TIMEZONE %q", c.VenueTimezone)
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func list(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parser keeps the first malformed value it meets.
type parser struct {
	err error
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil && p.err == nil {
		p.err = errors.Wrapf(err, "%s", key)
	}
	return d
}

func (p *parser) float(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil && p.err == nil {
		p.err = errors.Wrapf(err, "%s", key)
	}
	return f
}

func (p *parser) int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && p.err == nil {
		p.err = errors.Wrapf(err, "%s", key)
	}
	return n
}

package config_test

import (
	"testing"
	"time"

	"github.com/dropinmorocco/booking-core/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("EVENT_BUS", "")
	t.Setenv("STORE", "")
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.EventBus != "rabbit" || cfg.Store != "crdb" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.IdempotencyTTL != 24*time.Hour || cfg.OutboxBatch != 50 || cfg.VenueTimezone != "Africa/Casablanca" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if r := cfg.Rates(); r.CommissionRate != 0.25 || r.SingleByTier == nil {
		t.Errorf("unexpected rates %+v", r)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("COMMISSION_RATE", "0.2")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("EVENT_BUS", "kafka")
	t.Setenv("OUTBOX_INTERVAL", "250ms")
	cfg, err := config.Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Rates().CommissionRate != 0.2 {
		t.Errorf("expected commission override, got %v", cfg.Rates().CommissionRate)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.OutboxInterval != 250*time.Millisecond {
		t.Errorf("unexpected interval %s", cfg.OutboxInterval)
	}
}

func TestLoad_Rejects(t *testing.T) {
	cases := map[string]string{
		"EVENT_BUS":       "nats",
		"STORE":           "sqlite",
		"PACK5_DISCOUNT":  "ten percent",
		"IDEMPOTENCY_TTL": "forever",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := config.Load(); err == nil {
				t.Errorf("expected %s=%q to be rejected", key, val)
			}
		})
	}
}

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	kafkaadapter "github.com/dropinmorocco/booking-core/internal/adapters/kafka"
	mongoadapter "github.com/dropinmorocco/booking-core/internal/adapters/mongo"
	"github.com/dropinmorocco/booking-core/internal/adapters/rabbit"
	"github.com/dropinmorocco/booking-core/internal/config"
	"github.com/dropinmorocco/booking-core/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg.OTLPEndpoint, "dropin-event-auditor")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel(context.Background())

	logger := observability.NewLoggerWithLevel(cfg.LogLevel)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("failed to connect to mongo: %v", err)
	}
	defer mongoClient.Disconnect(context.Background())
	auditor := NewAuditor(mongoadapter.NewAuditLogger(mongoClient.Database(cfg.MongoDB), logger), logger)

	switch cfg.EventBus {
	case "kafka":
		consumer := kafkaadapter.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroup, kafkaadapter.Topic)
		err = consumer.Start(ctx, auditor.HandleKafka)
	default:
		err = auditor.consumeRabbit(ctx, cfg.RabbitURL, cfg.AuditQueue)
	}
	if err != nil {
		logger.WithError(err).Error("event auditor stopped")
	}
	logger.Info("Shutdown event auditor")
}

type Auditor struct {
	audit  *mongoadapter.AuditLogger
	logger observability.Logger
}

func NewAuditor(audit *mongoadapter.AuditLogger, logger observability.Logger) *Auditor {
	return &Auditor{audit: audit, logger: logger}
}

func (a *Auditor) consumeRabbit(ctx context.Context, url, queue string) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return errors.Wrap(err, "connect to rabbitmq")
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, queue)
	if err != nil {
		return errors.Wrap(err, "declare audit queue")
	}
	defer consumer.Close()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		return err
	}
	for d := range deliveries {
		if err := a.HandleDelivery(ctx, d); err != nil {
			a.logger.WithError(err).WithField("message_id", d.MessageId).Error("failed to audit event")
			d.Nack(false, true)
			continue
		}
		d.Ack(false)
	}
	return nil
}

func (a *Auditor) HandleDelivery(ctx context.Context, d amqp.Delivery) error {
	aggregateType, _ := d.Headers["aggregate_type"].(string)
	aggregateID, _ := d.Headers["aggregate_id"].(string)
	entry, err := mongoadapter.NewAuditLog(d.MessageId, d.Type, aggregateType, aggregateID, d.Timestamp, d.Body)
	if err != nil {
		return err
	}
	return a.recordWithRetry(ctx, entry)
}

func (a *Auditor) HandleKafka(ctx context.Context, m kafka.Message) error {
	entry, err := mongoadapter.NewAuditLog(
		kafkaadapter.Header(m, "dedupe_key"),
		kafkaadapter.Header(m, "event_type"),
		kafkaadapter.Header(m, "aggregate_type"),
		string(m.Key),
		m.Time,
		m.Value,
	)
	if err != nil {
		return err
	}
	return a.recordWithRetry(ctx, entry)
}

func (a *Auditor) recordWithRetry(ctx context.Context, entry mongoadapter.AuditLog) error {
	if entry.ID == "" {
		return errors.Newf("event %s has no dedupe key", entry.Action)
	}
	maxRetries := 3
	var err error
	for i := 0; i < maxRetries; i++ {
		var inserted bool
		inserted, err = a.audit.Record(ctx, entry)
		if err == nil {
			if !inserted {
				a.logger.WithField("event_id", entry.ID).Debug("duplicate event skipped")
			}
			return nil
		}
		backoff := time.Duration(1<<i) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return errors.Wrapf(err, "failed after %d retries", maxRetries)
}

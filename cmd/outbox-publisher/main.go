package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/dropinmorocco/booking-core/internal/adapters/crdb"
	"github.com/dropinmorocco/booking-core/internal/adapters/kafka"
	"github.com/dropinmorocco/booking-core/internal/adapters/rabbit"
	"github.com/dropinmorocco/booking-core/internal/config"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/dropinmorocco/booking-core/internal/outbox"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observability.SetupOTel(ctx, cfg.OTLPEndpoint, "dropin-outbox-publisher")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel(context.Background())

	logger := observability.NewLoggerWithLevel(cfg.LogLevel)

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	var sink outbox.Sink
	switch cfg.EventBus {
	case "kafka":
		producer := kafka.NewProducer(cfg.KafkaBrokers, kafka.Topic)
		defer producer.Close()
		sink = producer
	default:
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			log.Fatalf("failed to connect to rabbitmq: %v", err)
		}
		defer conn.Close()
		rabbitPub, err := rabbit.NewPublisher(conn)
		if err != nil {
			log.Fatalf("failed to create publisher: %v", err)
		}
		defer rabbitPub.Close()
		sink = rabbitPub
	}

	publisher := outbox.NewPublisher(repo, sink, logger.WithField("bus", cfg.EventBus), cfg.OutboxInterval, cfg.OutboxBatch)
	publisher.Run(ctx)
	logger.Info("Shutdown outbox publisher")
}

// Package kafka publishes and consumes outbox events on a Kafka topic keyed by aggregate id.
package kafka

import (
	"context"

	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/segmentio/kafka-go"
)

const Topic = "dropin.events"

type Producer struct {
	w *kafka.Writer
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

// Publish writes rec synchronously. Records of one aggregate share a partition and stay ordered.
func (p *Producer) Publish(ctx context.Context, rec domain.OutboxRecord) error {
	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(rec.AggregateID.String()),
		Value: rec.Payload,
		Time:  rec.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(rec.EventType)},
			{Key: "aggregate_type", Value: []byte(rec.AggregateType)},
			{Key: "dedupe_key", Value: []byte(rec.DedupeKey)},
		},
	})
}

func (p *Producer) Close() error {
	return p.w.Close()
}

// Handler must return nil only when the message may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type Consumer struct {
	r *kafka.Reader
}

func NewConsumer(brokers []string, group, topic string) *Consumer {
	return &Consumer{r: kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})}
}

// Start feeds messages to h one at a time and commits each after h succeeds. A failing message
// is not committed and Start returns its error.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()
	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := h(ctx, m); err != nil {
			return err
		}
		if err := c.r.CommitMessages(ctx, m); err != nil {
			return err
		}
	}
}

// Header returns the value of the named header, or "".
func Header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const Exchange = "dropin.events"

type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		return nil, errors.Wrap(err, "enable publisher confirms")
	}
	return &Publisher{ch: ch}, nil
}

// Publish sends rec with its event type as routing key and waits for the broker confirm.
func (p *Publisher) Publish(ctx context.Context, rec domain.OutboxRecord) error {
	msg := amqp.Publishing{
		MessageId:    rec.DedupeKey,
		Type:         rec.EventType,
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    rec.CreatedAt,
		Headers: amqp.Table{
			"aggregate_type": rec.AggregateType,
			"aggregate_id":   rec.AggregateID.String(),
		},
		Body: rec.Payload,
	}
	dc, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, Exchange, rec.EventType, false, false, msg)
	if err != nil {
		return err
	}
	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}
	if !acked {
		return errors.Newf("broker nacked %s", rec.DedupeKey)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

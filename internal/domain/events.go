package domain

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const (
	EventOrderCreated    = "order.created"
	EventOrderCancelled  = "order.cancelled"
	EventOrderPaid       = "order.paid"
	EventOrderRefunded   = "order.refunded"
	EventPaymentFailed   = "payment.failed"
	EventPaymentRefunded = "payment.refunded"
	EventTokenRedeemed   = "token.redeemed"
)

// NewOutboxRecord builds an outbox row for the given aggregate with a JSON payload.
func NewOutboxRecord(aggregateType string, aggregateID uuid.UUID, eventType string, payload any, at time.Time) (OutboxRecord, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxRecord{}, errors.Wrapf(err, "marshal %s payload", eventType)
	}
	id := uuid.New()
	return OutboxRecord{
		ID:            id,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
		CreatedAt:     at,
		Status:        "NEW",
		DedupeKey:     id.String(),
	}, nil
}

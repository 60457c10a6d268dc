package mongo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditLogger appends relayed domain events to the "audit_logs" collection.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

// AuditLog is keyed by the event's dedupe key so redelivered events are stored once.
type AuditLog struct {
	ID            string    `bson:"_id"`
	Action        string    `bson:"action"`
	AggregateType string    `bson:"aggregate_type"`
	AggregateID   string    `bson:"aggregate_id"`
	Timestamp     time.Time `bson:"timestamp"`
	RecordedAt    time.Time `bson:"recorded_at"`
	Data          bson.M    `bson:"data"`
}

// NewAuditLog builds an entry from a relayed event with a JSON payload.
func NewAuditLog(dedupeKey, eventType, aggregateType, aggregateID string, at time.Time, payload []byte) (AuditLog, error) {
	data := bson.M{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &data); err != nil {
			return AuditLog{}, errors.Wrapf(err, "decode %s payload", eventType)
		}
	}
	return AuditLog{
		ID:            dedupeKey,
		Action:        eventType,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Timestamp:     at,
		Data:          data,
	}, nil
}

// Record stores entry unless an entry with the same id exists. It reports whether it was new.
func (a *AuditLogger) Record(ctx context.Context, entry AuditLog) (bool, error) {
	entry.RecordedAt = time.Now().UTC()
	res, err := a.coll.UpdateOne(ctx,
		bson.M{"_id": entry.ID},
		bson.M{"$setOnInsert": bson.M{
			"action":         entry.Action,
			"aggregate_type": entry.AggregateType,
			"aggregate_id":   entry.AggregateID,
			"timestamp":      entry.Timestamp,
			"recorded_at":    entry.RecordedAt,
			"data":           entry.Data,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		a.logger.WithError(err).WithField("event_id", entry.ID).Error("failed to insert audit log")
		return false, err
	}
	return res.UpsertedCount > 0, nil
}

func (a *AuditLogger) ListByAggregate(ctx context.Context, aggregateID string) ([]AuditLog, error) {
	cur, err := a.coll.Find(ctx, bson.M{"aggregate_id": aggregateID}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var out []AuditLog
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Package outbox relays committed outbox records to the event bus.
package outbox

import (
	"context"
	"time"

	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/google/uuid"
)

// Source is the outbox table. The crdb repository and the memory store implement it.
type Source interface {
	GetUnpublishedOutbox(ctx context.Context, limit int) ([]domain.OutboxRecord, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time, dedupeKey string) error
}

// Sink is the event bus. Publish must return only once the broker accepted the record.
type Sink interface {
	Publish(ctx context.Context, rec domain.OutboxRecord) error
}

type Publisher struct {
	source   Source
	sink     Sink
	logger   observability.Logger
	interval time.Duration
	batch    int
	now      func() time.Time
}

func NewPublisher(source Source, sink Sink, logger observability.Logger, interval time.Duration, batch int) *Publisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	return &Publisher{source: source, sink: sink, logger: logger, interval: interval, batch: batch, now: time.Now}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Flush(ctx); err != nil && ctx.Err() == nil {
				p.logger.WithError(err).Warn("outbox relay tick failed")
			}
		}
	}
}

// Flush relays one batch in creation order and returns how many records were published. It
// stops at the first publish failure so later events never overtake an earlier one; the failed
// record is retried on the next tick, which makes delivery at-least-once.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	records, err := p.source.GetUnpublishedOutbox(ctx, p.batch)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		observability.OutboxLag.Set(0)
		return 0, nil
	}
	observability.OutboxLag.Set(p.now().Sub(records[0].CreatedAt).Seconds())

	published := 0
	for _, rec := range records {
		logger := p.logger.WithFields(map[string]interface{}{
			"outbox_id":  rec.ID,
			"event_type": rec.EventType,
		})
		if err := p.sink.Publish(ctx, rec); err != nil {
			observability.PublishRetries.Inc()
			logger.WithError(err).Warn("publish failed, will retry")
			return published, nil
		}
		if err := p.source.MarkPublished(ctx, rec.ID, p.now().UTC(), rec.DedupeKey); err != nil {
			logger.WithError(err).Error("mark published")
			return published, err
		}
		published++
	}
	p.logger.WithField("count", published).Debug("outbox batch relayed")
	return published, nil
}

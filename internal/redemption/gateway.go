// Package redemption validates a scanned token at a venue and records the check-in.
package redemption

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("redemption")

// maxAttempts bounds retries of a redemption that lost a serialization race. The retry observes
// the winner's commit and refuses with the token's new status.
const maxAttempts = 3

type Result struct {
	Checkin domain.Checkin     `json:"checkin"`
	Token   domain.AccessToken `json:"token"`
	Message string             `json:"message"`
}

type Gateway struct {
	store  domain.Store
	loc    *time.Location
	logger observability.Logger
	now    func() time.Time
}

// NewGateway returns a Gateway computing the capacity day in loc. A nil loc means UTC.
func NewGateway(store domain.Store, loc *time.Location, logger observability.Logger) *Gateway {
	if loc == nil {
		loc = time.UTC
	}
	return &Gateway{store: store, loc: loc, logger: logger, now: time.Now}
}

func (g *Gateway) WithClock(now func() time.Time) *Gateway {
	g.now = now
	return g
}

// Day is the calendar day of t at the venues, the key of capacity records.
func (g *Gateway) Day(t time.Time) string {
	return t.In(g.loc).Format("2006-01-02")
}

// Redeem checks, in order, that the token exists, is ACTIVE, is not past its expiry and that the
// venue has room today. A token found past its expiry is moved to EXPIRED even though the call
// fails. On success the check-in, occupancy, token update and event commit together.
func (g *Gateway) Redeem(ctx context.Context, code string, venueID uuid.UUID) (*Result, error) {
	ctx, span := tracer.Start(ctx, "redemption.Redeem")
	defer span.End()
	span.SetAttributes(attribute.String("venue.id", venueID.String()))

	code = strings.TrimSpace(code)
	var (
		out outcome
		err error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out, err = g.attempt(ctx, code, venueID)
		if !errors.Is(err, domain.ErrSerializationFailure) {
			break
		}
		g.logger.WithField("attempt", attempt).Debug("redemption lost a serialization race, retrying")
	}
	if err == nil {
		err = out.refused
	}
	res := out.res

	reason := domain.ReasonOf(err)
	observability.RedemptionsTotal.WithLabelValues(string(reason)).Inc()
	span.SetAttributes(attribute.String("redemption.reason", string(reason)))
	logger := g.logger.WithFields(map[string]interface{}{
		"venue_id": venueID,
		"reason":   reason,
	})
	if err != nil {
		logger.WithError(err).Info("redemption refused")
		return nil, err
	}
	logger.WithFields(map[string]interface{}{
		"token_id":   res.Token.ID,
		"checkin_id": res.Checkin.ID,
	}).Info("token redeemed")
	return res, nil
}

type redeemedEvent struct {
	TokenID     uuid.UUID          `json:"token_id"`
	OrderID     uuid.UUID          `json:"order_id"`
	VenueID     uuid.UUID          `json:"venue_id"`
	CheckinID   uuid.UUID          `json:"checkin_id"`
	ProductType domain.ProductType `json:"product_type"`
	Status      domain.TokenStatus `json:"status"`
	CheckedAt   time.Time          `json:"checked_at"`
}

// outcome carries a refusal separately from the transaction error so the transaction still
// commits what the refusal wrote (the EXPIRED flip).
type outcome struct {
	res     *Result
	refused error
}

func (g *Gateway) attempt(ctx context.Context, code string, venueID uuid.UUID) (outcome, error) {
	now := g.now().UTC().Truncate(time.Microsecond)
	var (
		res     *Result
		refused error
	)
	err := g.store.WithTx(ctx, func(tx domain.Tx) error {
		res, refused = nil, nil

		if code == "" {
			refused = errors.Wrap(domain.ErrTokenNotFound, "empty code")
			return nil
		}
		tok, err := tx.GetTokenByCode(ctx, code)
		if errors.Is(err, domain.ErrTokenNotFound) {
			refused = errors.Wrapf(domain.ErrTokenNotFound, "code %s", code)
			return nil
		}
		if err != nil {
			return err
		}

		switch tok.Status {
		case domain.TokenUsed:
			refused = errors.Wrapf(domain.ErrTokenAlreadyUsed, "token %s", tok.ID)
		case domain.TokenCancelled:
			refused = errors.Wrapf(domain.ErrTokenCancelled, "token %s", tok.ID)
		case domain.TokenExpired:
			refused = errors.Wrapf(domain.ErrTokenExpired, "token %s", tok.ID)
		}
		if refused != nil {
			return nil
		}

		if !now.Before(tok.ExpiresAt) {
			if err := tx.UpdateTokenStatus(ctx, tok.ID, domain.TokenActive, domain.TokenExpired); err != nil && !errors.Is(err, domain.ErrConflict) {
				return err
			}
			refused = errors.Wrapf(domain.ErrTokenExpired, "token %s expired at %s", tok.ID, tok.ExpiresAt.Format(time.RFC3339))
			return nil
		}

		venue, err := tx.GetVenue(ctx, venueID)
		if errors.Is(err, domain.ErrVenueNotFound) {
			refused = err
			return nil
		}
		if err != nil {
			return err
		}
		if !venue.IsActive {
			refused = errors.Wrapf(domain.ErrVenueInactive, "venue %s", venue.ID)
			return nil
		}

		day := g.Day(now)
		err = tx.IncrementOccupancy(ctx, venue.ID, day)
		if errors.Is(err, domain.ErrVenueAtCapacity) {
			refused = errors.Wrapf(domain.ErrVenueAtCapacity, "venue %s on %s", venue.ID, day)
			return nil
		}
		if err != nil {
			return err
		}

		checkin := domain.Checkin{ID: uuid.New(), TokenID: tok.ID, VenueID: venue.ID, CheckedAt: now}
		if err := tx.InsertCheckin(ctx, checkin); err != nil {
			return errors.Wrap(err, "insert checkin")
		}

		next := domain.TokenUsed
		if tok.ProductType.IsPass() {
			next = domain.TokenActive
		}
		err = tx.MarkRedeemed(ctx, tok.ID, next, now)
		if errors.Is(err, domain.ErrConflict) {
			// lost to a concurrent scan; the whole transaction rolls back.
			return errors.Wrapf(domain.ErrTokenAlreadyUsed, "token %s", tok.ID)
		}
		if err != nil {
			return err
		}
		tok.Status = next
		tok.RedemptionCount++
		tok.UsedAt = &now

		rec, err := domain.NewOutboxRecord("token", tok.ID, domain.EventTokenRedeemed, redeemedEvent{
			TokenID:     tok.ID,
			OrderID:     tok.OrderID,
			VenueID:     venue.ID,
			CheckinID:   checkin.ID,
			ProductType: tok.ProductType,
			Status:      tok.Status,
			CheckedAt:   now,
		}, now)
		if err != nil {
			return err
		}
		if err := tx.InsertOutbox(ctx, rec); err != nil {
			return err
		}

		res = &Result{Checkin: checkin, Token: *tok, Message: domain.MessageOf(domain.ReasonWelcome)}
		return nil
	})
	return outcome{res: res, refused: refused}, err
}

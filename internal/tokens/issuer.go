// Package tokens mints the redeemable access tokens (QR codes) of a paid order.
package tokens

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/google/uuid"
	"github.com/oklog/ulid"
)

const (
	singleValidity = 24 * time.Hour
	packValidity   = 90 * 24 * time.Hour
	passValidity   = 30 * 24 * time.Hour
)

// Rule is the issuance rule of one product type.
type Rule struct {
	PerUnit  int
	Validity time.Duration
	Reusable bool
}

func Policy(pt domain.ProductType) (Rule, error) {
	switch pt {
	case domain.ProductSingle:
		return Rule{PerUnit: 1, Validity: singleValidity}, nil
	case domain.ProductPack5:
		return Rule{PerUnit: 5, Validity: packValidity}, nil
	case domain.ProductPack10:
		return Rule{PerUnit: 10, Validity: packValidity}, nil
	case domain.ProductPassStandard, domain.ProductPassPremium:
		return Rule{PerUnit: 1, Validity: passValidity, Reusable: true}, nil
	}
	return Rule{}, errors.Wrapf(domain.ErrInvalidInput, "no token policy for %q", pt)
}

// NewCode returns "DIM-" followed by a ULID: a millisecond timestamp and 80 random bits.
func NewCode(at time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(at), rand.Reader)
	if err != nil {
		return "", errors.Wrap(err, "generate token code")
	}
	return "DIM-" + id.String(), nil
}

type Issuer struct {
	logger observability.Logger
}

func NewIssuer(logger observability.Logger) *Issuer {
	return &Issuer{logger: logger}
}

// Issue mints the tokens of a PAID order inside the caller's transaction. It is called by the
// payment processor as part of the PAID transition and refuses to run twice for one order.
func (i *Issuer) Issue(ctx context.Context, tx domain.Tx, order domain.Order) ([]domain.AccessToken, error) {
	if order.Status != domain.OrderPaid || order.PaidAt == nil {
		return nil, errors.Wrapf(domain.ErrInvalidStateTransition, "order %s is %s", order.ID, order.Status)
	}
	existing, err := tx.ListTokensByOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, errors.Wrapf(domain.ErrTokensAlreadyIssued, "order %s", order.ID)
	}

	issuedAt := order.PaidAt.UTC()
	var out []domain.AccessToken
	for _, item := range order.LineItems {
		rule, err := Policy(item.ProductType)
		if err != nil {
			return nil, err
		}
		n := rule.PerUnit * item.Quantity
		for k := 0; k < n; k++ {
			code, err := NewCode(issuedAt)
			if err != nil {
				return nil, err
			}
			out = append(out, domain.AccessToken{
				ID:          uuid.New(),
				Code:        code,
				OrderID:     order.ID,
				ProductID:   item.ProductID,
				ProductType: item.ProductType,
				Status:      domain.TokenActive,
				ExpiresAt:   issuedAt.Add(rule.Validity),
				CreatedAt:   issuedAt,
			})
		}
	}

	if err := tx.InsertTokens(ctx, out); err != nil {
		return nil, errors.Wrapf(err, "insert tokens for order %s", order.ID)
	}
	i.logger.WithFields(map[string]interface{}{"order_id": order.ID, "count": len(out)}).Info("tokens issued")
	return out, nil
}

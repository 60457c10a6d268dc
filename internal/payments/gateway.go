package payments

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/google/uuid"
)

type ChargeRequest struct {
	PaymentID uuid.UUID
	OrderID   uuid.UUID
	Amount    int64
	Currency  string
	Method    domain.PaymentMethod
	Details   map[string]string
}

type RefundRequest struct {
	PaymentID     uuid.UUID
	OrderID       uuid.UUID
	TransactionID string
	Amount        int64
	Currency      string
	Reason        string
}

type ChargeResult struct {
	TransactionID string
}

// Gateway is the payment provider boundary (card, PayPal, Payzone, bank transfer). Declines must
// be reported as domain.ErrPaymentDeclined; any other error is treated as a transport failure.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, req RefundRequest) (ChargeResult, error)
}

// SimulatedGateway settles everything synchronously. Details["simulate"] = "decline" declines
// the charge, "error" fails it as a transport error.
type SimulatedGateway struct{}

func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{}
}

func (g *SimulatedGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return ChargeResult{}, err
	}
	switch req.Details["simulate"] {
	case "decline":
		return ChargeResult{}, errors.Wrapf(domain.ErrPaymentDeclined, "%s declined by issuer", req.Method)
	case "error":
		return ChargeResult{}, errors.New("gateway unavailable")
	}
	return ChargeResult{TransactionID: "sim_" + string(req.Method) + "_" + uuid.NewString()}, nil
}

func (g *SimulatedGateway) Refund(ctx context.Context, req RefundRequest) (ChargeResult, error) {
	if err := ctx.Err(); err != nil {
		return ChargeResult{}, err
	}
	if req.TransactionID == "" {
		return ChargeResult{}, errors.Wrapf(domain.ErrPaymentNotRefundable, "payment %s has no transaction", req.PaymentID)
	}
	return ChargeResult{TransactionID: "sim_refund_" + uuid.NewString()}, nil
}

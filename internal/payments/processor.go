// Package payments charges orders through a Gateway and drives the PAID and REFUNDED order
// transitions, including token issuance and cancellation.
package payments

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/dropinmorocco/booking-core/internal/orders"
	"github.com/dropinmorocco/booking-core/internal/tokens"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("payments")

type Processor struct {
	store   domain.Store
	orders  *orders.Manager
	issuer  *tokens.Issuer
	gateway Gateway
	logger  observability.Logger
	now     func() time.Time
}

func NewProcessor(store domain.Store, om *orders.Manager, issuer *tokens.Issuer, gw Gateway, logger observability.Logger) *Processor {
	return &Processor{store: store, orders: om, issuer: issuer, gateway: gw, logger: logger, now: time.Now}
}

func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

func (p *Processor) clock() time.Time {
	return p.now().UTC().Truncate(time.Microsecond)
}

// RefundResult is the outcome of one refund.
type RefundResult struct {
	Order           *domain.Order  `json:"order"`
	Refund          domain.Payment `json:"refund"`
	CancelledTokens int            `json:"cancelled_tokens"`
}

type paymentEvent struct {
	PaymentID uuid.UUID            `json:"payment_id"`
	OrderID   uuid.UUID            `json:"order_id"`
	Amount    int64                `json:"amount"`
	Method    domain.PaymentMethod `json:"method"`
	RefundOf  *uuid.UUID           `json:"refund_of,omitempty"`
	Reason    string               `json:"reason,omitempty"`
}

func emitPayment(ctx context.Context, tx domain.Tx, pay domain.Payment, eventType string, at time.Time) error {
	rec, err := domain.NewOutboxRecord("payment", pay.ID, eventType, paymentEvent{
		PaymentID: pay.ID,
		OrderID:   pay.OrderID,
		Amount:    pay.Amount,
		Method:    pay.Method,
		RefundOf:  pay.RefundOf,
		Reason:    pay.Reason,
	}, at)
	if err != nil {
		return err
	}
	return tx.InsertOutbox(ctx, rec)
}

// ProcessPayment charges a PENDING order and, on success, moves it to PAID and issues its tokens
// in one transaction. A pending payment row is reserved before the gateway is called, so a second
// concurrent attempt on the same order fails with ErrOrderNotPayable instead of charging twice.
func (p *Processor) ProcessPayment(ctx context.Context, orderID uuid.UUID, method domain.PaymentMethod, details map[string]string) (*domain.Order, []domain.AccessToken, error) {
	ctx, span := tracer.Start(ctx, "payments.ProcessPayment")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID.String()), attribute.String("payment.method", string(method)))

	if _, err := domain.ParsePaymentMethod(string(method)); err != nil {
		return nil, nil, err
	}

	var pay domain.Payment
	err := p.store.WithTx(ctx, func(tx domain.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderPending {
			return errors.Wrapf(domain.ErrOrderNotPayable, "order %s is %s", orderID, order.Status)
		}
		existing, err := tx.ListPayments(ctx, orderID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.Status == domain.PaymentPending || (e.Status == domain.PaymentCompleted && !e.IsRefund()) {
				return errors.Wrapf(domain.ErrOrderNotPayable, "order %s already has payment %s in %s", orderID, e.ID, e.Status)
			}
		}
		pay = domain.Payment{
			ID:        uuid.New(),
			OrderID:   orderID,
			Amount:    order.GrossAmount,
			Currency:  domain.Currency,
			Method:    method,
			Status:    domain.PaymentPending,
			Details:   details,
			CreatedAt: p.clock(),
		}
		return tx.InsertPayment(ctx, pay)
	})
	if err != nil {
		return nil, nil, err
	}

	logger := p.logger.WithFields(map[string]interface{}{
		"order_id":   orderID,
		"payment_id": pay.ID,
		"method":     method,
		"amount":     pay.Amount,
	})

	res, chargeErr := p.gateway.Charge(ctx, ChargeRequest{
		PaymentID: pay.ID,
		OrderID:   orderID,
		Amount:    pay.Amount,
		Currency:  pay.Currency,
		Method:    method,
		Details:   details,
	})
	if chargeErr != nil {
		observability.PaymentsTotal.WithLabelValues(string(method), string(domain.PaymentFailed)).Inc()
		logger.WithError(chargeErr).Warn("charge failed")
		if err := p.fail(ctx, pay); err != nil {
			logger.WithError(err).Error("record failed payment")
		}
		return nil, nil, gatewayError(chargeErr, "charge")
	}

	var (
		paid   *domain.Order
		issued []domain.AccessToken
	)
	err = p.store.WithTx(ctx, func(tx domain.Tx) error {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if err := tx.UpdatePaymentStatus(ctx, pay.ID, domain.PaymentPending, domain.PaymentCompleted, res.TransactionID); err != nil {
			return errors.Wrapf(err, "complete payment %s", pay.ID)
		}
		paid, err = p.orders.UpdateStatus(ctx, tx, *order, domain.OrderPaid, p.clock())
		if errors.Is(err, domain.ErrInvalidStateTransition) {
			return errors.Mark(err, domain.ErrOrderNotPayable)
		}
		if err != nil {
			return err
		}
		issued, err = p.issuer.Issue(ctx, tx, *paid)
		if err != nil {
			return err
		}
		return orders.Emit(ctx, tx, *paid, domain.EventOrderPaid, *paid.PaidAt)
	})
	if err != nil {
		logger.WithError(err).WithField("transaction_id", res.TransactionID).Error("charged but could not mark order paid, reversing")
		p.compensate(ctx, pay, res.TransactionID)
		return nil, nil, err
	}

	observability.PaymentsTotal.WithLabelValues(string(method), string(domain.PaymentCompleted)).Inc()
	for _, tok := range issued {
		observability.TokensIssued.WithLabelValues(string(tok.ProductType)).Inc()
	}
	logger.WithField("tokens", len(issued)).Info("order paid")
	return paid, issued, nil
}

// gatewayError keeps the domain refusals a gateway reports (declines, unrefundable payments) and
// marks everything else as the gateway being unavailable.
func gatewayError(err error, op string) error {
	if domain.ReasonOf(err) != domain.ReasonInternal {
		return err
	}
	return errors.Mark(errors.Wrap(err, op), domain.ErrGatewayUnavailable)
}

// fail releases a pending charge. It runs detached from the request so a client disconnect after
// the gateway answered does not leave the reservation behind.
func (p *Processor) fail(ctx context.Context, pay domain.Payment) error {
	ctx = context.WithoutCancel(ctx)
	return p.store.WithTx(ctx, func(tx domain.Tx) error {
		if err := tx.UpdatePaymentStatus(ctx, pay.ID, domain.PaymentPending, domain.PaymentFailed, ""); err != nil {
			return err
		}
		pay.Status = domain.PaymentFailed
		return emitPayment(ctx, tx, pay, domain.EventPaymentFailed, p.clock())
	})
}

// compensate returns a charge whose order could not be moved to PAID and releases the reservation.
func (p *Processor) compensate(ctx context.Context, pay domain.Payment, transactionID string) {
	ctx = context.WithoutCancel(ctx)
	_, err := p.gateway.Refund(ctx, RefundRequest{
		PaymentID:     pay.ID,
		OrderID:       pay.OrderID,
		TransactionID: transactionID,
		Amount:        pay.Amount,
		Currency:      pay.Currency,
		Reason:        "order could not be marked paid",
	})
	if err != nil {
		p.logger.WithError(err).WithField("payment_id", pay.ID).Error("reversal failed, payment left pending for reconciliation")
		return
	}
	if err := p.fail(ctx, pay); err != nil {
		p.logger.WithError(err).WithField("payment_id", pay.ID).Error("record reversed payment")
	}
}

// RefundPayment reverses amount of a completed payment, or whatever remains of it when amount is
// nil. Once the refunds of every payment cover the order it moves to REFUNDED and its tokens are
// cancelled.
func (p *Processor) RefundPayment(ctx context.Context, paymentID uuid.UUID, amount *int64, reason string) (*RefundResult, error) {
	ctx, span := tracer.Start(ctx, "payments.RefundPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID.String()))

	var (
		original domain.Payment
		refund   domain.Payment
	)
	err := p.store.WithTx(ctx, func(tx domain.Tx) error {
		orig, err := tx.GetPayment(ctx, paymentID)
		if err != nil {
			return err
		}
		original = *orig
		all, err := tx.ListPayments(ctx, orig.OrderID)
		if err != nil {
			return err
		}
		if orig.Status != domain.PaymentCompleted || orig.IsRefund() {
			if !hasCompletedCharge(all) {
				return errors.Wrapf(domain.ErrNoCompletedPayments, "order %s", orig.OrderID)
			}
			return errors.Wrapf(domain.ErrPaymentNotRefundable, "payment %s is %s", paymentID, orig.Status)
		}

		remaining := orig.Amount - reserved(all, paymentID)
		if remaining <= 0 {
			return errors.Wrapf(domain.ErrPaymentNotRefundable, "payment %s is fully refunded", paymentID)
		}
		amt := remaining
		if amount != nil {
			amt = *amount
		}
		if amt <= 0 {
			return errors.Wrapf(domain.ErrInvalidInput, "refund amount %d", amt)
		}
		if amt > remaining {
			return errors.Wrapf(domain.ErrRefundExceedsPayment, "refund %d, refundable %d", amt, remaining)
		}

		refund = domain.Payment{
			ID:        uuid.New(),
			OrderID:   orig.OrderID,
			Amount:    -amt,
			Currency:  orig.Currency,
			Method:    orig.Method,
			Status:    domain.PaymentPending,
			RefundOf:  &orig.ID,
			Reason:    reason,
			CreatedAt: p.clock(),
		}
		return tx.InsertPayment(ctx, refund)
	})
	if err != nil {
		return nil, err
	}

	logger := p.logger.WithFields(map[string]interface{}{
		"order_id":   original.OrderID,
		"payment_id": paymentID,
		"refund_id":  refund.ID,
		"amount":     -refund.Amount,
	})

	res, err := p.gateway.Refund(ctx, RefundRequest{
		PaymentID:     original.ID,
		OrderID:       original.OrderID,
		TransactionID: original.TransactionID,
		Amount:        -refund.Amount,
		Currency:      refund.Currency,
		Reason:        reason,
	})
	if err != nil {
		logger.WithError(err).Warn("gateway refund failed")
		bg := context.WithoutCancel(ctx)
		if ferr := p.store.WithTx(bg, func(tx domain.Tx) error {
			return tx.UpdatePaymentStatus(bg, refund.ID, domain.PaymentPending, domain.PaymentFailed, "")
		}); ferr != nil {
			logger.WithError(ferr).Error("release refund reservation")
		}
		return nil, gatewayError(err, "gateway refund")
	}

	// The gateway has returned the money, so recording it must outlive the request.
	out, err := p.settleRefund(context.WithoutCancel(ctx), refund, res.TransactionID)
	if err != nil {
		logger.WithError(err).WithField("transaction_id", res.TransactionID).Error("refunded at gateway but could not record it, refund left pending")
		return nil, err
	}

	observability.PaymentsTotal.WithLabelValues(string(original.Method), "refunded").Inc()
	logger.WithFields(map[string]interface{}{
		"order_status":     out.Order.Status,
		"cancelled_tokens": out.CancelledTokens,
	}).Info("payment refunded")
	return out, nil
}

// CompleteRefund records a refund the gateway settled under transactionID but that was left
// pending, applying the same order and token transitions RefundPayment would have.
func (p *Processor) CompleteRefund(ctx context.Context, refundID uuid.UUID, transactionID string) (*RefundResult, error) {
	if transactionID == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "gateway transaction id is required")
	}
	var refund domain.Payment
	err := p.store.WithTx(ctx, func(tx domain.Tx) error {
		pay, err := tx.GetPayment(ctx, refundID)
		if err != nil {
			return err
		}
		if !pay.IsRefund() || pay.Status != domain.PaymentPending {
			return errors.Wrapf(domain.ErrPaymentNotRefundable, "payment %s is not a pending refund", refundID)
		}
		refund = *pay
		return nil
	})
	if err != nil {
		return nil, err
	}

	out, err := p.settleRefund(ctx, refund, transactionID)
	if err != nil {
		return nil, err
	}
	p.logger.WithFields(map[string]interface{}{
		"order_id":       refund.OrderID,
		"refund_id":      refund.ID,
		"transaction_id": transactionID,
		"order_status":   out.Order.Status,
	}).Info("pending refund completed")
	return out, nil
}

// settleRefund completes a pending refund row and, once the order is fully refunded, moves it to
// REFUNDED and cancels its tokens.
func (p *Processor) settleRefund(ctx context.Context, refund domain.Payment, transactionID string) (*RefundResult, error) {
	out := &RefundResult{}
	err := p.store.WithTx(ctx, func(tx domain.Tx) error {
		if err := tx.UpdatePaymentStatus(ctx, refund.ID, domain.PaymentPending, domain.PaymentCompleted, transactionID); err != nil {
			return errors.Wrapf(err, "complete refund %s", refund.ID)
		}
		out.Refund = refund
		out.Refund.Status = domain.PaymentCompleted
		out.Refund.TransactionID = transactionID
		now := p.clock()
		if err := emitPayment(ctx, tx, out.Refund, domain.EventPaymentRefunded, now); err != nil {
			return err
		}

		order, err := tx.GetOrder(ctx, refund.OrderID)
		if err != nil {
			return err
		}
		out.Order = order
		all, err := tx.ListPayments(ctx, order.ID)
		if err != nil {
			return err
		}
		if order.Status != domain.OrderPaid || !fullyRefunded(all) {
			return nil
		}
		out.Order, err = p.orders.UpdateStatus(ctx, tx, *order, domain.OrderRefunded, now)
		if err != nil {
			return err
		}
		out.CancelledTokens, err = tx.CancelOrderTokens(ctx, order.ID)
		if err != nil {
			return err
		}
		return orders.Emit(ctx, tx, *out.Order, domain.EventOrderRefunded, now)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RefundOrder refunds whatever remains of every completed payment of the order.
func (p *Processor) RefundOrder(ctx context.Context, orderID uuid.UUID, reason string) (*RefundResult, error) {
	var targets []uuid.UUID
	err := p.store.WithTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.GetOrder(ctx, orderID); err != nil {
			return err
		}
		all, err := tx.ListPayments(ctx, orderID)
		if err != nil {
			return err
		}
		if !hasCompletedCharge(all) {
			return errors.Wrapf(domain.ErrNoCompletedPayments, "order %s", orderID)
		}
		targets = targets[:0]
		for _, pay := range all {
			if pay.Status == domain.PaymentCompleted && !pay.IsRefund() && pay.Amount > reserved(all, pay.ID) {
				targets = append(targets, pay.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, errors.Wrapf(domain.ErrPaymentNotRefundable, "order %s is fully refunded", orderID)
	}

	var (
		last      *RefundResult
		cancelled int
	)
	for _, id := range targets {
		res, err := p.RefundPayment(ctx, id, nil, reason)
		if err != nil {
			return nil, err
		}
		cancelled += res.CancelledTokens
		last = res
	}
	last.CancelledTokens = cancelled
	return last, nil
}

func hasCompletedCharge(all []domain.Payment) bool {
	for _, pay := range all {
		if pay.Status == domain.PaymentCompleted && !pay.IsRefund() {
			return true
		}
	}
	return false
}

// reserved sums the refunds of paymentID that are completed or still in flight.
func reserved(all []domain.Payment, paymentID uuid.UUID) int64 {
	var sum int64
	for _, pay := range all {
		if pay.RefundOf == nil || *pay.RefundOf != paymentID {
			continue
		}
		if pay.Status == domain.PaymentCompleted || pay.Status == domain.PaymentPending {
			sum += -pay.Amount
		}
	}
	return sum
}

func fullyRefunded(all []domain.Payment) bool {
	var charged, refunded int64
	for _, pay := range all {
		if pay.Status != domain.PaymentCompleted {
			continue
		}
		if pay.IsRefund() {
			refunded += -pay.Amount
		} else {
			charged += pay.Amount
		}
	}
	return charged > 0 && refunded >= charged
}

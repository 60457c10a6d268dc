// Package orders creates order aggregates and owns every order status transition.
package orders

import (
	"context"
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/catalog"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/dropinmorocco/booking-core/internal/pricing"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("orders")

// Per-order bounds. Each unit may mint up to ten tokens.
const (
	MaxQuantity  = 100
	MaxLineItems = 50
)

// ItemRequest is one product selection. VenueID supplies the tier context used for pricing.
type ItemRequest struct {
	ProductID uuid.UUID  `json:"product_id"`
	Quantity  int        `json:"quantity"`
	VenueID   *uuid.UUID `json:"venue_id,omitempty"`
}

type Manager struct {
	store   domain.Store
	catalog catalog.Catalog
	pricing *pricing.Engine
	logger  observability.Logger
	now     func() time.Time
}

func NewManager(store domain.Store, cat catalog.Catalog, engine *pricing.Engine, logger observability.Logger) *Manager {
	return &Manager{store: store, catalog: cat, pricing: engine, logger: logger, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func (m *Manager) CreateOrder(ctx context.Context, userID uuid.UUID, items []ItemRequest) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.CreateOrder")
	defer span.End()

	if userID == uuid.Nil {
		return nil, errors.Wrap(domain.ErrInvalidInput, "user id is required")
	}
	if len(items) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidInput, "order has no items")
	}
	if len(items) > MaxLineItems {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "order has %d items, at most %d allowed", len(items), MaxLineItems)
	}

	now := m.now().UTC()
	order := domain.Order{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    domain.OrderPending,
		CreatedAt: now,
	}

	err := m.store.WithTx(ctx, func(tx domain.Tx) error {
		order.LineItems = order.LineItems[:0]
		order.GrossAmount = 0
		for _, it := range items {
			li, err := m.lineItem(ctx, tx, order.ID, it)
			if err != nil {
				return err
			}
			sub := li.Subtotal()
			if order.GrossAmount > math.MaxInt64-sub {
				return errors.Wrap(domain.ErrInvalidInput, "order total out of range")
			}
			order.LineItems = append(order.LineItems, li)
			order.GrossAmount += sub
		}
		split := m.pricing.SplitCommission(order.GrossAmount)
		order.CommissionAmount = split.Commission
		order.NetPartnerAmount = split.Net

		if err := tx.InsertOrder(ctx, order); err != nil {
			return errors.Wrap(err, "insert order")
		}
		return Emit(ctx, tx, order, domain.EventOrderCreated, now)
	})
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID.String()), attribute.Int64("order.gross", order.GrossAmount))
	observability.OrdersCreated.Inc()
	m.logger.WithFields(map[string]interface{}{
		"order_id": order.ID,
		"user_id":  userID,
		"gross":    order.GrossAmount,
	}).Info("order created")
	return &order, nil
}

func (m *Manager) lineItem(ctx context.Context, tx domain.Tx, orderID uuid.UUID, it ItemRequest) (domain.LineItem, error) {
	if it.Quantity < 1 || it.Quantity > MaxQuantity {
		return domain.LineItem{}, errors.Wrapf(domain.ErrInvalidInput, "quantity %d for product %s, must be 1 to %d", it.Quantity, it.ProductID, MaxQuantity)
	}
	product, err := m.catalog.Get(ctx, it.ProductID)
	if err != nil {
		return domain.LineItem{}, err
	}

	unit := product.BasePriceMAD
	if it.VenueID != nil {
		venue, err := tx.GetVenue(ctx, *it.VenueID)
		if err != nil {
			return domain.LineItem{}, err
		}
		if !venue.IsActive {
			return domain.LineItem{}, errors.Wrapf(domain.ErrVenueInactive, "venue %s", venue.ID)
		}
		unit, err = m.pricing.PriceFor(venue.Tier, product, venue.MonthlyPrice)
		if err != nil {
			return domain.LineItem{}, err
		}
	}
	if unit > math.MaxInt64/int64(it.Quantity) {
		return domain.LineItem{}, errors.Wrapf(domain.ErrInvalidInput, "subtotal of product %s out of range", product.ID)
	}

	return domain.LineItem{
		ID:          uuid.New(),
		OrderID:     orderID,
		ProductID:   product.ID,
		ProductType: product.Type,
		Quantity:    it.Quantity,
		UnitPrice:   unit,
		VenueID:     it.VenueID,
	}, nil
}

func (m *Manager) CancelOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "orders.CancelOrder")
	defer span.End()

	var order *domain.Order
	err := m.store.WithTx(ctx, func(tx domain.Tx) error {
		current, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if current.Status != domain.OrderPending {
			return errors.Wrapf(domain.ErrInvalidStateTransition, "cancel order %s in %s", orderID, current.Status)
		}
		order, err = m.UpdateStatus(ctx, tx, *current, domain.OrderCancelled, m.now().UTC())
		if err != nil {
			return err
		}
		return Emit(ctx, tx, *order, domain.EventOrderCancelled, *order.CancelledAt)
	})
	if err != nil {
		return nil, err
	}
	m.logger.WithField("order_id", orderID).Info("order cancelled")
	return order, nil
}

// UpdateStatus is the only writer of Order.Status. It validates the transition and performs it
// as a compare-and-swap on the status the caller read, inside the caller's transaction.
func (m *Manager) UpdateStatus(ctx context.Context, tx domain.Tx, order domain.Order, to domain.OrderStatus, at time.Time) (*domain.Order, error) {
	if !domain.CanTransitionOrder(order.Status, to) {
		return nil, errors.Wrapf(domain.ErrInvalidStateTransition, "order %s: %s -> %s", order.ID, order.Status, to)
	}
	err := tx.UpdateOrderStatus(ctx, order.ID, order.Status, to, at)
	if errors.Is(err, domain.ErrConflict) {
		return nil, errors.Wrapf(domain.ErrInvalidStateTransition, "order %s changed concurrently", order.ID)
	}
	if err != nil {
		return nil, err
	}

	order.Status = to
	switch to {
	case domain.OrderPaid:
		order.PaidAt = &at
	case domain.OrderCancelled:
		order.CancelledAt = &at
	case domain.OrderRefunded:
		order.RefundedAt = &at
	}
	return &order, nil
}

func (m *Manager) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order *domain.Order
	err := m.store.WithTx(ctx, func(tx domain.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, orderID)
		return err
	})
	return order, err
}

func (m *Manager) ListUserOrders(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	var out []domain.Order
	err := m.store.WithTx(ctx, func(tx domain.Tx) error {
		var err error
		out, err = tx.ListOrdersByUser(ctx, userID)
		return err
	})
	return out, err
}

type orderEvent struct {
	OrderID          uuid.UUID          `json:"order_id"`
	UserID           uuid.UUID          `json:"user_id"`
	Status           domain.OrderStatus `json:"status"`
	GrossAmount      int64              `json:"gross_amount"`
	CommissionAmount int64              `json:"commission_amount"`
	NetPartnerAmount int64              `json:"net_partner_amount"`
}

// Emit writes an order event to the outbox in tx.
func Emit(ctx context.Context, tx domain.Tx, order domain.Order, eventType string, at time.Time) error {
	rec, err := domain.NewOutboxRecord("order", order.ID, eventType, orderEvent{
		OrderID:          order.ID,
		UserID:           order.UserID,
		Status:           order.Status,
		GrossAmount:      order.GrossAmount,
		CommissionAmount: order.CommissionAmount,
		NetPartnerAmount: order.NetPartnerAmount,
	}, at)
	if err != nil {
		return err
	}
	return tx.InsertOutbox(ctx, rec)
}

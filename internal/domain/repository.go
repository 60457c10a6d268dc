package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store is the persistence collaborator. Everything that writes goes through WithTx so a failed
// step leaves no partial state behind.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is a unit of work. Methods returning ErrConflict lost a compare-and-swap on the current status.
type Tx interface {
	GetVenue(ctx context.Context, id uuid.UUID) (*Venue, error)
	// IncrementOccupancy bumps today's occupancy when it is below the maximum. Returns
	// ErrVenueAtCapacity when full and nil when the venue has no capacity record for the day.
	IncrementOccupancy(ctx context.Context, venueID uuid.UUID, day string) error

	InsertOrder(ctx context.Context, order Order) error
	GetOrder(ctx context.Context, id uuid.UUID) (*Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to OrderStatus, at time.Time) error

	InsertPayment(ctx context.Context, p Payment) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListPayments(ctx context.Context, orderID uuid.UUID) ([]Payment, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to PaymentStatus, transactionID string) error

	InsertTokens(ctx context.Context, tokens []AccessToken) error
	GetTokenByCode(ctx context.Context, code string) (*AccessToken, error)
	ListTokensByOrder(ctx context.Context, orderID uuid.UUID) ([]AccessToken, error)
	// MarkRedeemed records a redemption on a token still in ACTIVE and moves it to next.
	MarkRedeemed(ctx context.Context, id uuid.UUID, next TokenStatus, at time.Time) error
	UpdateTokenStatus(ctx context.Context, id uuid.UUID, from, to TokenStatus) error
	CancelOrderTokens(ctx context.Context, orderID uuid.UUID) (int, error)

	InsertCheckin(ctx context.Context, c Checkin) error

	InsertOutbox(ctx context.Context, rec OutboxRecord) error
}

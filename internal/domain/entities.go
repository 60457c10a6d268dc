package domain

import (
	"time"

	"github.com/google/uuid"
)

// UnlimitedCredits is the credit count carried by pass products.
const UnlimitedCredits = -1

// Currency is the only settlement currency of the marketplace.
const Currency = "MAD"

type Product struct {
	ID              uuid.UUID   `json:"id" yaml:"id" bson:"_id"`
	Type            ProductType `json:"type" yaml:"type" bson:"type"`
	Name            string      `json:"name" yaml:"name" bson:"name"`
	CreditCount     int         `json:"credit_count" yaml:"credit_count" bson:"credit_count"`
	TierEligibility []Tier      `json:"tier_eligibility,omitempty" yaml:"tier_eligibility" bson:"tier_eligibility"`
	BasePriceMAD    int64       `json:"base_price_mad" yaml:"base_price_mad" bson:"base_price_mad"`
}

// EligibleAt reports whether the product can be priced or redeemed at a venue of the given tier.
// An empty eligibility set means every tier.
func (p Product) EligibleAt(tier Tier) bool {
	if len(p.TierEligibility) == 0 {
		return true
	}
	for _, t := range p.TierEligibility {
		if t == tier {
			return true
		}
	}
	return false
}

type Venue struct {
	ID           uuid.UUID
	Name         string
	Tier         Tier
	MonthlyPrice *int64
	IsActive     bool
}

// Capacity is the occupancy record of a venue for one calendar day.
type Capacity struct {
	VenueID          uuid.UUID
	Day              string
	MaxCapacity      int
	CurrentOccupancy int
}

type Order struct {
	ID               uuid.UUID   `json:"id"`
	UserID           uuid.UUID   `json:"user_id"`
	Status           OrderStatus `json:"status"`
	LineItems        []LineItem  `json:"line_items"`
	GrossAmount      int64       `json:"gross_amount"`
	CommissionAmount int64       `json:"commission_amount"`
	NetPartnerAmount int64       `json:"net_partner_amount"`
	CreatedAt        time.Time   `json:"created_at"`
	PaidAt           *time.Time  `json:"paid_at,omitempty"`
	CancelledAt      *time.Time  `json:"cancelled_at,omitempty"`
	RefundedAt       *time.Time  `json:"refunded_at,omitempty"`
}

type LineItem struct {
	ID          uuid.UUID   `json:"id"`
	OrderID     uuid.UUID   `json:"order_id"`
	ProductID   uuid.UUID   `json:"product_id"`
	ProductType ProductType `json:"product_type"`
	Quantity    int         `json:"quantity"`
	UnitPrice   int64       `json:"unit_price"`
	VenueID     *uuid.UUID  `json:"venue_id,omitempty"`
}

// Subtotal returns unit price times quantity.
func (li LineItem) Subtotal() int64 {
	return li.UnitPrice * int64(li.Quantity)
}

type Payment struct {
	ID            uuid.UUID         `json:"id"`
	OrderID       uuid.UUID         `json:"order_id"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Method        PaymentMethod     `json:"method"`
	Status        PaymentStatus     `json:"status"`
	TransactionID string            `json:"transaction_id,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
	RefundOf      *uuid.UUID        `json:"refund_of,omitempty"`
	Reason        string            `json:"reason,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// IsRefund reports whether the payment row reverses an earlier payment.
func (p Payment) IsRefund() bool {
	return p.Amount < 0 || p.RefundOf != nil
}

type AccessToken struct {
	ID              uuid.UUID   `json:"id"`
	Code            string      `json:"code"`
	OrderID         uuid.UUID   `json:"order_id"`
	ProductID       uuid.UUID   `json:"product_id"`
	ProductType     ProductType `json:"product_type"`
	Status          TokenStatus `json:"status"`
	ExpiresAt       time.Time   `json:"expires_at"`
	CreatedAt       time.Time   `json:"created_at"`
	UsedAt          *time.Time  `json:"used_at,omitempty"`
	RedemptionCount int         `json:"redemption_count"`
}

type Checkin struct {
	ID        uuid.UUID `json:"id"`
	TokenID   uuid.UUID `json:"token_id"`
	VenueID   uuid.UUID `json:"venue_id"`
	CheckedAt time.Time `json:"checked_at"`
}

// OutboxRecord is an event written in the same transaction as the state change it describes.
type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED
	DedupeKey     string
}

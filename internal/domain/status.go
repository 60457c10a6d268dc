package domain

import "github.com/cockroachdb/errors"

type Tier string

const (
	TierBasic     Tier = "BASIC"
	TierStandard  Tier = "STANDARD"
	TierPremium   Tier = "PREMIUM"
	TierUltraLuxe Tier = "ULTRA_LUXE"
)

var Tiers = []Tier{TierBasic, TierStandard, TierPremium, TierUltraLuxe}

func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierBasic, TierStandard, TierPremium, TierUltraLuxe:
		return t, nil
	}
	return "", errors.Wrapf(ErrInvalidInput, "unknown tier %q", s)
}

type ProductType string

const (
	ProductSingle       ProductType = "SINGLE"
	ProductPack5        ProductType = "PACK5"
	ProductPack10       ProductType = "PACK10"
	ProductPassStandard ProductType = "PASS_STANDARD"
	ProductPassPremium  ProductType = "PASS_PREMIUM"
)

func ParseProductType(s string) (ProductType, error) {
	switch p := ProductType(s); p {
	case ProductSingle, ProductPack5, ProductPack10, ProductPassStandard, ProductPassPremium:
		return p, nil
	}
	return "", errors.Wrapf(ErrInvalidInput, "unknown product type %q", s)
}

// IsPass reports whether tokens of this product stay active across redemptions.
func (p ProductType) IsPass() bool {
	return p == ProductPassStandard || p == ProductPassPremium
}

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

var validOrderNext = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:   {OrderPaid: true, OrderCancelled: true},
	OrderPaid:      {OrderRefunded: true},
	OrderCancelled: {},
	OrderRefunded:  {},
}

func CanTransitionOrder(from, to OrderStatus) bool {
	return validOrderNext[from][to]
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

type PaymentMethod string

const (
	MethodCard         PaymentMethod = "card"
	MethodPayPal       PaymentMethod = "paypal"
	MethodPayzone      PaymentMethod = "payzone"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case MethodCard, MethodPayPal, MethodPayzone, MethodBankTransfer:
		return m, nil
	}
	return "", errors.Wrapf(ErrInvalidInput, "unknown payment method %q", s)
}

type TokenStatus string

const (
	TokenActive    TokenStatus = "ACTIVE"
	TokenUsed      TokenStatus = "USED"
	TokenExpired   TokenStatus = "EXPIRED"
	TokenCancelled TokenStatus = "CANCELLED"
)

// USED and EXPIRED tokens only move to CANCELLED when their order is refunded.
var validTokenNext = map[TokenStatus]map[TokenStatus]bool{
	TokenActive:    {TokenUsed: true, TokenExpired: true, TokenCancelled: true},
	TokenUsed:      {TokenCancelled: true},
	TokenExpired:   {TokenCancelled: true},
	TokenCancelled: {},
}

func CanTransitionToken(from, to TokenStatus) bool {
	return validTokenNext[from][to]
}

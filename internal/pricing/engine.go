// Package pricing turns venue tiers and product types into prices and splits gross amounts
// between the platform and the partner venue.
package pricing

import (
	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/shopspring/decimal"
)

// Rates are the only place commission and discount values live.
type Rates struct {
	CommissionRate    float64
	Pack5Discount     float64
	Pack10Discount    float64
	SingleFromMonthly float64
	SingleByTier      map[domain.Tier]int64
	TierMinimum       map[domain.Tier]int64
}

func DefaultRates() Rates {
	return Rates{
		CommissionRate:    0.25,
		Pack5Discount:     0.10,
		Pack10Discount:    0.20,
		SingleFromMonthly: 0.15,
		SingleByTier: map[domain.Tier]int64{
			domain.TierBasic:     50,
			domain.TierStandard:  90,
			domain.TierPremium:   150,
			domain.TierUltraLuxe: 320,
		},
		TierMinimum: map[domain.Tier]int64{
			domain.TierBasic:     30,
			domain.TierStandard:  60,
			domain.TierPremium:   100,
			domain.TierUltraLuxe: 200,
		},
	}
}

type Split struct {
	Commission int64 `json:"commission"`
	Net        int64 `json:"net"`
}

type Engine struct {
	commission        decimal.Decimal
	pack5Factor       decimal.Decimal
	pack10Factor      decimal.Decimal
	singleFromMonthly decimal.Decimal
	singleByTier      map[domain.Tier]int64
	tierMinimum       map[domain.Tier]int64
}

func NewEngine(r Rates) (*Engine, error) {
	for name, v := range map[string]float64{
		"commission rate":     r.CommissionRate,
		"pack5 discount":      r.Pack5Discount,
		"pack10 discount":     r.Pack10Discount,
		"single from monthly": r.SingleFromMonthly,
	} {
		if v < 0 || v > 1 {
			return nil, errors.Wrapf(domain.ErrInvalidInput, "%s %v outside [0,1]", name, v)
		}
	}
	for _, t := range domain.Tiers {
		if _, ok := r.SingleByTier[t]; !ok {
			return nil, errors.Wrapf(domain.ErrInvalidInput, "missing single price for tier %s", t)
		}
	}
	one := decimal.NewFromInt(1)
	return &Engine{
		commission:        decimal.NewFromFloat(r.CommissionRate),
		pack5Factor:       decimal.NewFromInt(5).Mul(one.Sub(decimal.NewFromFloat(r.Pack5Discount))),
		pack10Factor:      decimal.NewFromInt(10).Mul(one.Sub(decimal.NewFromFloat(r.Pack10Discount))),
		singleFromMonthly: decimal.NewFromFloat(r.SingleFromMonthly),
		singleByTier:      r.SingleByTier,
		tierMinimum:       r.TierMinimum,
	}, nil
}

// PriceFor returns the unit price of product at a venue of the given tier. monthlyPrice is the
// venue's monthly membership price when it publishes one.
func (e *Engine) PriceFor(tier domain.Tier, product domain.Product, monthlyPrice *int64) (int64, error) {
	if _, ok := e.singleByTier[tier]; !ok {
		return 0, errors.Wrapf(domain.ErrInvalidInput, "unknown tier %q", tier)
	}
	if !product.EligibleAt(tier) {
		return 0, errors.Wrapf(domain.ErrProductNotAvailableForTier, "%s at %s", product.Type, tier)
	}

	switch product.Type {
	case domain.ProductSingle:
		return e.single(tier, monthlyPrice), nil
	case domain.ProductPack5:
		return roundHalfUp(decimal.NewFromInt(e.single(tier, monthlyPrice)).Mul(e.pack5Factor)), nil
	case domain.ProductPack10:
		return roundHalfUp(decimal.NewFromInt(e.single(tier, monthlyPrice)).Mul(e.pack10Factor)), nil
	case domain.ProductPassStandard, domain.ProductPassPremium:
		return product.BasePriceMAD, nil
	}
	return 0, errors.Wrapf(domain.ErrInvalidInput, "unknown product type %q", product.Type)
}

func (e *Engine) single(tier domain.Tier, monthlyPrice *int64) int64 {
	if monthlyPrice == nil || *monthlyPrice <= 0 {
		return e.singleByTier[tier]
	}
	p := roundHalfUp(decimal.NewFromInt(*monthlyPrice).Mul(e.singleFromMonthly))
	if floor := e.tierMinimum[tier]; p < floor {
		return floor
	}
	return p
}

// SplitCommission partitions gross exactly: the commission is rounded half-up and the partner
// share takes the remainder.
func (e *Engine) SplitCommission(gross int64) Split {
	commission := roundHalfUp(decimal.NewFromInt(gross).Mul(e.commission))
	return Split{Commission: commission, Net: gross - commission}
}

// roundHalfUp rounds half away from zero, which is half-up for the non-negative amounts priced here.
func roundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}

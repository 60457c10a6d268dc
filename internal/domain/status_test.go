package domain_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/domain"
)

func TestCanTransitionOrder(t *testing.T) {
	cases := []struct {
		from, to domain.OrderStatus
		want     bool
	}{
		{domain.OrderPending, domain.OrderPaid, true},
		{domain.OrderPending, domain.OrderCancelled, true},
		{domain.OrderPaid, domain.OrderRefunded, true},
		{domain.OrderPaid, domain.OrderPending, false},
		{domain.OrderPaid, domain.OrderCancelled, false},
		{domain.OrderCancelled, domain.OrderPaid, false},
		{domain.OrderRefunded, domain.OrderPaid, false},
		{domain.OrderPending, domain.OrderRefunded, false},
	}
	for _, c := range cases {
		if got := domain.CanTransitionOrder(c.from, c.to); got != c.want {
			t.Errorf("%s -> %s: expected %v, got %v", c.from, c.to, c.want, got)
		}
	}
}

func TestCanTransitionToken(t *testing.T) {
	if !domain.CanTransitionToken(domain.TokenActive, domain.TokenUsed) {
		t.Error("expected ACTIVE -> USED")
	}
	if domain.CanTransitionToken(domain.TokenUsed, domain.TokenActive) {
		t.Error("expected USED -> ACTIVE to be rejected")
	}
	if domain.CanTransitionToken(domain.TokenCancelled, domain.TokenActive) {
		t.Error("expected CANCELLED to be terminal")
	}
}

func TestReasonOf(t *testing.T) {
	cases := []struct {
		err  error
		want domain.Reason
	}{
		{nil, domain.ReasonWelcome},
		{domain.ErrTokenAlreadyUsed, domain.ReasonTokenAlreadyUsed},
		{errors.Wrap(domain.ErrVenueAtCapacity, "redeem"), domain.ReasonVenueAtCapacity},
		{errors.Wrapf(domain.ErrInvalidInput, "unknown tier %q", "GOLD"), domain.ReasonInvalidInput},
		{domain.ErrSerializationFailure, domain.ReasonConflictRetry},
		{errors.New("boom"), domain.ReasonInternal},
	}
	for _, c := range cases {
		if got := domain.ReasonOf(c.err); got != c.want {
			t.Errorf("ReasonOf(%v): expected %s, got %s", c.err, c.want, got)
		}
	}
}

func TestProductEligibleAt(t *testing.T) {
	open := domain.Product{Type: domain.ProductSingle}
	if !open.EligibleAt(domain.TierUltraLuxe) {
		t.Error("empty eligibility should accept every tier")
	}
	premiumOnly := domain.Product{TierEligibility: []domain.Tier{domain.TierPremium}}
	if premiumOnly.EligibleAt(domain.TierBasic) {
		t.Error("expected BASIC to be rejected")
	}
}

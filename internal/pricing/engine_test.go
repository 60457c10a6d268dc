package pricing_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/pricing"
)

func newEngine(t *testing.T) *pricing.Engine {
	t.Helper()
	e, err := pricing.NewEngine(pricing.DefaultRates())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func product(pt domain.ProductType) domain.Product {
	return domain.Product{Type: pt, BasePriceMAD: 499}
}

func TestEngine_PriceFor_SingleStaticTable(t *testing.T) {
	e := newEngine(t)
	want := map[domain.Tier]int64{
		domain.TierBasic:     50,
		domain.TierStandard:  90,
		domain.TierPremium:   150,
		domain.TierUltraLuxe: 320,
	}
	for tier, price := range want {
		got, err := e.PriceFor(tier, product(domain.ProductSingle), nil)
		if err != nil {
			t.Fatal(err)
		}
		if got != price {
			t.Errorf("%s: expected %d, got %d", tier, price, got)
		}
	}
}

func TestEngine_PriceFor_SingleFromMonthly(t *testing.T) {
	e := newEngine(t)
	monthly := int64(800)
	got, err := e.PriceFor(domain.TierStandard, product(domain.ProductSingle), &monthly)
	if err != nil {
		t.Fatal(err)
	}
	if got != 120 {
		t.Errorf("expected 120, got %d", got)
	}

	cheap := int64(100)
	got, err = e.PriceFor(domain.TierPremium, product(domain.ProductSingle), &cheap)
	if err != nil {
		t.Fatal(err)
	}
	if got != 100 {
		t.Errorf("expected tier minimum 100, got %d", got)
	}
}

func TestEngine_PriceFor_Packs(t *testing.T) {
	e := newEngine(t)
	pack5, _ := e.PriceFor(domain.TierPremium, product(domain.ProductPack5), nil)
	pack10, _ := e.PriceFor(domain.TierPremium, product(domain.ProductPack10), nil)
	if pack5 != 675 {
		t.Errorf("expected pack5 675, got %d", pack5)
	}
	if pack10 != 1200 {
		t.Errorf("expected pack10 1200, got %d", pack10)
	}
}

func TestEngine_PriceFor_PassIsTierIndependent(t *testing.T) {
	e := newEngine(t)
	for _, tier := range domain.Tiers {
		got, err := e.PriceFor(tier, product(domain.ProductPassPremium), nil)
		if err != nil {
			t.Fatal(err)
		}
		if got != 499 {
			t.Errorf("%s: expected 499, got %d", tier, got)
		}
	}
}

func TestEngine_PriceFor_PackDiscountMonotonic(t *testing.T) {
	e := newEngine(t)
	for _, tier := range domain.Tiers {
		single, _ := e.PriceFor(tier, product(domain.ProductSingle), nil)
		pack5, _ := e.PriceFor(tier, product(domain.ProductPack5), nil)
		pack10, _ := e.PriceFor(tier, product(domain.ProductPack10), nil)
		if !(pack10 < pack5*2 && pack5*2 < single*10) {
			t.Errorf("%s: expected %d < %d < %d", tier, pack10, pack5*2, single*10)
		}
	}
}

func TestEngine_PriceFor_TierEligibility(t *testing.T) {
	e := newEngine(t)
	p := domain.Product{Type: domain.ProductPassPremium, TierEligibility: []domain.Tier{domain.TierPremium, domain.TierUltraLuxe}}
	_, err := e.PriceFor(domain.TierBasic, p, nil)
	if !errors.Is(err, domain.ErrProductNotAvailableForTier) {
		t.Errorf("expected ErrProductNotAvailableForTier, got %v", err)
	}
	_, err = e.PriceFor(domain.Tier("GOLD"), p, nil)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEngine_SplitCommission(t *testing.T) {
	e := newEngine(t)
	cases := []struct {
		gross, commission, net int64
	}{
		{0, 0, 0},
		{1, 0, 1},
		{2, 1, 1},
		{150, 38, 112},
		{90, 23, 67},
		{100, 25, 75},
	}
	for _, c := range cases {
		s := e.SplitCommission(c.gross)
		if s.Commission != c.commission || s.Net != c.net {
			t.Errorf("gross %d: expected %d/%d, got %d/%d", c.gross, c.commission, c.net, s.Commission, s.Net)
		}
	}
}

func TestEngine_SplitCommission_Partition(t *testing.T) {
	e := newEngine(t)
	for gross := int64(0); gross <= 10000; gross++ {
		s := e.SplitCommission(gross)
		if s.Commission+s.Net != gross {
			t.Fatalf("gross %d: %d + %d leaks currency", gross, s.Commission, s.Net)
		}
		if s.Commission < 0 || s.Net < 0 {
			t.Fatalf("gross %d: negative share %+v", gross, s)
		}
	}
}

func TestNewEngine_RejectsOutOfRangeRates(t *testing.T) {
	r := pricing.DefaultRates()
	r.CommissionRate = 1.5
	if _, err := pricing.NewEngine(r); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

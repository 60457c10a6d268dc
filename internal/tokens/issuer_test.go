package tokens_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/adapters/memory"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/dropinmorocco/booking-core/internal/tokens"
	"github.com/google/uuid"
)

func paidOrder(items ...domain.LineItem) domain.Order {
	paidAt := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	id := uuid.New()
	for i := range items {
		items[i].OrderID = id
	}
	return domain.Order{ID: id, Status: domain.OrderPaid, PaidAt: &paidAt, LineItems: items}
}

func issue(t *testing.T, store *memory.Store, order domain.Order) ([]domain.AccessToken, error) {
	t.Helper()
	ctx := context.Background()
	issuer := tokens.NewIssuer(observability.NewDiscardLogger())
	var out []domain.AccessToken
	err := store.WithTx(ctx, func(tx domain.Tx) error {
		if err := tx.InsertOrder(ctx, order); err != nil && !errors.Is(err, domain.ErrConflict) {
			return err
		}
		var err error
		out, err = issuer.Issue(ctx, tx, order)
		return err
	})
	return out, err
}

func TestPolicy(t *testing.T) {
	cases := []struct {
		pt       domain.ProductType
		perUnit  int
		validity time.Duration
		reusable bool
	}{
		{domain.ProductSingle, 1, 24 * time.Hour, false},
		{domain.ProductPack5, 5, 90 * 24 * time.Hour, false},
		{domain.ProductPack10, 10, 90 * 24 * time.Hour, false},
		{domain.ProductPassStandard, 1, 30 * 24 * time.Hour, true},
		{domain.ProductPassPremium, 1, 30 * 24 * time.Hour, true},
	}
	for _, c := range cases {
		r, err := tokens.Policy(c.pt)
		if err != nil {
			t.Fatal(err)
		}
		if r.PerUnit != c.perUnit || r.Validity != c.validity || r.Reusable != c.reusable {
			t.Errorf("%s: unexpected rule %+v", c.pt, r)
		}
	}
	if _, err := tokens.Policy("DAYPASS"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIssuer_Pack5QuantityTwo(t *testing.T) {
	order := paidOrder(domain.LineItem{ID: uuid.New(), ProductID: uuid.New(), ProductType: domain.ProductPack5, Quantity: 2, UnitPrice: 675})
	out, err := issue(t, memory.NewStore(), order)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 10 {
		t.Fatalf("expected 10 tokens, got %d", len(out))
	}
	want := order.PaidAt.Add(90 * 24 * time.Hour)
	seen := map[string]bool{}
	for _, tok := range out {
		if tok.Status != domain.TokenActive {
			t.Errorf("expected ACTIVE, got %s", tok.Status)
		}
		if d := tok.ExpiresAt.Sub(want); d > time.Second || d < -time.Second {
			t.Errorf("expected expiry %v, got %v", want, tok.ExpiresAt)
		}
		if seen[tok.Code] {
			t.Errorf("duplicate code %s", tok.Code)
		}
		seen[tok.Code] = true
		if !strings.HasPrefix(tok.Code, "DIM-") {
			t.Errorf("unexpected code format %s", tok.Code)
		}
	}
}

func TestIssuer_MixedOrder(t *testing.T) {
	order := paidOrder(
		domain.LineItem{ID: uuid.New(), ProductID: uuid.New(), ProductType: domain.ProductSingle, Quantity: 1},
		domain.LineItem{ID: uuid.New(), ProductID: uuid.New(), ProductType: domain.ProductPassStandard, Quantity: 2},
	)
	out, err := issue(t, memory.NewStore(), order)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 tokens, got %d", len(out))
	}
	for _, tok := range out {
		var want time.Time
		switch tok.ProductType {
		case domain.ProductSingle:
			want = order.PaidAt.Add(24 * time.Hour)
		case domain.ProductPassStandard:
			want = order.PaidAt.Add(30 * 24 * time.Hour)
		}
		if !tok.ExpiresAt.Equal(want) {
			t.Errorf("%s: expected expiry %v, got %v", tok.ProductType, want, tok.ExpiresAt)
		}
	}
}

func TestIssuer_RefusesUnpaidAndRepeatIssuance(t *testing.T) {
	store := memory.NewStore()
	order := paidOrder(domain.LineItem{ID: uuid.New(), ProductID: uuid.New(), ProductType: domain.ProductSingle, Quantity: 1})

	pending := order
	pending.Status = domain.OrderPending
	pending.PaidAt = nil
	if _, err := issue(t, store, pending); !errors.Is(err, domain.ErrInvalidStateTransition) {
		t.Errorf("expected ErrInvalidStateTransition, got %v", err)
	}

	if _, err := issue(t, store, order); err != nil {
		t.Fatal(err)
	}
	if _, err := issue(t, store, order); !errors.Is(err, domain.ErrTokensAlreadyIssued) {
		t.Errorf("expected ErrTokensAlreadyIssued, got %v", err)
	}
}

func TestNewCode_Unique(t *testing.T) {
	at := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		code, err := tokens.NewCode(at)
		if err != nil {
			t.Fatal(err)
		}
		if seen[code] {
			t.Fatalf("collision on %s", code)
		}
		seen[code] = true
	}
}

package redemption_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/adapters/memory"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/dropinmorocco/booking-core/internal/redemption"
	"github.com/google/uuid"
)

// 23:30 UTC is already the next day at UTC+1.
var now = time.Date(2026, 10, 14, 23, 30, 0, 0, time.UTC)

type fixture struct {
	store   *memory.Store
	gateway *redemption.Gateway
	venue   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), venue: uuid.New()}
	f.store.PutVenue(domain.Venue{ID: f.venue, Name: "Atlas Club", Tier: domain.TierPremium, IsActive: true})
	loc := time.FixedZone("Africa/Casablanca", 3600)
	f.gateway = redemption.NewGateway(f.store, loc, observability.NewDiscardLogger()).
		WithClock(func() time.Time { return now })
	return f
}

func (f *fixture) token(t *testing.T, pt domain.ProductType, status domain.TokenStatus, expiresAt time.Time) domain.AccessToken {
	t.Helper()
	tok := domain.AccessToken{
		ID:          uuid.New(),
		Code:        "DIM-" + uuid.NewString(),
		OrderID:     uuid.New(),
		ProductID:   uuid.New(),
		ProductType: pt,
		Status:      status,
		ExpiresAt:   expiresAt,
		CreatedAt:   now.Add(-time.Hour),
	}
	err := f.store.WithTx(context.Background(), func(tx domain.Tx) error {
		return tx.InsertTokens(context.Background(), []domain.AccessToken{tok})
	})
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (f *fixture) reload(t *testing.T, code string) domain.AccessToken {
	t.Helper()
	var tok *domain.AccessToken
	err := f.store.WithTx(context.Background(), func(tx domain.Tx) error {
		var err error
		tok, err = tx.GetTokenByCode(context.Background(), code)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return *tok
}

func TestRedeem_SingleUse(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, domain.ProductSingle, domain.TokenActive, now.Add(time.Hour))

	res, err := f.gateway.Redeem(ctx, tok.Code, f.venue)
	if err != nil {
		t.Fatal(err)
	}
	if res.Message != "Welcome!" || res.Token.Status != domain.TokenUsed || res.Checkin.VenueID != f.venue {
		t.Errorf("unexpected result %+v", res)
	}
	stored := f.reload(t, tok.Code)
	if stored.Status != domain.TokenUsed || stored.RedemptionCount != 1 || stored.UsedAt == nil {
		t.Errorf("expected USED with one redemption, got %+v", stored)
	}
	if n := len(f.store.Checkins()); n != 1 {
		t.Errorf("expected one checkin, got %d", n)
	}
	out := f.store.Outbox()
	if len(out) != 1 || out[0].EventType != domain.EventTokenRedeemed {
		t.Errorf("expected token.redeemed, got %+v", out)
	}

	_, err = f.gateway.Redeem(ctx, tok.Code, f.venue)
	if !errors.Is(err, domain.ErrTokenAlreadyUsed) {
		t.Fatalf("expected ErrTokenAlreadyUsed, got %v", err)
	}
	if domain.ReasonOf(err) != domain.ReasonTokenAlreadyUsed {
		t.Errorf("unexpected reason %s", domain.ReasonOf(err))
	}
	if n := len(f.store.Checkins()); n != 1 {
		t.Errorf("refused scan must not record a checkin, got %d", n)
	}
}

func TestRedeem_PassIsReusable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, domain.ProductPassPremium, domain.TokenActive, now.Add(30*24*time.Hour))

	for i := 0; i < 2; i++ {
		res, err := f.gateway.Redeem(ctx, tok.Code, f.venue)
		if err != nil {
			t.Fatalf("scan %d: %v", i+1, err)
		}
		if res.Token.Status != domain.TokenActive {
			t.Errorf("scan %d: pass left %s", i+1, res.Token.Status)
		}
	}
	if got := f.reload(t, tok.Code).RedemptionCount; got != 2 {
		t.Errorf("expected two redemptions, got %d", got)
	}
}

func TestRedeem_ExpiredIsPersisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, domain.ProductSingle, domain.TokenActive, now)

	_, err := f.gateway.Redeem(ctx, tok.Code, f.venue)
	if !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired at the expiry instant, got %v", err)
	}
	if got := f.reload(t, tok.Code).Status; got != domain.TokenExpired {
		t.Errorf("expected EXPIRED to be committed, got %s", got)
	}
	if _, err := f.gateway.Redeem(ctx, tok.Code, f.venue); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired on rescan, got %v", err)
	}
	if n := len(f.store.Checkins()); n != 0 {
		t.Errorf("expected no checkin, got %d", n)
	}
}

func TestRedeem_Refusals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cancelled := f.token(t, domain.ProductPack5, domain.TokenCancelled, now.Add(time.Hour))
	used := f.token(t, domain.ProductSingle, domain.TokenUsed, now.Add(time.Hour))
	active := f.token(t, domain.ProductSingle, domain.TokenActive, now.Add(time.Hour))

	cases := []struct {
		name  string
		code  string
		venue uuid.UUID
		want  error
	}{
		{"unknown code", "DIM-NOPE", f.venue, domain.ErrTokenNotFound},
		{"empty code", "  ", f.venue, domain.ErrTokenNotFound},
		{"cancelled", cancelled.Code, f.venue, domain.ErrTokenCancelled},
		{"used at unknown venue", used.Code, uuid.New(), domain.ErrTokenAlreadyUsed},
		{"unknown venue", active.Code, uuid.New(), domain.ErrVenueNotFound},
	}
	for _, c := range cases {
		_, err := f.gateway.Redeem(ctx, c.code, c.venue)
		if !errors.Is(err, c.want) {
			t.Errorf("%s: expected %v, got %v", c.name, c.want, err)
		}
	}
	if got := f.reload(t, active.Code).Status; got != domain.TokenActive {
		t.Errorf("refused token changed to %s", got)
	}
}

func TestRedeem_CapacityUsesVenueDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, domain.ProductSingle, domain.TokenActive, now.Add(time.Hour))

	if day := f.gateway.Day(now); day != "2026-10-15" {
		t.Fatalf("expected local day 2026-10-15, got %s", day)
	}
	f.store.PutCapacity(domain.Capacity{VenueID: f.venue, Day: "2026-10-15", MaxCapacity: 1, CurrentOccupancy: 1})
	f.store.PutCapacity(domain.Capacity{VenueID: f.venue, Day: "2026-10-14", MaxCapacity: 100})

	_, err := f.gateway.Redeem(ctx, tok.Code, f.venue)
	if !errors.Is(err, domain.ErrVenueAtCapacity) {
		t.Fatalf("expected ErrVenueAtCapacity, got %v", err)
	}
	if got := f.reload(t, tok.Code).Status; got != domain.TokenActive {
		t.Errorf("token must stay ACTIVE when the venue is full, got %s", got)
	}

	f.store.PutCapacity(domain.Capacity{VenueID: f.venue, Day: "2026-10-15", MaxCapacity: 2, CurrentOccupancy: 1})
	if _, err := f.gateway.Redeem(ctx, tok.Code, f.venue); err != nil {
		t.Fatal(err)
	}
	c, _ := f.store.Capacity(f.venue, "2026-10-15")
	if c.CurrentOccupancy != 2 {
		t.Errorf("expected occupancy 2, got %d", c.CurrentOccupancy)
	}
}

func TestRedeem_ConcurrentScansAdmitOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tok := f.token(t, domain.ProductSingle, domain.TokenActive, now.Add(time.Hour))

	const scans = 8
	errs := make([]error, scans)
	var wg sync.WaitGroup
	for i := 0; i < scans; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.gateway.Redeem(ctx, tok.Code, f.venue)
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		switch {
		case err == nil:
			admitted++
		case !errors.Is(err, domain.ErrTokenAlreadyUsed):
			t.Errorf("unexpected error %v", err)
		}
	}
	if admitted != 1 {
		t.Errorf("expected exactly one admission, got %d", admitted)
	}
	if n := len(f.store.Checkins()); n != 1 {
		t.Errorf("expected one checkin, got %d", n)
	}
}

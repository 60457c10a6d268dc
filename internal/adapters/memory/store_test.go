package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/adapters/memory"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/google/uuid"
)

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	order := domain.Order{ID: uuid.New(), UserID: uuid.New(), Status: domain.OrderPending}

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(tx domain.Tx) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	err = store.WithTx(ctx, func(tx domain.Tx) error {
		_, err := tx.GetOrder(ctx, order.ID)
		return err
	})
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected rolled back order to be absent, got %v", err)
	}
}

func TestStore_UpdateOrderStatus_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	order := domain.Order{ID: uuid.New(), Status: domain.OrderPending}
	now := time.Now()

	err := store.WithTx(ctx, func(tx domain.Tx) error {
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.UpdateOrderStatus(ctx, order.ID, domain.OrderPending, domain.OrderPaid, now); err != nil {
			return err
		}
		return tx.UpdateOrderStatus(ctx, order.ID, domain.OrderPending, domain.OrderCancelled, now)
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict on stale status, got %v", err)
	}
}

func TestStore_IncrementOccupancy(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	venueID := uuid.New()
	store.PutCapacity(domain.Capacity{VenueID: venueID, Day: "2026-10-14", MaxCapacity: 1})

	inc := func(day string) error {
		return store.WithTx(ctx, func(tx domain.Tx) error {
			return tx.IncrementOccupancy(ctx, venueID, day)
		})
	}
	if err := inc("2026-10-14"); err != nil {
		t.Fatal(err)
	}
	if err := inc("2026-10-14"); !errors.Is(err, domain.ErrVenueAtCapacity) {
		t.Errorf("expected ErrVenueAtCapacity, got %v", err)
	}
	if err := inc("2026-10-15"); err != nil {
		t.Errorf("day without a capacity record should be unlimited, got %v", err)
	}
	c, _ := store.Capacity(venueID, "2026-10-14")
	if c.CurrentOccupancy != 1 {
		t.Errorf("expected occupancy 1, got %d", c.CurrentOccupancy)
	}
}

func TestStore_MarkRedeemed_OnlyFromActive(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	tok := domain.AccessToken{ID: uuid.New(), Code: "DIM-1", Status: domain.TokenActive}
	now := time.Now()

	err := store.WithTx(ctx, func(tx domain.Tx) error {
		if err := tx.InsertTokens(ctx, []domain.AccessToken{tok}); err != nil {
			return err
		}
		return tx.MarkRedeemed(ctx, tok.ID, domain.TokenUsed, now)
	})
	if err != nil {
		t.Fatal(err)
	}
	err = store.WithTx(ctx, func(tx domain.Tx) error {
		return tx.MarkRedeemed(ctx, tok.ID, domain.TokenUsed, now)
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

// Package memory is an in-process domain.Store. Transactions run under one lock against a copy
// of the state that replaces the live state only when fn returns nil.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/google/uuid"
)

type state struct {
	venues   map[uuid.UUID]domain.Venue
	capacity map[string]domain.Capacity
	orders   map[uuid.UUID]domain.Order
	payments map[uuid.UUID]domain.Payment
	tokens   map[uuid.UUID]domain.AccessToken
	codes    map[string]uuid.UUID
	checkins []domain.Checkin
	outbox   []domain.OutboxRecord
}

func newState() *state {
	return &state{
		venues:   map[uuid.UUID]domain.Venue{},
		capacity: map[string]domain.Capacity{},
		orders:   map[uuid.UUID]domain.Order{},
		payments: map[uuid.UUID]domain.Payment{},
		tokens:   map[uuid.UUID]domain.AccessToken{},
		codes:    map[string]uuid.UUID{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.venues {
		c.venues[k] = v
	}
	for k, v := range s.capacity {
		c.capacity[k] = v
	}
	for k, v := range s.orders {
		v.LineItems = append([]domain.LineItem(nil), v.LineItems...)
		c.orders[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.codes {
		c.codes[k] = v
	}
	c.checkins = append(c.checkins, s.checkins...)
	c.outbox = append(c.outbox, s.outbox...)
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func capacityKey(venueID uuid.UUID, day string) string {
	return venueID.String() + "/" + day
}

// PutVenue stands in for the venue-management collaborator.
func (s *Store) PutVenue(v domain.Venue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.venues[v.ID] = v
}

func (s *Store) PutCapacity(c domain.Capacity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.capacity[capacityKey(c.VenueID, c.Day)] = c
}

func (s *Store) Capacity(venueID uuid.UUID, day string) (domain.Capacity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.st.capacity[capacityKey(venueID, day)]
	return c, ok
}

func (s *Store) Checkins() []domain.Checkin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Checkin(nil), s.st.checkins...)
}

func (s *Store) Outbox() []domain.OutboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboxRecord(nil), s.st.outbox...)
}

func (s *Store) GetUnpublishedOutbox(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OutboxRecord
	for _, rec := range s.st.outbox {
		if rec.Status != "NEW" {
			continue
		}
		out = append(out, rec)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time, dedupeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, rec := range s.st.outbox {
		if rec.ID == id && rec.Status == "NEW" {
			at := publishedAt
			s.st.outbox[i].Status = "PUBLISHED"
			s.st.outbox[i].PublishedAt = &at
			s.st.outbox[i].DedupeKey = dedupeKey
			return nil
		}
	}
	return domain.ErrNotFound
}

type tx struct {
	st *state
}

func (t *tx) GetVenue(_ context.Context, id uuid.UUID) (*domain.Venue, error) {
	v, ok := t.st.venues[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrVenueNotFound, "id %s", id)
	}
	return &v, nil
}

func (t *tx) IncrementOccupancy(_ context.Context, venueID uuid.UUID, day string) error {
	key := capacityKey(venueID, day)
	c, ok := t.st.capacity[key]
	if !ok {
		return nil
	}
	if c.CurrentOccupancy >= c.MaxCapacity {
		return domain.ErrVenueAtCapacity
	}
	c.CurrentOccupancy++
	t.st.capacity[key] = c
	return nil
}

func (t *tx) InsertOrder(_ context.Context, order domain.Order) error {
	if _, dup := t.st.orders[order.ID]; dup {
		return domain.ErrConflict
	}
	order.LineItems = append([]domain.LineItem(nil), order.LineItems...)
	t.st.orders[order.ID] = order
	return nil
}

func (t *tx) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := t.st.orders[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrOrderNotFound, "id %s", id)
	}
	o.LineItems = append([]domain.LineItem(nil), o.LineItems...)
	return &o, nil
}

func (t *tx) ListOrdersByUser(_ context.Context, userID uuid.UUID) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range t.st.orders {
		if o.UserID == userID {
			o.LineItems = append([]domain.LineItem(nil), o.LineItems...)
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) UpdateOrderStatus(_ context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error {
	o, ok := t.st.orders[id]
	if !ok {
		return errors.Wrapf(domain.ErrOrderNotFound, "id %s", id)
	}
	if o.Status != from {
		return domain.ErrConflict
	}
	o.Status = to
	switch to {
	case domain.OrderPaid:
		o.PaidAt = &at
	case domain.OrderCancelled:
		o.CancelledAt = &at
	case domain.OrderRefunded:
		o.RefundedAt = &at
	}
	t.st.orders[id] = o
	return nil
}

func (t *tx) InsertPayment(_ context.Context, p domain.Payment) error {
	if _, ok := t.st.orders[p.OrderID]; !ok {
		return errors.Wrapf(domain.ErrOrderNotFound, "id %s", p.OrderID)
	}
	if _, dup := t.st.payments[p.ID]; dup {
		return domain.ErrConflict
	}
	t.st.payments[p.ID] = p
	return nil
}

func (t *tx) GetPayment(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, ok := t.st.payments[id]
	if !ok {
		return nil, errors.Wrapf(domain.ErrPaymentNotFound, "id %s", id)
	}
	return &p, nil
}

func (t *tx) ListPayments(_ context.Context, orderID uuid.UUID) ([]domain.Payment, error) {
	var out []domain.Payment
	for _, p := range t.st.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *tx) UpdatePaymentStatus(_ context.Context, id uuid.UUID, from, to domain.PaymentStatus, transactionID string) error {
	p, ok := t.st.payments[id]
	if !ok {
		return errors.Wrapf(domain.ErrPaymentNotFound, "id %s", id)
	}
	if p.Status != from {
		return domain.ErrConflict
	}
	p.Status = to
	if transactionID != "" {
		p.TransactionID = transactionID
	}
	t.st.payments[id] = p
	return nil
}

func (t *tx) InsertTokens(_ context.Context, tokens []domain.AccessToken) error {
	for _, tok := range tokens {
		if _, dup := t.st.codes[tok.Code]; dup {
			return domain.ErrConflict
		}
		t.st.tokens[tok.ID] = tok
		t.st.codes[tok.Code] = tok.ID
	}
	return nil
}

func (t *tx) GetTokenByCode(_ context.Context, code string) (*domain.AccessToken, error) {
	id, ok := t.st.codes[code]
	if !ok {
		return nil, domain.ErrTokenNotFound
	}
	tok := t.st.tokens[id]
	return &tok, nil
}

func (t *tx) ListTokensByOrder(_ context.Context, orderID uuid.UUID) ([]domain.AccessToken, error) {
	var out []domain.AccessToken
	for _, tok := range t.st.tokens {
		if tok.OrderID == orderID {
			out = append(out, tok)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (t *tx) MarkRedeemed(_ context.Context, id uuid.UUID, next domain.TokenStatus, at time.Time) error {
	tok, ok := t.st.tokens[id]
	if !ok {
		return domain.ErrTokenNotFound
	}
	if tok.Status != domain.TokenActive {
		return domain.ErrConflict
	}
	tok.Status = next
	tok.RedemptionCount++
	tok.UsedAt = &at
	t.st.tokens[id] = tok
	return nil
}

func (t *tx) UpdateTokenStatus(_ context.Context, id uuid.UUID, from, to domain.TokenStatus) error {
	tok, ok := t.st.tokens[id]
	if !ok {
		return domain.ErrTokenNotFound
	}
	if tok.Status != from {
		return domain.ErrConflict
	}
	tok.Status = to
	t.st.tokens[id] = tok
	return nil
}

func (t *tx) CancelOrderTokens(_ context.Context, orderID uuid.UUID) (int, error) {
	n := 0
	for id, tok := range t.st.tokens {
		if tok.OrderID == orderID && tok.Status != domain.TokenCancelled {
			tok.Status = domain.TokenCancelled
			t.st.tokens[id] = tok
			n++
		}
	}
	return n, nil
}

func (t *tx) InsertCheckin(_ context.Context, c domain.Checkin) error {
	t.st.checkins = append(t.st.checkins, c)
	return nil
}

func (t *tx) InsertOutbox(_ context.Context, rec domain.OutboxRecord) error {
	t.st.outbox = append(t.st.outbox, rec)
	return nil
}

package crdb

import (
	"context"
	_ "embed"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

//go:embed schema.sql
var Schema string

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Migrate creates the tables the repository needs. It is idempotent.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, Schema)
	return errors.Wrap(err, "apply schema")
}

func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case SerializationFailureCode:
			return errors.Mark(err, domain.ErrSerializationFailure)
		case UniqueViolationCode:
			return errors.Mark(err, domain.ErrConflict)
		}
	}
	return err
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	timer := prometheus.NewTimer(observability.DBTxDuration)
	defer timer.ObserveDuration()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	if err := fn(&txRepo{tx: tx}); err != nil {
		return mapErr(err)
	}
	return mapErr(tx.Commit(ctx))
}

// UpsertVenue writes a venue row. Venues are owned by venue management; this backs seeding and tests.
func (r *Repository) UpsertVenue(ctx context.Context, v domain.Venue) error {
	_, err := r.pool.Exec(ctx, `
		UPSERT INTO venues (id, name, tier, monthly_price, is_active)
		VALUES ($1, $2, $3, $4, $5)
	`, v.ID, v.Name, string(v.Tier), v.MonthlyPrice, v.IsActive)
	return err
}

func (r *Repository) UpsertCapacity(ctx context.Context, c domain.Capacity) error {
	_, err := r.pool.Exec(ctx, `
		UPSERT INTO venue_capacity (venue_id, day, max_capacity, current_occupancy)
		VALUES ($1, $2, $3, $4)
	`, c.VenueID, c.Day, c.MaxCapacity, c.CurrentOccupancy)
	return err
}

func (r *Repository) Capacity(ctx context.Context, venueID uuid.UUID, day string) (*domain.Capacity, error) {
	c := domain.Capacity{VenueID: venueID, Day: day}
	err := r.pool.QueryRow(ctx, `
		SELECT max_capacity, current_occupancy FROM venue_capacity WHERE venue_id = $1 AND day = $2
	`, venueID, day).Scan(&c.MaxCapacity, &c.CurrentOccupancy)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var ok bool
	err := t.tx.QueryRow(ctx, "SELECT EXISTS ("+query+")", args...).Scan(&ok)
	return ok, err
}

func (t *txRepo) GetVenue(ctx context.Context, id uuid.UUID) (*domain.Venue, error) {
	var (
		v    domain.Venue
		tier string
	)
	err := t.tx.QueryRow(ctx, `
		SELECT id, name, tier, monthly_price, is_active FROM venues WHERE id = $1
	`, id).Scan(&v.ID, &v.Name, &tier, &v.MonthlyPrice, &v.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrVenueNotFound, "id %s", id)
	}
	if err != nil {
		return nil, err
	}
	v.Tier = domain.Tier(tier)
	return &v, nil
}

func (t *txRepo) IncrementOccupancy(ctx context.Context, venueID uuid.UUID, day string) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE venue_capacity SET current_occupancy = current_occupancy + 1
		WHERE venue_id = $1 AND day = $2 AND current_occupancy < max_capacity
	`, venueID, day)
	if err != nil {
		return err
	}
	if result.RowsAffected() > 0 {
		return nil
	}
	full, err := t.exists(ctx, `SELECT 1 FROM venue_capacity WHERE venue_id = $1 AND day = $2`, venueID, day)
	if err != nil {
		return err
	}
	if full {
		return domain.ErrVenueAtCapacity
	}
	return nil
}

func (t *txRepo) InsertOrder(ctx context.Context, order domain.Order) error {
	b := &pgx.Batch{}
	b.Queue(`
		INSERT INTO orders (id, user_id, status, gross_amount, commission_amount, net_partner_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, order.ID, order.UserID, string(order.Status), order.GrossAmount, order.CommissionAmount, order.NetPartnerAmount, order.CreatedAt)
	for _, li := range order.LineItems {
		b.Queue(`
			INSERT INTO order_line_items (id, order_id, product_id, product_type, quantity, unit_price, venue_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, li.ID, order.ID, li.ProductID, string(li.ProductType), li.Quantity, li.UnitPrice, li.VenueID)
	}
	return t.sendBatch(ctx, b)
}

func (t *txRepo) sendBatch(ctx context.Context, b *pgx.Batch) error {
	br := t.tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

const orderColumns = `id, user_id, status, gross_amount, commission_amount, net_partner_amount, created_at, paid_at, cancelled_at, refunded_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &status, &o.GrossAmount, &o.CommissionAmount, &o.NetPartnerAmount,
		&o.CreatedAt, &o.PaidAt, &o.CancelledAt, &o.RefundedAt)
	o.Status = domain.OrderStatus(status)
	return o, err
}

func (t *txRepo) lineItems(ctx context.Context, orderID uuid.UUID) ([]domain.LineItem, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, product_id, product_type, quantity, unit_price, venue_id
		FROM order_line_items WHERE order_id = $1 ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.LineItem
	for rows.Next() {
		li := domain.LineItem{OrderID: orderID}
		var pt string
		if err := rows.Scan(&li.ID, &li.ProductID, &pt, &li.Quantity, &li.UnitPrice, &li.VenueID); err != nil {
			return nil, err
		}
		li.ProductType = domain.ProductType(pt)
		items = append(items, li)
	}
	return items, rows.Err()
}

func (t *txRepo) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrOrderNotFound, "id %s", id)
	}
	if err != nil {
		return nil, err
	}
	if o.LineItems, err = t.lineItems(ctx, id); err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *txRepo) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].LineItems, err = t.lineItems(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (t *txRepo) UpdateOrderStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus, at time.Time) error {
	query := `UPDATE orders SET status = $3 WHERE id = $1 AND status = $2`
	switch to {
	case domain.OrderPaid:
		query = `UPDATE orders SET status = $3, paid_at = $4 WHERE id = $1 AND status = $2`
	case domain.OrderCancelled:
		query = `UPDATE orders SET status = $3, cancelled_at = $4 WHERE id = $1 AND status = $2`
	case domain.OrderRefunded:
		query = `UPDATE orders SET status = $3, refunded_at = $4 WHERE id = $1 AND status = $2`
	}
	args := []any{id, string(from), string(to)}
	if to != domain.OrderPending {
		args = append(args, at)
	}
	result, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() > 0 {
		return nil
	}
	found, err := t.exists(ctx, `SELECT 1 FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if !found {
		return errors.Wrapf(domain.ErrOrderNotFound, "id %s", id)
	}
	return domain.ErrConflict
}

func (t *txRepo) InsertPayment(ctx context.Context, p domain.Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments (id, order_id, amount, currency, method, status, transaction_id, details, refund_of, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, p.ID, p.OrderID, p.Amount, p.Currency, string(p.Method), string(p.Status), p.TransactionID, p.Details, p.RefundOf, p.Reason, p.CreatedAt)
	return err
}

const paymentColumns = `id, order_id, amount, currency, method, status, transaction_id, details, refund_of, reason, created_at`

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var (
		p              domain.Payment
		method, status string
	)
	err := row.Scan(&p.ID, &p.OrderID, &p.Amount, &p.Currency, &method, &status, &p.TransactionID, &p.Details, &p.RefundOf, &p.Reason, &p.CreatedAt)
	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	return p, err
}

func (t *txRepo) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Wrapf(domain.ErrPaymentNotFound, "id %s", id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t *txRepo) ListPayments(ctx context.Context, orderID uuid.UUID) ([]domain.Payment, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *txRepo) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, from, to domain.PaymentStatus, transactionID string) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE payments SET status = $3, transaction_id = CASE WHEN $4 = '' THEN transaction_id ELSE $4 END
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to), transactionID)
	if err != nil {
		return err
	}
	if result.RowsAffected() > 0 {
		return nil
	}
	found, err := t.exists(ctx, `SELECT 1 FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if !found {
		return errors.Wrapf(domain.ErrPaymentNotFound, "id %s", id)
	}
	return domain.ErrConflict
}

func (t *txRepo) InsertTokens(ctx context.Context, tokens []domain.AccessToken) error {
	b := &pgx.Batch{}
	for _, tok := range tokens {
		b.Queue(`
			INSERT INTO access_tokens (id, code, order_id, product_id, product_type, status, expires_at, created_at, used_at, redemption_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`, tok.ID, tok.Code, tok.OrderID, tok.ProductID, string(tok.ProductType), string(tok.Status), tok.ExpiresAt, tok.CreatedAt, tok.UsedAt, tok.RedemptionCount)
	}
	return t.sendBatch(ctx, b)
}

const tokenColumns = `id, code, order_id, product_id, product_type, status, expires_at, created_at, used_at, redemption_count`

func scanToken(row pgx.Row) (domain.AccessToken, error) {
	var (
		tok        domain.AccessToken
		pt, status string
	)
	err := row.Scan(&tok.ID, &tok.Code, &tok.OrderID, &tok.ProductID, &pt, &status, &tok.ExpiresAt, &tok.CreatedAt, &tok.UsedAt, &tok.RedemptionCount)
	tok.ProductType = domain.ProductType(pt)
	tok.Status = domain.TokenStatus(status)
	return tok, err
}

func (t *txRepo) GetTokenByCode(ctx context.Context, code string) (*domain.AccessToken, error) {
	tok, err := scanToken(t.tx.QueryRow(ctx, `SELECT `+tokenColumns+` FROM access_tokens WHERE code = $1`, code))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

func (t *txRepo) ListTokensByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.AccessToken, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+tokenColumns+` FROM access_tokens WHERE order_id = $1 ORDER BY code`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AccessToken
	for rows.Next() {
		tok, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

func (t *txRepo) tokenMissing(ctx context.Context, id uuid.UUID) error {
	found, err := t.exists(ctx, `SELECT 1 FROM access_tokens WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if !found {
		return domain.ErrTokenNotFound
	}
	return domain.ErrConflict
}

func (t *txRepo) MarkRedeemed(ctx context.Context, id uuid.UUID, next domain.TokenStatus, at time.Time) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE access_tokens SET status = $2, redemption_count = redemption_count + 1, used_at = $3
		WHERE id = $1 AND status = 'ACTIVE'
	`, id, string(next), at)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return t.tokenMissing(ctx, id)
	}
	return nil
}

func (t *txRepo) UpdateTokenStatus(ctx context.Context, id uuid.UUID, from, to domain.TokenStatus) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE access_tokens SET status = $3 WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return t.tokenMissing(ctx, id)
	}
	return nil
}

func (t *txRepo) CancelOrderTokens(ctx context.Context, orderID uuid.UUID) (int, error) {
	result, err := t.tx.Exec(ctx, `
		UPDATE access_tokens SET status = 'CANCELLED' WHERE order_id = $1 AND status <> 'CANCELLED'
	`, orderID)
	if err != nil {
		return 0, err
	}
	return int(result.RowsAffected()), nil
}

func (t *txRepo) InsertCheckin(ctx context.Context, c domain.Checkin) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO checkins (id, token_id, venue_id, checked_at) VALUES ($1, $2, $3, $4)
	`, c.ID, c.TokenID, c.VenueID, c.CheckedAt)
	return err
}

package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/dropinmorocco/booking-core/internal/catalog"
	"github.com/dropinmorocco/booking-core/internal/domain"
	"github.com/dropinmorocco/booking-core/internal/orders"
	"github.com/dropinmorocco/booking-core/internal/payments"
	"github.com/dropinmorocco/booking-core/internal/pricing"
	"github.com/dropinmorocco/booking-core/internal/redemption"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// UserHeader carries the caller identity resolved by the upstream auth layer.
const UserHeader = "X-User-ID"

// maxBodyBytes caps request bodies; a larger body is rejected as invalid input.
const maxBodyBytes = 64 << 10

type Handlers struct {
	catalog    catalog.Catalog
	pricing    *pricing.Engine
	orders     *orders.Manager
	payments   *payments.Processor
	redemption *redemption.Gateway
	ready      func(ctx context.Context) error
}

// NewHandlers wires the services. ready backs /v1/readyz; nil means always ready.
func NewHandlers(cat catalog.Catalog, engine *pricing.Engine, om *orders.Manager, pp *payments.Processor, rg *redemption.Gateway, ready func(ctx context.Context) error) *Handlers {
	if ready == nil {
		ready = func(context.Context) error { return nil }
	}
	return &Handlers{catalog: cat, pricing: engine, orders: om, payments: pp, redemption: rg, ready: ready}
}

type errorBody struct {
	Success bool          `json:"success"`
	Reason  domain.Reason `json:"reason"`
	Message string        `json:"message"`
	OrderID *uuid.UUID    `json:"order_id,omitempty"`
}

var reasonStatus = map[domain.Reason]int{
	domain.ReasonInvalidInput:               http.StatusBadRequest,
	domain.ReasonProductNotFound:            http.StatusNotFound,
	domain.ReasonVenueNotFound:              http.StatusNotFound,
	domain.ReasonOrderNotFound:              http.StatusNotFound,
	domain.ReasonPaymentNotFound:            http.StatusNotFound,
	domain.ReasonTokenNotFound:              http.StatusNotFound,
	domain.ReasonNotFound:                   http.StatusNotFound,
	domain.ReasonPaymentDeclined:            http.StatusPaymentRequired,
	domain.ReasonGatewayUnavailable:         http.StatusServiceUnavailable,
	domain.ReasonProductNotAvailableForTier: http.StatusUnprocessableEntity,
	domain.ReasonVenueInactive:              http.StatusUnprocessableEntity,
	domain.ReasonRefundExceedsPayment:       http.StatusUnprocessableEntity,
	domain.ReasonInternal:                   http.StatusInternalServerError,
}

func statusOf(reason domain.Reason) int {
	if s, ok := reasonStatus[reason]; ok {
		return s
	}
	return http.StatusConflict
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	writeErrorFor(w, r, err, nil)
}

func writeErrorFor(w http.ResponseWriter, r *http.Request, err error, orderID *uuid.UUID) {
	reason := domain.ReasonOf(err)
	status := statusOf(reason)
	logger := LoggerFrom(r.Context()).WithError(err).WithField("reason", reason)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed")
	} else {
		logger.Debug("request refused")
	}
	writeJSON(w, status, errorBody{Reason: reason, Message: domain.MessageOf(reason), OrderID: orderID})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return errors.Wrapf(domain.ErrInvalidInput, "decode body: %v", err)
	}
	return nil
}

func userID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(r.Header.Get(UserHeader))
	if err != nil {
		return uuid.Nil, errors.Wrapf(domain.ErrInvalidInput, "%s header", UserHeader)
	}
	return id, nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errors.Wrap(domain.ErrInvalidInput, "invalid id")
	}
	return id, nil
}

// ownedOrder loads the order in the path and hides orders of other users.
func (h *Handlers) ownedOrder(r *http.Request) (*domain.Order, error) {
	user, err := userID(r)
	if err != nil {
		return nil, err
	}
	id, err := pathID(r)
	if err != nil {
		return nil, err
	}
	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if order.UserID != user {
		return nil, errors.Wrapf(domain.ErrOrderNotFound, "id %s", id)
	}
	return order, nil
}

type createOrderRequest struct {
	Items []orders.ItemRequest `json:"items"`
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req createOrderRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	order, err := h.orders.CreateOrder(r.Context(), user, req.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

type payRequest struct {
	Method  domain.PaymentMethod `json:"method"`
	Details map[string]string    `json:"details,omitempty"`
}

type paidResponse struct {
	Order  *domain.Order        `json:"order"`
	Tokens []domain.AccessToken `json:"tokens"`
}

type purchaseRequest struct {
	Items         []orders.ItemRequest `json:"items"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Details       map[string]string    `json:"details,omitempty"`
}

// Purchase creates an order and pays it in one call. A failed payment leaves the order PENDING
// and its id in the error body so the client can retry the payment alone.
func (h *Handlers) Purchase(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req purchaseRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := domain.ParsePaymentMethod(string(req.PaymentMethod)); err != nil {
		writeError(w, r, err)
		return
	}
	order, err := h.orders.CreateOrder(r.Context(), user, req.Items)
	if err != nil {
		writeError(w, r, err)
		return
	}
	paid, tokens, err := h.payments.ProcessPayment(r.Context(), order.ID, req.PaymentMethod, req.Details)
	if err != nil {
		writeErrorFor(w, r, err, &order.ID)
		return
	}
	writeJSON(w, http.StatusCreated, paidResponse{Order: paid, Tokens: tokens})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.orders.ListUserOrders(r.Context(), user)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Order{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": list})
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	cancelled, err := h.orders.CancelOrder(r.Context(), order.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelled)
}

func (h *Handlers) PayOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.ownedOrder(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req payRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	paid, tokens, err := h.payments.ProcessPayment(r.Context(), order.ID, req.Method, req.Details)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, paidResponse{Order: paid, Tokens: tokens})
}

type refundRequest struct {
	Amount *int64 `json:"amount,omitempty"`
	Reason string `json:"reason"`
}

func (h *Handlers) RefundOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req refundRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.payments.RefundOrder(r.Context(), id, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) RefundPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req refundRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.payments.RefundPayment(r.Context(), id, req.Amount, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type redeemRequest struct {
	Code    string    `json:"code"`
	VenueID uuid.UUID `json:"venue_id"`
}

type redeemResponse struct {
	Success bool               `json:"success"`
	Reason  domain.Reason      `json:"reason"`
	Message string             `json:"message"`
	Checkin domain.Checkin     `json:"checkin"`
	Token   domain.AccessToken `json:"token"`
}

func (h *Handlers) Redeem(w http.ResponseWriter, r *http.Request) {
	var req redeemRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.redemption.Redeem(r.Context(), req.Code, req.VenueID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{
		Success: true,
		Reason:  domain.ReasonWelcome,
		Message: res.Message,
		Checkin: res.Checkin,
		Token:   res.Token,
	})
}

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.catalog.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": list})
}

type quoteResponse struct {
	ProductID  uuid.UUID   `json:"product_id"`
	Tier       domain.Tier `json:"tier"`
	Price      int64       `json:"price"`
	Commission int64       `json:"commission"`
	Net        int64       `json:"net"`
	Currency   string      `json:"currency"`
}

func (h *Handlers) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productID, err := uuid.Parse(q.Get("product_id"))
	if err != nil {
		writeError(w, r, errors.Wrap(domain.ErrInvalidInput, "product_id"))
		return
	}
	tier, err := domain.ParseTier(q.Get("tier"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var monthly *int64
	if v := q.Get("monthly_price"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, r, errors.Wrap(domain.ErrInvalidInput, "monthly_price"))
			return
		}
		monthly = &n
	}
	product, err := h.catalog.Get(r.Context(), productID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	price, err := h.pricing.PriceFor(tier, product, monthly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	split := h.pricing.SplitCommission(price)
	writeJSON(w, http.StatusOK, quoteResponse{
		ProductID:  product.ID,
		Tier:       tier,
		Price:      price,
		Commission: split.Commission,
		Net:        split.Net,
		Currency:   domain.Currency,
	})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if err := h.ready(r.Context()); err != nil {
		LoggerFrom(r.Context()).WithError(err).Warn("not ready")
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

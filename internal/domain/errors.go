package domain

import "github.com/cockroachdb/errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	ErrProductNotFound            = errors.New("product not found")
	ErrProductNotAvailableForTier = errors.New("product not available for tier")
	ErrVenueNotFound              = errors.New("venue not found")
	ErrVenueInactive              = errors.New("venue inactive")

	ErrOrderNotFound          = errors.New("order not found")
	ErrOrderNotPayable        = errors.New("order not payable")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentDeclined      = errors.New("payment declined")
	ErrGatewayUnavailable   = errors.New("payment gateway unavailable")
	ErrPaymentNotRefundable = errors.New("payment not refundable")
	ErrRefundExceedsPayment = errors.New("refund exceeds payment")
	ErrNoCompletedPayments  = errors.New("no completed payments")

	ErrTokensAlreadyIssued = errors.New("tokens already issued")
	ErrTokenNotFound       = errors.New("token not found")
	ErrTokenAlreadyUsed    = errors.New("token already used")
	ErrTokenExpired        = errors.New("token expired")
	ErrTokenCancelled      = errors.New("token cancelled")
	ErrVenueAtCapacity     = errors.New("venue at capacity")
)

// Reason is the stable code a failure is reported under.
type Reason string

const (
	ReasonWelcome                    Reason = "WELCOME"
	ReasonProductNotFound            Reason = "PRODUCT_NOT_FOUND"
	ReasonProductNotAvailableForTier Reason = "PRODUCT_NOT_AVAILABLE_FOR_TIER"
	ReasonVenueNotFound              Reason = "VENUE_NOT_FOUND"
	ReasonVenueInactive              Reason = "VENUE_INACTIVE"
	ReasonOrderNotFound              Reason = "ORDER_NOT_FOUND"
	ReasonOrderNotPayable            Reason = "ORDER_NOT_PAYABLE"
	ReasonInvalidStateTransition     Reason = "INVALID_STATE_TRANSITION"
	ReasonPaymentNotFound            Reason = "PAYMENT_NOT_FOUND"
	ReasonPaymentDeclined            Reason = "PAYMENT_DECLINED"
	ReasonGatewayUnavailable         Reason = "GATEWAY_UNAVAILABLE"
	ReasonPaymentNotRefundable       Reason = "PAYMENT_NOT_REFUNDABLE"
	ReasonRefundExceedsPayment       Reason = "REFUND_EXCEEDS_PAYMENT"
	ReasonNoCompletedPayments        Reason = "NO_COMPLETED_PAYMENTS"
	ReasonTokensAlreadyIssued        Reason = "TOKENS_ALREADY_ISSUED"
	ReasonTokenNotFound              Reason = "TOKEN_NOT_FOUND"
	ReasonTokenAlreadyUsed           Reason = "TOKEN_ALREADY_USED"
	ReasonTokenExpired               Reason = "TOKEN_EXPIRED"
	ReasonTokenCancelled             Reason = "TOKEN_CANCELLED"
	ReasonVenueAtCapacity            Reason = "VENUE_AT_CAPACITY"
	ReasonInvalidInput               Reason = "INVALID_INPUT"
	ReasonNotFound                   Reason = "NOT_FOUND"
	ReasonConflictRetry              Reason = "CONFLICT_RETRY"
	ReasonInternal                   Reason = "INTERNAL"
)

// Order matters: more specific sentinels come before the generic ones they may wrap.
var reasons = []struct {
	err    error
	reason Reason
}{
	{ErrProductNotFound, ReasonProductNotFound},
	{ErrProductNotAvailableForTier, ReasonProductNotAvailableForTier},
	{ErrVenueNotFound, ReasonVenueNotFound},
	{ErrVenueInactive, ReasonVenueInactive},
	{ErrOrderNotFound, ReasonOrderNotFound},
	{ErrOrderNotPayable, ReasonOrderNotPayable},
	{ErrInvalidStateTransition, ReasonInvalidStateTransition},
	{ErrPaymentNotFound, ReasonPaymentNotFound},
	{ErrPaymentDeclined, ReasonPaymentDeclined},
	{ErrGatewayUnavailable, ReasonGatewayUnavailable},
	{ErrPaymentNotRefundable, ReasonPaymentNotRefundable},
	{ErrRefundExceedsPayment, ReasonRefundExceedsPayment},
	{ErrNoCompletedPayments, ReasonNoCompletedPayments},
	{ErrTokensAlreadyIssued, ReasonTokensAlreadyIssued},
	{ErrTokenNotFound, ReasonTokenNotFound},
	{ErrTokenAlreadyUsed, ReasonTokenAlreadyUsed},
	{ErrTokenExpired, ReasonTokenExpired},
	{ErrTokenCancelled, ReasonTokenCancelled},
	{ErrVenueAtCapacity, ReasonVenueAtCapacity},
	{ErrInvalidInput, ReasonInvalidInput},
	{ErrSerializationFailure, ReasonConflictRetry},
	{ErrConflict, ReasonConflictRetry},
	{ErrNotFound, ReasonNotFound},
}

// ReasonOf maps an error to its reason code. Unknown errors are INTERNAL.
func ReasonOf(err error) Reason {
	if err == nil {
		return ReasonWelcome
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return ReasonInternal
}

var messages = map[Reason]string{
	ReasonWelcome:                    "Welcome!",
	ReasonProductNotFound:            "This product does not exist.",
	ReasonProductNotAvailableForTier: "This product cannot be used at this venue.",
	ReasonVenueNotFound:              "This venue does not exist.",
	ReasonVenueInactive:              "This venue is not accepting bookings.",
	ReasonOrderNotFound:              "This order does not exist.",
	ReasonOrderNotPayable:            "This order can no longer be paid.",
	ReasonInvalidStateTransition:     "This action is not allowed for the order in its current state.",
	ReasonPaymentNotFound:            "This payment does not exist.",
	ReasonPaymentDeclined:            "The payment was declined.",
	ReasonGatewayUnavailable:         "The payment provider could not be reached, try again.",
	ReasonPaymentNotRefundable:       "This payment cannot be refunded.",
	ReasonRefundExceedsPayment:       "The refund is larger than the amount left on the payment.",
	ReasonNoCompletedPayments:        "This order has no completed payment to refund.",
	ReasonTokensAlreadyIssued:        "Access codes were already issued for this order.",
	ReasonTokenNotFound:              "Unknown access code.",
	ReasonTokenAlreadyUsed:           "This access code was already used.",
	ReasonTokenExpired:               "This access code has expired.",
	ReasonTokenCancelled:             "This access code was cancelled.",
	ReasonVenueAtCapacity:            "The venue is full for today.",
	ReasonInvalidInput:               "The request is invalid.",
	ReasonNotFound:                   "Not found.",
	ReasonConflictRetry:              "The request conflicted with another one, try again.",
	ReasonInternal:                   "Something went wrong.",
}

func MessageOf(r Reason) string {
	if m, ok := messages[r]; ok {
		return m
	}
	return messages[ReasonInternal]
}

package payment

import (
	"errors"

	"gopay-be/internal/order"
)

var (
	ErrConfig                = errors.New("gateway misconfigured")
	ErrInvalidOrder          = errors.New("invalid order")
	ErrMalformedConfirmation = errors.New("malformed confirmation")
	ErrOrderNotFound         = order.ErrOrderNotFound
	ErrSignatureMismatch     = errors.New("signature mismatch")
	ErrAmountMismatch        = errors.New("amount mismatch")
	ErrGatewayUnavailable    = errors.New("payment gateway unavailable")
	ErrPaymentDeclined       = errors.New("payment declined")
	ErrUnknownGateway        = errors.New("unknown payment gateway")
)

// Confirmation result reasons.
const (
	ReasonPaid      = "paid"
	ReasonDuplicate = "duplicate"
	ReasonDeclined  = "declined"
)

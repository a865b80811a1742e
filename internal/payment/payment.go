package payment

import (
	"context"

	"gopay-be/internal/order"
)

// Gateway is a payment method offered at checkout.
type Gateway interface {
	ID() string
	Title() string
	Description() string
	Enabled() bool
	FormFields() []FormField
	Options() Options
	// Reload validates opts and swaps in a new config. The old config stays
	// active when validation fails.
	Reload(opts Options) error
	ProcessPayment(ctx context.Context, o *order.Order, customerIP string) (*CheckoutResult, error)
	HandleConfirmation(ctx context.Context, c Confirmation) (Result, error)
	ThankYouText(o *order.Order) string
	// VerifyOrderKey checks the key handed out with a checkout result. It
	// guards the thank-you view of that order.
	VerifyOrderKey(orderID, key string) bool
	ReceiptText() string
	EmailInstructions(o *order.Order, sentToAdmin bool) string
}

type CheckoutResult struct {
	Result   string `json:"result"`
	Redirect string `json:"redirect"`
	OrderKey string `json:"order_key"`
}

package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var ErrPaymentFailed = errors.New("payment: gateway declined or unreachable")

// Result is the gateway's answer to a charge attempt. Reference is an opaque
// id minted by the gateway; Message carries its human-readable reason.
type Result struct {
	OK        bool
	Reference string
	Message   string
}

// Gateway is the outbound port to the external payment provider. The gateway
// owns currency/cents conversion; amounts cross this boundary as decimal
// currency units. Calls are bounded by the caller's context; a timeout is
// treated the same as a declined payment.
type Gateway interface {
	PayForPickup(ctx context.Context, requestID string, amount decimal.Decimal) (Result, error)
	PayForPurchase(ctx context.Context, purchaseID, payerID string) (Result, error)
}

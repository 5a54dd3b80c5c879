package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/shopspring/decimal"
)

// Gateway is the payment provider used for settlement.
type Gateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receiptID string) (*Order, error)
	// VerifySignature reports whether signature authenticates the pair. A
	// mismatch is a normal outcome, not an error.
	VerifySignature(orderID, paymentID, signature string) bool
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) (*RefundResult, error)
}

// Order is the provider-side handle for an intent to collect payment.
// Amount is in minor units.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type RefundResult struct {
	ID        string
	PaymentID string
	Amount    decimal.Decimal
	Status    string
}

// ToMinorUnits converts a major-unit amount to the provider's integer form.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(v int64) decimal.Decimal {
	return decimal.New(v, -2)
}

// Sign computes the hex HMAC-SHA256 of "orderID|paymentID".
func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending       PaymentStatus = "PENDING"
	PaymentSuccess       PaymentStatus = "SUCCESS"
	PaymentFailed        PaymentStatus = "FAILED"
	PaymentRefunded      PaymentStatus = "REFUNDED"
	PaymentPartialRefund PaymentStatus = "PARTIAL_REFUND"
)

// paymentTransitions is the only source of truth for allowed status edges.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentSuccess, PaymentFailed},
	PaymentSuccess: {PaymentRefunded, PaymentPartialRefund},
}

// CanTransition reports whether a payment may move from one status to another.
func CanTransition(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no edge leaves the status.
func (s PaymentStatus) IsTerminal() bool {
	return len(paymentTransitions[s]) == 0
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentSuccess, PaymentFailed, PaymentRefunded, PaymentPartialRefund:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodRazorpay PaymentMethod = "RAZORPAY"
)

const ProviderRazorpay = "RAZORPAY"

// AmountBreakdown is the priced amount of a payment. Final is always derived
// from the other three; build values with NewAmountBreakdown.
type AmountBreakdown struct {
	Original decimal.Decimal `json:"original"`
	Discount decimal.Decimal `json:"discount"`
	Tax      decimal.Decimal `json:"tax"`
	Final    decimal.Decimal `json:"final"`
}

// NewAmountBreakdown rounds each component to currency precision and derives
// the final amount, clamped at zero.
func NewAmountBreakdown(original, discount, tax decimal.Decimal) AmountBreakdown {
	original = RoundCurrency(original)
	discount = RoundCurrency(discount)
	tax = RoundCurrency(tax)

	final := original.Sub(discount).Add(tax)
	if final.IsNegative() {
		final = decimal.Zero
	}

	return AmountBreakdown{
		Original: original,
		Discount: discount,
		Tax:      tax,
		Final:    final,
	}
}

// RoundCurrency rounds half away from zero to two places, which is half-up for
// the non-negative amounts this service handles.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

type GatewayInfo struct {
	Provider      string `json:"provider"`
	OrderID       string `json:"orderId"`
	TransactionID string `json:"transactionId,omitempty"`
	Signature     string `json:"signature,omitempty"`
	ReceiptID     string `json:"receiptId"`
}

type RefundStatus string

// RefundProcessing is recorded once the gateway accepts a refund.
const RefundProcessing RefundStatus = "PROCESSING"

type Refund struct {
	RefundID string          `json:"refundId"`
	Amount   decimal.Decimal `json:"amount"`
	Reason   string          `json:"reason"`
	Date     time.Time       `json:"refundDate"`
	Status   RefundStatus    `json:"status"`
}

type Invoice struct {
	Number      string    `json:"invoiceNumber"`
	URL         string    `json:"invoiceUrl,omitempty"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// InvoiceNumber builds the human-facing invoice number for a settled payment.
func InvoiceNumber(paymentID string, at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(paymentID, "-", ""))
	if len(suffix) > 10 {
		suffix = suffix[:10]
	}
	return fmt.Sprintf("INV-%s-%s", at.UTC().Format("20060102"), suffix)
}

type RequestMetadata struct {
	UserAgent string `json:"userAgent,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
}

type Payment struct {
	PaymentID      string          `json:"paymentId"`
	RegistrationID string          `json:"registrationId"`
	UserID         string          `json:"userId"`
	EventID        string          `json:"eventId"`
	CouponID       string          `json:"couponId,omitempty"`
	Amount         AmountBreakdown `json:"amount"`
	Currency       string          `json:"currency"`
	Method         PaymentMethod   `json:"paymentMethod"`
	Gateway        GatewayInfo     `json:"paymentGateway"`
	Status         PaymentStatus   `json:"status"`
	PaymentDate    *time.Time      `json:"paymentDate,omitempty"`
	Refund         *Refund         `json:"refund,omitempty"`
	Invoice        *Invoice        `json:"invoice,omitempty"`
	Metadata       RequestMetadata `json:"metadata"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// PaymentTransition describes a conditional status change. It only applies
// when the stored status still equals From.
type PaymentTransition struct {
	PaymentID     string
	From          PaymentStatus
	To            PaymentStatus
	TransactionID string
	Signature     string
	PaymentDate   *time.Time
	Refund        *Refund
	Invoice       *Invoice
}

// PaymentStateChange is published for every applied transition.
type PaymentStateChange struct {
	PaymentID      string          `json:"payment_id"`
	RegistrationID string          `json:"registration_id"`
	UserID         string          `json:"user_id"`
	EventID        string          `json:"event_id"`
	State          PaymentStatus   `json:"state"`
	PreviousState  PaymentStatus   `json:"previous_state"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Timestamp      time.Time       `json:"timestamp"`
}

type PaymentFilter struct {
	Status  PaymentStatus
	EventID string
	Page    int
	Limit   int
}

// Offset returns the row offset for a 1-based page.
func (f PaymentFilter) Offset() int {
	if f.Page < 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

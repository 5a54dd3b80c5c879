package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type RegistrationStatus string

const (
	RegistrationPending    RegistrationStatus = "PENDING"
	RegistrationConfirmed  RegistrationStatus = "CONFIRMED"
	RegistrationCancelled  RegistrationStatus = "CANCELLED"
	RegistrationWaitlisted RegistrationStatus = "WAITLISTED"
)

type RegistrationPaymentStatus string

const (
	RegPaymentPending   RegistrationPaymentStatus = "PENDING"
	RegPaymentCompleted RegistrationPaymentStatus = "COMPLETED"
	RegPaymentFailed    RegistrationPaymentStatus = "FAILED"
	RegPaymentRefunded  RegistrationPaymentStatus = "REFUNDED"
	RegPaymentFree      RegistrationPaymentStatus = "FREE"
)

type Registration struct {
	ID            string                    `json:"id"`
	EventID       string                    `json:"eventId"`
	UserID        string                    `json:"userId"`
	Status        RegistrationStatus        `json:"registrationStatus"`
	PaymentStatus RegistrationPaymentStatus `json:"paymentStatus"`
	AmountPaid    decimal.Decimal           `json:"amountPaid"`
	TransactionID string                    `json:"transactionId,omitempty"`
	CreatedAt     time.Time                 `json:"createdAt"`
	UpdatedAt     time.Time                 `json:"updatedAt"`
}

// Payable reports whether a payment may still be started for the registration.
func (r *Registration) Payable() bool {
	if r.Status != RegistrationPending {
		return false
	}
	return r.PaymentStatus == RegPaymentPending || r.PaymentStatus == RegPaymentFailed
}

// RegistrationUpdate is applied by the settlement state machine.
type RegistrationUpdate struct {
	Status        RegistrationStatus
	PaymentStatus RegistrationPaymentStatus
	AmountPaid    *decimal.Decimal
	TransactionID *string
}

// InitialRegistrationState derives the state a new registration starts in.
// activeCount is the number of PENDING or CONFIRMED registrations already held
// for the event.
func InitialRegistrationState(e *Event, activeCount int) (RegistrationStatus, RegistrationPaymentStatus) {
	if e.IsFull(activeCount) {
		return RegistrationWaitlisted, RegPaymentPending
	}
	if e.IsFree() {
		return RegistrationConfirmed, RegPaymentFree
	}
	return RegistrationPending, RegPaymentPending
}

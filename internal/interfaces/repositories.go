package interfaces

import (
	"context"

	"github.com/akylbek/payment-system/settlement-service/internal/models"
)

// EventRepository defines the contract for event data access
type EventRepository interface {
	GetByID(ctx context.Context, eventID string) (*models.Event, error)
}

// RegistrationRepository defines the contract for registration data access
type RegistrationRepository interface {
	Create(ctx context.Context, reg *models.Registration) error
	GetByID(ctx context.Context, registrationID string) (*models.Registration, error)
	CountActive(ctx context.Context, eventID string) (int, error)
}

// CouponRepository defines the contract for coupon data access
type CouponRepository interface {
	Create(ctx context.Context, coupon *models.Coupon) error
	GetByCode(ctx context.Context, code string) (*models.Coupon, error)
	GetByID(ctx context.Context, couponID string) (*models.Coupon, error)
	Deactivate(ctx context.Context, code string) error
	CountUserRedemptions(ctx context.Context, couponID, userID string) (int, error)
}

// PaymentRepository defines the contract for payment data access outside of
// settlement. Status changes go through SettlementTx.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetByID(ctx context.Context, paymentID string) (*models.Payment, error)
	// GetPendingByRegistration returns NotFound when the registration has no
	// open payment.
	GetPendingByRegistration(ctx context.Context, registrationID string) (*models.Payment, error)
	ListByUser(ctx context.Context, userID string, filter models.PaymentFilter) ([]models.Payment, int, error)
}

// SettlementTx is the set of writes that must commit together.
type SettlementTx interface {
	GetPaymentForUpdate(ctx context.Context, paymentID string) (*models.Payment, error)
	GetRegistrationForUpdate(ctx context.Context, registrationID string) (*models.Registration, error)
	// TransitionPayment applies t only if the stored status equals t.From and
	// returns the number of rows changed.
	TransitionPayment(ctx context.Context, t models.PaymentTransition) (int64, error)
	UpdateRegistration(ctx context.Context, registrationID string, update models.RegistrationUpdate) error
	// RedeemCoupon consumes one use of the coupon for the user, failing with
	// UsageLimitExceeded when either cap is already reached.
	RedeemCoupon(ctx context.Context, couponID, userID, paymentID string) error
}

// TxRunner runs fn inside one database transaction, committing only when fn
// returns nil.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx SettlementTx) error) error
}

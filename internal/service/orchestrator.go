package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/auth"
	"github.com/akylbek/payment-system/settlement-service/internal/gateway"
	"github.com/akylbek/payment-system/settlement-service/internal/interfaces"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
	"github.com/akylbek/payment-system/settlement-service/internal/telemetry"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100

	ReasonSignatureMismatch = "signature_mismatch"
)

type OrchestratorConfig struct {
	Currency string
	LockTTL  time.Duration
}

// Dependencies groups the collaborators shared by the settlement services.
type Dependencies struct {
	Payments      interfaces.PaymentRepository
	Registrations interfaces.RegistrationRepository
	Events        interfaces.EventRepository
	Tx            interfaces.TxRunner
	Gateway       gateway.Gateway
	Locker        interfaces.Locker
	Publisher     interfaces.StatePublisher
}

// Orchestrator drives a payment from initiation to settlement.
type Orchestrator struct {
	deps      Dependencies
	evaluator *CouponEvaluator
	pricing   *PricingCalculator
	cfg       OrchestratorConfig
	now       func() time.Time
}

func NewOrchestrator(deps Dependencies, evaluator *CouponEvaluator, pricing *PricingCalculator, cfg OrchestratorConfig) *Orchestrator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Orchestrator{
		deps:      deps,
		evaluator: evaluator,
		pricing:   pricing,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithClock replaces the time source.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

type InitiateRequest struct {
	RegistrationID string
	CouponCode     string
	Metadata       models.RequestMetadata
}

type InitiateResult struct {
	PaymentID string                 `json:"paymentId"`
	Order     *gateway.Order         `json:"order"`
	Amount    models.AmountBreakdown `json:"amount"`
	Currency  string                 `json:"currency"`
	// Resumed is set when an open payment with the same pricing was returned
	// instead of a new gateway order.
	Resumed bool `json:"resumed,omitempty"`
}

// resumePending hands back the registration's open payment when the new
// request prices identically and reports Conflict otherwise. A registration
// has at most one PENDING payment.
func resumePending(open *models.Payment, coupon *models.Coupon, amount models.AmountBreakdown) (*InitiateResult, error) {
	couponID := ""
	if coupon != nil {
		couponID = coupon.ID
	}
	if open.CouponID != couponID || !open.Amount.Final.Equal(amount.Final) {
		return nil, apperr.Newf(apperr.Conflict, "registration already has pending payment %s", open.PaymentID)
	}
	return &InitiateResult{
		PaymentID: open.PaymentID,
		Order: &gateway.Order{
			ID:       open.Gateway.OrderID,
			Amount:   gateway.ToMinorUnits(open.Amount.Final),
			Currency: open.Currency,
			Receipt:  open.Gateway.ReceiptID,
			Status:   "created",
		},
		Amount:   open.Amount,
		Currency: open.Currency,
		Resumed:  true,
	}, nil
}

// InitiatePayment prices the registration, opens a gateway order and records
// a PENDING payment for it.
func (o *Orchestrator) InitiatePayment(ctx context.Context, principal auth.Principal, req InitiateRequest) (*InitiateResult, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "Orchestrator.InitiatePayment")
	defer span.End()

	reg, err := o.deps.Registrations.GetByID(ctx, req.RegistrationID)
	if err != nil {
		return nil, err
	}
	if err := auth.CanActAsOwner(principal, reg.UserID); err != nil {
		return nil, err
	}
	if !reg.Payable() {
		return nil, apperr.Newf(apperr.InvalidState, "registration is %s with payment %s and cannot be paid", reg.Status, reg.PaymentStatus)
	}

	event, err := o.deps.Events.GetByID(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}
	now := o.now()
	if event.Status(now) == models.EventCompleted {
		return nil, apperr.New(apperr.InvalidState, "event has already ended")
	}
	if event.IsFree() {
		return nil, apperr.New(apperr.InvalidState, "event is free and needs no payment")
	}

	var coupon *models.Coupon
	if req.CouponCode != "" {
		coupon, err = o.evaluator.Evaluate(ctx, EvaluateRequest{
			Code:       req.CouponCode,
			EventID:    event.ID,
			UserID:     reg.UserID,
			BaseAmount: event.Amount,
			Now:        now,
		})
		if err != nil {
			return nil, err
		}
	}

	amount := o.pricing.Calculate(event.Amount, coupon)
	if !amount.Final.IsPositive() {
		return nil, apperr.New(apperr.Validation, "payable amount must be positive")
	}

	currency := event.Currency
	if currency == "" {
		currency = o.cfg.Currency
	}

	open, err := o.deps.Payments.GetPendingByRegistration(ctx, reg.ID)
	switch {
	case err == nil:
		return resumePending(open, coupon, amount)
	case !apperr.IsKind(err, apperr.NotFound):
		return nil, err
	}

	// The gateway order and the payment row must both exist once the order is
	// created, whatever the client does.
	ctx = context.WithoutCancel(ctx)

	paymentID := uuid.NewString()
	receiptID := fmt.Sprintf("receipt_%s_%d", reg.ID, now.UnixMilli())
	order, err := o.deps.Gateway.CreateOrder(ctx, amount.Final, currency, receiptID)
	if err != nil {
		telemetry.Logger.Error("Gateway order creation failed",
			zap.String("registration_id", reg.ID),
			zap.Error(err),
		)
		return nil, err
	}

	payment := &models.Payment{
		PaymentID:      paymentID,
		RegistrationID: reg.ID,
		UserID:         reg.UserID,
		EventID:        event.ID,
		Amount:         amount,
		Currency:       currency,
		Method:         models.MethodRazorpay,
		Gateway: models.GatewayInfo{
			Provider:  models.ProviderRazorpay,
			OrderID:   order.ID,
			ReceiptID: receiptID,
		},
		Status:   models.PaymentPending,
		Metadata: req.Metadata,
	}
	if coupon != nil {
		payment.CouponID = coupon.ID
	}

	if err := o.deps.Payments.Create(ctx, payment); err != nil {
		telemetry.Logger.Error("Failed to record payment for gateway order",
			zap.String("payment_id", paymentID),
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
		return nil, err
	}

	span.SetAttributes(attribute.String("payment.id", paymentID))
	telemetry.PaymentsInitiated.Inc()
	o.announce(ctx, payment, "", models.PaymentPending)

	return &InitiateResult{
		PaymentID: paymentID,
		Order:     order,
		Amount:    amount,
		Currency:  currency,
	}, nil
}

type VerifyRequest struct {
	PaymentID        string
	GatewayPaymentID string
	GatewayOrderID   string
	Signature        string
}

// VerifyResult is the outcome of a verification. A signature mismatch is a
// result with Success false, not an error.
type VerifyResult struct {
	Success        bool            `json:"success"`
	AlreadySettled bool            `json:"alreadySettled,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	Payment        *models.Payment `json:"payment"`
}

// VerifyPayment settles a PENDING payment when the gateway signature checks
// out and fails it otherwise. Repeating a successful verification is a no-op.
func (o *Orchestrator) VerifyPayment(ctx context.Context, principal auth.Principal, req VerifyRequest) (*VerifyResult, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "Orchestrator.VerifyPayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", req.PaymentID))

	payment, err := o.deps.Payments.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if err := auth.CanActAsOwner(principal, payment.UserID); err != nil {
		return nil, err
	}
	if result, done, err := settledOutcome(payment, req); done {
		return result, err
	}

	// Acquire lock
	lockKey := fmt.Sprintf("payment_lock:%s", payment.PaymentID)
	token, locked, err := o.deps.Locker.Acquire(ctx, lockKey, o.cfg.LockTTL)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "acquire settlement lock", err)
	}
	if !locked {
		return nil, apperr.Newf(apperr.Conflict, "payment %s is already being processed", payment.PaymentID)
	}

	ctx = context.WithoutCancel(ctx)
	defer func() {
		if err := o.deps.Locker.Release(ctx, lockKey, token); err != nil {
			telemetry.Logger.Warn("Failed to release settlement lock", zap.String("payment_id", payment.PaymentID), zap.Error(err))
		}
	}()

	valid := req.GatewayOrderID == payment.Gateway.OrderID &&
		o.deps.Gateway.VerifySignature(payment.Gateway.OrderID, req.GatewayPaymentID, req.Signature)
	if !valid {
		return o.fail(ctx, payment)
	}
	return o.settle(ctx, payment, req)
}

// settledOutcome resolves verification against a payment that is no longer
// PENDING. done is false when the payment still needs settling. A repeat is
// only acknowledged when it carries the exact gateway id and signature the
// payment settled with.
func settledOutcome(p *models.Payment, req VerifyRequest) (*VerifyResult, bool, error) {
	switch {
	case p.Status == models.PaymentPending:
		return nil, false, nil
	case p.Status == models.PaymentSuccess && sameSettlement(p, req):
		return &VerifyResult{Success: true, AlreadySettled: true, Payment: p}, true, nil
	default:
		return nil, true, apperr.Newf(apperr.InvalidState, "payment is already %s", p.Status)
	}
}

func sameSettlement(p *models.Payment, req VerifyRequest) bool {
	return p.Gateway.TransactionID == req.GatewayPaymentID &&
		p.Gateway.Signature != "" &&
		subtle.ConstantTimeCompare([]byte(p.Gateway.Signature), []byte(req.Signature)) == 1
}

func (o *Orchestrator) settle(ctx context.Context, payment *models.Payment, req VerifyRequest) (*VerifyResult, error) {
	var (
		settled *models.Payment
		result  *VerifyResult
	)

	err := o.deps.Tx.RunInTx(ctx, func(tx interfaces.SettlementTx) error {
		current, err := tx.GetPaymentForUpdate(ctx, payment.PaymentID)
		if err != nil {
			return err
		}
		if r, done, err := settledOutcome(current, req); done {
			result = r
			return err
		}

		reg, err := tx.GetRegistrationForUpdate(ctx, current.RegistrationID)
		if err != nil {
			return err
		}
		if !reg.Payable() {
			return apperr.Newf(apperr.InvalidState, "registration %s is already %s with payment %s",
				reg.ID, reg.Status, reg.PaymentStatus)
		}

		now := o.now()
		invoice := &models.Invoice{Number: models.InvoiceNumber(current.PaymentID, now), GeneratedAt: now}
		rows, err := tx.TransitionPayment(ctx, models.PaymentTransition{
			PaymentID:     current.PaymentID,
			From:          models.PaymentPending,
			To:            models.PaymentSuccess,
			TransactionID: req.GatewayPaymentID,
			Signature:     req.Signature,
			PaymentDate:   &now,
			Invoice:       invoice,
		})
		if err != nil {
			return err
		}
		if rows == 0 {
			reread, err := tx.GetPaymentForUpdate(ctx, current.PaymentID)
			if err != nil {
				return err
			}
			if r, done, err := settledOutcome(reread, req); done {
				result = r
				return err
			}
			return apperr.Newf(apperr.Conflict, "payment %s changed during settlement", current.PaymentID)
		}

		if current.CouponID != "" {
			if err := tx.RedeemCoupon(ctx, current.CouponID, current.UserID, current.PaymentID); err != nil {
				return err
			}
		}

		amountPaid := current.Amount.Final
		transactionID := req.GatewayPaymentID
		if err := tx.UpdateRegistration(ctx, current.RegistrationID, models.RegistrationUpdate{
			Status:        models.RegistrationConfirmed,
			PaymentStatus: models.RegPaymentCompleted,
			AmountPaid:    &amountPaid,
			TransactionID: &transactionID,
		}); err != nil {
			return err
		}

		current.Status = models.PaymentSuccess
		current.Gateway.TransactionID = req.GatewayPaymentID
		current.Gateway.Signature = req.Signature
		current.PaymentDate = &now
		current.Invoice = invoice
		settled = current
		return nil
	})
	if err != nil {
		if apperr.IsKind(err, apperr.UsageLimitExceeded) {
			telemetry.CouponRedemptions.WithLabelValues("exhausted").Inc()
		}
		telemetry.SettlementOutcomes.WithLabelValues(string(apperr.KindOf(err))).Inc()
		telemetry.Logger.Warn("Settlement rolled back",
			zap.String("payment_id", payment.PaymentID),
			zap.Error(err),
		)
		return nil, err
	}
	if result != nil {
		return result, nil
	}

	if settled.CouponID != "" {
		telemetry.CouponRedemptions.WithLabelValues("redeemed").Inc()
	}
	telemetry.SettlementOutcomes.WithLabelValues("success").Inc()
	o.announce(ctx, settled, models.PaymentPending, models.PaymentSuccess)

	return &VerifyResult{Success: true, Payment: settled}, nil
}

func (o *Orchestrator) fail(ctx context.Context, payment *models.Payment) (*VerifyResult, error) {
	var rows int64
	err := o.deps.Tx.RunInTx(ctx, func(tx interfaces.SettlementTx) error {
		var err error
		rows, err = tx.TransitionPayment(ctx, models.PaymentTransition{
			PaymentID: payment.PaymentID,
			From:      models.PaymentPending,
			To:        models.PaymentFailed,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		current, err := o.deps.Payments.GetByID(ctx, payment.PaymentID)
		if err != nil {
			return nil, err
		}
		return nil, apperr.Newf(apperr.InvalidState, "payment is already %s", current.Status)
	}

	payment.Status = models.PaymentFailed
	telemetry.SettlementOutcomes.WithLabelValues(ReasonSignatureMismatch).Inc()
	telemetry.Logger.Warn("Payment signature verification failed", zap.String("payment_id", payment.PaymentID))
	o.announce(ctx, payment, models.PaymentPending, models.PaymentFailed)

	return &VerifyResult{Success: false, Reason: ReasonSignatureMismatch, Payment: payment}, nil
}

// GetPayment returns a payment visible to the principal.
func (o *Orchestrator) GetPayment(ctx context.Context, principal auth.Principal, paymentID string) (*models.Payment, error) {
	payment, err := o.deps.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := auth.CanAccessOwned(principal, payment.UserID); err != nil {
		return nil, err
	}
	return payment, nil
}

type PaymentPage struct {
	Payments []models.Payment `json:"payments"`
	Total    int              `json:"total"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
}

// ListPayments returns the principal's payment history.
func (o *Orchestrator) ListPayments(ctx context.Context, principal auth.Principal, filter models.PaymentFilter) (*PaymentPage, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, apperr.Newf(apperr.Validation, "unknown payment status %q", filter.Status)
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 {
		filter.Limit = defaultPageLimit
	}
	if filter.Limit > maxPageLimit {
		filter.Limit = maxPageLimit
	}

	payments, total, err := o.deps.Payments.ListByUser(ctx, principal.ID, filter)
	if err != nil {
		return nil, err
	}
	return &PaymentPage{Payments: payments, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// announce publishes an applied transition. Publishing never undoes the
// transition; failures are logged.
func (o *Orchestrator) announce(ctx context.Context, p *models.Payment, from, to models.PaymentStatus) {
	publishTransition(ctx, o.deps.Publisher, o.now(), p, from, to)
}

func publishTransition(ctx context.Context, publisher interfaces.StatePublisher, now time.Time, p *models.Payment, from, to models.PaymentStatus) {
	change := models.PaymentStateChange{
		PaymentID:      p.PaymentID,
		RegistrationID: p.RegistrationID,
		UserID:         p.UserID,
		EventID:        p.EventID,
		State:          to,
		PreviousState:  from,
		Amount:         p.Amount.Final,
		Currency:       p.Currency,
		Timestamp:      now,
	}
	if err := publisher.PublishStateChange(ctx, change); err != nil {
		telemetry.Logger.Error("Failed to publish payment state change",
			zap.String("payment_id", p.PaymentID),
			zap.Error(err),
		)
	}

	telemetry.Logger.Info("Payment state transition",
		zap.String("payment_id", p.PaymentID),
		zap.String("from_state", string(from)),
		zap.String("to_state", string(to)),
	)
}

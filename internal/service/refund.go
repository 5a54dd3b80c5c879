package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/auth"
	"github.com/akylbek/payment-system/settlement-service/internal/interfaces"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
	"github.com/akylbek/payment-system/settlement-service/internal/telemetry"
)

type RefundRequest struct {
	PaymentID string
	Reason    string
	// Amount defaults to the full paid amount. A smaller amount yields a
	// partial refund that leaves the registration confirmed.
	Amount *decimal.Decimal
}

// RefundProcessor returns money for settled payments.
type RefundProcessor struct {
	deps    Dependencies
	lockTTL time.Duration
	now     func() time.Time
}

func NewRefundProcessor(deps Dependencies, lockTTL time.Duration) *RefundProcessor {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &RefundProcessor{deps: deps, lockTTL: lockTTL, now: time.Now}
}

func (r *RefundProcessor) WithClock(now func() time.Time) *RefundProcessor {
	r.now = now
	return r
}

func (r *RefundProcessor) Refund(ctx context.Context, principal auth.Principal, req RefundRequest) (*models.Payment, error) {
	ctx, span := telemetry.Tracer.Start(ctx, "RefundProcessor.Refund")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", req.PaymentID))

	payment, err := r.deps.Payments.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	event, err := r.deps.Events.GetByID(ctx, payment.EventID)
	if err != nil {
		return nil, err
	}
	if err := auth.CanRefund(principal, event); err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentSuccess {
		return nil, apperr.Newf(apperr.InvalidState, "only successful payments can be refunded, payment is %s", payment.Status)
	}
	if payment.Gateway.TransactionID == "" {
		return nil, apperr.New(apperr.InvalidState, "payment has no gateway transaction to refund")
	}

	amount, target, err := refundTarget(payment, req.Amount)
	if err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)

	paymentID := payment.PaymentID
	lockKey := fmt.Sprintf("refund_lock:%s", paymentID)
	token, locked, err := r.deps.Locker.Acquire(ctx, lockKey, r.lockTTL)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "acquire refund lock", err)
	}
	if !locked {
		return nil, apperr.Newf(apperr.Conflict, "refund for payment %s is already in progress", paymentID)
	}

	ctx = context.WithoutCancel(ctx)
	defer func() {
		if err := r.deps.Locker.Release(ctx, lockKey, token); err != nil {
			telemetry.Logger.Warn("Failed to release refund lock", zap.String("payment_id", paymentID), zap.Error(err))
		}
	}()

	// A refund that finished between the first read and the lock has
	// already moved the payment off SUCCESS.
	payment, err = r.deps.Payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentSuccess {
		return nil, apperr.Newf(apperr.InvalidState, "only successful payments can be refunded, payment is %s", payment.Status)
	}
	amount, target, err = refundTarget(payment, req.Amount)
	if err != nil {
		return nil, err
	}

	result, err := r.deps.Gateway.Refund(ctx, payment.Gateway.TransactionID, amount, reason)
	if err != nil {
		telemetry.Refunds.WithLabelValues("gateway_error").Inc()
		return nil, err
	}

	refund := &models.Refund{
		RefundID: result.ID,
		Amount:   result.Amount,
		Reason:   reason,
		Date:     r.now(),
		Status:   models.RefundProcessing,
	}

	err = r.deps.Tx.RunInTx(ctx, func(tx interfaces.SettlementTx) error {
		rows, err := tx.TransitionPayment(ctx, models.PaymentTransition{
			PaymentID: payment.PaymentID,
			From:      models.PaymentSuccess,
			To:        target,
			Refund:    refund,
		})
		if err != nil {
			return err
		}
		if rows == 0 {
			return apperr.Newf(apperr.Conflict, "payment %s changed during refund", payment.PaymentID)
		}
		if target != models.PaymentRefunded {
			return nil
		}
		return tx.UpdateRegistration(ctx, payment.RegistrationID, models.RegistrationUpdate{
			Status:        models.RegistrationCancelled,
			PaymentStatus: models.RegPaymentRefunded,
		})
	})
	if err != nil {
		// The gateway has already moved the money; this needs reconciliation.
		telemetry.Logger.Error("Refund issued but payment state not updated",
			zap.String("payment_id", payment.PaymentID),
			zap.String("refund_id", refund.RefundID),
			zap.Error(err),
		)
		return nil, err
	}

	payment.Status = target
	payment.Refund = refund
	telemetry.Refunds.WithLabelValues(string(target)).Inc()
	publishTransition(ctx, r.deps.Publisher, r.now(), payment, models.PaymentSuccess, target)

	return payment, nil
}

func refundTarget(p *models.Payment, requested *decimal.Decimal) (decimal.Decimal, models.PaymentStatus, error) {
	if requested == nil {
		return p.Amount.Final, models.PaymentRefunded, nil
	}
	amount := models.RoundCurrency(*requested)
	if !amount.IsPositive() {
		return decimal.Zero, "", apperr.New(apperr.Validation, "refund amount must be positive")
	}
	if amount.GreaterThan(p.Amount.Final) {
		return decimal.Zero, "", apperr.Newf(apperr.Validation, "refund amount exceeds paid amount %s", p.Amount.Final.StringFixed(2))
	}
	if amount.Equal(p.Amount.Final) {
		return amount, models.PaymentRefunded, nil
	}
	return amount, models.PaymentPartialRefund, nil
}

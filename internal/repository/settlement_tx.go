package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/interfaces"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
	"github.com/akylbek/payment-system/settlement-service/internal/telemetry"
)

type TxRunner struct {
	db *sql.DB
}

func NewTxRunner(db *sql.DB) *TxRunner {
	return &TxRunner{db: db}
}

func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx interfaces.SettlementTx) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin settlement tx: %w", err)
	}

	if err := fn(&settlementTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			telemetry.Logger.Error("Settlement rollback failed", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settlement tx: %w", err)
	}
	return nil
}

type settlementTx struct {
	tx *sql.Tx
}

func (s *settlementTx) GetPaymentForUpdate(ctx context.Context, paymentID string) (*models.Payment, error) {
	return getPayment(ctx, s.tx, paymentID, true)
}

func (s *settlementTx) GetRegistrationForUpdate(ctx context.Context, registrationID string) (*models.Registration, error) {
	return getRegistration(ctx, s.tx, registrationID, true)
}

func (s *settlementTx) TransitionPayment(ctx context.Context, t models.PaymentTransition) (int64, error) {
	if !models.CanTransition(t.From, t.To) {
		return 0, apperr.Newf(apperr.InvalidState, "payment cannot move from %s to %s", t.From, t.To)
	}

	var (
		refundID     sql.NullString
		refundAmount decimal.NullDecimal
		refundReason sql.NullString
		refundDate   sql.NullTime
		refundStatus sql.NullString
	)
	if t.Refund != nil {
		refundID = nullString(t.Refund.RefundID)
		refundAmount = decimal.NewNullDecimal(t.Refund.Amount)
		refundReason = nullString(t.Refund.Reason)
		refundDate = nullTime(&t.Refund.Date)
		refundStatus = nullString(string(t.Refund.Status))
	}

	var (
		invoiceNumber sql.NullString
		invoiceURL    sql.NullString
		invoiceAt     sql.NullTime
	)
	if t.Invoice != nil {
		invoiceNumber = nullString(t.Invoice.Number)
		invoiceURL = nullString(t.Invoice.URL)
		invoiceAt = nullTime(&t.Invoice.GeneratedAt)
	}

	result, err := s.tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $1,
			gateway_transaction_id = COALESCE($2, gateway_transaction_id),
			gateway_signature = COALESCE($3, gateway_signature),
			payment_date = COALESCE($4, payment_date),
			refund_id = COALESCE($5, refund_id),
			refund_amount = COALESCE($6, refund_amount),
			refund_reason = COALESCE($7, refund_reason),
			refund_date = COALESCE($8, refund_date),
			refund_status = COALESCE($9, refund_status),
			invoice_number = COALESCE($10, invoice_number),
			invoice_url = COALESCE($11, invoice_url),
			invoice_generated_at = COALESCE($12, invoice_generated_at),
			updated_at = NOW()
		WHERE payment_id = $13 AND status = $14
	`, t.To, nullString(t.TransactionID), nullString(t.Signature), nullTime(t.PaymentDate),
		refundID, refundAmount, refundReason, refundDate, refundStatus,
		invoiceNumber, invoiceURL, invoiceAt,
		t.PaymentID, t.From)
	if isUniqueViolation(err) {
		return 0, apperr.Wrap(apperr.Conflict, "registration already settled by another payment", err)
	}
	if err != nil {
		return 0, fmt.Errorf("transition payment %s: %w", t.PaymentID, err)
	}
	return result.RowsAffected()
}

func (s *settlementTx) UpdateRegistration(ctx context.Context, registrationID string, u models.RegistrationUpdate) error {
	var amountPaid decimal.NullDecimal
	if u.AmountPaid != nil {
		amountPaid = decimal.NewNullDecimal(*u.AmountPaid)
	}
	var transactionID sql.NullString
	if u.TransactionID != nil {
		transactionID = nullString(*u.TransactionID)
	}

	result, err := s.tx.ExecContext(ctx, `
		UPDATE registrations
		SET status = $1,
			payment_status = $2,
			amount_paid = COALESCE($3, amount_paid),
			transaction_id = COALESCE($4, transaction_id),
			updated_at = NOW()
		WHERE id = $5
	`, u.Status, u.PaymentStatus, amountPaid, transactionID, registrationID)
	if err != nil {
		return fmt.Errorf("update registration %s: %w", registrationID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update registration %s: %w", registrationID, err)
	}
	if rows == 0 {
		return apperr.New(apperr.NotFound, "registration not found")
	}
	return nil
}

// RedeemCoupon increments usage only while it is below the global cap. The
// increment locks the coupon row, so the per-user count read afterwards is
// not raced by another redemption of the same coupon.
func (s *settlementTx) RedeemCoupon(ctx context.Context, couponID, userID, paymentID string) error {
	result, err := s.tx.ExecContext(ctx, `
		UPDATE coupons
		SET usage_count = usage_count + 1, updated_at = NOW()
		WHERE id = $1 AND (usage_limit_total IS NULL OR usage_count < usage_limit_total)
	`, couponID)
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment coupon usage: %w", err)
	}
	if rows == 0 {
		return apperr.New(apperr.UsageLimitExceeded, "coupon usage limit reached")
	}

	var perUser sql.NullInt64
	if err := s.tx.QueryRowContext(ctx,
		`SELECT usage_limit_per_user FROM coupons WHERE id = $1`, couponID,
	).Scan(&perUser); err != nil {
		return fmt.Errorf("read coupon limits: %w", err)
	}
	if perUser.Valid {
		used, err := countRedemptions(ctx, s.tx, couponID, userID)
		if err != nil {
			return err
		}
		if int64(used) >= perUser.Int64 {
			return apperr.New(apperr.UsageLimitExceeded, "coupon already used the maximum number of times by this user")
		}
	}

	if _, err := s.tx.ExecContext(ctx, `
		INSERT INTO coupon_redemptions (coupon_id, user_id, payment_id) VALUES ($1, $2, $3)
	`, couponID, userID, paymentID); err != nil {
		return fmt.Errorf("record coupon redemption: %w", err)
	}
	return nil
}

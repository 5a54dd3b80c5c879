package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
)

const paymentColumns = `payment_id, registration_id, user_id, event_id, coupon_id,
	amount_original, amount_discount, amount_tax, amount_final, currency, payment_method,
	gateway_provider, gateway_order_id, gateway_transaction_id, gateway_signature, gateway_receipt_id,
	status, payment_date, refund_id, refund_amount, refund_reason, refund_date, refund_status,
	invoice_number, invoice_url, invoice_generated_at, user_agent, ip_address, created_at, updated_at`

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payments (payment_id, registration_id, user_id, event_id, coupon_id,
			amount_original, amount_discount, amount_tax, amount_final, currency, payment_method,
			gateway_provider, gateway_order_id, gateway_receipt_id, status, user_agent, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at, updated_at
	`, p.PaymentID, p.RegistrationID, p.UserID, p.EventID, nullString(p.CouponID),
		p.Amount.Original, p.Amount.Discount, p.Amount.Tax, p.Amount.Final, p.Currency, p.Method,
		p.Gateway.Provider, p.Gateway.OrderID, p.Gateway.ReceiptID, p.Status,
		nullString(p.Metadata.UserAgent), nullString(p.Metadata.IPAddress),
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.Wrap(apperr.Conflict, "registration already has an open payment or the gateway order is taken", err)
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, paymentID string) (*models.Payment, error) {
	return getPayment(ctx, r.db, paymentID, false)
}

// GetPendingByRegistration returns the registration's open payment, if any.
func (r *PaymentRepository) GetPendingByRegistration(ctx context.Context, registrationID string) (*models.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE registration_id = $1 AND status = $2`,
		registrationID, models.PaymentPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "no pending payment")
	}
	if err != nil {
		return nil, fmt.Errorf("get pending payment for %s: %w", registrationID, err)
	}
	return p, nil
}

// ListByUser returns one page of the user's payments, newest first, and the
// total number of matching rows.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID string, filter models.PaymentFilter) ([]models.Payment, int, error) {
	where := []string{"user_id = $1"}
	args := []interface{}{userID}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.EventID != "" {
		args = append(args, filter.EventID)
		where = append(where, fmt.Sprintf("event_id = $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payments WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset())
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		paymentColumns, clause, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments := make([]models.Payment, 0, filter.Limit)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	return payments, total, nil
}

func getPayment(ctx context.Context, q dbtx, paymentID string, forUpdate bool) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanPayment(q.QueryRowContext(ctx, query, paymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "payment not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get payment %s: %w", paymentID, err)
	}
	return p, nil
}

func scanPayment(row rowScanner) (*models.Payment, error) {
	var (
		p             models.Payment
		couponID      sql.NullString
		transactionID sql.NullString
		signature     sql.NullString
		paymentDate   sql.NullTime
		refundID      sql.NullString
		refundAmount  decimal.NullDecimal
		refundReason  sql.NullString
		refundDate    sql.NullTime
		refundStatus  sql.NullString
		invoiceNumber sql.NullString
		invoiceURL    sql.NullString
		invoiceAt     sql.NullTime
		userAgent     sql.NullString
		ipAddress     sql.NullString
	)
	err := row.Scan(&p.PaymentID, &p.RegistrationID, &p.UserID, &p.EventID, &couponID,
		&p.Amount.Original, &p.Amount.Discount, &p.Amount.Tax, &p.Amount.Final, &p.Currency, &p.Method,
		&p.Gateway.Provider, &p.Gateway.OrderID, &transactionID, &signature, &p.Gateway.ReceiptID,
		&p.Status, &paymentDate, &refundID, &refundAmount, &refundReason, &refundDate, &refundStatus,
		&invoiceNumber, &invoiceURL, &invoiceAt, &userAgent, &ipAddress, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.CouponID = couponID.String
	p.Gateway.TransactionID = transactionID.String
	p.Gateway.Signature = signature.String
	p.Metadata = models.RequestMetadata{UserAgent: userAgent.String, IPAddress: ipAddress.String}
	if paymentDate.Valid {
		p.PaymentDate = &paymentDate.Time
	}
	if refundID.Valid {
		p.Refund = &models.Refund{
			RefundID: refundID.String,
			Amount:   refundAmount.Decimal,
			Reason:   refundReason.String,
			Date:     refundDate.Time,
			Status:   models.RefundStatus(refundStatus.String),
		}
	}
	if invoiceNumber.Valid {
		p.Invoice = &models.Invoice{
			Number:      invoiceNumber.String,
			URL:         invoiceURL.String,
			GeneratedAt: invoiceAt.Time,
		}
	}
	return &p, nil
}

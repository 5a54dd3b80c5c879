package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
)

type RegistrationRepository struct {
	db *sql.DB
}

func NewRegistrationRepository(db *sql.DB) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO registrations (id, event_id, user_id, status, payment_status, amount_paid)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, reg.ID, reg.EventID, reg.UserID, reg.Status, reg.PaymentStatus, reg.AmountPaid,
	).Scan(&reg.CreatedAt, &reg.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.New(apperr.Conflict, "already registered for this event")
	}
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (r *RegistrationRepository) GetByID(ctx context.Context, registrationID string) (*models.Registration, error) {
	return getRegistration(ctx, r.db, registrationID, false)
}

func getRegistration(ctx context.Context, q dbtx, registrationID string, forUpdate bool) (*models.Registration, error) {
	query := `
		SELECT id, event_id, user_id, status, payment_status, amount_paid, transaction_id, created_at, updated_at
		FROM registrations WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		reg   models.Registration
		txnID sql.NullString
	)
	err := q.QueryRowContext(ctx, query, registrationID).Scan(&reg.ID, &reg.EventID, &reg.UserID,
		&reg.Status, &reg.PaymentStatus, &reg.AmountPaid, &txnID, &reg.CreatedAt, &reg.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "registration not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get registration %s: %w", registrationID, err)
	}
	reg.TransactionID = txnID.String
	return &reg, nil
}

// CountActive counts registrations holding a seat or about to.
func (r *RegistrationRepository) CountActive(ctx context.Context, eventID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM registrations
		WHERE event_id = $1 AND status IN ('PENDING', 'CONFIRMED')
	`, eventID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count registrations: %w", err)
	}
	return n, nil
}

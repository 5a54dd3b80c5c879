package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
)

const couponColumns = `id, code, description, discount_type, discount_value, minimum_amount, maximum_discount,
	valid_from, valid_until, usage_limit_total, usage_limit_per_user, usage_count,
	applicable_events, applicable_users, is_active, created_at, updated_at`

type CouponRepository struct {
	db *sql.DB
}

func NewCouponRepository(db *sql.DB) *CouponRepository {
	return &CouponRepository{db: db}
}

func (r *CouponRepository) Create(ctx context.Context, c *models.Coupon) error {
	var maxDiscount decimal.NullDecimal
	if c.MaximumDiscount != nil {
		maxDiscount = decimal.NewNullDecimal(*c.MaximumDiscount)
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO coupons (id, code, description, discount_type, discount_value, minimum_amount, maximum_discount,
			valid_from, valid_until, usage_limit_total, usage_limit_per_user, applicable_events, applicable_users, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING usage_count, created_at, updated_at
	`, c.ID, models.NormalizeCode(c.Code), c.Description, c.DiscountType, c.DiscountValue, c.MinimumAmount, maxDiscount,
		c.ValidFrom, c.ValidUntil, nullInt(c.UsageLimit.Total), nullInt(c.UsageLimit.PerUser),
		pq.Array(nonNil(c.ApplicableEvents)), pq.Array(nonNil(c.ApplicableUsers)), c.IsActive,
	).Scan(&c.UsageCount, &c.CreatedAt, &c.UpdatedAt)
	if isUniqueViolation(err) {
		return apperr.Newf(apperr.Conflict, "coupon %s already exists", models.NormalizeCode(c.Code))
	}
	if err != nil {
		return fmt.Errorf("insert coupon: %w", err)
	}
	c.Code = models.NormalizeCode(c.Code)
	return nil
}

func (r *CouponRepository) GetByCode(ctx context.Context, code string) (*models.Coupon, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, models.NormalizeCode(code))
	return scanCoupon(row)
}

func (r *CouponRepository) GetByID(ctx context.Context, couponID string) (*models.Coupon, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, couponID)
	return scanCoupon(row)
}

func (r *CouponRepository) Deactivate(ctx context.Context, code string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE coupons SET is_active = FALSE, updated_at = NOW() WHERE code = $1
	`, models.NormalizeCode(code))
	if err != nil {
		return fmt.Errorf("deactivate coupon: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate coupon: %w", err)
	}
	if rows == 0 {
		return apperr.New(apperr.NotFound, "coupon not found")
	}
	return nil
}

func (r *CouponRepository) CountUserRedemptions(ctx context.Context, couponID, userID string) (int, error) {
	return countRedemptions(ctx, r.db, couponID, userID)
}

func countRedemptions(ctx context.Context, q dbtx, couponID, userID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM coupon_redemptions WHERE coupon_id = $1 AND user_id = $2
	`, couponID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count coupon redemptions: %w", err)
	}
	return n, nil
}

func scanCoupon(row rowScanner) (*models.Coupon, error) {
	var (
		c           models.Coupon
		maxDiscount decimal.NullDecimal
		total       sql.NullInt64
		perUser     sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.Code, &c.Description, &c.DiscountType, &c.DiscountValue, &c.MinimumAmount, &maxDiscount,
		&c.ValidFrom, &c.ValidUntil, &total, &perUser, &c.UsageCount,
		pq.Array(&c.ApplicableEvents), pq.Array(&c.ApplicableUsers), &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "coupon not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan coupon: %w", err)
	}
	if maxDiscount.Valid {
		c.MaximumDiscount = &maxDiscount.Decimal
	}
	c.UsageLimit = models.UsageLimit{Total: intPtr(total), PerUser: intPtr(perUser)}
	return &c, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

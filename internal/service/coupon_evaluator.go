package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/interfaces"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
)

type EvaluateRequest struct {
	Code       string
	EventID    string
	UserID     string
	BaseAmount decimal.Decimal
	Now        time.Time
}

// CouponEvaluator decides whether a coupon may be applied. It never consumes
// usage; that happens when a payment settles.
type CouponEvaluator struct {
	coupons interfaces.CouponRepository
}

func NewCouponEvaluator(coupons interfaces.CouponRepository) *CouponEvaluator {
	return &CouponEvaluator{coupons: coupons}
}

func (e *CouponEvaluator) Evaluate(ctx context.Context, req EvaluateRequest) (*models.Coupon, error) {
	code := models.NormalizeCode(req.Code)
	if code == "" {
		return nil, apperr.New(apperr.NotFound, "coupon not found")
	}

	coupon, err := e.coupons.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if models.NormalizeCode(coupon.Code) != code {
		return nil, apperr.New(apperr.NotFound, "coupon not found")
	}

	if !coupon.IsActive || !coupon.InWindow(req.Now) {
		return nil, apperr.New(apperr.Expired, "coupon is expired or inactive")
	}

	if coupon.Exhausted() {
		return nil, apperr.New(apperr.UsageLimitExceeded, "coupon usage limit reached")
	}
	if coupon.UsageLimit.PerUser != nil && req.UserID != "" {
		used, err := e.coupons.CountUserRedemptions(ctx, coupon.ID, req.UserID)
		if err != nil {
			return nil, err
		}
		if used >= *coupon.UsageLimit.PerUser {
			return nil, apperr.New(apperr.UsageLimitExceeded, "coupon already used the maximum number of times by this user")
		}
	}

	if !coupon.AppliesToEvent(req.EventID) {
		return nil, apperr.New(apperr.NotApplicable, "coupon does not apply to this event")
	}
	if !coupon.AppliesToUser(req.UserID) {
		return nil, apperr.New(apperr.NotApplicable, "coupon does not apply to this user")
	}

	if req.BaseAmount.LessThan(coupon.MinimumAmount) {
		return nil, apperr.Newf(apperr.MinimumNotMet, "order amount must be at least %s", coupon.MinimumAmount.StringFixed(2))
	}

	return coupon, nil
}

package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/auth"
	"github.com/akylbek/payment-system/settlement-service/internal/interfaces"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
	"github.com/akylbek/payment-system/settlement-service/internal/telemetry"
)

type CreateCouponRequest struct {
	Code              string
	Description       string
	DiscountType      models.DiscountType
	DiscountValue     decimal.Decimal
	MinimumAmount     decimal.Decimal
	MaximumDiscount   *decimal.Decimal
	ValidFrom         time.Time
	ValidUntil        time.Time
	UsageLimitTotal   *int
	UsageLimitPerUser *int
	ApplicableEvents  []string
	ApplicableUsers   []string
}

type ValidateCouponRequest struct {
	Code    string
	EventID string
	UserID  string
}

// CouponPreview is what a caller would pay with the coupon applied.
type CouponPreview struct {
	Coupon *models.Coupon          `json:"coupon"`
	Amount models.AmountBreakdown `json:"amount"`
}

type CouponService struct {
	coupons   interfaces.CouponRepository
	events    interfaces.EventRepository
	evaluator *CouponEvaluator
	pricing   *PricingCalculator
	now       func() time.Time
}

func NewCouponService(coupons interfaces.CouponRepository, events interfaces.EventRepository, evaluator *CouponEvaluator, pricing *PricingCalculator) *CouponService {
	return &CouponService{
		coupons:   coupons,
		events:    events,
		evaluator: evaluator,
		pricing:   pricing,
		now:       time.Now,
	}
}

func (s *CouponService) WithClock(now func() time.Time) *CouponService {
	s.now = now
	return s
}

func (s *CouponService) Create(ctx context.Context, principal auth.Principal, req CreateCouponRequest) (*models.Coupon, error) {
	if err := auth.CanManageCoupons(principal); err != nil {
		return nil, err
	}
	if err := validateCoupon(req); err != nil {
		return nil, err
	}

	coupon := &models.Coupon{
		ID:               uuid.NewString(),
		Code:             models.NormalizeCode(req.Code),
		Description:      req.Description,
		DiscountType:     req.DiscountType,
		DiscountValue:    req.DiscountValue,
		MinimumAmount:    req.MinimumAmount,
		MaximumDiscount:  req.MaximumDiscount,
		ValidFrom:        req.ValidFrom,
		ValidUntil:       req.ValidUntil,
		UsageLimit:       models.UsageLimit{Total: req.UsageLimitTotal, PerUser: req.UsageLimitPerUser},
		ApplicableEvents: req.ApplicableEvents,
		ApplicableUsers:  req.ApplicableUsers,
		IsActive:         true,
	}
	if err := s.coupons.Create(ctx, coupon); err != nil {
		return nil, err
	}

	telemetry.Logger.Info("Coupon created",
		zap.String("code", coupon.Code),
		zap.String("created_by", principal.ID),
	)
	return coupon, nil
}

func validateCoupon(req CreateCouponRequest) error {
	if models.NormalizeCode(req.Code) == "" {
		return apperr.New(apperr.Validation, "code is required")
	}
	switch req.DiscountType {
	case models.DiscountPercentage:
		if req.DiscountValue.GreaterThan(hundred) {
			return apperr.New(apperr.Validation, "percentage discount cannot exceed 100")
		}
	case models.DiscountFixed:
		if req.MaximumDiscount != nil {
			return apperr.New(apperr.Validation, "maximum discount applies to percentage coupons only")
		}
	default:
		return apperr.Newf(apperr.Validation, "unknown discount type %q", req.DiscountType)
	}
	if req.DiscountValue.IsNegative() || req.MinimumAmount.IsNegative() {
		return apperr.New(apperr.Validation, "amounts cannot be negative")
	}
	if req.MaximumDiscount != nil && req.MaximumDiscount.IsNegative() {
		return apperr.New(apperr.Validation, "maximum discount cannot be negative")
	}
	if req.ValidFrom.IsZero() || req.ValidUntil.Before(req.ValidFrom) {
		return apperr.New(apperr.Validation, "validity window is invalid")
	}
	if (req.UsageLimitTotal != nil && *req.UsageLimitTotal < 0) || (req.UsageLimitPerUser != nil && *req.UsageLimitPerUser < 0) {
		return apperr.New(apperr.Validation, "usage limits cannot be negative")
	}
	return nil
}

func (s *CouponService) Deactivate(ctx context.Context, principal auth.Principal, code string) error {
	if err := auth.CanManageCoupons(principal); err != nil {
		return err
	}
	if err := s.coupons.Deactivate(ctx, code); err != nil {
		return err
	}
	telemetry.Logger.Info("Coupon deactivated",
		zap.String("code", models.NormalizeCode(code)),
		zap.String("deactivated_by", principal.ID),
	)
	return nil
}

// Validate evaluates a coupon for an event and previews the resulting price.
// Only admins and organizers may validate on behalf of another user.
func (s *CouponService) Validate(ctx context.Context, principal auth.Principal, req ValidateCouponRequest) (*CouponPreview, error) {
	userID := req.UserID
	if userID == "" {
		userID = principal.ID
	}
	if userID != principal.ID {
		if err := auth.CanManageCoupons(principal); err != nil {
			return nil, err
		}
	}

	event, err := s.events.GetByID(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	coupon, err := s.evaluator.Evaluate(ctx, EvaluateRequest{
		Code:       req.Code,
		EventID:    event.ID,
		UserID:     userID,
		BaseAmount: event.Amount,
		Now:        s.now(),
	})
	if err != nil {
		return nil, err
	}

	return &CouponPreview{
		Coupon: coupon,
		Amount: s.pricing.Calculate(event.Amount, coupon),
	}, nil
}

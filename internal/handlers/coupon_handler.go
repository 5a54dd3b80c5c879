package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/settlement-service/internal/auth"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
	"github.com/akylbek/payment-system/settlement-service/internal/service"
)

// CouponService is implemented by *service.CouponService.
type CouponService interface {
	Create(ctx context.Context, principal auth.Principal, req service.CreateCouponRequest) (*models.Coupon, error)
	Deactivate(ctx context.Context, principal auth.Principal, code string) error
	Validate(ctx context.Context, principal auth.Principal, req service.ValidateCouponRequest) (*service.CouponPreview, error)
}

type CouponHandler struct {
	coupons CouponService
}

func NewCouponHandler(coupons CouponService) *CouponHandler {
	return &CouponHandler{coupons: coupons}
}

type createCouponBody struct {
	Code             string              `json:"code" binding:"required"`
	Description      string              `json:"description"`
	DiscountType     models.DiscountType `json:"discountType" binding:"required"`
	DiscountValue    decimal.Decimal     `json:"discountValue"`
	MinimumAmount    decimal.Decimal     `json:"minimumAmount"`
	MaximumDiscount  *decimal.Decimal    `json:"maximumDiscount"`
	ValidFrom        time.Time           `json:"validFrom" binding:"required"`
	ValidUntil       time.Time           `json:"validUntil" binding:"required"`
	UsageLimit       models.UsageLimit   `json:"usageLimit"`
	ApplicableEvents []string            `json:"applicableEvents"`
	ApplicableUsers  []string            `json:"applicableUsers"`
}

func (h *CouponHandler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var body createCouponBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	coupon, err := h.coupons.Create(c.Request.Context(), p, service.CreateCouponRequest{
		Code:              body.Code,
		Description:       body.Description,
		DiscountType:      body.DiscountType,
		DiscountValue:     body.DiscountValue,
		MinimumAmount:     body.MinimumAmount,
		MaximumDiscount:   body.MaximumDiscount,
		ValidFrom:         body.ValidFrom,
		ValidUntil:        body.ValidUntil,
		UsageLimitTotal:   body.UsageLimit.Total,
		UsageLimitPerUser: body.UsageLimit.PerUser,
		ApplicableEvents:  body.ApplicableEvents,
		ApplicableUsers:   body.ApplicableUsers,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, coupon)
}

type validateCouponBody struct {
	Code    string `json:"code" binding:"required"`
	EventID string `json:"eventId" binding:"required"`
	UserID  string `json:"userId"`
}

func (h *CouponHandler) Validate(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var body validateCouponBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}

	preview, err := h.coupons.Validate(c.Request.Context(), p, service.ValidateCouponRequest{
		Code:    body.Code,
		EventID: body.EventID,
		UserID:  body.UserID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":  true,
		"coupon": preview.Coupon,
		"amount": preview.Amount,
	})
}

func (h *CouponHandler) Deactivate(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	code := c.Param("code")
	if err := h.coupons.Deactivate(c.Request.Context(), p, code); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": models.NormalizeCode(code), "isActive": false})
}

package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akylbek/payment-system/settlement-service/internal/apperr"
	"github.com/akylbek/payment-system/settlement-service/internal/models"
	"github.com/akylbek/payment-system/settlement-service/internal/service"
)

func evaluate(t *testing.T, c models.Coupon, req service.EvaluateRequest) (*models.Coupon, error) {
	t.Helper()
	st := newStore()
	st.data.coupons[c.ID] = c
	if req.Now.IsZero() {
		req.Now = fixedNow
	}
	if req.BaseAmount.IsZero() {
		req.BaseAmount = decimal.NewFromInt(1000)
	}
	return service.NewCouponEvaluator(couponRepo{st}).Evaluate(context.Background(), req)
}

func baseCoupon() models.Coupon {
	return models.Coupon{
		ID:            "cpn-1",
		Code:          "SAVE10",
		DiscountType:  models.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(10),
		ValidFrom:     fixedNow.Add(-24 * time.Hour),
		ValidUntil:    fixedNow.Add(24 * time.Hour),
		IsActive:      true,
	}
}

func TestEvaluate_Success_CaseInsensitive(t *testing.T) {
	c, err := evaluate(t, baseCoupon(), service.EvaluateRequest{Code: " save10 ", EventID: "evt-1", UserID: "user-1"})
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", c.Code)
	assert.Equal(t, 0, c.UsageCount)
}

func TestEvaluate_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *models.Coupon)
		req    service.EvaluateRequest
		kind   apperr.Kind
	}{
		{
			name: "unknown code",
			req:  service.EvaluateRequest{Code: "NOPE"},
			kind: apperr.NotFound,
		},
		{
			name: "empty code",
			req:  service.EvaluateRequest{Code: "  "},
			kind: apperr.NotFound,
		},
		{
			name:   "not yet valid",
			mutate: func(c *models.Coupon) { c.ValidFrom = fixedNow.Add(time.Hour) },
			req:    service.EvaluateRequest{Code: "SAVE10"},
			kind:   apperr.Expired,
		},
		{
			name:   "past validity",
			mutate: func(c *models.Coupon) { c.ValidUntil = fixedNow.Add(-time.Hour) },
			req:    service.EvaluateRequest{Code: "SAVE10"},
			kind:   apperr.Expired,
		},
		{
			name:   "inactive",
			mutate: func(c *models.Coupon) { c.IsActive = false },
			req:    service.EvaluateRequest{Code: "SAVE10"},
			kind:   apperr.Expired,
		},
		{
			name: "global cap reached",
			mutate: func(c *models.Coupon) {
				c.UsageLimit.Total = intPtr(5)
				c.UsageCount = 5
			},
			req:  service.EvaluateRequest{Code: "SAVE10"},
			kind: apperr.UsageLimitExceeded,
		},
		{
			name:   "other event",
			mutate: func(c *models.Coupon) { c.ApplicableEvents = []string{"evt-2"} },
			req:    service.EvaluateRequest{Code: "SAVE10", EventID: "evt-1"},
			kind:   apperr.NotApplicable,
		},
		{
			name:   "other user",
			mutate: func(c *models.Coupon) { c.ApplicableUsers = []string{"user-2"} },
			req:    service.EvaluateRequest{Code: "SAVE10", EventID: "evt-1", UserID: "user-1"},
			kind:   apperr.NotApplicable,
		},
		{
			name:   "minimum not met",
			mutate: func(c *models.Coupon) { c.MinimumAmount = decimal.NewFromInt(2000) },
			req:    service.EvaluateRequest{Code: "SAVE10"},
			kind:   apperr.MinimumNotMet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := baseCoupon()
			if tt.mutate != nil {
				tt.mutate(&c)
			}
			_, err := evaluate(t, c, tt.req)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestEvaluate_PerUserLimit(t *testing.T) {
	st := newStore()
	c := baseCoupon()
	c.UsageLimit.PerUser = intPtr(1)
	st.data.coupons[c.ID] = c
	st.data.redemptions = []redemption{{couponID: c.ID, userID: "user-1", paymentID: "pay-0"}}
	evaluator := service.NewCouponEvaluator(couponRepo{st})

	_, err := evaluator.Evaluate(context.Background(), service.EvaluateRequest{
		Code: "SAVE10", UserID: "user-1", BaseAmount: decimal.NewFromInt(1000), Now: fixedNow,
	})
	assert.True(t, apperr.IsKind(err, apperr.UsageLimitExceeded))

	_, err = evaluator.Evaluate(context.Background(), service.EvaluateRequest{
		Code: "SAVE10", UserID: "user-2", BaseAmount: decimal.NewFromInt(1000), Now: fixedNow,
	})
	assert.NoError(t, err)
}

func TestEvaluate_WindowIsInclusive(t *testing.T) {
	c := baseCoupon()
	c.ValidUntil = fixedNow

	_, err := evaluate(t, c, service.EvaluateRequest{Code: "SAVE10"})
	assert.NoError(t, err)
}

package service

import (
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/settlement-service/internal/models"
)

var hundred = decimal.NewFromInt(100)

// PricingCalculator derives the payable amount. Tax applies to the base
// amount before any discount.
type PricingCalculator struct {
	taxRate decimal.Decimal
}

func NewPricingCalculator(taxRate decimal.Decimal) *PricingCalculator {
	return &PricingCalculator{taxRate: taxRate}
}

func (p *PricingCalculator) Calculate(base decimal.Decimal, coupon *models.Coupon) models.AmountBreakdown {
	if base.IsNegative() {
		base = decimal.Zero
	}
	discount := Discount(base, coupon)
	tax := base.Mul(p.taxRate)
	return models.NewAmountBreakdown(base, discount, tax)
}

// Discount is the amount a coupon takes off base. It is never more than base.
func Discount(base decimal.Decimal, coupon *models.Coupon) decimal.Decimal {
	if coupon == nil {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch coupon.DiscountType {
	case models.DiscountFixed:
		discount = decimal.Min(coupon.DiscountValue, base)
	case models.DiscountPercentage:
		discount = base.Mul(coupon.DiscountValue).Div(hundred)
		if coupon.MaximumDiscount != nil {
			discount = decimal.Min(discount, *coupon.MaximumDiscount)
		}
		discount = decimal.Min(discount, base)
	default:
		return decimal.Zero
	}

	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}

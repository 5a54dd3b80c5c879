package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "PERCENTAGE"
	DiscountFixed      DiscountType = "FIXED"
)

// UsageLimit caps redemptions. A nil field means unlimited.
type UsageLimit struct {
	Total   *int `json:"total"`
	PerUser *int `json:"perUser"`
}

type Coupon struct {
	ID               string           `json:"id"`
	Code             string           `json:"code"`
	Description      string           `json:"description"`
	DiscountType     DiscountType     `json:"discountType"`
	DiscountValue    decimal.Decimal  `json:"discountValue"`
	MinimumAmount    decimal.Decimal  `json:"minimumAmount"`
	MaximumDiscount  *decimal.Decimal `json:"maximumDiscount,omitempty"`
	ValidFrom        time.Time        `json:"validFrom"`
	ValidUntil       time.Time        `json:"validUntil"`
	UsageLimit       UsageLimit       `json:"usageLimit"`
	UsageCount       int              `json:"usageCount"`
	ApplicableEvents []string         `json:"applicableEvents"`
	ApplicableUsers  []string         `json:"applicableUsers"`
	IsActive         bool             `json:"isActive"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// NormalizeCode is the canonical form codes are stored and looked up in.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// InWindow reports whether now falls inside [ValidFrom, ValidUntil].
func (c *Coupon) InWindow(now time.Time) bool {
	return !now.Before(c.ValidFrom) && !now.After(c.ValidUntil)
}

// Exhausted reports whether the global cap has been reached.
func (c *Coupon) Exhausted() bool {
	return c.UsageLimit.Total != nil && c.UsageCount >= *c.UsageLimit.Total
}

// AppliesToEvent treats an empty set as "all events".
func (c *Coupon) AppliesToEvent(eventID string) bool {
	return len(c.ApplicableEvents) == 0 || contains(c.ApplicableEvents, eventID)
}

// AppliesToUser treats an empty set as "all users".
func (c *Coupon) AppliesToUser(userID string) bool {
	return len(c.ApplicableUsers) == 0 || contains(c.ApplicableUsers, userID)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY FORMATTING:
  Currency amounts travel as decimal strings ("49.90"), never floats.
  Points are plain integers.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - loyalty/types.go: The domain types these project
*/
package api

import (
	"time"

	"github.com/cartwheel/loyalty-engine/loyalty"
)

// =============================================================================
// ACCOUNT TYPES
// =============================================================================

// AccountDTO represents a loyalty account in API responses.
type AccountDTO struct {
	CustomerID        string   `json:"customer_id"`
	CurrentPoints     int64    `json:"current_points"`
	TotalPointsEarned int64    `json:"total_points_earned"`
	TotalSpent        string   `json:"total_spent"`
	TotalOrders       int64    `json:"total_orders"`
	Tier              *TierDTO `json:"tier,omitempty"`
	TierAssignedAt    string   `json:"tier_assigned_at,omitempty"`
	CreatedAt         string   `json:"created_at"`
	UpdatedAt         string   `json:"updated_at"`
}

// TransactionDTO represents one ledger entry.
type TransactionDTO struct {
	ID                  string `json:"id"`
	Type                string `json:"type"`
	Points              int64  `json:"points"`
	Description         string `json:"description,omitempty"`
	OrderID             string `json:"order_id,omitempty"`
	RewardID            string `json:"reward_id,omitempty"`
	BalanceAfter        int64  `json:"balance_after"`
	ExpiresAt           string `json:"expires_at,omitempty"`
	RemainingUnconsumed int64  `json:"remaining_unconsumed"`
	CreatedAt           string `json:"created_at"`
}

// =============================================================================
// CATALOG TYPES
// =============================================================================

// TierDTO represents a loyalty tier.
type TierDTO struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	MinPointsLifetime int64  `json:"min_points_lifetime"`
	MinSpentLifetime  string `json:"min_spent_lifetime"`
	PointsMultiplier  string `json:"points_multiplier"`
	FreeShipping      bool   `json:"free_shipping"`
	PrioritySupport   bool   `json:"priority_support"`
	EarlyAccess       bool   `json:"early_access"`
	DiscountPercent   string `json:"discount_percent"`
	BirthdayBonus     int64  `json:"birthday_bonus"`
	SortOrder         int    `json:"sort_order"`
}

// RewardDTO represents a redeemable reward.
type RewardDTO struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	PointsCost         int64  `json:"points_cost"`
	Type               string `json:"type"`
	Value              string `json:"value"`
	MinPurchase        string `json:"min_purchase"`
	MaxDiscount        string `json:"max_discount"`
	ValidDaysForCoupon int    `json:"valid_days_for_coupon"`
	MaxRedemptions     *int64 `json:"max_redemptions,omitempty"`
	TimesRedeemed      int64  `json:"times_redeemed"`
	IsActive           bool   `json:"is_active"`
}

// SettingsDTO represents the program configuration.
type SettingsDTO struct {
	PointsPerCurrencyUnit string `json:"points_per_currency_unit"`
	MinPurchaseForPoints  string `json:"min_purchase_for_points"`
	PointsExpirationDays  int    `json:"points_expiration_days"`
	SignupBonus           int64  `json:"signup_bonus"`
	FirstPurchaseBonus    int64  `json:"first_purchase_bonus"`
	FlatShippingValue     string `json:"flat_shipping_value"`
	IsActive              bool   `json:"is_active"`
}

// =============================================================================
// REDEMPTION TYPES
// =============================================================================

// RedeemRequest is the request to redeem a reward.
type RedeemRequest struct {
	RewardID string `json:"reward_id"`
}

// CouponDTO is the minted discount code.
type CouponDTO struct {
	Code        string `json:"code"`
	Kind        string `json:"kind"`
	Value       string `json:"value"`
	MinPurchase string `json:"min_purchase,omitempty"`
	MaxDiscount string `json:"max_discount,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

// RedemptionDTO is one redemption audit record.
type RedemptionDTO struct {
	ID          string `json:"id"`
	CustomerID  string `json:"customer_id"`
	RewardID    string `json:"reward_id"`
	Points      int64  `json:"points"`
	CouponCode  string `json:"coupon_code,omitempty"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	FulfilledAt string `json:"fulfilled_at,omitempty"`
}

// RedeemResponse is returned after a successful redemption.
type RedeemResponse struct {
	Coupon     CouponDTO     `json:"coupon"`
	Redemption RedemptionDTO `json:"redemption"`
	Account    AccountDTO    `json:"account"`
}

// =============================================================================
// ORDER HOOK TYPES
// =============================================================================

// OrderPointsRequest is posted by the order pipeline after checkout.
type OrderPointsRequest struct {
	CustomerID      string `json:"customer_id"`
	OrderID         string `json:"order_id"`
	Total           string `json:"total"` // decimal string
	IsFirstPurchase bool   `json:"is_first_purchase"`
}

// OrderPointsResponse reports the best-effort award outcome. Awarded is
// false when the engine declined or failed; the order itself is unaffected.
type OrderPointsResponse struct {
	Awarded bool        `json:"awarded"`
	Error   string      `json:"error,omitempty"`
	Account *AccountDTO `json:"account,omitempty"`
}

// =============================================================================
// ADMIN TYPES
// =============================================================================

// AdjustmentRequest is a manual points credit or debit.
type AdjustmentRequest struct {
	CustomerID string `json:"customer_id"`
	Points     int64  `json:"points"` // signed delta, non-zero
	Reason     string `json:"reason"`
}

// SweepResponse reports what the expiration sweep did.
type SweepResponse struct {
	AccountsSwept int   `json:"accounts_swept"`
	PointsExpired int64 `json:"points_expired"`
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// =============================================================================
// DOMAIN -> DTO CONVERSIONS
// =============================================================================

func toAccountDTO(a loyalty.Account, tier *loyalty.Tier) AccountDTO {
	dto := AccountDTO{
		CustomerID:        string(a.CustomerID),
		CurrentPoints:     a.CurrentPoints,
		TotalPointsEarned: a.TotalPointsEarned,
		TotalSpent:        a.TotalSpent.String(),
		TotalOrders:       a.TotalOrders,
		CreatedAt:         a.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         a.UpdatedAt.Format(time.RFC3339),
	}
	if tier != nil {
		t := toTierDTO(*tier)
		dto.Tier = &t
	}
	if a.TierAssignedAt != nil {
		dto.TierAssignedAt = a.TierAssignedAt.Format(time.RFC3339)
	}
	return dto
}

func toTransactionDTO(tx loyalty.Transaction) TransactionDTO {
	dto := TransactionDTO{
		ID:                  string(tx.ID),
		Type:                string(tx.Type),
		Points:              tx.Points,
		Description:         tx.Description,
		OrderID:             tx.OrderID,
		RewardID:            string(tx.RewardID),
		BalanceAfter:        tx.BalanceAfter,
		RemainingUnconsumed: tx.RemainingUnconsumed,
		CreatedAt:           tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.ExpiresAt != nil {
		dto.ExpiresAt = tx.ExpiresAt.Format(time.RFC3339)
	}
	return dto
}

func toTierDTO(t loyalty.Tier) TierDTO {
	return TierDTO{
		ID:                string(t.ID),
		Name:              t.Name,
		MinPointsLifetime: t.MinPointsLifetime,
		MinSpentLifetime:  t.MinSpentLifetime.String(),
		PointsMultiplier:  t.PointsMultiplier.String(),
		FreeShipping:      t.FreeShipping,
		PrioritySupport:   t.PrioritySupport,
		EarlyAccess:       t.EarlyAccess,
		DiscountPercent:   t.DiscountPercent.String(),
		BirthdayBonus:     t.BirthdayBonus,
		SortOrder:         t.SortOrder,
	}
}

func toRewardDTO(r loyalty.Reward) RewardDTO {
	return RewardDTO{
		ID:                 string(r.ID),
		Name:               r.Name,
		Description:        r.Description,
		PointsCost:         r.PointsCost,
		Type:               string(r.Type),
		Value:              r.Value.String(),
		MinPurchase:        r.MinPurchase.String(),
		MaxDiscount:        r.MaxDiscount.String(),
		ValidDaysForCoupon: r.ValidDaysForCoupon,
		MaxRedemptions:     r.MaxRedemptions,
		TimesRedeemed:      r.TimesRedeemed,
		IsActive:           r.IsActive,
	}
}

func toSettingsDTO(s loyalty.Settings) SettingsDTO {
	return SettingsDTO{
		PointsPerCurrencyUnit: s.PointsPerCurrencyUnit.String(),
		MinPurchaseForPoints:  s.MinPurchaseForPoints.String(),
		PointsExpirationDays:  s.PointsExpirationDays,
		SignupBonus:           s.SignupBonus,
		FirstPurchaseBonus:    s.FirstPurchaseBonus,
		FlatShippingValue:     s.FlatShippingValue.String(),
		IsActive:              s.IsActive,
	}
}

func toCouponDTO(c loyalty.Coupon) CouponDTO {
	dto := CouponDTO{
		Code:      c.Code,
		Kind:      string(c.Kind),
		Value:     c.Value.String(),
		ExpiresAt: c.ExpiresAt.Format(time.RFC3339),
	}
	if !c.MinPurchase.IsZero() {
		dto.MinPurchase = c.MinPurchase.String()
	}
	if !c.MaxDiscount.IsZero() {
		dto.MaxDiscount = c.MaxDiscount.String()
	}
	return dto
}

func toRedemptionDTO(r loyalty.Redemption) RedemptionDTO {
	dto := RedemptionDTO{
		ID:         string(r.ID),
		CustomerID: string(r.AccountID),
		RewardID:   string(r.RewardID),
		Points:     r.Points,
		CouponCode: r.CouponCode,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
	}
	if r.FulfilledAt != nil {
		dto.FulfilledAt = r.FulfilledAt.Format(time.RFC3339)
	}
	return dto
}

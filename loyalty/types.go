/*
Package loyalty implements the points ledger and tier-progression engine.

PURPOSE:
  Tracks a monetary-like points balance per customer. The balance is backed
  by an append-only transaction log and must reconcile exactly against it:
  at every prefix of the log, summing the signed point deltas equals the
  live balance, and the balance never goes negative.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: Per-customer balance plus lifetime aggregates
  - Transaction: An immutable ledger entry recording one balance change
  - Tier: A qualification level granting a multiplier and perks
  - Reward: A redeemable catalog entry, optionally capped
  - Settings: The single active program configuration row

DESIGN PRINCIPLES:
  1. Append-only: transactions are never edited; corrections are new entries
  2. Derived state: Account.CurrentPoints is maintained alongside the log and
     must always equal the sum of deltas (audited via BalanceAfter)
  3. Precision: currency amounts use decimal.Decimal; points are int64
  4. FIFO consumption: debits consume the oldest unexpired credits first,
     tracked per credit entry via RemainingUnconsumed

SEE ALSO:
  - ledger.go: Award, adjust, and history operations
  - redeem.go: Capped, race-safe reward redemption
  - sweep.go:  Expiration of unspent time-limited credits
  - tier.go:   Pure tier qualification rule
*/
package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID string
type TierID string
type RewardID string
type TransactionID string
type RedemptionID string

// =============================================================================
// ACCOUNT - One per customer, created lazily on first touch
// =============================================================================

// Account is the live loyalty state for one customer.
//
// INVARIANTS:
//   - CurrentPoints >= 0 at all times
//   - TotalPointsEarned and TotalSpent are monotonically non-decreasing
//   - Mutated only through Ledger operations, never directly
type Account struct {
	CustomerID        CustomerID
	CurrentPoints     int64
	TotalPointsEarned int64
	TotalSpent        decimal.Decimal
	TotalOrders       int64
	TierID            *TierID
	TierAssignedAt    *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// =============================================================================
// TRANSACTION - Atomic change to the account balance (append-only)
// =============================================================================

type TransactionType string

const (
	TxEarned   TransactionType = "earned"   // Points from a qualifying purchase
	TxBonus    TransactionType = "bonus"    // Signup or promotional grant
	TxRedeemed TransactionType = "redeemed" // Spent on a reward (negative)
	TxExpired  TransactionType = "expired"  // Aged out by the sweep (negative)
	TxAdjusted TransactionType = "adjusted" // Manual admin correction (either sign)
)

// Transaction is one immutable ledger entry. Points is the signed delta:
// negative for TxRedeemed/TxExpired, positive for credits.
//
// RemainingUnconsumed is the single piece of mutable bookkeeping on a credit
// entry: it starts equal to Points and is decremented as later debits consume
// the credit oldest-first. It never goes negative and never exceeds Points.
type Transaction struct {
	ID          TransactionID
	AccountID   CustomerID
	Type        TransactionType
	Points      int64
	Description string
	OrderID     string   // Correlation for TxEarned
	RewardID    RewardID // Correlation for TxRedeemed

	// BalanceAfter is the account balance immediately after this entry,
	// recorded for auditability.
	BalanceAfter int64

	// Credit-entry fields. ExpiresAt is nil for debits and for credits that
	// never expire (manual adjustments).
	ExpiresAt           *time.Time
	RemainingUnconsumed int64

	CreatedAt time.Time
}

// IsCredit reports whether this entry added points to the balance.
func (t Transaction) IsCredit() bool { return t.Points > 0 }

// =============================================================================
// TIER - Qualification level over lifetime aggregates
// =============================================================================

// Tier grants an earn multiplier and perks once an account's lifetime
// aggregates reach its thresholds. Assignment is monotonic: accounts are
// never downgraded (aggregates only grow, so this is consistent by
// construction).
type Tier struct {
	ID                TierID
	Name              string
	MinPointsLifetime int64
	MinSpentLifetime  decimal.Decimal
	PointsMultiplier  decimal.Decimal
	FreeShipping      bool
	PrioritySupport   bool
	EarlyAccess       bool
	DiscountPercent   decimal.Decimal
	BirthdayBonus     int64
	SortOrder         int
	IsActive          bool
}

// Qualifies reports whether the account's lifetime aggregates meet this
// tier's thresholds.
func (t Tier) Qualifies(a *Account) bool {
	return a.TotalPointsEarned >= t.MinPointsLifetime &&
		a.TotalSpent.GreaterThanOrEqual(t.MinSpentLifetime)
}

// =============================================================================
// REWARD - Redeemable catalog entry
// =============================================================================

type RewardType string

const (
	RewardProduct         RewardType = "product"
	RewardDiscountPercent RewardType = "discount_percent"
	RewardDiscountFixed   RewardType = "discount_fixed"
	RewardFreeShipping    RewardType = "free_shipping"
)

// Reward is a catalog entry redeemable for points.
//
// INVARIANT: TimesRedeemed <= *MaxRedemptions whenever the cap is set. The
// increment of TimesRedeemed and the debit of the redeeming account happen
// in one atomic operation (see redeem.go).
type Reward struct {
	ID                 RewardID
	Name               string
	Description        string
	PointsCost         int64
	Type               RewardType
	Value              decimal.Decimal
	MinPurchase        decimal.Decimal
	MaxDiscount        decimal.Decimal
	ValidDaysForCoupon int
	MaxRedemptions     *int64 // nil = unlimited
	TimesRedeemed      int64
	IsActive           bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// CapReached reports whether the redemption cap is set and exhausted.
func (r Reward) CapReached() bool {
	return r.MaxRedemptions != nil && r.TimesRedeemed >= *r.MaxRedemptions
}

// =============================================================================
// SETTINGS - Single active configuration row, read per operation
// =============================================================================

// Settings holds the program configuration. There is exactly one row; it is
// lazily created with defaults on first access and re-read on every
// operation so admin changes take effect immediately.
type Settings struct {
	PointsPerCurrencyUnit decimal.Decimal
	MinPurchaseForPoints  decimal.Decimal
	PointsExpirationDays  int // 0 = points never expire
	SignupBonus           int64
	FirstPurchaseBonus    int64

	// FlatShippingValue approximates shipping cost for free-shipping
	// rewards, which are issued as fixed-amount coupons.
	FlatShippingValue decimal.Decimal

	IsActive  bool
	UpdatedAt time.Time
}

// DefaultSettings returns the configuration used to auto-heal a missing
// settings row.
func DefaultSettings() Settings {
	return Settings{
		PointsPerCurrencyUnit: decimal.NewFromInt(1),
		MinPurchaseForPoints:  decimal.Zero,
		PointsExpirationDays:  365,
		SignupBonus:           0,
		FirstPurchaseBonus:    0,
		FlatShippingValue:     decimal.NewFromInt(10),
		IsActive:              true,
	}
}

// =============================================================================
// COUPON - Discount artifact minted on redemption
// =============================================================================

type CouponKind string

const (
	CouponPercent CouponKind = "percent"
	CouponFixed   CouponKind = "fixed"
)

// Coupon is the discount artifact returned by the Coupon Issuer. Usable
// once, optionally constrained by MinPurchase/MaxDiscount.
type Coupon struct {
	Code        string
	Kind        CouponKind
	Value       decimal.Decimal
	MinPurchase decimal.Decimal
	MaxDiscount decimal.Decimal
	ExpiresAt   time.Time
}

// =============================================================================
// REDEMPTION - Audit record of a committed debit
// =============================================================================

type RedemptionStatus string

const (
	// RedemptionFulfilled means the coupon was issued.
	RedemptionFulfilled RedemptionStatus = "fulfilled"

	// RedemptionUnfulfilled means the debit committed but coupon issuance
	// failed; the record is exposed for reissuance rather than silently
	// rolling back spent points.
	RedemptionUnfulfilled RedemptionStatus = "unfulfilled"
)

// Redemption records one committed reward redemption.
type Redemption struct {
	ID          RedemptionID
	AccountID   CustomerID
	RewardID    RewardID
	Points      int64
	CouponCode  string
	Status      RedemptionStatus
	CreatedAt   time.Time
	FulfilledAt *time.Time
}

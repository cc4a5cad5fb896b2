/*
errors.go - Centralized error types for the loyalty engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is; structured variants carry context and
  Unwrap to the sentinels.

ERROR CATEGORIES:
  1. Validation errors - rejected input (negative amounts)
  2. Business rule violations - insufficient points, cap reached
  3. Coordination errors - lock timeouts (retryable)
  4. Post-commit inconsistencies - coupon issuance after a committed debit

SEE ALSO:
  - ledger.go, redeem.go: producers of these errors
  - api/handlers.go: maps them to HTTP statuses
*/
package loyalty

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for negative purchase amounts or
	// zero-delta adjustments.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInsufficientBalance is returned when an adjustment would drive the
	// balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientPoints is returned when an account cannot cover a
	// reward's cost.
	ErrInsufficientPoints = errors.New("insufficient points")

	// ErrRewardNotFound is returned when a reward is missing or inactive.
	ErrRewardNotFound = errors.New("reward not found")

	// ErrRedemptionCapReached is returned when a capped reward is sold out.
	ErrRedemptionCapReached = errors.New("redemption cap reached")

	// ErrRedemptionNotFound is returned when reissuing an unknown redemption.
	ErrRedemptionNotFound = errors.New("redemption not found")

	// ErrLockTimeout is returned when an account or reward lock cannot be
	// acquired within the bounded wait. Retryable by the caller.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrCouponIssuance is returned when the external coupon issuer fails
	// AFTER the point debit has committed. The redemption is recorded as
	// unfulfilled and must be reissued, not rolled back.
	ErrCouponIssuance = errors.New("coupon issuance failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientPointsError reports a redemption shortfall.
type InsufficientPointsError struct {
	AccountID CustomerID
	Available int64
	Required  int64
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: have %d, need %d (short %d)",
		e.Available, e.Required, e.Required-e.Available)
}

func (e *InsufficientPointsError) Unwrap() error { return ErrInsufficientPoints }

// InsufficientBalanceError reports an adjustment that would go negative.
type InsufficientBalanceError struct {
	AccountID CustomerID
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %d, requested debit %d",
		e.Available, -e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// RedemptionCapError reports a sold-out capped reward.
type RedemptionCapError struct {
	RewardID RewardID
	Cap      int64
}

func (e *RedemptionCapError) Error() string {
	return fmt.Sprintf("reward %s redemption cap of %d reached", e.RewardID, e.Cap)
}

func (e *RedemptionCapError) Unwrap() error { return ErrRedemptionCapReached }

// CouponIssuanceError reports a failed coupon mint after a committed debit.
// RedemptionID identifies the unfulfilled record awaiting reissuance.
type CouponIssuanceError struct {
	RedemptionID RedemptionID
	Cause        error
}

func (e *CouponIssuanceError) Error() string {
	return fmt.Sprintf("coupon issuance failed for redemption %s (points already debited): %v",
		e.RedemptionID, e.Cause)
}

func (e *CouponIssuanceError) Unwrap() error { return ErrCouponIssuance }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsClientError returns true if the error is due to invalid client input or
// a business rule the caller should surface, never retry.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientPoints) ||
		errors.Is(err, ErrRedemptionCapReached)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRewardNotFound) ||
		errors.Is(err, ErrRedemptionNotFound)
}

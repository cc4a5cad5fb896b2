/*
redeem.go - Capped, race-safe reward redemption

PURPOSE:
  Orchestrates the one operation where two rows compete: the redeeming
  account's balance and the reward's redemption counter. Both are locked
  (account first, then reward) and mutated in a single store transaction,
  so two concurrent redemptions of a capped reward serialize and exactly
  one wins the last slot.

TWO-PHASE COUPON ISSUANCE:
  The point debit commits first; the external coupon mint happens after.
  If the mint fails, the redemption is recorded as unfulfilled and surfaced
  via CouponIssuanceError for reissuance - committed debits are never
  silently rolled back.

COUPON SHAPES:
  discount_percent          -> percentage coupon of Value
  discount_fixed / product  -> fixed-amount coupon of Value
  free_shipping             -> fixed-amount coupon of the configured flat
                               shipping value (a known approximation; a
                               checkout-time waiver would be more faithful)

SEE ALSO:
  - ledger.go: consumeCredits (FIFO), lock acquisition
  - errors.go: RedemptionCapError, InsufficientPointsError, CouponIssuanceError
*/
package loyalty

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// COUPON ISSUER - External collaborator boundary
// =============================================================================

// CouponRequest describes the discount artifact to mint.
type CouponRequest struct {
	Kind        CouponKind
	Value       Coupon // value fields only; Code/ExpiresAt are issuer-owned
	ValidDays   int
	Reference   string // redemption ID, for issuer-side correlation
	Description string
}

// CouponIssuer mints a unique, human-readable discount code for a given
// shape. Implementations wrap the external coupon service.
type CouponIssuer interface {
	Issue(ctx context.Context, req CouponRequest) (*Coupon, error)
}

// CodeIssuer is the built-in issuer: it mints codes locally rather than
// calling out. Useful for development and as the default wiring.
type CodeIssuer struct {
	Prefix string
	now    func() time.Time
}

// NewCodeIssuer creates the built-in issuer with the default prefix.
func NewCodeIssuer() *CodeIssuer {
	return &CodeIssuer{Prefix: "LOYAL", now: time.Now}
}

// Issue generates a code like LOYAL-7F3A29C4 with the requested shape.
func (c *CodeIssuer) Issue(_ context.Context, req CouponRequest) (*Coupon, error) {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:8]
	coupon := req.Value
	coupon.Kind = req.Kind
	coupon.Code = fmt.Sprintf("%s-%s", c.Prefix, suffix)
	coupon.ExpiresAt = c.now().AddDate(0, 0, req.ValidDays)
	return &coupon, nil
}

// =============================================================================
// REDEMPTION WORKFLOW
// =============================================================================

// RedeemResult is returned on a successful redemption.
type RedeemResult struct {
	Coupon     *Coupon
	Reward     Reward
	Redemption Redemption
	Account    Account
}

// Redeem spends pointsCost from the account on the reward and mints a
// discount coupon. Steps 1-5 (validate, debit, FIFO-consume credits,
// increment the reward counter, record the redemption) commit atomically;
// coupon issuance follows and its failure is reported as a
// CouponIssuanceError carrying the unfulfilled redemption's ID.
func (l *Ledger) Redeem(ctx context.Context, id CustomerID, rewardID RewardID) (*RedeemResult, error) {
	releaseAccount, err := l.locks.Acquire(ctx, accountKey(id))
	if err != nil {
		return nil, err
	}
	defer releaseAccount()

	// Account before reward, always: a fixed order keeps concurrent
	// redemptions deadlock-free.
	releaseReward, err := l.locks.Acquire(ctx, rewardKey(rewardID))
	if err != nil {
		return nil, err
	}
	defer releaseReward()

	var (
		result   RedeemResult
		settings Settings
	)
	err = l.store.WithTx(ctx, func(s Store) error {
		reward, err := s.GetReward(ctx, rewardID)
		if err != nil {
			return err
		}
		if reward == nil || !reward.IsActive {
			return fmt.Errorf("reward %s: %w", rewardID, ErrRewardNotFound)
		}
		if reward.CapReached() {
			return &RedemptionCapError{RewardID: rewardID, Cap: *reward.MaxRedemptions}
		}

		a, err := l.ensureAccount(ctx, s, id)
		if err != nil {
			return err
		}
		if a.CurrentPoints < reward.PointsCost {
			return &InsufficientPointsError{
				AccountID: id,
				Available: a.CurrentPoints,
				Required:  reward.PointsCost,
			}
		}

		settings, err = l.settings(ctx, s)
		if err != nil {
			return err
		}

		now := l.now()
		a.CurrentPoints -= reward.PointsCost
		a.UpdatedAt = now

		tx := Transaction{
			ID:           newTransactionID(),
			AccountID:    id,
			Type:         TxRedeemed,
			Points:       -reward.PointsCost,
			Description:  fmt.Sprintf("Redeemed reward: %s", reward.Name),
			RewardID:     rewardID,
			BalanceAfter: a.CurrentPoints,
			CreatedAt:    now,
		}
		if err := s.AppendTransaction(ctx, tx); err != nil {
			return err
		}
		if err := l.consumeCredits(ctx, s, id, reward.PointsCost, now); err != nil {
			return err
		}

		reward.TimesRedeemed++
		reward.UpdatedAt = now
		if err := s.SaveReward(ctx, *reward); err != nil {
			return err
		}

		redemption := Redemption{
			ID:        RedemptionID("rdm-" + uuid.NewString()),
			AccountID: id,
			RewardID:  rewardID,
			Points:    reward.PointsCost,
			Status:    RedemptionUnfulfilled,
			CreatedAt: now,
		}
		if err := s.SaveRedemption(ctx, redemption); err != nil {
			return err
		}
		if err := s.SaveAccount(ctx, *a); err != nil {
			return err
		}

		result = RedeemResult{Reward: *reward, Redemption: redemption, Account: *a}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Phase two: the debit is committed; mint the coupon.
	coupon, err := l.issueCoupon(ctx, result.Reward, settings, result.Redemption.ID)
	if err != nil {
		return nil, &CouponIssuanceError{RedemptionID: result.Redemption.ID, Cause: err}
	}

	if err := l.markFulfilled(ctx, &result.Redemption, coupon.Code); err != nil {
		return nil, &CouponIssuanceError{RedemptionID: result.Redemption.ID, Cause: err}
	}
	result.Coupon = coupon
	return &result, nil
}

// ReissueCoupon mints a coupon for a previously unfulfilled redemption.
// Safe to call on fulfilled redemptions too (support reissues for lost
// codes); the new code replaces the old one.
func (l *Ledger) ReissueCoupon(ctx context.Context, id RedemptionID) (*Coupon, error) {
	redemption, err := l.store.GetRedemption(ctx, id)
	if err != nil {
		return nil, err
	}
	if redemption == nil {
		return nil, fmt.Errorf("redemption %s: %w", id, ErrRedemptionNotFound)
	}

	reward, err := l.store.GetReward(ctx, redemption.RewardID)
	if err != nil {
		return nil, err
	}
	if reward == nil {
		return nil, fmt.Errorf("reward %s: %w", redemption.RewardID, ErrRewardNotFound)
	}

	var settings Settings
	if err := l.store.WithTx(ctx, func(s Store) error {
		var err error
		settings, err = l.settings(ctx, s)
		return err
	}); err != nil {
		return nil, err
	}

	coupon, err := l.issueCoupon(ctx, *reward, settings, id)
	if err != nil {
		return nil, &CouponIssuanceError{RedemptionID: id, Cause: err}
	}
	if err := l.markFulfilled(ctx, redemption, coupon.Code); err != nil {
		return nil, &CouponIssuanceError{RedemptionID: id, Cause: err}
	}
	return coupon, nil
}

// issueCoupon maps the reward type to a coupon shape and calls the issuer.
func (l *Ledger) issueCoupon(ctx context.Context, reward Reward, settings Settings, ref RedemptionID) (*Coupon, error) {
	req := CouponRequest{
		ValidDays:   reward.ValidDaysForCoupon,
		Reference:   string(ref),
		Description: reward.Name,
		Value: Coupon{
			Value:       reward.Value,
			MinPurchase: reward.MinPurchase,
			MaxDiscount: reward.MaxDiscount,
		},
	}

	switch reward.Type {
	case RewardDiscountPercent:
		req.Kind = CouponPercent
	case RewardFreeShipping:
		// Flat stand-in for shipping cost; see package notes.
		req.Kind = CouponFixed
		req.Value.Value = settings.FlatShippingValue
		req.Description = reward.Name + " (shipping approximated as fixed discount)"
	default: // RewardDiscountFixed, RewardProduct
		req.Kind = CouponFixed
	}

	return l.issuer.Issue(ctx, req)
}

func (l *Ledger) markFulfilled(ctx context.Context, r *Redemption, code string) error {
	now := l.now()
	r.CouponCode = code
	r.Status = RedemptionFulfilled
	r.FulfilledAt = &now
	return l.store.SaveRedemption(ctx, *r)
}

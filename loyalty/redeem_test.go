package loyalty_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartwheel/loyalty-engine/loyalty"
	"github.com/cartwheel/loyalty-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func seedReward(t *testing.T, store *sqlite.Store, id loyalty.RewardID, cost int64, cap *int64) loyalty.Reward {
	now := time.Now()
	r := loyalty.Reward{
		ID:                 id,
		Name:               "Test reward " + string(id),
		PointsCost:         cost,
		Type:               loyalty.RewardDiscountFixed,
		Value:              money("10"),
		ValidDaysForCoupon: 30,
		MaxRedemptions:     cap,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, store.SaveReward(context.Background(), r))
	return r
}

// failingIssuer simulates an unreachable coupon service.
type failingIssuer struct{}

func (failingIssuer) Issue(context.Context, loyalty.CouponRequest) (*loyalty.Coupon, error) {
	return nil, errors.New("coupon service unreachable")
}

// =============================================================================
// REDEMPTION TESTS
// =============================================================================

func TestRedeem_ExactBalance(t *testing.T) {
	// GIVEN: An account with exactly 100 points and a 100-point reward
	// WHEN: The reward is redeemed
	// THEN: The balance lands on zero and a coupon is minted

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)
	seedReward(t, store, "rw-1", 100, nil)

	_, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("100"), false)
	require.NoError(t, err)

	result, err := ledger.Redeem(ctx, "cust-1", "rw-1")
	require.NoError(t, err)

	assert.Equal(t, int64(0), result.Account.CurrentPoints)
	require.NotNil(t, result.Coupon)
	assert.Contains(t, result.Coupon.Code, "LOYAL-")
	assert.Equal(t, loyalty.CouponFixed, result.Coupon.Kind)
	assert.Equal(t, loyalty.RedemptionFulfilled, result.Redemption.Status)

	reward, err := store.GetReward(ctx, "rw-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reward.TimesRedeemed)

	// A second attempt at zero balance must fail
	_, err = ledger.Redeem(ctx, "cust-1", "rw-1")
	assert.ErrorIs(t, err, loyalty.ErrInsufficientPoints)
}

func TestRedeem_InsufficientPoints(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)
	seedReward(t, store, "rw-1", 500, nil)

	_, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("100"), false)
	require.NoError(t, err)

	_, err = ledger.Redeem(ctx, "cust-1", "rw-1")
	var ptsErr *loyalty.InsufficientPointsError
	require.ErrorAs(t, err, &ptsErr)
	assert.Equal(t, int64(100), ptsErr.Available)
	assert.Equal(t, int64(500), ptsErr.Required)

	// The failed attempt must leave no trace in the log
	txs, err := store.Transactions(ctx, "cust-1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, loyalty.TxEarned, txs[0].Type)
}

func TestRedeem_UnknownOrInactiveReward(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)

	_, err := ledger.Redeem(ctx, "cust-1", "missing")
	assert.ErrorIs(t, err, loyalty.ErrRewardNotFound)

	r := seedReward(t, store, "rw-off", 10, nil)
	r.IsActive = false
	require.NoError(t, store.SaveReward(ctx, r))

	_, err = ledger.Redeem(ctx, "cust-1", "rw-off")
	assert.ErrorIs(t, err, loyalty.ErrRewardNotFound)
}

func TestRedeem_CapRace_ExactlyOneWins(t *testing.T) {
	// GIVEN: A reward with one redemption left and two funded accounts
	// WHEN: Both redeem concurrently
	// THEN: Exactly one succeeds; the other gets ErrRedemptionCapReached
	//       and the counter never exceeds the cap

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)

	cap := int64(1)
	seedReward(t, store, "rw-last", 50, &cap)

	for _, cust := range []loyalty.CustomerID{"cust-a", "cust-b"} {
		_, err := ledger.AwardEarnedPoints(ctx, cust, "order-"+string(cust), money("100"), false)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, cust := range []loyalty.CustomerID{"cust-a", "cust-b"} {
		wg.Add(1)
		go func(i int, cust loyalty.CustomerID) {
			defer wg.Done()
			_, err := ledger.Redeem(ctx, cust, "rw-last")
			results[i] = err
		}(i, cust)
	}
	wg.Wait()

	var wins, capHits int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, loyalty.ErrRedemptionCapReached):
			capHits++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins, "exactly one redemption must win the last slot")
	assert.Equal(t, 1, capHits)

	reward, err := store.GetReward(ctx, "rw-last")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reward.TimesRedeemed, "counter must never exceed the cap")
}

func TestRedeem_ConsumesCreditsOldestFirst(t *testing.T) {
	// GIVEN: Two credits of 60 and 40 points, earned in that order
	// WHEN: A 50-point reward is redeemed
	// THEN: The older credit is drawn down to 10; the newer is untouched

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)
	seedReward(t, store, "rw-1", 50, nil)

	_, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("60"), false)
	require.NoError(t, err)
	_, err = ledger.AwardEarnedPoints(ctx, "cust-1", "order-2", money("40"), false)
	require.NoError(t, err)

	_, err = ledger.Redeem(ctx, "cust-1", "rw-1")
	require.NoError(t, err)

	credits, err := store.ConsumableCredits(ctx, "cust-1", time.Now())
	require.NoError(t, err)
	require.Len(t, credits, 2)
	assert.Equal(t, "order-1", credits[0].OrderID)
	assert.Equal(t, int64(10), credits[0].RemainingUnconsumed)
	assert.Equal(t, "order-2", credits[1].OrderID)
	assert.Equal(t, int64(40), credits[1].RemainingUnconsumed)
}

func TestRedeem_FreeShippingIssuesFlatFixedCoupon(t *testing.T) {
	// GIVEN: A free-shipping reward and a configured flat shipping value
	// WHEN: It is redeemed
	// THEN: The coupon is a fixed discount of the flat shipping value

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, func(s *loyalty.Settings) {
		s.FlatShippingValue = money("7.50")
	})

	r := seedReward(t, store, "rw-ship", 30, nil)
	r.Type = loyalty.RewardFreeShipping
	require.NoError(t, store.SaveReward(ctx, r))

	_, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("50"), false)
	require.NoError(t, err)

	result, err := ledger.Redeem(ctx, "cust-1", "rw-ship")
	require.NoError(t, err)
	assert.Equal(t, loyalty.CouponFixed, result.Coupon.Kind)
	assert.True(t, result.Coupon.Value.Equal(money("7.50")))
}

func TestRedeem_PercentReward(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)

	r := seedReward(t, store, "rw-pct", 30, nil)
	r.Type = loyalty.RewardDiscountPercent
	r.Value = money("15")
	require.NoError(t, store.SaveReward(ctx, r))

	_, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("50"), false)
	require.NoError(t, err)

	result, err := ledger.Redeem(ctx, "cust-1", "rw-pct")
	require.NoError(t, err)
	assert.Equal(t, loyalty.CouponPercent, result.Coupon.Kind)
	assert.True(t, result.Coupon.Value.Equal(money("15")))
}

// =============================================================================
// COUPON ISSUANCE FAILURE TESTS
// =============================================================================

func TestRedeem_IssuerFailure_DebitStandsUnfulfilled(t *testing.T) {
	// GIVEN: A coupon issuer that always fails
	// WHEN: A redemption is attempted
	// THEN: The debit stands, the redemption is recorded unfulfilled, and
	//       the error carries the redemption ID for reissuance

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ledger := loyalty.NewLedger(store, failingIssuer{})
	ctx := context.Background()
	seedSettings(t, store, nil)
	seedReward(t, store, "rw-1", 40, nil)

	_, err = ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("100"), false)
	require.NoError(t, err)

	_, err = ledger.Redeem(ctx, "cust-1", "rw-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, loyalty.ErrCouponIssuance)

	var issueErr *loyalty.CouponIssuanceError
	require.ErrorAs(t, err, &issueErr)
	require.NotEmpty(t, issueErr.RedemptionID)

	// The debit committed
	a, err := store.GetAccount(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), a.CurrentPoints)

	// The redemption is queryable as unfulfilled
	pending, err := store.ListRedemptions(ctx, loyalty.RedemptionUnfulfilled)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, issueErr.RedemptionID, pending[0].ID)
	assert.Empty(t, pending[0].CouponCode)

	// Reissue through a working issuer completes the workflow
	working := loyalty.NewLedger(store, nil)
	coupon, err := working.ReissueCoupon(ctx, issueErr.RedemptionID)
	require.NoError(t, err)
	assert.Contains(t, coupon.Code, "LOYAL-")

	fulfilled, err := store.GetRedemption(ctx, issueErr.RedemptionID)
	require.NoError(t, err)
	assert.Equal(t, loyalty.RedemptionFulfilled, fulfilled.Status)
	assert.Equal(t, coupon.Code, fulfilled.CouponCode)
}

func TestReissueCoupon_UnknownRedemption(t *testing.T) {
	ledger, store := newTestLedger(t)
	seedSettings(t, store, nil)

	_, err := ledger.ReissueCoupon(context.Background(), "rdm-missing")
	assert.ErrorIs(t, err, loyalty.ErrRedemptionNotFound)
}

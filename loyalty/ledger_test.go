package loyalty_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartwheel/loyalty-engine/loyalty"
	"github.com/cartwheel/loyalty-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*loyalty.Ledger, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ledger := loyalty.NewLedger(store, nil)
	return ledger, store
}

func seedSettings(t *testing.T, store *sqlite.Store, mutate func(*loyalty.Settings)) loyalty.Settings {
	s := loyalty.DefaultSettings()
	s.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(&s)
	}
	require.NoError(t, store.SaveSettings(context.Background(), s))
	return s
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// AWARD TESTS
// =============================================================================

func TestAward_BasicAccrual(t *testing.T) {
	// GIVEN: Default settings (1 point per currency unit)
	// WHEN: A $500 order is awarded
	// THEN: The account gains exactly 500 points, earned and balance alike

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)

	a, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("500"), false)
	require.NoError(t, err)

	assert.Equal(t, int64(500), a.CurrentPoints)
	assert.Equal(t, int64(500), a.TotalPointsEarned)
	assert.Equal(t, int64(1), a.TotalOrders)
	assert.True(t, a.TotalSpent.Equal(money("500")))
}

func TestAward_FractionalAmountFloors(t *testing.T) {
	// GIVEN: Rate of 1 point per currency unit
	// WHEN: A $49.90 order is awarded
	// THEN: Points are floored to 49, never rounded up

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)

	a, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("49.90"), false)
	require.NoError(t, err)
	assert.Equal(t, int64(49), a.CurrentPoints)
}

func TestAward_BelowMinimumPurchase_NoOp(t *testing.T) {
	// GIVEN: Minimum purchase of $20 for points
	// WHEN: A $15 order is awarded
	// THEN: Nothing changes - no points, no transaction, no order count

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, func(s *loyalty.Settings) {
		s.MinPurchaseForPoints = money("20")
	})

	a, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("15"), false)
	require.NoError(t, err)

	assert.Equal(t, int64(0), a.CurrentPoints)
	assert.Equal(t, int64(0), a.TotalOrders)

	txs, err := store.Transactions(ctx, "cust-1", 0)
	require.NoError(t, err)
	assert.Empty(t, txs)
}

func TestAward_InactiveProgram_NoOp(t *testing.T) {
	// GIVEN: The program is switched off
	// WHEN: An order is awarded
	// THEN: The account exists but gains nothing

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, func(s *loyalty.Settings) {
		s.IsActive = false
	})

	a, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("100"), false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.CurrentPoints)
}

func TestAward_NegativeAmount_Rejected(t *testing.T) {
	// GIVEN: Any settings
	// WHEN: A negative purchase amount is awarded
	// THEN: The call fails with ErrInvalidAmount before touching the account

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)

	_, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("-5"), false)
	assert.ErrorIs(t, err, loyalty.ErrInvalidAmount)

	a, err := store.GetAccount(ctx, "cust-1")
	require.NoError(t, err)
	assert.Nil(t, a, "account should not have been created")
}

func TestAward_FirstPurchaseBonus(t *testing.T) {
	// GIVEN: A 50 point first-purchase bonus
	// WHEN: The first order is awarded, then a second
	// THEN: Only the first carries the bonus

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, func(s *loyalty.Settings) {
		s.FirstPurchaseBonus = 50
	})

	a, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("100"), true)
	require.NoError(t, err)
	assert.Equal(t, int64(150), a.CurrentPoints)

	a, err = ledger.AwardEarnedPoints(ctx, "cust-1", "order-2", money("100"), false)
	require.NoError(t, err)
	assert.Equal(t, int64(250), a.CurrentPoints)
}

func TestAward_SignupBonusOnFirstTouch(t *testing.T) {
	// GIVEN: A 100 point signup bonus
	// WHEN: An account is touched for the first time
	// THEN: A bonus transaction is appended; a second touch grants nothing

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, func(s *loyalty.Settings) {
		s.SignupBonus = 100
	})

	a, err := ledger.GetOrCreateAccount(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), a.CurrentPoints)

	a, err = ledger.GetOrCreateAccount(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), a.CurrentPoints, "second touch must not re-grant")

	txs, err := store.Transactions(ctx, "cust-1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, loyalty.TxBonus, txs[0].Type)
	assert.Equal(t, int64(100), txs[0].Points)
}

// =============================================================================
// ADJUSTMENT TESTS
// =============================================================================

func TestAdjustment_CreditAndDebit(t *testing.T) {
	// GIVEN: An account with 100 points from an adjustment
	// WHEN: 40 points are debited
	// THEN: Balance is 60 and both entries are in the log

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)

	a, err := ledger.AppendAdjustment(ctx, "cust-1", 100, "goodwill credit")
	require.NoError(t, err)
	assert.Equal(t, int64(100), a.CurrentPoints)
	assert.Equal(t, int64(100), a.TotalPointsEarned)

	a, err = ledger.AppendAdjustment(ctx, "cust-1", -40, "fraud reversal")
	require.NoError(t, err)
	assert.Equal(t, int64(60), a.CurrentPoints)
	assert.Equal(t, int64(100), a.TotalPointsEarned, "debits never reduce lifetime earnings")

	txs, err := store.Transactions(ctx, "cust-1", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

func TestAdjustment_Overdraw_Rejected(t *testing.T) {
	// GIVEN: An account with 30 points
	// WHEN: A 50 point debit is attempted
	// THEN: It fails with InsufficientBalanceError and the balance is untouched

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)

	_, err := ledger.AppendAdjustment(ctx, "cust-1", 30, "starter")
	require.NoError(t, err)

	_, err = ledger.AppendAdjustment(ctx, "cust-1", -50, "too much")
	assert.ErrorIs(t, err, loyalty.ErrInsufficientBalance)

	var balErr *loyalty.InsufficientBalanceError
	require.ErrorAs(t, err, &balErr)
	assert.Equal(t, int64(30), balErr.Available)

	a, err := store.GetAccount(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), a.CurrentPoints)
}

func TestAdjustment_ZeroDelta_Rejected(t *testing.T) {
	ledger, store := newTestLedger(t)
	seedSettings(t, store, nil)

	_, err := ledger.AppendAdjustment(context.Background(), "cust-1", 0, "noop")
	assert.ErrorIs(t, err, loyalty.ErrInvalidAmount)
}

// =============================================================================
// LOG INVARIANT TESTS
// =============================================================================

func TestLedger_DeltasSumToBalance(t *testing.T) {
	// GIVEN: A mixed sequence of awards, adjustments, and a redemption
	// WHEN: The full log is read back
	// THEN: The signed deltas sum to the live balance, and every
	//       BalanceAfter is consistent with the running sum

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, func(s *loyalty.Settings) {
		s.SignupBonus = 25
	})
	seedReward(t, store, "rw-1", 80, nil)

	_, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("120"), false)
	require.NoError(t, err)
	_, err = ledger.AppendAdjustment(ctx, "cust-1", 15, "promo")
	require.NoError(t, err)
	_, err = ledger.Redeem(ctx, "cust-1", "rw-1")
	require.NoError(t, err)
	_, err = ledger.AppendAdjustment(ctx, "cust-1", -10, "correction")
	require.NoError(t, err)

	a, err := store.GetAccount(ctx, "cust-1")
	require.NoError(t, err)

	txs, err := store.Transactions(ctx, "cust-1", 100)
	require.NoError(t, err)
	require.Len(t, txs, 5)

	// Transactions come back most recent first; sum in reverse for the
	// running balance.
	var sum int64
	for i := len(txs) - 1; i >= 0; i-- {
		sum += txs[i].Points
		assert.Equal(t, sum, txs[i].BalanceAfter, "BalanceAfter must match running sum at %s", txs[i].ID)
		assert.GreaterOrEqual(t, sum, int64(0), "balance must never dip below zero")
	}
	assert.Equal(t, a.CurrentPoints, sum)
}

func TestHistory_MostRecentFirstWithLimit(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)

	for _, order := range []string{"order-1", "order-2", "order-3"} {
		_, err := ledger.AwardEarnedPoints(ctx, "cust-1", order, money("10"), false)
		require.NoError(t, err)
	}

	txs, err := ledger.History(ctx, "cust-1", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, "order-3", txs[0].OrderID)
	assert.Equal(t, "order-2", txs[1].OrderID)
}

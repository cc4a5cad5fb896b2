package loyalty_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartwheel/loyalty-engine/loyalty"
)

// =============================================================================
// EXPIRATION SWEEP TESTS
// =============================================================================

func TestSweep_ExpiresOnlyUnconsumedRemainder(t *testing.T) {
	// GIVEN: A 300-point credit expiring in 365 days, of which 100 were
	//        already spent on a reward
	// WHEN: The sweep runs past the expiry date
	// THEN: Exactly the 200 unconsumed points expire and the balance
	//       drops to zero

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil) // 365-day expiry
	seedReward(t, store, "rw-1", 100, nil)

	_, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("300"), false)
	require.NoError(t, err)
	_, err = ledger.Redeem(ctx, "cust-1", "rw-1")
	require.NoError(t, err)

	horizon := time.Now().AddDate(0, 0, 366)
	result, err := ledger.SweepExpired(ctx, horizon)
	require.NoError(t, err)

	assert.Equal(t, 1, result.AccountsSwept)
	assert.Equal(t, int64(200), result.PointsExpired)

	a, err := store.GetAccount(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.CurrentPoints)
	assert.Equal(t, int64(300), a.TotalPointsEarned, "expiry never reduces lifetime earnings")

	txs, err := store.Transactions(ctx, "cust-1", 0)
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, loyalty.TxExpired, txs[0].Type)
	assert.Equal(t, int64(-200), txs[0].Points)
	assert.Equal(t, int64(0), txs[0].BalanceAfter)
}

func TestSweep_Idempotent(t *testing.T) {
	// GIVEN: A sweep that already expired an account's credits
	// WHEN: The sweep runs again at the same horizon
	// THEN: Nothing further happens - no new entries, same balance

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)

	_, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("100"), false)
	require.NoError(t, err)

	horizon := time.Now().AddDate(0, 0, 366)

	first, err := ledger.SweepExpired(ctx, horizon)
	require.NoError(t, err)
	assert.Equal(t, int64(100), first.PointsExpired)

	second, err := ledger.SweepExpired(ctx, horizon)
	require.NoError(t, err)
	assert.Equal(t, 0, second.AccountsSwept)
	assert.Equal(t, int64(0), second.PointsExpired)

	txs, err := store.Transactions(ctx, "cust-1", 0)
	require.NoError(t, err)
	assert.Len(t, txs, 2, "re-running must not append another expired entry")
}

func TestSweep_NothingExpired_NoOp(t *testing.T) {
	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)

	_, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("100"), false)
	require.NoError(t, err)

	result, err := ledger.SweepExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, result.AccountsSwept)
}

func TestSweep_ExpiryDisabled_CreditsNeverLapse(t *testing.T) {
	// GIVEN: PointsExpirationDays = 0
	// WHEN: The sweep runs arbitrarily far in the future
	// THEN: Credits carry no expiry and nothing is swept

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, func(s *loyalty.Settings) {
		s.PointsExpirationDays = 0
	})

	_, err := ledger.AwardEarnedPoints(ctx, "cust-1", "order-1", money("100"), false)
	require.NoError(t, err)

	result, err := ledger.SweepExpired(ctx, time.Now().AddDate(10, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, result.AccountsSwept)

	credits, err := store.ConsumableCredits(ctx, "cust-1", time.Now().AddDate(10, 0, 0))
	require.NoError(t, err)
	require.Len(t, credits, 1)
	assert.Nil(t, credits[0].ExpiresAt)
}

func TestSweep_DecrementBoundedAtBalance(t *testing.T) {
	// GIVEN: A hand-seeded account whose balance (40) is lower than the
	//        unconsumed total of its lapsed credit (100); this is the
	//        shortfall state left when spends drew on credits that had
	//        already expired unswept
	// WHEN: The sweep runs
	// THEN: The expired entry records only the 40 actually removable, so
	//       the log still sums exactly to the (zero) balance

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	seedSettings(t, store, nil)

	now := time.Now()
	past := now.AddDate(0, 0, -1)
	require.NoError(t, store.SaveAccount(ctx, loyalty.Account{
		CustomerID:        "cust-1",
		CurrentPoints:     40,
		TotalPointsEarned: 100,
		TotalSpent:        decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}))
	require.NoError(t, store.AppendTransaction(ctx, loyalty.Transaction{
		ID:                  "txn-seed-credit",
		AccountID:           "cust-1",
		Type:                loyalty.TxEarned,
		Points:              100,
		BalanceAfter:        100,
		ExpiresAt:           &past,
		RemainingUnconsumed: 100,
		CreatedAt:           now.AddDate(0, 0, -30),
	}))

	result, err := ledger.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(40), result.PointsExpired)

	a, err := store.GetAccount(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.CurrentPoints)

	// The credit is fully retired either way
	remaining, err := store.ExpirableCredits(ctx, "cust-1", now)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

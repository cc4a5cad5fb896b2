/*
scenarios_test.go - Unit tests for demo scenarios

PURPOSE:
	Tests that each scenario sets up the expected state:
	- Settings and catalogs are written
	- Sample accounts exist with the advertised balances
	- Staged expirations actually expire on the next sweep
*/
package api

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartwheel/loyalty-engine/loyalty"
	"github.com/cartwheel/loyalty-engine/store/sqlite"
)

func setupScenarioHandler(t *testing.T) *Handler {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return NewHandler(store, loyalty.NewLedger(store, nil))
}

func TestScenario_NewMember(t *testing.T) {
	// GIVEN: The new-member scenario
	// WHEN: It loads
	// THEN: The account carries signup + earned + first-purchase points

	h := setupScenarioHandler(t)
	ctx := context.Background()

	require.NoError(t, h.loadNewMemberScenario(ctx))

	account, err := h.Store.GetAccount(ctx, "cust-maya")
	require.NoError(t, err)
	require.NotNil(t, account)

	// 100 signup + floor(74.50) earned + 50 first-purchase
	assert.Equal(t, int64(224), account.CurrentPoints)
	assert.Equal(t, int64(1), account.TotalOrders)
}

func TestScenario_TierLadder(t *testing.T) {
	h := setupScenarioHandler(t)
	ctx := context.Background()

	require.NoError(t, h.loadTierLadderScenario(ctx))

	tiers, err := h.Store.ListTiers(ctx, true)
	require.NoError(t, err)
	assert.Len(t, tiers, 3)

	// Order 3 crossed Silver, order 4 earned at 1.25x:
	// 180 + 220 + 210 + 125 = 735
	account, err := h.Store.GetAccount(ctx, "cust-jordan")
	require.NoError(t, err)
	require.NotNil(t, account)
	require.NotNil(t, account.TierID)
	assert.Equal(t, loyalty.TierID("silver"), *account.TierID)
	assert.Equal(t, int64(735), account.CurrentPoints)
}

func TestScenario_RewardWall(t *testing.T) {
	h := setupScenarioHandler(t)
	ctx := context.Background()

	require.NoError(t, h.loadRewardWallScenario(ctx))

	rewards, err := h.Store.ListRewards(ctx, true)
	require.NoError(t, err)
	assert.Len(t, rewards, 4)

	// 1250 earned - 500 redeemed
	account, err := h.Store.GetAccount(ctx, "cust-riley")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, int64(750), account.CurrentPoints)

	fulfilled, err := h.Store.ListRedemptions(ctx, loyalty.RedemptionFulfilled)
	require.NoError(t, err)
	assert.Len(t, fulfilled, 1)
}

func TestScenario_LapsingPoints_SweepExpiresStagedCredit(t *testing.T) {
	// GIVEN: The lapsing-points scenario with one credit past its expiry
	// WHEN: The sweep runs
	// THEN: Only the lapsed credit's points expire

	h := setupScenarioHandler(t)
	ctx := context.Background()

	require.NoError(t, h.loadLapsingPointsScenario(ctx))

	result, err := h.Ledger.SweepExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.AccountsSwept)
	assert.Equal(t, int64(120), result.PointsExpired)

	account, err := h.Store.GetAccount(ctx, "cust-sam")
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.Equal(t, int64(180), account.CurrentPoints)
}

func TestScenario_LoadResetsPreviousData(t *testing.T) {
	h := setupScenarioHandler(t)
	ctx := context.Background()

	require.NoError(t, h.loadNewMemberScenario(ctx))
	require.NoError(t, h.Store.Reset(ctx))
	require.NoError(t, h.loadRewardWallScenario(ctx))

	// The first scenario's account is gone after the reset
	account, err := h.Store.GetAccount(ctx, "cust-maya")
	require.NoError(t, err)
	assert.Nil(t, account)
}

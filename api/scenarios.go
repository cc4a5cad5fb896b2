/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario configures the program
	settings, seeds catalogs, and drives the engine through real operations
	so the resulting ledger is one the engine itself produced.

AVAILABLE SCENARIOS:

	new-member:      Signup + first-purchase bonuses for a fresh account
	tier-ladder:     Three-tier program with a shopper crossing Silver
	reward-wall:     Full reward catalog, including a capped reward
	lapsing-points:  Credits past their expiry, ready for a sweep

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Write program settings
 3. Seed tier/reward catalogs
 4. Run engine operations (awards, redemptions) for sample customers
 5. Optionally backdate credits to stage expiration

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "tier-ladder"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: writeJSON/writeError helpers
  - server.go: /api/scenarios routes
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cartwheel/loyalty-engine/loyalty"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-member",
		Name:        "New Member",
		Description: "Signup and first-purchase bonuses for a fresh account",
		Category:    "accounts",
	},
	{
		ID:          "tier-ladder",
		Name:        "Tier Ladder",
		Description: "Silver/Gold/Platinum program with a shopper crossing into Silver",
		Category:    "tiers",
	},
	{
		ID:          "reward-wall",
		Name:        "Reward Wall",
		Description: "Full reward catalog with a capped reward and one redemption",
		Category:    "rewards",
	},
	{
		ID:          "lapsing-points",
		Name:        "Lapsing Points",
		Description: "Credits past their expiry date, staged for the sweep",
		Category:    "expiration",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// Scenario ID exists but not in list (shouldn't happen)
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "new-member":
		err = h.loadNewMemberScenario(ctx)
	case "tier-ladder":
		err = h.loadTierLadderScenario(ctx)
	case "reward-wall":
		err = h.loadRewardWallScenario(ctx)
	case "lapsing-points":
		err = h.loadLapsingPointsScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewMemberScenario(ctx context.Context) error {
	settings := loyalty.DefaultSettings()
	settings.SignupBonus = 100
	settings.FirstPurchaseBonus = 50
	settings.UpdatedAt = time.Now()
	if err := h.Store.SaveSettings(ctx, settings); err != nil {
		return err
	}

	// First touch grants the signup bonus
	if _, err := h.Ledger.GetOrCreateAccount(ctx, "cust-maya"); err != nil {
		return err
	}

	// First purchase: 74 earned points + 50 bonus
	_, err := h.Ledger.AwardEarnedPoints(ctx, "cust-maya", "order-1001",
		decimal.RequireFromString("74.50"), true)
	return err
}

func (h *Handler) loadTierLadderScenario(ctx context.Context) error {
	settings := loyalty.DefaultSettings()
	settings.UpdatedAt = time.Now()
	if err := h.Store.SaveSettings(ctx, settings); err != nil {
		return err
	}

	tiers := []loyalty.Tier{
		{
			ID: "silver", Name: "Silver",
			MinPointsLifetime: 500, MinSpentLifetime: decimal.NewFromInt(250),
			PointsMultiplier: decimal.RequireFromString("1.25"),
			FreeShipping:     true,
			DiscountPercent:  decimal.Zero,
			SortOrder:        1, IsActive: true,
		},
		{
			ID: "gold", Name: "Gold",
			MinPointsLifetime: 2000, MinSpentLifetime: decimal.NewFromInt(1000),
			PointsMultiplier: decimal.RequireFromString("1.5"),
			FreeShipping:     true, PrioritySupport: true,
			DiscountPercent: decimal.NewFromInt(5),
			BirthdayBonus:   250,
			SortOrder:       2, IsActive: true,
		},
		{
			ID: "platinum", Name: "Platinum",
			MinPointsLifetime: 10000, MinSpentLifetime: decimal.NewFromInt(5000),
			PointsMultiplier: decimal.NewFromInt(2),
			FreeShipping:     true, PrioritySupport: true, EarlyAccess: true,
			DiscountPercent: decimal.NewFromInt(10),
			BirthdayBonus:   1000,
			SortOrder:       3, IsActive: true,
		},
	}
	for _, t := range tiers {
		if err := h.Store.SaveTier(ctx, t); err != nil {
			return err
		}
	}

	// Three orders totaling $610: the third crosses both Silver thresholds,
	// so the subsequent award already earns at 1.25x.
	orders := []struct {
		id    string
		total string
	}{
		{"order-2001", "180.00"},
		{"order-2002", "220.00"},
		{"order-2003", "210.00"},
		{"order-2004", "100.00"}, // earned at Silver multiplier: 125 points
	}
	for _, o := range orders {
		if _, err := h.Ledger.AwardEarnedPoints(ctx, "cust-jordan", o.id,
			decimal.RequireFromString(o.total), false); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadRewardWallScenario(ctx context.Context) error {
	settings := loyalty.DefaultSettings()
	settings.UpdatedAt = time.Now()
	if err := h.Store.SaveSettings(ctx, settings); err != nil {
		return err
	}

	now := time.Now()
	mysteryCap := int64(25)
	rewards := []loyalty.Reward{
		{
			ID: "disc-5", Name: "$5 Off",
			Description: "Five dollars off any order",
			PointsCost:  500, Type: loyalty.RewardDiscountFixed,
			Value:              decimal.NewFromInt(5),
			ValidDaysForCoupon: 30, IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "disc-10pct", Name: "10% Off",
			Description: "Ten percent off, up to $20",
			PointsCost:  1000, Type: loyalty.RewardDiscountPercent,
			Value:       decimal.NewFromInt(10),
			MinPurchase: decimal.NewFromInt(25),
			MaxDiscount: decimal.NewFromInt(20),
			ValidDaysForCoupon: 30, IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "free-ship", Name: "Free Shipping",
			Description: "Free standard shipping on one order",
			PointsCost:  750, Type: loyalty.RewardFreeShipping,
			ValidDaysForCoupon: 14, IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: "mystery-box", Name: "Mystery Box",
			Description: "Limited-run sample box, 25 available",
			PointsCost:  2000, Type: loyalty.RewardProduct,
			MaxRedemptions:     &mysteryCap,
			ValidDaysForCoupon: 60, IsActive: true,
			CreatedAt: now, UpdatedAt: now,
		},
	}
	for _, rw := range rewards {
		if err := h.Store.SaveReward(ctx, rw); err != nil {
			return err
		}
	}

	// One shopper with enough balance to browse the wall, one redemption
	// already on record.
	if _, err := h.Ledger.AwardEarnedPoints(ctx, "cust-riley", "order-3001",
		decimal.RequireFromString("1250.00"), false); err != nil {
		return err
	}
	_, err := h.Ledger.Redeem(ctx, "cust-riley", "disc-5")
	return err
}

// loadLapsingPointsScenario stages credits that are already past their
// expiry. The engine only issues future-dated expirations, so the backdated
// entries are written through the store directly, keeping the ledger
// invariant intact (deltas sum to the balance).
func (h *Handler) loadLapsingPointsScenario(ctx context.Context) error {
	settings := loyalty.DefaultSettings()
	settings.PointsExpirationDays = 45
	settings.UpdatedAt = time.Now()
	if err := h.Store.SaveSettings(ctx, settings); err != nil {
		return err
	}

	now := time.Now()
	staleAt := now.AddDate(0, 0, -55)
	lapsedAt := now.AddDate(0, 0, -10)
	freshAt := now.AddDate(0, 0, -10)
	liveUntil := now.AddDate(0, 0, 35)

	account := loyalty.Account{
		CustomerID:        "cust-sam",
		CurrentPoints:     300,
		TotalPointsEarned: 300,
		TotalSpent:        decimal.RequireFromString("300.00"),
		TotalOrders:       2,
		CreatedAt:         staleAt,
		UpdatedAt:         freshAt,
	}
	if err := h.Store.SaveAccount(ctx, account); err != nil {
		return err
	}

	entries := []loyalty.Transaction{
		{
			ID:                  loyalty.TransactionID(uuid.NewString()),
			AccountID:           "cust-sam",
			Type:                loyalty.TxEarned,
			Points:              120,
			Description:         "Points earned from order order-4001",
			OrderID:             "order-4001",
			BalanceAfter:        120,
			ExpiresAt:           &lapsedAt,
			RemainingUnconsumed: 120,
			CreatedAt:           staleAt,
		},
		{
			ID:                  loyalty.TransactionID(uuid.NewString()),
			AccountID:           "cust-sam",
			Type:                loyalty.TxEarned,
			Points:              180,
			Description:         "Points earned from order order-4002",
			OrderID:             "order-4002",
			BalanceAfter:        300,
			ExpiresAt:           &liveUntil,
			RemainingUnconsumed: 180,
			CreatedAt:           freshAt,
		},
	}
	for _, tx := range entries {
		if err := h.Store.AppendTransaction(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}

/*
handlers.go - HTTP API handlers for the loyalty points engine

PURPOSE:
  Exposes the points ledger and tier-progression engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Accounts:
    GET    /api/accounts/{customerID}              Get-or-create account
    GET    /api/accounts/{customerID}/transactions Ledger history
    POST   /api/accounts/{customerID}/redeem       Redeem a reward

  Order hook:
    POST   /api/orders/points          Best-effort award after checkout

  Catalogs:
    GET    /api/tiers                  Active tiers
    GET    /api/rewards                Active rewards
    GET    /api/settings               Program configuration

  Scenarios (dev only, see scenarios.go):
    GET    /api/scenarios              List demo scenarios
    GET    /api/scenarios/current      Currently loaded scenario
    POST   /api/scenarios/load         Load a scenario (resets the database)

  Admin:
    POST   /api/admin/adjustments      Manual points credit/debit
    POST   /api/admin/sweep            Run expiration sweep now
    GET    /api/admin/redemptions      Redemption audit (incl. unfulfilled)
    POST   /api/admin/redemptions/{id}/reissue  Reissue a failed coupon
    POST   /api/admin/reset            Database reset (dev only)

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Business rule conflict (insufficient points, cap reached)
  - 502: Coupon issuance failed after a committed debit
  - 503: Lock acquisition timeout (retryable)
  - 500: Internal errors

  Exception: the order hook never 5xxs on engine failure. Checkout must
  not block on loyalty, so failures are logged and reported in the body.

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public; the
  /api/admin subtree must be gated before production exposure.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - loyalty/: The engine these handlers delegate to
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/cartwheel/loyalty-engine/loyalty"
	"github.com/cartwheel/loyalty-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Ledger *loyalty.Ledger

	// currentScenario tracks the demo scenario loaded via /api/scenarios.
	currentScenario string
}

// NewHandler creates a new handler over the given store.
func NewHandler(store *sqlite.Store, ledger *loyalty.Ledger) *Handler {
	return &Handler{Store: store, Ledger: ledger}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// GetAccount returns the loyalty account for a customer, creating it on
// first touch (which may grant the signup bonus).
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id := loyalty.CustomerID(chi.URLParam(r, "customerID"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "Missing customer ID", nil)
		return
	}

	account, err := h.Ledger.GetOrCreateAccount(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get account", err)
		return
	}

	writeJSON(w, http.StatusOK, h.accountDTO(r.Context(), *account))
}

// GetTransactions returns the ledger history for a customer, most recent
// first. Accepts ?limit= (default 50).
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id := loyalty.CustomerID(chi.URLParam(r, "customerID"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit parameter", err)
			return
		}
		limit = n
	}

	txs, err := h.Ledger.History(r.Context(), id, limit)
	if err != nil {
		writeEngineError(w, "Failed to get transactions", err)
		return
	}

	dtos := make([]TransactionDTO, 0, len(txs))
	for _, tx := range txs {
		dtos = append(dtos, toTransactionDTO(tx))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// Redeem spends points on a reward and returns the minted coupon.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	id := loyalty.CustomerID(chi.URLParam(r, "customerID"))

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.RewardID == "" {
		writeError(w, http.StatusBadRequest, "Missing reward_id", nil)
		return
	}

	result, err := h.Ledger.Redeem(r.Context(), id, loyalty.RewardID(req.RewardID))
	if err != nil {
		writeEngineError(w, "Redemption failed", err)
		return
	}

	writeJSON(w, http.StatusOK, RedeemResponse{
		Coupon:     toCouponDTO(*result.Coupon),
		Redemption: toRedemptionDTO(result.Redemption),
		Account:    h.accountDTO(r.Context(), result.Account),
	})
}

// =============================================================================
// ORDER HOOK
// =============================================================================

// OrderPoints awards points for a completed order. Best-effort: the order
// pipeline calls this after checkout, and a loyalty failure must never
// fail the order, so engine errors come back as 200 with awarded=false.
func (h *Handler) OrderPoints(w http.ResponseWriter, r *http.Request) {
	var req OrderPointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CustomerID == "" || req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "Missing customer_id or order_id", nil)
		return
	}

	total, err := decimal.NewFromString(req.Total)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid total (use a decimal string)", err)
		return
	}

	account, err := h.Ledger.AwardEarnedPoints(r.Context(),
		loyalty.CustomerID(req.CustomerID), req.OrderID, total, req.IsFirstPurchase)
	if err != nil {
		log.Printf("[API] Points award failed for order %s (customer %s): %v",
			req.OrderID, req.CustomerID, err)
		writeJSON(w, http.StatusOK, OrderPointsResponse{
			Awarded: false,
			Error:   err.Error(),
		})
		return
	}

	dto := h.accountDTO(r.Context(), *account)
	writeJSON(w, http.StatusOK, OrderPointsResponse{
		Awarded: true,
		Account: &dto,
	})
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListTiers returns active tiers ordered by rank.
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.Store.ListTiers(r.Context(), true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tiers", err)
		return
	}

	dtos := make([]TierDTO, 0, len(tiers))
	for _, t := range tiers {
		dtos = append(dtos, toTierDTO(t))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListRewards returns active rewards ordered by cost.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.Store.ListRewards(r.Context(), true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rewards", err)
		return
	}

	dtos := make([]RewardDTO, 0, len(rewards))
	for _, rw := range rewards {
		dtos = append(dtos, toRewardDTO(rw))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSettings returns the program configuration, falling back to defaults
// when no row has been written yet.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.GetSettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get settings", err)
		return
	}
	if settings == nil {
		def := loyalty.DefaultSettings()
		settings = &def
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(*settings))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateAdjustment applies a manual points credit or debit.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CustomerID == "" {
		writeError(w, http.StatusBadRequest, "Missing customer_id", nil)
		return
	}

	account, err := h.Ledger.AppendAdjustment(r.Context(),
		loyalty.CustomerID(req.CustomerID), req.Points, req.Reason)
	if err != nil {
		writeEngineError(w, "Failed to create adjustment", err)
		return
	}

	writeJSON(w, http.StatusCreated, h.accountDTO(r.Context(), *account))
}

// TriggerSweep runs the expiration sweep immediately.
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	result, err := h.Ledger.SweepExpired(r.Context(), time.Now())
	if err != nil {
		// Partial sweeps still report what succeeded
		log.Printf("[API] Sweep completed with errors: %v", err)
		writeError(w, http.StatusInternalServerError, "Sweep completed with errors", err)
		return
	}

	writeJSON(w, http.StatusOK, SweepResponse{
		AccountsSwept: result.AccountsSwept,
		PointsExpired: result.PointsExpired,
	})
}

// ListRedemptions returns redemption audit records, newest first.
// Accepts ?status=fulfilled|unfulfilled.
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	status := loyalty.RedemptionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", loyalty.RedemptionFulfilled, loyalty.RedemptionUnfulfilled:
	default:
		writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
		return
	}

	redemptions, err := h.Store.ListRedemptions(r.Context(), status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list redemptions", err)
		return
	}

	dtos := make([]RedemptionDTO, 0, len(redemptions))
	for _, red := range redemptions {
		dtos = append(dtos, toRedemptionDTO(red))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ReissueCoupon mints a new coupon for an unfulfilled redemption.
func (h *Handler) ReissueCoupon(w http.ResponseWriter, r *http.Request) {
	id := loyalty.RedemptionID(chi.URLParam(r, "id"))

	coupon, err := h.Ledger.ReissueCoupon(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to reissue coupon", err)
		return
	}

	writeJSON(w, http.StatusOK, toCouponDTO(*coupon))
}

// ResetDatabase clears all data (dev only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// accountDTO resolves the account's tier for the response. A tier lookup
// failure degrades to an untiered view rather than failing the request.
func (h *Handler) accountDTO(ctx context.Context, a loyalty.Account) AccountDTO {
	var tier *loyalty.Tier
	if a.TierID != nil {
		tiers, err := h.Store.ListTiers(ctx, false)
		if err == nil {
			for i := range tiers {
				if tiers[i].ID == *a.TierID {
					tier = &tiers[i]
					break
				}
			}
		}
	}
	return toAccountDTO(a, tier)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps engine errors to HTTP statuses.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, loyalty.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, message, err)
	case loyalty.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case loyalty.IsClientError(err):
		writeError(w, http.StatusConflict, message, err)
	case loyalty.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, message, err)
	case errors.Is(err, loyalty.ErrCouponIssuance):
		// Points were debited; the redemption is recorded unfulfilled and
		// can be reissued via the admin endpoint.
		writeError(w, http.StatusBadGateway, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

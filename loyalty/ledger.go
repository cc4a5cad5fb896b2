/*
ledger.go - Balance-mutating operations over the append-only log

PURPOSE:
  The Ledger is the only writer of account state. Every operation acquires
  the account's exclusive lock (bounded wait), then executes its
  read-validate-write sequence inside one store transaction, so the balance
  and the log can never disagree.

OPERATIONS:
  GetOrCreateAccount: idempotent lazy creation, with signup bonus
  AwardEarnedPoints:  purchase accrual with tier multiplier and bonuses
  AppendAdjustment:   manual admin credit/debit
  History:            most-recent-first transaction read

CONFIGURATION READS:
  Settings and the tier catalog are fetched fresh inside each operation's
  transaction - no cached singleton carried across requests, so admin
  changes take effect on the very next operation.

SEE ALSO:
  - redeem.go: the redemption workflow (account + reward locks)
  - sweep.go:  expiration of time-limited credits
*/
package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultLockTimeout bounds how long an operation waits for an account or
// reward lock before failing with ErrLockTimeout.
const DefaultLockTimeout = 5 * time.Second

// Ledger coordinates all balance changes. Safe for concurrent use.
type Ledger struct {
	store  TxStore
	locks  *KeyedLock
	issuer CouponIssuer
	now    func() time.Time
}

// NewLedger creates a ledger over the given store. A nil issuer falls back
// to the built-in code generator.
func NewLedger(store TxStore, issuer CouponIssuer) *Ledger {
	if issuer == nil {
		issuer = NewCodeIssuer()
	}
	return &Ledger{
		store:  store,
		locks:  NewKeyedLock(DefaultLockTimeout),
		issuer: issuer,
		now:    time.Now,
	}
}

// =============================================================================
// ACCOUNT LIFECYCLE
// =============================================================================

// GetOrCreateAccount returns the customer's account, creating it on first
// touch. If a signup bonus is configured and the program is active, creation
// atomically appends one bonus transaction for that amount.
func (l *Ledger) GetOrCreateAccount(ctx context.Context, id CustomerID) (*Account, error) {
	release, err := l.locks.Acquire(ctx, accountKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	var out *Account
	err = l.store.WithTx(ctx, func(s Store) error {
		a, err := l.ensureAccount(ctx, s, id)
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ensureAccount loads or creates the account. Callers must hold the account
// lock and run inside a store transaction.
func (l *Ledger) ensureAccount(ctx context.Context, s Store, id CustomerID) (*Account, error) {
	a, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a != nil {
		return a, nil
	}

	settings, err := l.settings(ctx, s)
	if err != nil {
		return nil, err
	}

	now := l.now()
	a = &Account{
		CustomerID: id,
		TotalSpent: decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if settings.IsActive && settings.SignupBonus > 0 {
		a.CurrentPoints = settings.SignupBonus
		a.TotalPointsEarned = settings.SignupBonus

		tx := Transaction{
			ID:                  newTransactionID(),
			AccountID:           id,
			Type:                TxBonus,
			Points:              settings.SignupBonus,
			Description:         "Signup bonus",
			BalanceAfter:        a.CurrentPoints,
			ExpiresAt:           creditExpiry(settings, now),
			RemainingUnconsumed: settings.SignupBonus,
			CreatedAt:           now,
		}
		if err := s.AppendTransaction(ctx, tx); err != nil {
			return nil, err
		}

		// In practice tier thresholds exceed the signup bonus, but the rule
		// is applied uniformly after every credit.
		if err := l.applyTier(ctx, s, a); err != nil {
			return nil, err
		}
	}

	if err := s.SaveAccount(ctx, *a); err != nil {
		return nil, err
	}
	return a, nil
}

// =============================================================================
// AWARDING
// =============================================================================

// AwardEarnedPoints credits points for a qualifying purchase:
// floor(amount * rate), times the account's tier multiplier (floored again),
// plus the first-purchase bonus when applicable. A no-op returning the
// unchanged account when the program is inactive or the purchase is below
// the minimum. Fails with ErrInvalidAmount for negative amounts.
func (l *Ledger) AwardEarnedPoints(ctx context.Context, id CustomerID, orderID string, purchaseAmount decimal.Decimal, isFirstPurchase bool) (*Account, error) {
	if purchaseAmount.IsNegative() {
		return nil, fmt.Errorf("purchase amount %s: %w", purchaseAmount, ErrInvalidAmount)
	}

	release, err := l.locks.Acquire(ctx, accountKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	var out *Account
	err = l.store.WithTx(ctx, func(s Store) error {
		a, err := l.ensureAccount(ctx, s, id)
		if err != nil {
			return err
		}
		out = a

		settings, err := l.settings(ctx, s)
		if err != nil {
			return err
		}
		if !settings.IsActive || purchaseAmount.LessThan(settings.MinPurchaseForPoints) {
			return nil
		}

		tiers, err := s.ListTiers(ctx, true)
		if err != nil {
			return err
		}

		base := purchaseAmount.Mul(settings.PointsPerCurrencyUnit).Floor().IntPart()
		if a.TierID != nil {
			if t := tierByID(tiers, *a.TierID); t != nil && t.PointsMultiplier.IsPositive() {
				base = decimal.NewFromInt(base).Mul(t.PointsMultiplier).Floor().IntPart()
			}
		}

		total := base
		desc := fmt.Sprintf("Points earned for order %s", orderID)
		if isFirstPurchase && settings.FirstPurchaseBonus > 0 {
			total += settings.FirstPurchaseBonus
			desc += " (includes first purchase bonus)"
		}
		if total <= 0 {
			return nil
		}

		now := l.now()
		a.CurrentPoints += total
		a.TotalPointsEarned += total
		a.TotalSpent = a.TotalSpent.Add(purchaseAmount)
		a.TotalOrders++
		a.UpdatedAt = now

		tx := Transaction{
			ID:                  newTransactionID(),
			AccountID:           id,
			Type:                TxEarned,
			Points:              total,
			Description:         desc,
			OrderID:             orderID,
			BalanceAfter:        a.CurrentPoints,
			ExpiresAt:           creditExpiry(settings, now),
			RemainingUnconsumed: total,
			CreatedAt:           now,
		}
		if err := s.AppendTransaction(ctx, tx); err != nil {
			return err
		}
		if err := l.applyTier(ctx, s, a); err != nil {
			return err
		}
		return s.SaveAccount(ctx, *a)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// ADJUSTMENTS
// =============================================================================

// AppendAdjustment applies a manual admin credit or debit. Fails with
// ErrInsufficientBalance if a debit would drive the balance below zero.
// Credits count toward lifetime earnings and never expire; debits consume
// prior credits oldest-first like any other spend.
func (l *Ledger) AppendAdjustment(ctx context.Context, id CustomerID, delta int64, reason string) (*Account, error) {
	if delta == 0 {
		return nil, fmt.Errorf("zero adjustment: %w", ErrInvalidAmount)
	}

	release, err := l.locks.Acquire(ctx, accountKey(id))
	if err != nil {
		return nil, err
	}
	defer release()

	var out *Account
	err = l.store.WithTx(ctx, func(s Store) error {
		a, err := l.ensureAccount(ctx, s, id)
		if err != nil {
			return err
		}
		out = a

		if delta < 0 && a.CurrentPoints+delta < 0 {
			return &InsufficientBalanceError{
				AccountID: id,
				Available: a.CurrentPoints,
				Requested: delta,
			}
		}

		now := l.now()
		a.CurrentPoints += delta
		a.UpdatedAt = now

		tx := Transaction{
			ID:           newTransactionID(),
			AccountID:    id,
			Type:         TxAdjusted,
			Points:       delta,
			Description:  reason,
			BalanceAfter: a.CurrentPoints,
			CreatedAt:    now,
		}
		if delta > 0 {
			a.TotalPointsEarned += delta
			tx.RemainingUnconsumed = delta
		}
		if err := s.AppendTransaction(ctx, tx); err != nil {
			return err
		}

		if delta < 0 {
			if err := l.consumeCredits(ctx, s, id, -delta, now); err != nil {
				return err
			}
		} else {
			if err := l.applyTier(ctx, s, a); err != nil {
				return err
			}
		}
		return s.SaveAccount(ctx, *a)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// READS
// =============================================================================

// History returns the account's transactions, most recent first. A limit
// of 0 applies the store default.
func (l *Ledger) History(ctx context.Context, id CustomerID, limit int) ([]Transaction, error) {
	return l.store.Transactions(ctx, id, limit)
}

// =============================================================================
// INTERNALS
// =============================================================================

// settings reads the configuration row, creating the defaults when absent.
// A missing row is auto-healed, never an error to the caller.
func (l *Ledger) settings(ctx context.Context, s Store) (Settings, error) {
	st, err := s.GetSettings(ctx)
	if err != nil {
		return Settings{}, err
	}
	if st != nil {
		return *st, nil
	}

	def := DefaultSettings()
	def.UpdatedAt = l.now()
	if err := s.SaveSettings(ctx, def); err != nil {
		return Settings{}, err
	}
	return def, nil
}

// applyTier re-evaluates tier membership and applies the result when it
// ranks above the current tier. Monotonic: never downgrades. The full
// catalog is loaded so a since-deactivated current tier still ranks.
func (l *Ledger) applyTier(ctx context.Context, s Store, a *Account) error {
	tiers, err := s.ListTiers(ctx, false)
	if err != nil {
		return err
	}

	best := EvaluateTier(a, tiers)
	if best == nil || best.SortOrder <= sortRank(tiers, a.TierID) {
		return nil
	}

	id := best.ID
	now := l.now()
	a.TierID = &id
	a.TierAssignedAt = &now
	return nil
}

// consumeCredits debits amount from the account's unexpired credit entries
// in ascending creation order, decrementing each entry's
// RemainingUnconsumed. Consumption stops when the amount is covered; any
// shortfall means the balance held points whose credits already lapsed,
// which the sweep settles.
func (l *Ledger) consumeCredits(ctx context.Context, s Store, id CustomerID, amount int64, now time.Time) error {
	credits, err := s.ConsumableCredits(ctx, id, now)
	if err != nil {
		return err
	}

	left := amount
	for _, c := range credits {
		if left <= 0 {
			break
		}
		take := c.RemainingUnconsumed
		if take > left {
			take = left
		}
		if err := s.SetRemainingUnconsumed(ctx, c.ID, c.RemainingUnconsumed-take); err != nil {
			return err
		}
		left -= take
	}
	return nil
}

func newTransactionID() TransactionID {
	return TransactionID("txn-" + uuid.NewString())
}

// creditExpiry returns the expiration of a credit granted now, or nil when
// expiration is disabled.
func creditExpiry(settings Settings, now time.Time) *time.Time {
	if settings.PointsExpirationDays <= 0 {
		return nil
	}
	t := now.AddDate(0, 0, settings.PointsExpirationDays)
	return &t
}

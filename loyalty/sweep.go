/*
sweep.go - Expiration of unspent, time-limited credits

PURPOSE:
  Walks accounts holding credits whose ExpiresAt has passed with
  RemainingUnconsumed > 0, and appends one compensating expired entry per
  account. Idempotent: an already-zeroed credit is skipped, so re-running
  with the same clock is a no-op.

CONCURRENCY:
  Accounts are processed independently under the same per-account lock the
  ledger uses, so the sweep can run alongside awards and redemptions. The
  expirable set is re-read inside the lock - a credit consumed by a racing
  redemption is never double-expired.

BOUNDING:
  The expired entry records the actual balance decrement. When unswept
  credits lapsed after their points were already spent, the decrement is
  bounded at zero balance so the log still sums exactly to the balance.
*/
package loyalty

import (
	"context"
	"fmt"
	"time"
)

// SweepResult summarizes one sweep run.
type SweepResult struct {
	AccountsSwept int
	PointsExpired int64
}

// SweepExpired ages out unspent credits that expired at or before now.
// Safe to re-run; per-account failures are collected and do not stop the
// sweep.
func (l *Ledger) SweepExpired(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult

	accounts, err := l.store.AccountsWithExpirableCredits(ctx, now)
	if err != nil {
		return result, err
	}

	var firstErr error
	for _, id := range accounts {
		expired, err := l.sweepAccount(ctx, id, now)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("sweep account %s: %w", id, err)
			}
			continue
		}
		if expired > 0 {
			result.AccountsSwept++
			result.PointsExpired += expired
		}
	}
	return result, firstErr
}

func (l *Ledger) sweepAccount(ctx context.Context, id CustomerID, now time.Time) (int64, error) {
	release, err := l.locks.Acquire(ctx, accountKey(id))
	if err != nil {
		return 0, err
	}
	defer release()

	var expired int64
	err = l.store.WithTx(ctx, func(s Store) error {
		// Re-read inside the lock: a concurrent redemption may have
		// consumed what we saw outside it.
		credits, err := s.ExpirableCredits(ctx, id, now)
		if err != nil {
			return err
		}
		if len(credits) == 0 {
			return nil
		}

		a, err := s.GetAccount(ctx, id)
		if err != nil {
			return err
		}
		if a == nil {
			return nil
		}

		var total int64
		for _, c := range credits {
			total += c.RemainingUnconsumed
			if err := s.SetRemainingUnconsumed(ctx, c.ID, 0); err != nil {
				return err
			}
		}

		// Bounded at zero so the log keeps summing to the balance.
		decrement := total
		if decrement > a.CurrentPoints {
			decrement = a.CurrentPoints
		}
		if decrement == 0 {
			return nil
		}

		a.CurrentPoints -= decrement
		a.UpdatedAt = now

		tx := Transaction{
			ID:           newTransactionID(),
			AccountID:    id,
			Type:         TxExpired,
			Points:       -decrement,
			Description:  fmt.Sprintf("Expired %d unspent points", decrement),
			BalanceAfter: a.CurrentPoints,
			CreatedAt:    now,
		}
		if err := s.AppendTransaction(ctx, tx); err != nil {
			return err
		}
		if err := s.SaveAccount(ctx, *a); err != nil {
			return err
		}
		expired = decrement
		return nil
	})
	return expired, err
}

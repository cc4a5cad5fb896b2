/*
store.go - Persistence interface for accounts, the transaction log, and catalogs

PURPOSE:
  Defines the interface between the engine and the database. The datastore
  is the single source of truth and arbitration point: every mutating
  Ledger operation runs inside WithTx so no partial state (balance updated
  without a matching transaction row, or vice versa) is ever observable.

APPEND-ONLY CONTRACT:
  The transaction log is write-once. The one sanctioned mutation is
  SetRemainingUnconsumed, which only touches the FIFO bookkeeping column on
  credit entries - the signed delta, type, and timestamps of an entry are
  never edited.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: production SQLite (same patterns apply to
    PostgreSQL, only dialect differences)

SEE ALSO:
  - ledger.go: consumes TxStore for all mutations
  - sweep.go:  AccountsWithExpirableCredits / ExpirableCredits
*/
package loyalty

import (
	"context"
	"time"
)

// Store handles persistence of engine state. Read methods that can miss
// return (nil, nil) rather than an error.
type Store interface {
	// Accounts
	GetAccount(ctx context.Context, id CustomerID) (*Account, error)
	SaveAccount(ctx context.Context, a Account) error

	// Transaction log (append-only; ordered by creation)
	AppendTransaction(ctx context.Context, tx Transaction) error
	Transactions(ctx context.Context, id CustomerID, limit int) ([]Transaction, error)

	// ConsumableCredits returns credit entries with RemainingUnconsumed > 0
	// that have not expired as of now, oldest-first. This is the FIFO
	// consumption order for debits.
	ConsumableCredits(ctx context.Context, id CustomerID, now time.Time) ([]Transaction, error)

	// ExpirableCredits returns credit entries with RemainingUnconsumed > 0
	// whose ExpiresAt <= now, oldest-first.
	ExpirableCredits(ctx context.Context, id CustomerID, now time.Time) ([]Transaction, error)

	// SetRemainingUnconsumed updates the FIFO bookkeeping column on one
	// credit entry. The only write permitted on an existing log row.
	SetRemainingUnconsumed(ctx context.Context, id TransactionID, remaining int64) error

	// Reward catalog
	GetReward(ctx context.Context, id RewardID) (*Reward, error)
	SaveReward(ctx context.Context, r Reward) error
	ListRewards(ctx context.Context, activeOnly bool) ([]Reward, error)

	// Tier catalog
	ListTiers(ctx context.Context, activeOnly bool) ([]Tier, error)
	SaveTier(ctx context.Context, t Tier) error

	// Settings (single row)
	GetSettings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, s Settings) error

	// Redemption audit records
	SaveRedemption(ctx context.Context, r Redemption) error
	GetRedemption(ctx context.Context, id RedemptionID) (*Redemption, error)
	ListRedemptions(ctx context.Context, status RedemptionStatus) ([]Redemption, error)

	// AccountsWithExpirableCredits returns the accounts the sweep must
	// visit: those holding at least one credit with RemainingUnconsumed > 0
	// and ExpiresAt <= now.
	AccountsWithExpirableCredits(ctx context.Context, now time.Time) ([]CustomerID, error)
}

// TxStore wraps Store with transaction support. Every balance-mutating
// engine operation executes its read-validate-write sequence inside WithTx.
type TxStore interface {
	Store

	// WithTx executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements loyalty.Store and loyalty.TxStore using SQLite. In production
  the same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

APPEND-ONLY ENFORCEMENT:
  The transactions table takes no UPDATE or DELETE except
  SetRemainingUnconsumed, which touches only the FIFO bookkeeping column.
  Corrections are new compensating entries.

KEY TABLES:
  accounts:      Live balance plus lifetime aggregates, one row per customer
  transactions:  Immutable ledger of all balance changes
  tiers:         Qualification tier catalog (admin-managed)
  rewards:       Redeemable reward catalog with redemption counters
  settings:      Single program configuration row (id = 1)
  redemptions:   Audit of committed debits, incl. unfulfilled coupons

CONCURRENCY:
  A sync.RWMutex guards the connection; WithTx holds the write lock for the
  duration of the database transaction. All SQL goes through unexported
  helpers that never lock, so transactional callbacks cannot self-deadlock.
  The engine's per-account/per-reward keyed locks provide the row-scoped
  serialization on top.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/loyalty.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := loyalty.NewLedger(store, nil)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - loyalty/store.go: Interface definitions
  - loyalty/ledger.go: Higher-level engine using this store
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/cartwheel/loyalty-engine/loyalty"
)

// defaultHistoryLimit caps history reads when the caller passes no limit.
const defaultHistoryLimit = 50

// Store implements loyalty.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: SQLite allows one writer anyway, and ":memory:"
	// databases exist per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts (one per customer, created lazily)
	CREATE TABLE IF NOT EXISTS accounts (
		customer_id TEXT PRIMARY KEY,
		current_points INTEGER NOT NULL DEFAULT 0,
		total_points_earned INTEGER NOT NULL DEFAULT 0,
		total_spent TEXT NOT NULL DEFAULT '0',
		total_orders INTEGER NOT NULL DEFAULT 0,
		tier_id TEXT,
		tier_assigned_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Transactions (append-only ledger)
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		tx_type TEXT NOT NULL,
		points INTEGER NOT NULL,
		description TEXT,
		order_id TEXT,
		reward_id TEXT,
		balance_after INTEGER NOT NULL,
		expires_at TEXT,
		remaining_unconsumed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	-- History reads (hot path)
	CREATE INDEX IF NOT EXISTS idx_transactions_account_created
		ON transactions(account_id, created_at);

	-- FIFO consumption and expiration sweeps only scan live credits
	CREATE INDEX IF NOT EXISTS idx_transactions_live_credits
		ON transactions(account_id, expires_at)
		WHERE remaining_unconsumed > 0;

	-- Redemption correlation
	CREATE INDEX IF NOT EXISTS idx_transactions_reward
		ON transactions(reward_id)
		WHERE reward_id IS NOT NULL AND reward_id != '';

	-- Tier catalog
	CREATE TABLE IF NOT EXISTS tiers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		min_points_lifetime INTEGER NOT NULL DEFAULT 0,
		min_spent_lifetime TEXT NOT NULL DEFAULT '0',
		points_multiplier TEXT NOT NULL DEFAULT '1',
		free_shipping BOOLEAN NOT NULL DEFAULT FALSE,
		priority_support BOOLEAN NOT NULL DEFAULT FALSE,
		early_access BOOLEAN NOT NULL DEFAULT FALSE,
		discount_percent TEXT NOT NULL DEFAULT '0',
		birthday_bonus INTEGER NOT NULL DEFAULT 0,
		sort_order INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_tiers_sort ON tiers(sort_order);

	-- Reward catalog
	CREATE TABLE IF NOT EXISTS rewards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		points_cost INTEGER NOT NULL,
		reward_type TEXT NOT NULL,
		value TEXT NOT NULL DEFAULT '0',
		min_purchase TEXT NOT NULL DEFAULT '0',
		max_discount TEXT NOT NULL DEFAULT '0',
		valid_days_for_coupon INTEGER NOT NULL DEFAULT 30,
		max_redemptions INTEGER,
		times_redeemed INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Program settings (single row)
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		points_per_currency_unit TEXT NOT NULL,
		min_purchase_for_points TEXT NOT NULL,
		points_expiration_days INTEGER NOT NULL,
		signup_bonus INTEGER NOT NULL,
		first_purchase_bonus INTEGER NOT NULL,
		flat_shipping_value TEXT NOT NULL,
		is_active BOOLEAN NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Redemption audit records
	CREATE TABLE IF NOT EXISTS redemptions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		reward_id TEXT NOT NULL,
		points INTEGER NOT NULL,
		coupon_code TEXT,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		fulfilled_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_redemptions_status ON redemptions(status);
	CREATE INDEX IF NOT EXISTS idx_redemptions_account ON redemptions(account_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier abstracts *sql.DB and *sql.Tx so the unexported helpers run both
// standalone and inside WithTx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONAL STORE (loyalty.TxStore interface)
// =============================================================================

// WithTx executes fn within a single database transaction. The provided
// Store view reads and writes through that transaction; any error from fn
// rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(loyalty.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes Store calls through an open sql.Tx, lock-free.
type txStore struct {
	q *sql.Tx
}

func (t *txStore) GetAccount(ctx context.Context, id loyalty.CustomerID) (*loyalty.Account, error) {
	return getAccount(ctx, t.q, id)
}

func (t *txStore) SaveAccount(ctx context.Context, a loyalty.Account) error {
	return saveAccount(ctx, t.q, a)
}

func (t *txStore) AppendTransaction(ctx context.Context, tx loyalty.Transaction) error {
	return appendTransaction(ctx, t.q, tx)
}

func (t *txStore) Transactions(ctx context.Context, id loyalty.CustomerID, limit int) ([]loyalty.Transaction, error) {
	return listTransactions(ctx, t.q, id, limit)
}

func (t *txStore) ConsumableCredits(ctx context.Context, id loyalty.CustomerID, now time.Time) ([]loyalty.Transaction, error) {
	return consumableCredits(ctx, t.q, id, now)
}

func (t *txStore) ExpirableCredits(ctx context.Context, id loyalty.CustomerID, now time.Time) ([]loyalty.Transaction, error) {
	return expirableCredits(ctx, t.q, id, now)
}

func (t *txStore) SetRemainingUnconsumed(ctx context.Context, id loyalty.TransactionID, remaining int64) error {
	return setRemainingUnconsumed(ctx, t.q, id, remaining)
}

func (t *txStore) GetReward(ctx context.Context, id loyalty.RewardID) (*loyalty.Reward, error) {
	return getReward(ctx, t.q, id)
}

func (t *txStore) SaveReward(ctx context.Context, r loyalty.Reward) error {
	return saveReward(ctx, t.q, r)
}

func (t *txStore) ListRewards(ctx context.Context, activeOnly bool) ([]loyalty.Reward, error) {
	return listRewards(ctx, t.q, activeOnly)
}

func (t *txStore) ListTiers(ctx context.Context, activeOnly bool) ([]loyalty.Tier, error) {
	return listTiers(ctx, t.q, activeOnly)
}

func (t *txStore) SaveTier(ctx context.Context, tier loyalty.Tier) error {
	return saveTier(ctx, t.q, tier)
}

func (t *txStore) GetSettings(ctx context.Context) (*loyalty.Settings, error) {
	return getSettings(ctx, t.q)
}

func (t *txStore) SaveSettings(ctx context.Context, st loyalty.Settings) error {
	return saveSettings(ctx, t.q, st)
}

func (t *txStore) SaveRedemption(ctx context.Context, r loyalty.Redemption) error {
	return saveRedemption(ctx, t.q, r)
}

func (t *txStore) GetRedemption(ctx context.Context, id loyalty.RedemptionID) (*loyalty.Redemption, error) {
	return getRedemption(ctx, t.q, id)
}

func (t *txStore) ListRedemptions(ctx context.Context, status loyalty.RedemptionStatus) ([]loyalty.Redemption, error) {
	return listRedemptions(ctx, t.q, status)
}

func (t *txStore) AccountsWithExpirableCredits(ctx context.Context, now time.Time) ([]loyalty.CustomerID, error) {
	return accountsWithExpirableCredits(ctx, t.q, now)
}

// =============================================================================
// STORE (loyalty.Store interface, standalone calls)
// =============================================================================

func (s *Store) GetAccount(ctx context.Context, id loyalty.CustomerID) (*loyalty.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAccount(ctx, s.db, id)
}

func (s *Store) SaveAccount(ctx context.Context, a loyalty.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveAccount(ctx, s.db, a)
}

func (s *Store) AppendTransaction(ctx context.Context, tx loyalty.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTransaction(ctx, s.db, tx)
}

func (s *Store) Transactions(ctx context.Context, id loyalty.CustomerID, limit int) ([]loyalty.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTransactions(ctx, s.db, id, limit)
}

func (s *Store) ConsumableCredits(ctx context.Context, id loyalty.CustomerID, now time.Time) ([]loyalty.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return consumableCredits(ctx, s.db, id, now)
}

func (s *Store) ExpirableCredits(ctx context.Context, id loyalty.CustomerID, now time.Time) ([]loyalty.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return expirableCredits(ctx, s.db, id, now)
}

func (s *Store) SetRemainingUnconsumed(ctx context.Context, id loyalty.TransactionID, remaining int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setRemainingUnconsumed(ctx, s.db, id, remaining)
}

func (s *Store) GetReward(ctx context.Context, id loyalty.RewardID) (*loyalty.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getReward(ctx, s.db, id)
}

func (s *Store) SaveReward(ctx context.Context, r loyalty.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveReward(ctx, s.db, r)
}

func (s *Store) ListRewards(ctx context.Context, activeOnly bool) ([]loyalty.Reward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRewards(ctx, s.db, activeOnly)
}

func (s *Store) ListTiers(ctx context.Context, activeOnly bool) ([]loyalty.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTiers(ctx, s.db, activeOnly)
}

func (s *Store) SaveTier(ctx context.Context, t loyalty.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveTier(ctx, s.db, t)
}

func (s *Store) GetSettings(ctx context.Context) (*loyalty.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getSettings(ctx, s.db)
}

func (s *Store) SaveSettings(ctx context.Context, st loyalty.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveSettings(ctx, s.db, st)
}

func (s *Store) SaveRedemption(ctx context.Context, r loyalty.Redemption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRedemption(ctx, s.db, r)
}

func (s *Store) GetRedemption(ctx context.Context, id loyalty.RedemptionID) (*loyalty.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRedemption(ctx, s.db, id)
}

func (s *Store) ListRedemptions(ctx context.Context, status loyalty.RedemptionStatus) ([]loyalty.Redemption, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRedemptions(ctx, s.db, status)
}

func (s *Store) AccountsWithExpirableCredits(ctx context.Context, now time.Time) ([]loyalty.CustomerID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return accountsWithExpirableCredits(ctx, s.db, now)
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"transactions", "redemptions", "accounts", "rewards", "tiers", "settings"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// ACCOUNT HELPERS
// =============================================================================

func getAccount(ctx context.Context, q querier, id loyalty.CustomerID) (*loyalty.Account, error) {
	var (
		a              loyalty.Account
		totalSpent     string
		tierID         sql.NullString
		tierAssignedAt sql.NullString
		createdAt      string
		updatedAt      string
	)

	err := q.QueryRowContext(ctx, `
		SELECT customer_id, current_points, total_points_earned, total_spent,
		       total_orders, tier_id, tier_assigned_at, created_at, updated_at
		FROM accounts WHERE customer_id = ?`, id,
	).Scan(&a.CustomerID, &a.CurrentPoints, &a.TotalPointsEarned, &totalSpent,
		&a.TotalOrders, &tierID, &tierAssignedAt, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	a.TotalSpent = mustDecimal(totalSpent)
	a.CreatedAt = parseTime(createdAt)
	a.UpdatedAt = parseTime(updatedAt)
	if tierID.Valid {
		t := loyalty.TierID(tierID.String)
		a.TierID = &t
	}
	if tierAssignedAt.Valid {
		t := parseTime(tierAssignedAt.String)
		a.TierAssignedAt = &t
	}
	return &a, nil
}

func saveAccount(ctx context.Context, q querier, a loyalty.Account) error {
	var tierID, tierAssignedAt any
	if a.TierID != nil {
		tierID = string(*a.TierID)
	}
	if a.TierAssignedAt != nil {
		tierAssignedAt = formatTime(*a.TierAssignedAt)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO accounts
		(customer_id, current_points, total_points_earned, total_spent,
		 total_orders, tier_id, tier_assigned_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(customer_id) DO UPDATE SET
			current_points = excluded.current_points,
			total_points_earned = excluded.total_points_earned,
			total_spent = excluded.total_spent,
			total_orders = excluded.total_orders,
			tier_id = excluded.tier_id,
			tier_assigned_at = excluded.tier_assigned_at,
			updated_at = excluded.updated_at`,
		a.CustomerID, a.CurrentPoints, a.TotalPointsEarned, a.TotalSpent.String(),
		a.TotalOrders, tierID, tierAssignedAt,
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// =============================================================================
// TRANSACTION LOG HELPERS
// =============================================================================

const transactionColumns = `id, account_id, tx_type, points, description,
	order_id, reward_id, balance_after, expires_at, remaining_unconsumed, created_at`

func appendTransaction(ctx context.Context, q querier, tx loyalty.Transaction) error {
	var expiresAt any
	if tx.ExpiresAt != nil {
		expiresAt = formatTime(*tx.ExpiresAt)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.AccountID, tx.Type, tx.Points, tx.Description,
		tx.OrderID, tx.RewardID, tx.BalanceAfter,
		expiresAt, tx.RemainingUnconsumed, formatTime(tx.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func listTransactions(ctx context.Context, q querier, id loyalty.CustomerID, limit int) ([]loyalty.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	// rowid breaks created_at ties in insertion order
	rows, err := q.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	return scanTransactions(rows)
}

func consumableCredits(ctx context.Context, q querier, id loyalty.CustomerID, now time.Time) ([]loyalty.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = ?
		  AND remaining_unconsumed > 0
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at ASC, rowid ASC`, id, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query consumable credits: %w", err)
	}
	return scanTransactions(rows)
}

func expirableCredits(ctx context.Context, q querier, id loyalty.CustomerID, now time.Time) ([]loyalty.Transaction, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE account_id = ?
		  AND remaining_unconsumed > 0
		  AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY created_at ASC, rowid ASC`, id, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query expirable credits: %w", err)
	}
	return scanTransactions(rows)
}

func setRemainingUnconsumed(ctx context.Context, q querier, id loyalty.TransactionID, remaining int64) error {
	if remaining < 0 {
		return fmt.Errorf("remaining_unconsumed cannot go negative (tx %s)", id)
	}
	_, err := q.ExecContext(ctx,
		"UPDATE transactions SET remaining_unconsumed = ? WHERE id = ?",
		remaining, id)
	if err != nil {
		return fmt.Errorf("failed to update remaining_unconsumed: %w", err)
	}
	return nil
}

func accountsWithExpirableCredits(ctx context.Context, q querier, now time.Time) ([]loyalty.CustomerID, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT DISTINCT account_id
		FROM transactions
		WHERE remaining_unconsumed > 0
		  AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY account_id`, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to query expirable accounts: %w", err)
	}
	defer rows.Close()

	var ids []loyalty.CustomerID
	for rows.Next() {
		var id loyalty.CustomerID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanTransactions(rows *sql.Rows) ([]loyalty.Transaction, error) {
	defer rows.Close()

	var txs []loyalty.Transaction
	for rows.Next() {
		var (
			tx          loyalty.Transaction
			description sql.NullString
			orderID     sql.NullString
			rewardID    sql.NullString
			expiresAt   sql.NullString
			createdAt   string
		)
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.Type, &tx.Points,
			&description, &orderID, &rewardID, &tx.BalanceAfter,
			&expiresAt, &tx.RemainingUnconsumed, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}

		tx.Description = description.String
		tx.OrderID = orderID.String
		tx.RewardID = loyalty.RewardID(rewardID.String)
		tx.CreatedAt = parseTime(createdAt)
		if expiresAt.Valid {
			t := parseTime(expiresAt.String)
			tx.ExpiresAt = &t
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// =============================================================================
// TIER CATALOG HELPERS
// =============================================================================

func listTiers(ctx context.Context, q querier, activeOnly bool) ([]loyalty.Tier, error) {
	query := `
		SELECT id, name, min_points_lifetime, min_spent_lifetime, points_multiplier,
		       free_shipping, priority_support, early_access, discount_percent,
		       birthday_bonus, sort_order, is_active
		FROM tiers`
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY sort_order ASC"

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiers: %w", err)
	}
	defer rows.Close()

	var tiers []loyalty.Tier
	for rows.Next() {
		var (
			t               loyalty.Tier
			minSpent        string
			multiplier      string
			discountPercent string
		)
		if err := rows.Scan(&t.ID, &t.Name, &t.MinPointsLifetime, &minSpent,
			&multiplier, &t.FreeShipping, &t.PrioritySupport, &t.EarlyAccess,
			&discountPercent, &t.BirthdayBonus, &t.SortOrder, &t.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		t.MinSpentLifetime = mustDecimal(minSpent)
		t.PointsMultiplier = mustDecimal(multiplier)
		t.DiscountPercent = mustDecimal(discountPercent)
		tiers = append(tiers, t)
	}
	return tiers, rows.Err()
}

func saveTier(ctx context.Context, q querier, t loyalty.Tier) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO tiers
		(id, name, min_points_lifetime, min_spent_lifetime, points_multiplier,
		 free_shipping, priority_support, early_access, discount_percent,
		 birthday_bonus, sort_order, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			min_points_lifetime = excluded.min_points_lifetime,
			min_spent_lifetime = excluded.min_spent_lifetime,
			points_multiplier = excluded.points_multiplier,
			free_shipping = excluded.free_shipping,
			priority_support = excluded.priority_support,
			early_access = excluded.early_access,
			discount_percent = excluded.discount_percent,
			birthday_bonus = excluded.birthday_bonus,
			sort_order = excluded.sort_order,
			is_active = excluded.is_active`,
		t.ID, t.Name, t.MinPointsLifetime, t.MinSpentLifetime.String(),
		t.PointsMultiplier.String(), t.FreeShipping, t.PrioritySupport,
		t.EarlyAccess, t.DiscountPercent.String(), t.BirthdayBonus,
		t.SortOrder, t.IsActive,
	)
	if err != nil {
		return fmt.Errorf("failed to save tier: %w", err)
	}
	return nil
}

// =============================================================================
// REWARD CATALOG HELPERS
// =============================================================================

const rewardColumns = `id, name, description, points_cost, reward_type, value,
	min_purchase, max_discount, valid_days_for_coupon, max_redemptions,
	times_redeemed, is_active, created_at, updated_at`

func getReward(ctx context.Context, q querier, id loyalty.RewardID) (*loyalty.Reward, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+rewardColumns+" FROM rewards WHERE id = ?", id)

	r, err := scanReward(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	return r, nil
}

func listRewards(ctx context.Context, q querier, activeOnly bool) ([]loyalty.Reward, error) {
	query := "SELECT " + rewardColumns + " FROM rewards"
	if activeOnly {
		query += " WHERE is_active = TRUE"
	}
	query += " ORDER BY points_cost ASC, name ASC"

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	defer rows.Close()

	var rewards []loyalty.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		rewards = append(rewards, *r)
	}
	return rewards, rows.Err()
}

func saveReward(ctx context.Context, q querier, r loyalty.Reward) error {
	var maxRedemptions any
	if r.MaxRedemptions != nil {
		maxRedemptions = *r.MaxRedemptions
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO rewards (`+rewardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			points_cost = excluded.points_cost,
			reward_type = excluded.reward_type,
			value = excluded.value,
			min_purchase = excluded.min_purchase,
			max_discount = excluded.max_discount,
			valid_days_for_coupon = excluded.valid_days_for_coupon,
			max_redemptions = excluded.max_redemptions,
			times_redeemed = excluded.times_redeemed,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		r.ID, r.Name, r.Description, r.PointsCost, r.Type, r.Value.String(),
		r.MinPurchase.String(), r.MaxDiscount.String(), r.ValidDaysForCoupon,
		maxRedemptions, r.TimesRedeemed, r.IsActive,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save reward: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReward(row rowScanner) (*loyalty.Reward, error) {
	var (
		r              loyalty.Reward
		description    sql.NullString
		value          string
		minPurchase    string
		maxDiscount    string
		maxRedemptions sql.NullInt64
		createdAt      string
		updatedAt      string
	)
	err := row.Scan(&r.ID, &r.Name, &description, &r.PointsCost, &r.Type,
		&value, &minPurchase, &maxDiscount, &r.ValidDaysForCoupon,
		&maxRedemptions, &r.TimesRedeemed, &r.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	r.Description = description.String
	r.Value = mustDecimal(value)
	r.MinPurchase = mustDecimal(minPurchase)
	r.MaxDiscount = mustDecimal(maxDiscount)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	if maxRedemptions.Valid {
		n := maxRedemptions.Int64
		r.MaxRedemptions = &n
	}
	return &r, nil
}

// =============================================================================
// SETTINGS HELPERS
// =============================================================================

func getSettings(ctx context.Context, q querier) (*loyalty.Settings, error) {
	var (
		st                loyalty.Settings
		pointsPerUnit     string
		minPurchase       string
		flatShippingValue string
		updatedAt         string
	)
	err := q.QueryRowContext(ctx, `
		SELECT points_per_currency_unit, min_purchase_for_points,
		       points_expiration_days, signup_bonus, first_purchase_bonus,
		       flat_shipping_value, is_active, updated_at
		FROM settings WHERE id = 1`,
	).Scan(&pointsPerUnit, &minPurchase, &st.PointsExpirationDays,
		&st.SignupBonus, &st.FirstPurchaseBonus, &flatShippingValue,
		&st.IsActive, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	st.PointsPerCurrencyUnit = mustDecimal(pointsPerUnit)
	st.MinPurchaseForPoints = mustDecimal(minPurchase)
	st.FlatShippingValue = mustDecimal(flatShippingValue)
	st.UpdatedAt = parseTime(updatedAt)
	return &st, nil
}

func saveSettings(ctx context.Context, q querier, st loyalty.Settings) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO settings
		(id, points_per_currency_unit, min_purchase_for_points,
		 points_expiration_days, signup_bonus, first_purchase_bonus,
		 flat_shipping_value, is_active, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			points_per_currency_unit = excluded.points_per_currency_unit,
			min_purchase_for_points = excluded.min_purchase_for_points,
			points_expiration_days = excluded.points_expiration_days,
			signup_bonus = excluded.signup_bonus,
			first_purchase_bonus = excluded.first_purchase_bonus,
			flat_shipping_value = excluded.flat_shipping_value,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		st.PointsPerCurrencyUnit.String(), st.MinPurchaseForPoints.String(),
		st.PointsExpirationDays, st.SignupBonus, st.FirstPurchaseBonus,
		st.FlatShippingValue.String(), st.IsActive, formatTime(st.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}

// =============================================================================
// REDEMPTION HELPERS
// =============================================================================

func saveRedemption(ctx context.Context, q querier, r loyalty.Redemption) error {
	var fulfilledAt any
	if r.FulfilledAt != nil {
		fulfilledAt = formatTime(*r.FulfilledAt)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO redemptions
		(id, account_id, reward_id, points, coupon_code, status, created_at, fulfilled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			coupon_code = excluded.coupon_code,
			status = excluded.status,
			fulfilled_at = excluded.fulfilled_at`,
		r.ID, r.AccountID, r.RewardID, r.Points, r.CouponCode, r.Status,
		formatTime(r.CreatedAt), fulfilledAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save redemption: %w", err)
	}
	return nil
}

func getRedemption(ctx context.Context, q querier, id loyalty.RedemptionID) (*loyalty.Redemption, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, account_id, reward_id, points, coupon_code, status, created_at, fulfilled_at
		FROM redemptions WHERE id = ?`, id)

	r, err := scanRedemption(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get redemption: %w", err)
	}
	return r, nil
}

func listRedemptions(ctx context.Context, q querier, status loyalty.RedemptionStatus) ([]loyalty.Redemption, error) {
	query := `
		SELECT id, account_id, reward_id, points, coupon_code, status, created_at, fulfilled_at
		FROM redemptions`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC, rowid DESC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query redemptions: %w", err)
	}
	defer rows.Close()

	var redemptions []loyalty.Redemption
	for rows.Next() {
		r, err := scanRedemption(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan redemption: %w", err)
		}
		redemptions = append(redemptions, *r)
	}
	return redemptions, rows.Err()
}

func scanRedemption(row rowScanner) (*loyalty.Redemption, error) {
	var (
		r           loyalty.Redemption
		couponCode  sql.NullString
		createdAt   string
		fulfilledAt sql.NullString
	)
	err := row.Scan(&r.ID, &r.AccountID, &r.RewardID, &r.Points,
		&couponCode, &r.Status, &createdAt, &fulfilledAt)
	if err != nil {
		return nil, err
	}

	r.CouponCode = couponCode.String
	r.CreatedAt = parseTime(createdAt)
	if fulfilledAt.Valid {
		t := parseTime(fulfilledAt.String)
		r.FulfilledAt = &t
	}
	return &r, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

/*
Package memory provides an in-memory Store implementation (for testing/dev).

PURPOSE:
  Implements the full loyalty.TxStore contract without a database. Useful
  for fast tests and throwaway demo processes; nothing survives a restart.

TRANSACTION SEMANTICS:
  WithTx is simulated with a snapshot: the whole state is copied before the
  callback runs and restored if it returns an error. The callback receives a
  view whose methods skip the mutex (the lock is already held for the whole
  transaction), mirroring how the SQLite store hands its callbacks a raw tx.

SEE ALSO:
  - loyalty/store.go: the contract this implements
  - store/sqlite: the production implementation
*/
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cartwheel/loyalty-engine/loyalty"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Store struct {
	mu sync.RWMutex

	accounts    map[loyalty.CustomerID]loyalty.Account
	log         map[loyalty.CustomerID][]loyalty.Transaction // append order = creation order
	rewards     map[loyalty.RewardID]loyalty.Reward
	tiers       map[loyalty.TierID]loyalty.Tier
	settings    *loyalty.Settings
	redemptions []loyalty.Redemption
}

func New() *Store {
	return &Store{
		accounts: make(map[loyalty.CustomerID]loyalty.Account),
		log:      make(map[loyalty.CustomerID][]loyalty.Transaction),
		rewards:  make(map[loyalty.RewardID]loyalty.Reward),
		tiers:    make(map[loyalty.TierID]loyalty.Tier),
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (m *Store) GetAccount(_ context.Context, id loyalty.CustomerID) (*loyalty.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getAccountLocked(id)
}

func (m *Store) getAccountLocked(id loyalty.CustomerID) (*loyalty.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *Store) SaveAccount(_ context.Context, a loyalty.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.CustomerID] = a
	return nil
}

// =============================================================================
// TRANSACTION LOG
// =============================================================================

func (m *Store) AppendTransaction(_ context.Context, tx loyalty.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log[tx.AccountID] = append(m.log[tx.AccountID], tx)
	return nil
}

const defaultHistoryLimit = 50

func (m *Store) Transactions(_ context.Context, id loyalty.CustomerID, limit int) ([]loyalty.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	entries := m.log[id]

	// Newest first
	result := make([]loyalty.Transaction, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, entries[i])
	}
	return result, nil
}

func (m *Store) ConsumableCredits(_ context.Context, id loyalty.CustomerID, now time.Time) ([]loyalty.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.consumableCreditsLocked(id, now), nil
}

func (m *Store) consumableCreditsLocked(id loyalty.CustomerID, now time.Time) []loyalty.Transaction {
	var result []loyalty.Transaction
	for _, tx := range m.log[id] {
		if tx.RemainingUnconsumed > 0 && (tx.ExpiresAt == nil || tx.ExpiresAt.After(now)) {
			result = append(result, tx)
		}
	}
	return result
}

func (m *Store) ExpirableCredits(_ context.Context, id loyalty.CustomerID, now time.Time) ([]loyalty.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expirableCreditsLocked(id, now), nil
}

func (m *Store) expirableCreditsLocked(id loyalty.CustomerID, now time.Time) []loyalty.Transaction {
	var result []loyalty.Transaction
	for _, tx := range m.log[id] {
		if tx.RemainingUnconsumed > 0 && tx.ExpiresAt != nil && !tx.ExpiresAt.After(now) {
			result = append(result, tx)
		}
	}
	return result
}

func (m *Store) SetRemainingUnconsumed(_ context.Context, id loyalty.TransactionID, remaining int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setRemainingLocked(id, remaining)
}

func (m *Store) setRemainingLocked(id loyalty.TransactionID, remaining int64) error {
	if remaining < 0 {
		return fmt.Errorf("remaining unconsumed cannot be negative: %d", remaining)
	}
	for accountID, entries := range m.log {
		for i := range entries {
			if entries[i].ID == id {
				entries[i].RemainingUnconsumed = remaining
				m.log[accountID] = entries
				return nil
			}
		}
	}
	return fmt.Errorf("transaction not found: %s", id)
}

func (m *Store) AccountsWithExpirableCredits(_ context.Context, now time.Time) ([]loyalty.CustomerID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []loyalty.CustomerID
	for id := range m.log {
		if len(m.expirableCreditsLocked(id, now)) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// =============================================================================
// CATALOGS
// =============================================================================

func (m *Store) GetReward(_ context.Context, id loyalty.RewardID) (*loyalty.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRewardLocked(id)
}

func (m *Store) getRewardLocked(id loyalty.RewardID) (*loyalty.Reward, error) {
	r, ok := m.rewards[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Store) SaveReward(_ context.Context, r loyalty.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rewards[r.ID] = r
	return nil
}

func (m *Store) ListRewards(_ context.Context, activeOnly bool) ([]loyalty.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []loyalty.Reward
	for _, r := range m.rewards {
		if activeOnly && !r.IsActive {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PointsCost < result[j].PointsCost })
	return result, nil
}

func (m *Store) ListTiers(_ context.Context, activeOnly bool) ([]loyalty.Tier, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []loyalty.Tier
	for _, t := range m.tiers {
		if activeOnly && !t.IsActive {
			continue
		}
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SortOrder < result[j].SortOrder })
	return result, nil
}

func (m *Store) SaveTier(_ context.Context, t loyalty.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tiers[t.ID] = t
	return nil
}

// =============================================================================
// SETTINGS
// =============================================================================

func (m *Store) GetSettings(_ context.Context) (*loyalty.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.settings == nil {
		return nil, nil
	}
	s := *m.settings
	return &s, nil
}

func (m *Store) SaveSettings(_ context.Context, s loyalty.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = &s
	return nil
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

func (m *Store) SaveRedemption(_ context.Context, r loyalty.Redemption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveRedemptionLocked(r)
}

func (m *Store) saveRedemptionLocked(r loyalty.Redemption) error {
	for i := range m.redemptions {
		if m.redemptions[i].ID == r.ID {
			m.redemptions[i] = r
			return nil
		}
	}
	m.redemptions = append(m.redemptions, r)
	return nil
}

func (m *Store) GetRedemption(_ context.Context, id loyalty.RedemptionID) (*loyalty.Redemption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.redemptions {
		if m.redemptions[i].ID == id {
			r := m.redemptions[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (m *Store) ListRedemptions(_ context.Context, status loyalty.RedemptionStatus) ([]loyalty.Redemption, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	// Newest first
	var result []loyalty.Redemption
	for i := len(m.redemptions) - 1; i >= 0; i-- {
		if status != "" && m.redemptions[i].Status != status {
			continue
		}
		result = append(result, m.redemptions[i])
	}
	return result, nil
}

// =============================================================================
// TRANSACTIONS (WithTx)
// =============================================================================

// WithTx executes fn within a simulated transaction: the state is
// snapshotted up front and restored if fn returns an error. The mutex is
// held for the duration, so fn gets the same serialization guarantee the
// SQLite store's single writer provides.
func (m *Store) WithTx(_ context.Context, fn func(loyalty.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txView{parent: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type storeSnapshot struct {
	accounts    map[loyalty.CustomerID]loyalty.Account
	log         map[loyalty.CustomerID][]loyalty.Transaction
	rewards     map[loyalty.RewardID]loyalty.Reward
	tiers       map[loyalty.TierID]loyalty.Tier
	settings    *loyalty.Settings
	redemptions []loyalty.Redemption
}

func (m *Store) snapshot() storeSnapshot {
	snap := storeSnapshot{
		accounts:    make(map[loyalty.CustomerID]loyalty.Account, len(m.accounts)),
		log:         make(map[loyalty.CustomerID][]loyalty.Transaction, len(m.log)),
		rewards:     make(map[loyalty.RewardID]loyalty.Reward, len(m.rewards)),
		tiers:       make(map[loyalty.TierID]loyalty.Tier, len(m.tiers)),
		redemptions: append([]loyalty.Redemption{}, m.redemptions...),
	}
	for k, v := range m.accounts {
		snap.accounts[k] = v
	}
	for k, v := range m.log {
		snap.log[k] = append([]loyalty.Transaction{}, v...)
	}
	for k, v := range m.rewards {
		snap.rewards[k] = v
	}
	for k, v := range m.tiers {
		snap.tiers[k] = v
	}
	if m.settings != nil {
		s := *m.settings
		snap.settings = &s
	}
	return snap
}

func (m *Store) restore(snap storeSnapshot) {
	m.accounts = snap.accounts
	m.log = snap.log
	m.rewards = snap.rewards
	m.tiers = snap.tiers
	m.settings = snap.settings
	m.redemptions = snap.redemptions
}

// txView is the Store handed to WithTx callbacks. The parent's mutex is
// already held, so every method goes straight to the locked helpers.
type txView struct {
	parent *Store
}

func (v *txView) GetAccount(_ context.Context, id loyalty.CustomerID) (*loyalty.Account, error) {
	return v.parent.getAccountLocked(id)
}

func (v *txView) SaveAccount(_ context.Context, a loyalty.Account) error {
	v.parent.accounts[a.CustomerID] = a
	return nil
}

func (v *txView) AppendTransaction(_ context.Context, tx loyalty.Transaction) error {
	v.parent.log[tx.AccountID] = append(v.parent.log[tx.AccountID], tx)
	return nil
}

func (v *txView) Transactions(_ context.Context, id loyalty.CustomerID, limit int) ([]loyalty.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	entries := v.parent.log[id]
	result := make([]loyalty.Transaction, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, entries[i])
	}
	return result, nil
}

func (v *txView) ConsumableCredits(_ context.Context, id loyalty.CustomerID, now time.Time) ([]loyalty.Transaction, error) {
	return v.parent.consumableCreditsLocked(id, now), nil
}

func (v *txView) ExpirableCredits(_ context.Context, id loyalty.CustomerID, now time.Time) ([]loyalty.Transaction, error) {
	return v.parent.expirableCreditsLocked(id, now), nil
}

func (v *txView) SetRemainingUnconsumed(_ context.Context, id loyalty.TransactionID, remaining int64) error {
	return v.parent.setRemainingLocked(id, remaining)
}

func (v *txView) AccountsWithExpirableCredits(_ context.Context, now time.Time) ([]loyalty.CustomerID, error) {
	var ids []loyalty.CustomerID
	for id := range v.parent.log {
		if len(v.parent.expirableCreditsLocked(id, now)) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (v *txView) GetReward(_ context.Context, id loyalty.RewardID) (*loyalty.Reward, error) {
	return v.parent.getRewardLocked(id)
}

func (v *txView) SaveReward(_ context.Context, r loyalty.Reward) error {
	v.parent.rewards[r.ID] = r
	return nil
}

func (v *txView) ListRewards(ctx context.Context, activeOnly bool) ([]loyalty.Reward, error) {
	var result []loyalty.Reward
	for _, r := range v.parent.rewards {
		if activeOnly && !r.IsActive {
			continue
		}
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].PointsCost < result[j].PointsCost })
	return result, nil
}

func (v *txView) ListTiers(ctx context.Context, activeOnly bool) ([]loyalty.Tier, error) {
	var result []loyalty.Tier
	for _, t := range v.parent.tiers {
		if activeOnly && !t.IsActive {
			continue
		}
		result = append(result, t)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SortOrder < result[j].SortOrder })
	return result, nil
}

func (v *txView) SaveTier(_ context.Context, t loyalty.Tier) error {
	v.parent.tiers[t.ID] = t
	return nil
}

func (v *txView) GetSettings(_ context.Context) (*loyalty.Settings, error) {
	if v.parent.settings == nil {
		return nil, nil
	}
	s := *v.parent.settings
	return &s, nil
}

func (v *txView) SaveSettings(_ context.Context, s loyalty.Settings) error {
	v.parent.settings = &s
	return nil
}

func (v *txView) SaveRedemption(_ context.Context, r loyalty.Redemption) error {
	return v.parent.saveRedemptionLocked(r)
}

func (v *txView) GetRedemption(_ context.Context, id loyalty.RedemptionID) (*loyalty.Redemption, error) {
	for i := range v.parent.redemptions {
		if v.parent.redemptions[i].ID == id {
			r := v.parent.redemptions[i]
			return &r, nil
		}
	}
	return nil, nil
}

func (v *txView) ListRedemptions(_ context.Context, status loyalty.RedemptionStatus) ([]loyalty.Redemption, error) {
	var result []loyalty.Redemption
	for i := len(v.parent.redemptions) - 1; i >= 0; i-- {
		if status != "" && v.parent.redemptions[i].Status != status {
			continue
		}
		result = append(result, v.parent.redemptions[i])
	}
	return result, nil
}

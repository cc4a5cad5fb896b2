/*
locks.go - Keyed exclusive locks with bounded wait

PURPOSE:
  Serializes balance-mutating operations per account row, and redemptions
  additionally per reward row, for the duration of a read-validate-write
  sequence. The naive "read count, then write" pattern admits a race that
  oversells a capped reward; the keyed lock plus the store transaction
  closes it.

BOUNDED WAIT:
  No operation blocks indefinitely. Acquisition waits up to the configured
  timeout and then fails with ErrLockTimeout, which callers may retry with
  backoff.

ORDERING:
  Callers that hold multiple locks acquire them in a fixed order (account,
  then reward) so concurrent redemptions cannot deadlock.
*/
package loyalty

import (
	"context"
	"sync"
	"time"
)

// KeyedLock provides one exclusive lock per string key.
type KeyedLock struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	timeout time.Duration
}

// NewKeyedLock creates a lock set with the given acquisition timeout.
func NewKeyedLock(timeout time.Duration) *KeyedLock {
	return &KeyedLock{
		slots:   make(map[string]chan struct{}),
		timeout: timeout,
	}
}

func (l *KeyedLock) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

// Acquire takes the exclusive lock for key, waiting at most the configured
// timeout. On success it returns a release function that must be called on
// every exit path. On timeout it returns ErrLockTimeout; on context
// cancellation, the context error.
func (l *KeyedLock) Acquire(ctx context.Context, key string) (func(), error) {
	ch := l.slot(key)

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-timer.C:
		return nil, ErrLockTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lock key namespaces. Account and reward rows live in separate spaces so
// an account and a reward with the same raw ID never alias.
func accountKey(id CustomerID) string { return "account:" + string(id) }
func rewardKey(id RewardID) string    { return "reward:" + string(id) }

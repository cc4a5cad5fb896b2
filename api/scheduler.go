/*
scheduler.go - Automated points-expiration sweeper

PURPOSE:
  Periodically runs the expiration sweep so unspent time-limited credits
  age out without manual intervention.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - The sweep itself is idempotent, so overlapping or repeated runs over
    the same backlog are harmless
  - Per-account failures inside a sweep are logged, not fatal

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewSweepScheduler(ledger)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - handlers.go: TriggerSweep endpoint (manual sweep)
  - loyalty/sweep.go: SweepExpired semantics
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/cartwheel/loyalty-engine/loyalty"
)

// SweepScheduler runs the expiration sweep on an interval.
type SweepScheduler struct {
	Ledger        *loyalty.Ledger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweepScheduler creates a new sweeper.
func NewSweepScheduler(ledger *loyalty.Ledger) *SweepScheduler {
	return &SweepScheduler{
		Ledger:        ledger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the sweeper.
func (ss *SweepScheduler) Start() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if !ss.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}

	ss.ticker = time.NewTicker(ss.CheckInterval)
	ss.wg.Add(1)

	go ss.run()

	log.Printf("[Sweeper] Started with check interval: %v", ss.CheckInterval)
}

// Stop stops the sweeper.
func (ss *SweepScheduler) Stop() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.ticker != nil {
		ss.ticker.Stop()
		close(ss.stop)
		ss.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (ss *SweepScheduler) run() {
	defer ss.wg.Done()

	// Run immediately on start to clear any backlog
	ss.sweep()

	for {
		select {
		case <-ss.ticker.C:
			ss.sweep()
		case <-ss.stop:
			return
		}
	}
}

func (ss *SweepScheduler) sweep() {
	ctx := context.Background()
	now := time.Now()

	result, err := ss.Ledger.SweepExpired(ctx, now)
	if err != nil {
		log.Printf("[Sweeper] Sweep completed with errors: %v", err)
	}
	if result.AccountsSwept > 0 {
		log.Printf("[Sweeper] Expired %d points across %d accounts",
			result.PointsExpired, result.AccountsSwept)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (ss *SweepScheduler) RunNow() {
	ss.sweep()
}

// GetNextRunTime returns when the next scheduled sweep will occur.
func (ss *SweepScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(ss.CheckInterval)
}

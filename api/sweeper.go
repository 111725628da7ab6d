/*
sweeper.go - Background retention sweeper

PURPOSE:
  Periodically prunes aged observability data: reallocation run records
  in sqlite and grid refresh events in the in-memory ring buffer. Keeps
  the audit trail bounded on long-running servers.

DESIGN:
  - Runs a background goroutine with configurable sweep interval
  - Deletes reallocation runs completed before the retention cutoff
  - Drops refresh events older than the same cutoff

CONFIGURATION:
  - SweepInterval: How often to sweep (default: 1 hour)
  - Retention:     How long records are kept (default: 30 days)
  - Enabled:       Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewRetentionSweeper(store, bus)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - events.go: RefreshBus ring buffer
  - workload/reallocation.go: run records the engine writes
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tschnepf/workload-tracker-sub005/store/sqlite"
)

// RetentionSweeper prunes aged reallocation runs and refresh events.
type RetentionSweeper struct {
	Store         *sqlite.Store
	Bus           *RefreshBus
	SweepInterval time.Duration
	Retention     time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRetentionSweeper creates a new sweeper with default intervals.
func NewRetentionSweeper(store *sqlite.Store, bus *RefreshBus) *RetentionSweeper {
	return &RetentionSweeper{
		Store:         store,
		Bus:           bus,
		SweepInterval: 1 * time.Hour,
		Retention:     30 * 24 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the sweeper.
func (rs *RetentionSweeper) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}

	rs.ticker = time.NewTicker(rs.SweepInterval)
	rs.wg.Add(1)

	go rs.run()

	log.Printf("[Sweeper] Started with sweep interval: %v, retention: %v", rs.SweepInterval, rs.Retention)
}

// Stop stops the sweeper. Safe to call more than once.
func (rs *RetentionSweeper) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		rs.ticker = nil
		close(rs.stop)
		rs.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (rs *RetentionSweeper) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.sweep()

	for {
		select {
		case <-rs.ticker.C:
			rs.sweep()
		case <-rs.stop:
			return
		}
	}
}

func (rs *RetentionSweeper) sweep() {
	ctx := context.Background()
	cutoff := time.Now().Add(-rs.Retention)

	pruned, err := rs.Store.PruneRuns(ctx, cutoff)
	if err != nil {
		log.Printf("[Sweeper] Error pruning reallocation runs: %v", err)
	}

	dropped := 0
	if rs.Bus != nil {
		dropped = rs.Bus.PruneBefore(cutoff)
	}

	if pruned > 0 || dropped > 0 {
		log.Printf("[Sweeper] Completed: %d runs pruned, %d events dropped", pruned, dropped)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (rs *RetentionSweeper) RunNow() {
	rs.sweep()
}

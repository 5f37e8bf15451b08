/*
scheduler.go - Automated reconciliation scheduler

PURPOSE:
  Periodically refreshes cached batch quantities from the consumption log,
  so inventory listings stay correct after imports or manual edits.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each run is one kitchen.Reconciler pass (single transaction)
  - Keeps the last run's summary for the admin UI

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewReconciliationScheduler(handler.Reconciler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Reconcile endpoint (manual reconciliation)
  - kitchen/stock.go: Reconciler
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/pantry/kitchen"
)

// ReconciliationScheduler runs the reconciler on a ticker.
type ReconciliationScheduler struct {
	Reconciler    *kitchen.Reconciler
	CheckInterval time.Duration
	Enabled       bool

	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	lastRun *ScheduledRun
}

// ScheduledRun records the outcome of one scheduled pass.
type ScheduledRun struct {
	StartedAt time.Time
	Summary   kitchen.ReconcileSummary
	Err       error
}

// NewReconciliationScheduler creates a new scheduler.
func NewReconciliationScheduler(reconciler *kitchen.Reconciler) *ReconciliationScheduler {
	return &ReconciliationScheduler{
		Reconciler:    reconciler,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (rs *ReconciliationScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled || rs.CheckInterval <= 0 {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	log.Printf("[Scheduler] Started with check interval: %v", rs.CheckInterval)
}

// Stop stops the scheduler and waits for a running pass to finish.
func (rs *ReconciliationScheduler) Stop() {
	rs.mu.Lock()
	ticker, stop := rs.ticker, rs.stop
	rs.ticker, rs.stop = nil, nil
	rs.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	close(stop)
	rs.wg.Wait()
	log.Println("[Scheduler] Stopped")
}

func (rs *ReconciliationScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	rs.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			rs.RunOnce(ctx)
		case <-stop:
			return
		}
	}
}

// RunOnce performs a single reconciliation pass and records it.
func (rs *ReconciliationScheduler) RunOnce(ctx context.Context) ScheduledRun {
	run := ScheduledRun{StartedAt: time.Now()}
	run.Summary, run.Err = rs.Reconciler.Reconcile(ctx)

	switch {
	case run.Err != nil:
		log.Printf("[Scheduler] Reconciliation failed: %v", run.Err)
	case len(run.Summary.Corrected) > 0:
		log.Printf("[Scheduler] Completed: %d corrected, %d checked", len(run.Summary.Corrected), run.Summary.Checked)
	}

	rs.mu.Lock()
	rs.lastRun = &run
	rs.mu.Unlock()
	return run
}

// LastRun returns the most recent pass, or nil before the first one.
func (rs *ReconciliationScheduler) LastRun() *ScheduledRun {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.lastRun
}

/*
scheduler.go - Automated monthly batch scheduler

PURPOSE:
  Periodically sweeps every tenant: invoices each billable contract and
  books each asset's depreciation charge for the previous month. Manual
  triggers through the batch endpoints remain available; the event
  references make the two paths collide harmlessly.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Targets the previous calendar month on every tick
  - Replayed events count as skipped, so frequent ticks are cheap
  - Records batch runs for audit and UI display

USAGE:
  scheduler := NewBatchScheduler(store, handler)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunInvoiceBatch / RunDepreciationBatch (manual triggers)
  - events/batch.go: the sweeps themselves
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/fleetcore/ledger-engine/events"
	"github.com/fleetcore/ledger-engine/ledger"
)

// BatchScheduler drives the monthly sweeps across all tenants.
type BatchScheduler struct {
	Registry      events.Registry
	Batch         *events.BatchService
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewBatchScheduler creates a scheduler over the handler's services.
func NewBatchScheduler(registry events.Registry, batch *events.BatchService) *BatchScheduler {
	return &BatchScheduler{
		Registry:      registry,
		Batch:         batch,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (bs *BatchScheduler) Start() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if !bs.Enabled {
		log.Println("[Scheduler] Disabled, not starting")
		return
	}

	bs.ticker = time.NewTicker(bs.CheckInterval)
	bs.wg.Add(1)

	go bs.run()

	log.Printf("[Scheduler] Started with check interval: %v", bs.CheckInterval)
}

// Stop stops the scheduler.
func (bs *BatchScheduler) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	if bs.ticker != nil {
		bs.ticker.Stop()
		close(bs.stop)
		bs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (bs *BatchScheduler) run() {
	defer bs.wg.Done()

	// Run immediately on start
	bs.checkAndProcess()

	for {
		select {
		case <-bs.ticker.C:
			bs.checkAndProcess()
		case <-bs.stop:
			return
		}
	}
}

func (bs *BatchScheduler) checkAndProcess() {
	ctx := context.Background()
	period := previousPeriod(time.Now().UTC())

	log.Printf("[Scheduler] Sweeping period %s", period)

	tenants, err := bs.Registry.ListTenants(ctx)
	if err != nil {
		log.Printf("[Scheduler] Error listing tenants: %v", err)
		return
	}

	processed := 0
	skipped := 0

	for _, tenant := range tenants {
		for _, sweep := range []struct {
			name string
			fn   func(context.Context, ledger.TenantID, events.Period) (*events.BatchRun, error)
		}{
			{"invoices", bs.Batch.RunInvoices},
			{"depreciation", bs.Batch.RunDepreciation},
		} {
			run, err := sweep.fn(ctx, tenant, period)
			if err != nil {
				log.Printf("[Scheduler] %s sweep failed for tenant %s: %v", sweep.name, tenant, err)
				continue
			}
			processed += run.Processed
			skipped += run.Skipped
		}
	}

	if processed > 0 {
		log.Printf("[Scheduler] Completed: %d processed, %d skipped (already booked)", processed, skipped)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (bs *BatchScheduler) RunNow() {
	bs.checkAndProcess()
}

// GetNextRunTime returns when the next scheduled check will occur.
func (bs *BatchScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(bs.CheckInterval)
}

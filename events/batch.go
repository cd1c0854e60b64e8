/*
batch.go - Bulk event runs: monthly invoicing and depreciation

PURPOSE:
  A batch run applies many independent events for one tenant and period.
  Per-event failures are counted and reported, never retried within the
  run; a replayed event counts as skipped (its entry already exists). A
  ConfigurationError aborts the whole run - every remaining event would
  fail the same way, and the fix is an operator action.

CONCURRENCY:
  Events fan out over a bounded worker pool. Cancellation is
  cooperative: a cancelled context stops workers between events, never
  mid-entry (the store transaction makes each entry atomic anyway).

SEE ALSO:
  - registry.go: the records the sweeps are built from
  - api/scheduler.go: the timer that triggers monthly runs
*/
package events

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fleetcore/ledger-engine/ledger"
)

// =============================================================================
// RUNNER - bounded fan-out over independent events
// =============================================================================

// Result is the outcome tally of one batch run.
type Result struct {
	Processed int      // entries created and posted
	Skipped   int      // idempotent hits, entry already existed
	Failed    int      // per-event failures
	Errors    []string // one message per failure, reference-first
}

// Runner applies a slice of events through the generator.
type Runner struct {
	gen     *Generator
	workers int
}

func NewRunner(gen *Generator, workers int) *Runner {
	if workers < 1 {
		workers = 1
	}
	return &Runner{gen: gen, workers: workers}
}

// Run applies every event for the tenant. The returned error is non-nil
// only for fatal conditions (missing tenant, cancellation, configuration
// errors); per-event failures land in Result.Failed / Result.Errors.
func (r *Runner) Run(ctx context.Context, tenant ledger.TenantID, evs []Event) (Result, error) {
	if tenant == "" {
		return Result{}, ledger.ErrAccessDenied
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan Event)
	var mu sync.Mutex
	var res Result
	var fatal error

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ev := range jobs {
				_, created, err := r.gen.Apply(ctx, tenant, ev)

				mu.Lock()
				switch {
				case err == nil && created:
					res.Processed++
				case err == nil:
					res.Skipped++
				case errors.Is(err, ledger.ErrConfiguration):
					// Fatal: every remaining event needs the same fix.
					if fatal == nil {
						fatal = err
					}
					cancel()
				case errors.Is(err, context.Canceled):
					// Run was aborted, not an event-level failure.
				default:
					res.Failed++
					res.Errors = append(res.Errors, fmt.Sprintf("%s %s: %v", ev.Kind(), ev.Reference(), err))
				}
				mu.Unlock()
			}
		}()
	}

feed:
	for _, ev := range evs {
		select {
		case jobs <- ev:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if fatal != nil {
		return res, fatal
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	sort.Strings(res.Errors)
	return res, nil
}

// =============================================================================
// BATCH SERVICE - builds sweeps from the registry and records runs
// =============================================================================

// BatchService runs the monthly sweeps and persists their audit trail.
type BatchService struct {
	registry Registry
	runner   *Runner
	now      func() time.Time
}

func NewBatchService(registry Registry, runner *Runner) *BatchService {
	return &BatchService{registry: registry, runner: runner, now: time.Now}
}

// RunInvoices issues one invoice per billable contract for the period.
func (s *BatchService) RunInvoices(ctx context.Context, tenant ledger.TenantID, period Period) (*BatchRun, error) {
	contracts, err := s.registry.ListContracts(ctx, tenant, true)
	if err != nil {
		return nil, err
	}

	var evs []Event
	for _, c := range contracts {
		if !c.BillableIn(period) {
			continue
		}
		evs = append(evs, InvoiceIssued{
			InvoiceID:    c.InvoiceID(period),
			ContractID:   c.ID,
			RentalAmount: c.MonthlyRate,
			IssuedAt:     period.End(),
		})
	}
	return s.execute(ctx, tenant, KindInvoiceIssued, period, evs)
}

// RunDepreciation books the monthly charge for every depreciable asset.
func (s *BatchService) RunDepreciation(ctx context.Context, tenant ledger.TenantID, period Period) (*BatchRun, error) {
	assets, err := s.registry.ListAssets(ctx, tenant, true)
	if err != nil {
		return nil, err
	}

	var evs []Event
	for _, a := range assets {
		if !a.DepreciableIn(period) {
			continue
		}
		charge := a.MonthlyCharge()
		if !charge.IsPositive() {
			continue
		}
		evs = append(evs, DepreciationCharge{
			AssetID: a.ID,
			Period:  period,
			Amount:  charge,
		})
	}
	return s.execute(ctx, tenant, KindDepreciationCharge, period, evs)
}

// execute runs the events and books the run record around them.
func (s *BatchService) execute(ctx context.Context, tenant ledger.TenantID, kind string, period Period, evs []Event) (*BatchRun, error) {
	run := BatchRun{
		ID:        uuid.NewString(),
		TenantID:  tenant,
		Kind:      kind,
		Period:    period.String(),
		Status:    RunRunning,
		StartedAt: s.now().UTC(),
	}
	if err := s.registry.SaveBatchRun(ctx, run); err != nil {
		return nil, err
	}

	res, runErr := s.runner.Run(ctx, tenant, evs)

	finished := s.now().UTC()
	run.Processed = res.Processed
	run.Skipped = res.Skipped
	run.Failed = res.Failed
	run.FinishedAt = &finished
	if runErr != nil {
		run.Status = RunFailed
		run.Error = runErr.Error()
	} else {
		run.Status = RunCompleted
		if len(res.Errors) > 0 {
			run.Error = res.Errors[0]
		}
	}
	if err := s.registry.SaveBatchRun(ctx, run); err != nil {
		log.Printf("[Batch] Failed to record run %s: %v", run.ID, err)
	}

	log.Printf("[Batch] %s %s tenant=%s: %d processed, %d skipped, %d failed",
		kind, period, tenant, res.Processed, res.Skipped, res.Failed)

	run.Errors = res.Errors
	if runErr != nil {
		return &run, runErr
	}
	return &run, nil
}

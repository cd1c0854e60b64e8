package events_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/ledger-engine/events"
	"github.com/fleetcore/ledger-engine/ledger"
)

// =============================================================================
// IN-MEMORY REGISTRY
// =============================================================================

type memRegistry struct {
	mu        sync.Mutex
	contracts map[ledger.TenantID]map[string]events.Contract
	assets    map[ledger.TenantID]map[string]events.Asset
	runs      []events.BatchRun
}

func newMemRegistry() *memRegistry {
	return &memRegistry{
		contracts: make(map[ledger.TenantID]map[string]events.Contract),
		assets:    make(map[ledger.TenantID]map[string]events.Asset),
	}
}

func (r *memRegistry) SaveContract(_ context.Context, c events.Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.contracts[c.TenantID] == nil {
		r.contracts[c.TenantID] = make(map[string]events.Contract)
	}
	r.contracts[c.TenantID][c.ID] = c
	return nil
}

func (r *memRegistry) GetContract(_ context.Context, tenant ledger.TenantID, id string) (*events.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contracts[tenant][id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &c, nil
}

func (r *memRegistry) ListContracts(_ context.Context, tenant ledger.TenantID, activeOnly bool) ([]events.Contract, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Contract
	for _, c := range r.contracts[tenant] {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRegistry) SaveAsset(_ context.Context, a events.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.assets[a.TenantID] == nil {
		r.assets[a.TenantID] = make(map[string]events.Asset)
	}
	r.assets[a.TenantID][a.ID] = a
	return nil
}

func (r *memRegistry) GetAsset(_ context.Context, tenant ledger.TenantID, id string) (*events.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.assets[tenant][id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &a, nil
}

func (r *memRegistry) ListAssets(_ context.Context, tenant ledger.TenantID, activeOnly bool) ([]events.Asset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Asset
	for _, a := range r.assets[tenant] {
		if activeOnly && !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memRegistry) SaveBatchRun(_ context.Context, run events.BatchRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.runs {
		if r.runs[i].ID == run.ID {
			r.runs[i] = run
			return nil
		}
	}
	r.runs = append(r.runs, run)
	return nil
}

func (r *memRegistry) ListBatchRuns(_ context.Context, tenant ledger.TenantID, limit int) ([]events.BatchRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.BatchRun
	for _, run := range r.runs {
		if run.TenantID == tenant {
			out = append(out, run)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRegistry) ListTenants(_ context.Context) ([]ledger.TenantID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[ledger.TenantID]bool)
	for tenant := range r.contracts {
		seen[tenant] = true
	}
	for tenant := range r.assets {
		seen[tenant] = true
	}
	var out []ledger.TenantID
	for tenant := range seen {
		out = append(out, tenant)
	}
	return out, nil
}

// =============================================================================
// TEST SETUP
// =============================================================================

type batchFixture struct {
	*genFixture
	registry *memRegistry
	svc      *events.BatchService
}

func newBatchFixture(t *testing.T) *batchFixture {
	t.Helper()
	gf := newGenFixture(t)
	registry := newMemRegistry()
	runner := events.NewRunner(gf.gen, 4)
	return &batchFixture{
		genFixture: gf,
		registry:   registry,
		svc:        events.NewBatchService(registry, runner),
	}
}

func (f *batchFixture) addAsset(t *testing.T, id string, inService time.Time, purchase, salvage string, years int) {
	t.Helper()
	require.NoError(t, f.registry.SaveAsset(context.Background(), events.Asset{
		ID: id, TenantID: testTenant, Name: "Vehicle " + id,
		PurchasePrice: money(purchase), SalvageValue: money(salvage),
		UsefulLifeYears: years, InServiceDate: inService,
		IsActive: true, CreatedAt: time.Now().UTC(),
	}))
}

func (f *batchFixture) addContract(t *testing.T, id string, rate string, start time.Time, end *time.Time) {
	t.Helper()
	require.NoError(t, f.registry.SaveContract(context.Background(), events.Contract{
		ID: id, TenantID: testTenant, CustomerName: "Customer " + id,
		VehicleID: "VH-" + id, MonthlyRate: money(rate),
		DepositAmount: money("500"), StartDate: start, EndDate: end,
		IsActive: true, CreatedAt: time.Now().UTC(),
	}))
}

func mustPeriod(t *testing.T, s string) events.Period {
	t.Helper()
	p, err := events.ParsePeriod(s)
	require.NoError(t, err)
	return p
}

// =============================================================================
// DEPRECIATION SWEEP
// =============================================================================

func TestBatchService_RunDepreciation_SecondRunSkips(t *testing.T) {
	// GIVEN: two depreciable assets
	// WHEN: the March sweep runs twice
	// THEN: first run processes 2, second skips 2; expense moved once

	f := newBatchFixture(t)
	ctx := context.Background()
	inService := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	f.addAsset(t, "VH-1", inService, "30000", "3000", 5) // 450/month
	f.addAsset(t, "VH-2", inService, "18000", "0", 3)    // 500/month

	first, err := f.svc.RunDepreciation(ctx, testTenant, mustPeriod(t, "2026-03"))
	require.NoError(t, err)
	assert.Equal(t, 2, first.Processed)
	assert.Zero(t, first.Skipped)
	assert.Zero(t, first.Failed)
	assert.Equal(t, events.RunCompleted, first.Status)

	second, err := f.svc.RunDepreciation(ctx, testTenant, mustPeriod(t, "2026-03"))
	require.NoError(t, err)
	assert.Zero(t, second.Processed)
	assert.Equal(t, 2, second.Skipped)

	assert.True(t, f.balanceByCode(t, "5141").Equal(money("950")), "expense booked once")

	runs, err := f.registry.ListBatchRuns(ctx, testTenant, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestBatchService_RunDepreciation_SkipsOutOfLifeAssets(t *testing.T) {
	// GIVEN: one asset not yet in service, one past its useful life
	// WHEN: the sweep runs
	// THEN: neither produces an entry

	f := newBatchFixture(t)
	ctx := context.Background()

	f.addAsset(t, "VH-FUTURE", time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC), "20000", "0", 5)
	f.addAsset(t, "VH-OLD", time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC), "20000", "0", 5)

	run, err := f.svc.RunDepreciation(ctx, testTenant, mustPeriod(t, "2026-03"))
	require.NoError(t, err)
	assert.Zero(t, run.Processed)
	assert.Zero(t, run.Failed)
}

// =============================================================================
// INVOICE SWEEP
// =============================================================================

func TestBatchService_RunInvoices_BillableFiltering(t *testing.T) {
	// GIVEN: a running contract, one starting in the future, one that
	//        ended last year
	// WHEN: the March 2026 sweep runs
	// THEN: only the running contract is invoiced, with a deterministic
	//       invoice reference

	f := newBatchFixture(t)
	ctx := context.Background()
	ended := time.Date(2025, time.November, 30, 0, 0, 0, 0, time.UTC)

	f.addContract(t, "C-RUN", "1500", time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC), nil)
	f.addContract(t, "C-FUTURE", "900", time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC), nil)
	f.addContract(t, "C-ENDED", "1200", time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), &ended)

	run, err := f.svc.RunInvoices(ctx, testTenant, mustPeriod(t, "2026-03"))
	require.NoError(t, err)
	assert.Equal(t, 1, run.Processed)
	assert.Zero(t, run.Failed)

	entry, err := f.store.FindEntryByReference(ctx, testTenant, events.KindInvoiceIssued, "C-RUN/2026-03")
	require.NoError(t, err)
	assert.True(t, entry.TotalDebit.Equal(money("1500")))
}

func TestBatchService_RunInvoices_CountsPerContractFailures(t *testing.T) {
	// A contract with a zero rate fails its event's validation; the rest
	// of the sweep continues.
	f := newBatchFixture(t)
	ctx := context.Background()
	start := time.Date(2025, time.July, 1, 0, 0, 0, 0, time.UTC)

	f.addContract(t, "C-GOOD", "800", start, nil)
	f.addContract(t, "C-ZERO", "0", start, nil)

	run, err := f.svc.RunInvoices(ctx, testTenant, mustPeriod(t, "2026-03"))
	require.NoError(t, err)
	assert.Equal(t, 1, run.Processed)
	assert.Equal(t, 1, run.Failed)
	require.Len(t, run.Errors, 1)
	assert.Contains(t, run.Errors[0], "C-ZERO/2026-03")
	assert.Equal(t, events.RunCompleted, run.Status)
}

// =============================================================================
// RUNNER SEMANTICS
// =============================================================================

func TestRunner_ConfigurationErrorIsFatal(t *testing.T) {
	// GIVEN: a role mapped to an account that does not exist (broken
	//        tenant configuration)
	// WHEN: a depreciation sweep hits it
	// THEN: the whole run fails with ConfigurationError instead of
	//       counting per-event failures

	f := newBatchFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveMapping(ctx, ledger.AccountMapping{
		ID:        ledger.MappingID(uuid.NewString()),
		TenantID:  testTenant,
		Role:      ledger.RoleDepreciationExpense,
		AccountID: "ghost-account",
		Source:    ledger.MappingManual,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}))
	f.addAsset(t, "VH-1", time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC), "30000", "3000", 5)

	run, err := f.svc.RunDepreciation(ctx, testTenant, mustPeriod(t, "2026-03"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrConfiguration)
	assert.Equal(t, events.RunFailed, run.Status)
}

func TestRunner_MissingTenant(t *testing.T) {
	f := newBatchFixture(t)
	runner := events.NewRunner(f.gen, 2)

	_, err := runner.Run(context.Background(), "", nil)
	assert.ErrorIs(t, err, ledger.ErrAccessDenied)
}

func TestRunner_CancelledContext(t *testing.T) {
	f := newBatchFixture(t)
	runner := events.NewRunner(f.gen, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	evs := []events.Event{
		events.InvoiceIssued{InvoiceID: "I-1", RentalAmount: money("10"), IssuedAt: time.Now()},
	}
	_, err := runner.Run(ctx, testTenant, evs)
	assert.ErrorIs(t, err, context.Canceled)
}

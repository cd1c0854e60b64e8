package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/ledger-engine/events"
	"github.com/fleetcore/ledger-engine/ledger"
	"github.com/fleetcore/ledger-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const testTenant = ledger.TenantID("tenant-1")

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func money(s string) decimal.Decimal { return ledger.MustDecimal(s) }

// seedChart loads the default chart and returns a code->account lookup.
func seedChart(t *testing.T, store *sqlite.Store) func(code string) *ledger.Account {
	t.Helper()
	ctx := context.Background()
	chart := ledger.NewChartService(store)
	_, err := chart.SeedDefaultChart(ctx, testTenant)
	require.NoError(t, err)
	return func(code string) *ledger.Account {
		a, err := store.GetAccountByCode(ctx, testTenant, code)
		require.NoError(t, err, "account %s", code)
		return a
	}
}

// =============================================================================
// ENGINE ON SQLITE
// =============================================================================

func TestSQLiteStore_EntryLifecycle(t *testing.T) {
	// GIVEN: the default chart on a fresh database
	// WHEN: creating, posting and reversing an entry through the engine
	// THEN: every state transition and line survives the round trip

	store := newTestStore(t)
	byCode := seedChart(t, store)
	ctx := context.Background()
	engine := ledger.NewEngine(store, store)

	entry, created, err := engine.CreateEntry(ctx, testTenant, ledger.EntryInput{
		EntryDate:   time.Date(2026, time.March, 31, 0, 0, 0, 0, time.UTC),
		Description: "March rental invoice",
		Lines: []ledger.LineInput{
			{AccountID: byCode("1121").ID, Debit: money("1550"), Description: "receivable"},
			{AccountID: byCode("4111").ID, Credit: money("1500"), Description: "rental"},
			{AccountID: byCode("4121").ID, Credit: money("50"), Description: "late fee"},
		},
		ReferenceType: "invoice-issued",
		ReferenceID:   "INV-1001",
	})
	require.NoError(t, err)
	require.True(t, created)
	assert.Equal(t, "JE-000001", entry.Number)

	reread, err := store.GetEntry(ctx, testTenant, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusDraft, reread.Status)
	require.Len(t, reread.Lines, 3)
	assert.Equal(t, byCode("1121").ID, reread.Lines[0].AccountID)
	assert.True(t, reread.Lines[0].Debit.Equal(money("1550")))
	assert.True(t, reread.TotalCredit.Equal(money("1550")))

	posted, err := engine.Post(ctx, testTenant, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, posted.Status)
	require.NotNil(t, posted.PostedAt)

	reversal, err := engine.Reverse(ctx, testTenant, entry.ID, "billing error")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPosted, reversal.Status)
	require.NotNil(t, reversal.ReversesEntryID)
	assert.Equal(t, entry.ID, *reversal.ReversesEntryID)

	original, err := store.GetEntry(ctx, testTenant, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReversed, original.Status)
	require.NotNil(t, original.ReversedByEntryID)
	assert.Equal(t, reversal.ID, *original.ReversedByEntryID)
}

func TestSQLiteStore_ReferenceIdempotency(t *testing.T) {
	// GIVEN: an entry booked under a reference
	// WHEN: replaying the reference, then reversing and replaying again
	// THEN: the replay is absorbed; reversal frees the slot for a rebook

	store := newTestStore(t)
	byCode := seedChart(t, store)
	ctx := context.Background()
	engine := ledger.NewEngine(store, store)

	input := ledger.EntryInput{
		EntryDate:   time.Now().UTC(),
		Description: "payment",
		Lines: []ledger.LineInput{
			{AccountID: byCode("1111").ID, Debit: money("750")},
			{AccountID: byCode("1121").ID, Credit: money("750")},
		},
		ReferenceType: "payment-received",
		ReferenceID:   "PAY-42",
	}

	first, created, err := engine.CreateEntry(ctx, testTenant, input)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := engine.CreateEntry(ctx, testTenant, input)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	entries, err := store.ListEntries(ctx, testTenant, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	_, err = engine.Post(ctx, testTenant, first.ID)
	require.NoError(t, err)
	_, err = engine.Reverse(ctx, testTenant, first.ID, "bounced")
	require.NoError(t, err)

	rebooked, created, err := engine.CreateEntry(ctx, testTenant, input)
	require.NoError(t, err)
	assert.True(t, created, "reversal frees the reference")
	assert.NotEqual(t, first.ID, rebooked.ID)
}

func TestSQLiteStore_InsertEntry_DuplicateReferenceConflict(t *testing.T) {
	// The partial unique index is the last line of defense under races:
	// a second insert with a live reference must surface as a conflict.

	store := newTestStore(t)
	byCode := seedChart(t, store)
	ctx := context.Background()

	build := func() ledger.JournalEntry {
		id := ledger.EntryID(uuid.New().String())
		seq, err := store.NextSequence(ctx, testTenant)
		require.NoError(t, err)
		return ledger.JournalEntry{
			ID:            id,
			TenantID:      testTenant,
			Sequence:      seq,
			Number:        ledger.FormatEntryNumber(seq),
			EntryDate:     time.Now().UTC(),
			Status:        ledger.StatusDraft,
			ReferenceType: "invoice-issued",
			ReferenceID:   "INV-DUP",
			TotalDebit:    money("100"),
			TotalCredit:   money("100"),
			Lines: []ledger.JournalLine{
				{ID: ledger.LineID(uuid.New().String()), EntryID: id, LineNumber: 1,
					AccountID: byCode("1111").ID, Debit: money("100"), Credit: decimal.Zero},
				{ID: ledger.LineID(uuid.New().String()), EntryID: id, LineNumber: 2,
					AccountID: byCode("4111").ID, Debit: decimal.Zero, Credit: money("100")},
			},
			CreatedAt: time.Now().UTC(),
		}
	}

	require.NoError(t, store.InsertEntry(ctx, build()))

	err := store.InsertEntry(ctx, build())
	require.Error(t, err)
	assert.True(t, ledger.IsConflict(err))
}

func TestSQLiteStore_NextSequence_PerTenant(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := store.NextSequence(ctx, testTenant)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	other, err := store.NextSequence(ctx, ledger.TenantID("tenant-2"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), other, "sequences are tenant-scoped")
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLiteStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: a transaction that saves an account and then fails
	// WHEN: WithTx returns the error
	// THEN: the account was never committed

	store := newTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := store.WithTx(ctx, func(s ledger.Store) error {
		saveErr := s.SaveAccount(ctx, ledger.Account{
			ID:       ledger.AccountID(uuid.New().String()),
			TenantID: testTenant,
			Code:     "1",
			Name:     "Assets",
			Type:     ledger.AccountAsset,
			Level:    1,
			IsHeader: true,
			IsActive: true,
		})
		if saveErr != nil {
			return saveErr
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	_, err = store.GetAccountByCode(ctx, testTenant, "1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSQLiteStore_WithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s ledger.Store) error {
		return s.SaveAccount(ctx, ledger.Account{
			ID:       ledger.AccountID(uuid.New().String()),
			TenantID: testTenant,
			Code:     "1",
			Name:     "Assets",
			Type:     ledger.AccountAsset,
			Level:    1,
			IsHeader: true,
			IsActive: true,
		})
	})
	require.NoError(t, err)

	a, err := store.GetAccountByCode(ctx, testTenant, "1")
	require.NoError(t, err)
	assert.Equal(t, "Assets", a.Name)
}

// =============================================================================
// BALANCES
// =============================================================================

func TestSQLiteStore_Activity_SkipsDraftsAndHonorsCutoff(t *testing.T) {
	store := newTestStore(t)
	byCode := seedChart(t, store)
	ctx := context.Background()
	engine := ledger.NewEngine(store, store)
	agg := ledger.NewAggregator(store)

	post := func(date time.Time, amount string) {
		e, _, err := engine.CreateEntry(ctx, testTenant, ledger.EntryInput{
			EntryDate:   date,
			Description: "rental",
			Lines: []ledger.LineInput{
				{AccountID: byCode("1111").ID, Debit: money(amount)},
				{AccountID: byCode("4111").ID, Credit: money(amount)},
			},
		})
		require.NoError(t, err)
		_, err = engine.Post(ctx, testTenant, e.ID)
		require.NoError(t, err)
	}

	post(time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), "200")
	post(time.Date(2026, time.May, 2, 0, 0, 0, 0, time.UTC), "300")

	// A draft that must never count.
	_, _, err := engine.CreateEntry(ctx, testTenant, ledger.EntryInput{
		EntryDate:   time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC),
		Description: "draft",
		Lines: []ledger.LineInput{
			{AccountID: byCode("1111").ID, Debit: money("999")},
			{AccountID: byCode("4111").ID, Credit: money("999")},
		},
	})
	require.NoError(t, err)

	cutoff := time.Date(2026, time.April, 30, 0, 0, 0, 0, time.UTC)
	balance, err := agg.AccountBalance(ctx, testTenant, byCode("1111").ID, &cutoff)
	require.NoError(t, err)
	assert.True(t, balance.NetBalance.Equal(money("200")), "got %s", balance.NetBalance)
	assert.Equal(t, 1, balance.TransactionCount)

	tb, err := agg.ComputeTrialBalance(ctx, testTenant, nil)
	require.NoError(t, err)
	assert.True(t, tb.OutOfBalance().IsZero())
}

// =============================================================================
// REGISTRY
// =============================================================================

func TestSQLiteStore_ContractRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	end := time.Date(2026, time.December, 31, 0, 0, 0, 0, time.UTC)
	contract := events.Contract{
		ID:            "C-1",
		TenantID:      testTenant,
		CustomerName:  "Acme Logistics",
		VehicleID:     "VH-7",
		MonthlyRate:   money("1500"),
		DepositAmount: money("500"),
		StartDate:     time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       &end,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
	require.NoError(t, store.SaveContract(ctx, contract))

	got, err := store.GetContract(ctx, testTenant, "C-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme Logistics", got.CustomerName)
	assert.True(t, got.MonthlyRate.Equal(money("1500")))
	require.NotNil(t, got.EndDate)
	assert.True(t, got.EndDate.Equal(end))

	// Saving again updates in place.
	contract.IsActive = false
	require.NoError(t, store.SaveContract(ctx, contract))

	active, err := store.ListContracts(ctx, testTenant, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := store.ListContracts(ctx, testTenant, false)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = store.GetContract(ctx, ledger.TenantID("tenant-2"), "C-1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSQLiteStore_AssetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveAsset(ctx, events.Asset{
		ID:              "VH-7",
		TenantID:        testTenant,
		Name:            "Transit Van",
		PurchasePrice:   money("30000"),
		SalvageValue:    money("3000"),
		UsefulLifeYears: 5,
		InServiceDate:   time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
	}))

	got, err := store.GetAsset(ctx, testTenant, "VH-7")
	require.NoError(t, err)
	assert.Equal(t, "Transit Van", got.Name)
	assert.True(t, got.MonthlyCharge().Equal(money("450")))

	assets, err := store.ListAssets(ctx, testTenant, true)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}

func TestSQLiteStore_BatchRunUpsertAndHistory(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	run := events.BatchRun{
		ID:        uuid.New().String(),
		TenantID:  testTenant,
		Kind:      "monthly-depreciation",
		Period:    "2026-03",
		Status:    events.RunRunning,
		StartedAt: time.Date(2026, time.April, 1, 3, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveBatchRun(ctx, run))

	finished := run.StartedAt.Add(2 * time.Second)
	run.Status = events.RunCompleted
	run.Processed = 12
	run.Skipped = 3
	run.FinishedAt = &finished
	require.NoError(t, store.SaveBatchRun(ctx, run))

	later := run
	later.ID = uuid.New().String()
	later.Period = "2026-04"
	later.StartedAt = run.StartedAt.AddDate(0, 1, 0)
	require.NoError(t, store.SaveBatchRun(ctx, later))

	runs, err := store.ListBatchRuns(ctx, testTenant, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2, "rerun updates, not duplicates")
	assert.Equal(t, "2026-04", runs[0].Period, "newest first")
	assert.Equal(t, events.RunCompleted, runs[1].Status)
	assert.Equal(t, 12, runs[1].Processed)
	require.NotNil(t, runs[1].FinishedAt)

	limited, err := store.ListBatchRuns(ctx, testTenant, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLiteStore_ListTenants(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveContract(ctx, events.Contract{
		ID: "C-1", TenantID: "tenant-b", CustomerName: "B", MonthlyRate: money("100"),
		DepositAmount: decimal.Zero, StartDate: time.Now().UTC(), IsActive: true,
		CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.SaveAsset(ctx, events.Asset{
		ID: "VH-1", TenantID: "tenant-a", Name: "Van", PurchasePrice: money("100"),
		SalvageValue: decimal.Zero, UsefulLifeYears: 3, InServiceDate: time.Now().UTC(),
		IsActive: true, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, store.SaveAsset(ctx, events.Asset{
		ID: "VH-2", TenantID: "tenant-b", Name: "Truck", PurchasePrice: money("100"),
		SalvageValue: decimal.Zero, UsefulLifeYears: 3, InServiceDate: time.Now().UTC(),
		IsActive: true, CreatedAt: time.Now().UTC(),
	}))

	tenants, err := store.ListTenants(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ledger.TenantID{"tenant-a", "tenant-b"}, tenants)
}

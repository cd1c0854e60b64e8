package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/ledger-engine/api"
	"github.com/fleetcore/ledger-engine/events"
	"github.com/fleetcore/ledger-engine/ledger"
	"github.com/fleetcore/ledger-engine/store/sqlite"
)

func TestBatchScheduler_RunNow_SweepsEveryTenant(t *testing.T) {
	// GIVEN: contracts for two tenants and an asset for one
	// WHEN: the scheduler fires once
	// THEN: both tenants get run records for the previous month

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	for _, tenant := range []ledger.TenantID{"tenant-a", "tenant-b"} {
		require.NoError(t, store.SaveContract(ctx, events.Contract{
			ID: "C-" + string(tenant), TenantID: tenant, CustomerName: "Customer",
			MonthlyRate: ledger.MustDecimal("1200"), DepositAmount: ledger.MustDecimal("0"),
			StartDate: start, IsActive: true, CreatedAt: start,
		}))
	}
	require.NoError(t, store.SaveAsset(ctx, events.Asset{
		ID: "VH-1", TenantID: "tenant-a", Name: "Van",
		PurchasePrice: ledger.MustDecimal("30000"), SalvageValue: ledger.MustDecimal("3000"),
		UsefulLifeYears: 5, InServiceDate: start, IsActive: true, CreatedAt: start,
	}))

	handler := api.NewHandler(store, 4)
	scheduler := api.NewBatchScheduler(store, handler.Batch)
	scheduler.RunNow()

	for _, tenant := range []ledger.TenantID{"tenant-a", "tenant-b"} {
		runs, err := store.ListBatchRuns(ctx, tenant, 0)
		require.NoError(t, err)
		require.Len(t, runs, 2, "invoice and depreciation sweeps for %s", tenant)
		for _, run := range runs {
			assert.Equal(t, events.RunCompleted, run.Status, "%s %s", tenant, run.Kind)
		}
	}

	// One invoice per tenant landed in the journal.
	entries, err := store.ListEntries(ctx, "tenant-a", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "invoice plus depreciation charge")

	entries, err = store.ListEntries(ctx, "tenant-b", 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "invoice only, no assets")
}

func TestBatchScheduler_StartStop(t *testing.T) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	defer store.Close()

	handler := api.NewHandler(store, 2)
	scheduler := api.NewBatchScheduler(store, handler.Batch)
	scheduler.CheckInterval = time.Hour

	scheduler.Start()
	scheduler.Stop()
}

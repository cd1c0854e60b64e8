package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/ledger-engine/ledger"
	"github.com/fleetcore/ledger-engine/ledger/store"
)

// =============================================================================
// STRUCTURAL VALIDATION
// =============================================================================

func TestChart_CreateAccount_Hierarchy(t *testing.T) {
	// GIVEN: an empty chart
	// WHEN: building a small tree root-first
	// THEN: each level validates against its parent

	mem := store.NewMemory()
	chart := ledger.NewChartService(mem)
	ctx := context.Background()

	root, err := chart.CreateAccount(ctx, testTenant, ledger.CreateAccountInput{
		Code: "1", Name: "Assets", Type: ledger.AccountAsset, Level: 1, IsHeader: true,
	})
	require.NoError(t, err)

	child, err := chart.CreateAccount(ctx, testTenant, ledger.CreateAccountInput{
		Code: "11", Name: "Current Assets", Type: ledger.AccountAsset, Level: 2,
		ParentID: &root.ID, IsHeader: true,
	})
	require.NoError(t, err)
	assert.Equal(t, root.ID, *child.ParentID)
}

func TestChart_CreateAccount_Rejections(t *testing.T) {
	mem := store.NewMemory()
	chart := ledger.NewChartService(mem)
	ctx := context.Background()

	root, err := chart.CreateAccount(ctx, testTenant, ledger.CreateAccountInput{
		Code: "1", Name: "Assets", Type: ledger.AccountAsset, Level: 1, IsHeader: true,
	})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   ledger.CreateAccountInput
	}{
		{"duplicate code", ledger.CreateAccountInput{
			Code: "1", Name: "Assets Again", Type: ledger.AccountAsset, Level: 1, IsHeader: true,
		}},
		{"unknown type", ledger.CreateAccountInput{
			Code: "9", Name: "Other", Type: "mystery", Level: 1,
		}},
		{"level without parent", ledger.CreateAccountInput{
			Code: "11", Name: "Current Assets", Type: ledger.AccountAsset, Level: 2,
		}},
		{"root with parent", ledger.CreateAccountInput{
			Code: "2", Name: "Liabilities", Type: ledger.AccountLiability, Level: 1, ParentID: &root.ID,
		}},
		{"parent level mismatch", ledger.CreateAccountInput{
			Code: "111", Name: "Cash and Banks", Type: ledger.AccountAsset, Level: 3, ParentID: &root.ID,
		}},
		{"level out of range", ledger.CreateAccountInput{
			Code: "1111111", Name: "Too Deep", Type: ledger.AccountAsset, Level: 7,
		}},
		{"empty name", ledger.CreateAccountInput{
			Code: "3", Type: ledger.AccountEquity, Level: 1,
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := chart.CreateAccount(ctx, testTenant, tc.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ledger.ErrValidation)
		})
	}
}

func TestChart_CreateAccount_MissingTenant(t *testing.T) {
	chart := ledger.NewChartService(store.NewMemory())
	_, err := chart.CreateAccount(context.Background(), "", ledger.CreateAccountInput{
		Code: "1", Name: "Assets", Type: ledger.AccountAsset, Level: 1,
	})
	assert.ErrorIs(t, err, ledger.ErrAccessDenied)
}

// =============================================================================
// DEACTIVATION
// =============================================================================

func TestChart_DeactivateAccount_RefusedWithChildren(t *testing.T) {
	// GIVEN: "11" Current Assets with active children
	// WHEN: deactivating it
	// THEN: ConflictError; the account stays active

	f := newFixture(t)
	ctx := context.Background()
	parent := f.accountByCode(t, "11")

	_, err := f.chart.DeactivateAccount(ctx, testTenant, parent.ID)
	require.Error(t, err)
	assert.True(t, ledger.IsConflict(err))

	reread := f.accountByCode(t, "11")
	assert.True(t, reread.IsActive)
}

func TestChart_DeactivateAccount_RefusedWithPostings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cash := f.accountByCode(t, "1111")

	entry, _, err := f.engine.CreateEntry(ctx, testTenant, f.balancedInput(t, "75"))
	require.NoError(t, err)
	_, err = f.engine.Post(ctx, testTenant, entry.ID)
	require.NoError(t, err)

	_, err = f.chart.DeactivateAccount(ctx, testTenant, cash.ID)
	require.Error(t, err)
	assert.True(t, ledger.IsConflict(err))
}

func TestChart_DeactivateAccount_LeafWithoutActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leaf := f.accountByCode(t, "1122") // Rental Deposits Receivable, untouched

	got, err := f.chart.DeactivateAccount(ctx, testTenant, leaf.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// Idempotent on repeat.
	again, err := f.chart.DeactivateAccount(ctx, testTenant, leaf.ID)
	require.NoError(t, err)
	assert.False(t, again.IsActive)
}

// =============================================================================
// SEEDING AND STATISTICS
// =============================================================================

func TestChart_SeedDefaultChart_Idempotent(t *testing.T) {
	mem := store.NewMemory()
	chart := ledger.NewChartService(mem)
	ctx := context.Background()

	created, err := chart.SeedDefaultChart(ctx, testTenant)
	require.NoError(t, err)
	assert.Greater(t, created, 20)

	again, err := chart.SeedDefaultChart(ctx, testTenant)
	require.NoError(t, err)
	assert.Zero(t, again, "second seeding must create nothing")
}

func TestChart_ListAccounts_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	revenue, err := f.chart.ListAccounts(ctx, testTenant, ledger.AccountFilter{Type: ledger.AccountRevenue})
	require.NoError(t, err)
	require.NotEmpty(t, revenue)
	for _, a := range revenue {
		assert.Equal(t, ledger.AccountRevenue, a.Type)
	}

	roots, err := f.chart.ListAccounts(ctx, testTenant, ledger.AccountFilter{Level: 1})
	require.NoError(t, err)
	assert.Len(t, roots, 5)
}

func TestChart_Statistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	stats, err := f.chart.Statistics(ctx, testTenant)
	require.NoError(t, err)
	assert.Equal(t, stats.TotalAccounts, stats.ActiveAccounts)
	assert.Equal(t, stats.TotalAccounts, stats.HeaderCount+stats.DetailCount)
	assert.Equal(t, 4, stats.MaxDepth)

	byTypeSum := 0
	for _, n := range stats.ByType {
		byTypeSum += n
	}
	assert.Equal(t, stats.TotalAccounts, byTypeSum)
	assert.Equal(t, 5, stats.ByLevel[1])
}

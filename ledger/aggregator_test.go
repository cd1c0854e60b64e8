package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcore/ledger-engine/ledger"
)

// postEntry creates and posts a balanced entry between two account codes.
func (f *fixture) postEntry(t *testing.T, debitCode, creditCode, amount string, date time.Time) *ledger.JournalEntry {
	t.Helper()
	ctx := context.Background()
	entry, _, err := f.engine.CreateEntry(ctx, testTenant, ledger.EntryInput{
		EntryDate:   date,
		Description: debitCode + " against " + creditCode,
		Lines: []ledger.LineInput{
			{AccountID: f.accountByCode(t, debitCode).ID, Debit: money(amount)},
			{AccountID: f.accountByCode(t, creditCode).ID, Credit: money(amount)},
		},
	})
	require.NoError(t, err)
	posted, err := f.engine.Post(ctx, testTenant, entry.ID)
	require.NoError(t, err)
	return posted
}

// =============================================================================
// ACCOUNT BALANCE
// =============================================================================

func TestAggregator_AccountBalance_NaturalSide(t *testing.T) {
	// GIVEN: 1500 posted from cash (debit-normal) to rental revenue
	//        (credit-normal)
	// WHEN: reading both balances
	// THEN: each nets +1500 on its own natural side

	f := newFixture(t)
	ctx := context.Background()
	date := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)

	f.postEntry(t, "1111", "4111", "1500", date)

	cash, err := f.agg.AccountBalance(ctx, testTenant, f.accountByCode(t, "1111").ID, nil)
	require.NoError(t, err)
	assert.True(t, cash.NetBalance.Equal(money("1500")), "cash nets %s", cash.NetBalance)
	assert.True(t, cash.DebitTotal.Equal(money("1500")))
	assert.True(t, cash.CreditTotal.IsZero())
	assert.Equal(t, 1, cash.TransactionCount)

	revenue, err := f.agg.AccountBalance(ctx, testTenant, f.accountByCode(t, "4111").ID, nil)
	require.NoError(t, err)
	assert.True(t, revenue.NetBalance.Equal(money("1500")), "revenue nets %s", revenue.NetBalance)
	assert.True(t, revenue.CreditTotal.Equal(money("1500")))
}

func TestAggregator_AccountBalance_IgnoresDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.engine.CreateEntry(ctx, testTenant, f.balancedInput(t, "999"))
	require.NoError(t, err)

	balance, err := f.agg.AccountBalance(ctx, testTenant, f.accountByCode(t, "1111").ID, nil)
	require.NoError(t, err)
	assert.True(t, balance.NetBalance.IsZero(), "drafts must not move balances")
	assert.Zero(t, balance.TransactionCount)
}

func TestAggregator_AccountBalance_AsOfCutoff(t *testing.T) {
	// GIVEN: postings in March and May
	// WHEN: reading the balance as of April 30
	// THEN: only the March posting counts

	f := newFixture(t)
	ctx := context.Background()
	march := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	may := time.Date(2026, time.May, 10, 0, 0, 0, 0, time.UTC)

	f.postEntry(t, "1111", "4111", "200", march)
	f.postEntry(t, "1111", "4111", "300", may)

	cutoff := time.Date(2026, time.April, 30, 23, 59, 59, 0, time.UTC)
	balance, err := f.agg.AccountBalance(ctx, testTenant, f.accountByCode(t, "1111").ID, &cutoff)
	require.NoError(t, err)
	assert.True(t, balance.NetBalance.Equal(money("200")), "got %s", balance.NetBalance)
}

// =============================================================================
// TRIAL BALANCE
// =============================================================================

func TestAggregator_TrialBalance_SumsToZero(t *testing.T) {
	// GIVEN: a handful of postings across all five account types
	// WHEN: computing the trial balance
	// THEN: the side-weighted sum is exactly zero

	f := newFixture(t)
	ctx := context.Background()
	date := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	f.postEntry(t, "1111", "311", "10000", date)  // owner capital in
	f.postEntry(t, "1111", "4111", "1500", date)  // rental income
	f.postEntry(t, "1121", "4112", "2200", date)  // monthly rental on account
	f.postEntry(t, "5141", "1291", "333.33", date) // depreciation charge
	f.postEntry(t, "1111", "2131", "500", date)   // deposit held

	tb, err := f.agg.ComputeTrialBalance(ctx, testTenant, nil)
	require.NoError(t, err)
	require.NotEmpty(t, tb.Rows)
	assert.True(t, tb.OutOfBalance().IsZero(), "out of balance by %s", tb.OutOfBalance())

	// Rows come back ordered by account code.
	for i := 1; i < len(tb.Rows); i++ {
		assert.Less(t, tb.Rows[i-1].AccountCode, tb.Rows[i].AccountCode)
	}
}

func TestAggregator_TrialBalance_UnchangedByReversalPair(t *testing.T) {
	// A reversal pair nets to zero, so the trial balance before the
	// original and after the reversal agree.

	f := newFixture(t)
	ctx := context.Background()
	date := time.Date(2026, time.June, 1, 0, 0, 0, 0, time.UTC)

	f.postEntry(t, "1111", "4111", "800", date)

	entry := f.postEntry(t, "1121", "4112", "650", date)
	_, err := f.engine.Reverse(ctx, testTenant, entry.ID, "voided invoice")
	require.NoError(t, err)

	after, err := f.agg.ComputeTrialBalance(ctx, testTenant, nil)
	require.NoError(t, err)
	assert.True(t, after.OutOfBalance().IsZero())

	// The reversed pair leaves 1121 and 4112 at net zero.
	for _, row := range after.Rows {
		if row.AccountCode == "1121" || row.AccountCode == "4112" {
			assert.True(t, row.NetBalance.IsZero(), "account %s nets %s", row.AccountCode, row.NetBalance)
		}
	}
}

func TestAggregator_TrialBalance_EmptyLedger(t *testing.T) {
	f := newFixture(t)

	tb, err := f.agg.ComputeTrialBalance(context.Background(), testTenant, nil)
	require.NoError(t, err)
	assert.Empty(t, tb.Rows)
	assert.True(t, tb.OutOfBalance().IsZero())
}

// =============================================================================
// COST CENTERS
// =============================================================================

func TestAggregator_CostCenterActuals(t *testing.T) {
	// GIVEN: a cost center with a 1000 budget and 600 of tagged expense
	// WHEN: reading its report
	// THEN: actual 600, variance 400

	f := newFixture(t)
	ctx := context.Background()

	center := ledger.CostCenter{
		ID:        ledger.CostCenterID(uuid.NewString()),
		TenantID:  testTenant,
		Code:      "FLEET-NORTH",
		Name:      "Northern Fleet",
		Budget:    money("1000"),
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, f.store.SaveCostCenter(ctx, center))

	entry, _, err := f.engine.CreateEntry(ctx, testTenant, ledger.EntryInput{
		EntryDate:   time.Date(2026, time.July, 1, 0, 0, 0, 0, time.UTC),
		Description: "maintenance",
		Lines: []ledger.LineInput{
			{AccountID: f.accountByCode(t, "512").ID, Debit: money("600"), CostCenterID: &center.ID},
			{AccountID: f.accountByCode(t, "1111").ID, Credit: money("600")},
		},
	})
	require.NoError(t, err)
	_, err = f.engine.Post(ctx, testTenant, entry.ID)
	require.NoError(t, err)

	report, err := f.agg.CostCenterActuals(ctx, testTenant, center.ID)
	require.NoError(t, err)
	assert.True(t, report.Actual.Equal(money("600")))
	assert.True(t, report.Variance.Equal(money("400")))
	assert.Equal(t, 1, report.LineCount)
}

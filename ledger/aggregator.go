/*
aggregator.go - Read-side balance computation

PURPOSE:
  Balances are derived by summing posted journal lines - there is no
  stored balance anywhere that could drift or suffer a lost update.
  Draft entries contribute nothing; reversed entries stay in the sums
  and are cancelled by their mirrored reversal entries, so the trial
  balance is unchanged by a reversal pair.

SIGN CONVENTION:
  NetBalance follows the account's natural side: debit minus credit for
  assets and expenses, credit minus debit for liabilities, equity, and
  revenue. The whole-book check re-applies the side weight, so a
  balanced ledger always nets to exactly zero.

SEE ALSO:
  - store.go: BalanceReader contract
  - engine.go: the only writer
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Aggregator computes balances from posted lines.
type Aggregator struct {
	store Store
}

func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// AccountBalance sums posted lines for one account up to asOf (inclusive).
func (g *Aggregator) AccountBalance(ctx context.Context, tenant TenantID, id AccountID, asOf *time.Time) (*AccountBalance, error) {
	if tenant == "" {
		return nil, ErrAccessDenied
	}
	account, err := g.store.GetAccount(ctx, tenant, id)
	if err != nil {
		return nil, err
	}

	totals, err := g.store.AccountActivity(ctx, tenant, id, asOf)
	if err != nil {
		return nil, err
	}

	return &AccountBalance{
		AccountID:        account.ID,
		AccountCode:      account.Code,
		AccountName:      account.Name,
		AccountType:      account.Type,
		DebitTotal:       totals.Debit,
		CreditTotal:      totals.Credit,
		NetBalance:       naturalNet(account, totals),
		TransactionCount: totals.Count,
	}, nil
}

// TrialBalanceRow is one account's line in the trial balance.
type TrialBalanceRow struct {
	AccountBalance
	NormalSide BalanceSide
}

// TrialBalance is the full listing used to verify the books balance.
type TrialBalance struct {
	TenantID TenantID
	AsOf     *time.Time
	Rows     []TrialBalanceRow
}

// OutOfBalance sums every row's net weighted by its normal side. A
// balanced ledger yields exactly zero.
func (tb *TrialBalance) OutOfBalance() decimal.Decimal {
	sum := decimal.Zero
	for _, row := range tb.Rows {
		if row.NormalSide == SideDebit {
			sum = sum.Add(row.NetBalance)
		} else {
			sum = sum.Sub(row.NetBalance)
		}
	}
	return sum
}

// ComputeTrialBalance produces per-account balances ordered by account
// code. Accounts without posted activity are omitted.
func (g *Aggregator) ComputeTrialBalance(ctx context.Context, tenant TenantID, asOf *time.Time) (*TrialBalance, error) {
	if tenant == "" {
		return nil, ErrAccessDenied
	}

	activity, err := g.store.AllActivity(ctx, tenant, asOf)
	if err != nil {
		return nil, err
	}

	tb := &TrialBalance{TenantID: tenant, AsOf: asOf}
	for _, totals := range activity {
		account, err := g.store.GetAccount(ctx, tenant, totals.AccountID)
		if err != nil {
			return nil, err
		}
		tb.Rows = append(tb.Rows, TrialBalanceRow{
			AccountBalance: AccountBalance{
				AccountID:        account.ID,
				AccountCode:      account.Code,
				AccountName:      account.Name,
				AccountType:      account.Type,
				DebitTotal:       totals.Debit,
				CreditTotal:      totals.Credit,
				NetBalance:       naturalNet(account, totals),
				TransactionCount: totals.Count,
			},
			NormalSide: account.NormalSide(),
		})
	}
	return tb, nil
}

// CostCenterReport compares a cost center's budget to its posted actuals.
type CostCenterReport struct {
	CostCenter CostCenter
	Actual     decimal.Decimal // net debit activity tagged with the center
	Budget     decimal.Decimal
	Variance   decimal.Decimal // budget - actual
	LineCount  int
}

// CostCenterActuals sums posted lines tagged with the cost center.
func (g *Aggregator) CostCenterActuals(ctx context.Context, tenant TenantID, id CostCenterID) (*CostCenterReport, error) {
	if tenant == "" {
		return nil, ErrAccessDenied
	}
	center, err := g.store.GetCostCenter(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	totals, err := g.store.CostCenterActivity(ctx, tenant, id)
	if err != nil {
		return nil, err
	}

	actual := totals.Debit.Sub(totals.Credit)
	return &CostCenterReport{
		CostCenter: *center,
		Actual:     actual,
		Budget:     center.Budget,
		Variance:   center.Budget.Sub(actual),
		LineCount:  totals.Count,
	}, nil
}

// naturalNet converts raw debit/credit totals to the account's normal side.
func naturalNet(account *Account, totals ActivityTotals) decimal.Decimal {
	if account.NormalSide() == SideDebit {
		return totals.Debit.Sub(totals.Credit)
	}
	return totals.Credit.Sub(totals.Debit)
}

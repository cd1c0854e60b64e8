/*
generators.go - Event-to-entry translation

PURPOSE:
  One Generator per process. Apply() validates the event, resolves the
  roles it touches, builds the balanced lines, and hands the entry to
  the journal engine with the event's (kind, reference) as the
  idempotency pair. Entries that Apply creates are posted immediately;
  a replayed event returns the existing entry, posting it first if an
  earlier interrupted run left it in draft.

POSTING RULES:
  invoice-issued:       Dr accounts-receivable      total
                        Cr rental-revenue           rental amount
                        Cr late-fee-revenue         late fee (if any)
  payment-received:     Dr cash                     amount
                        Cr accounts-receivable      amount
  deposit-returned:     Dr security-deposits        deposit amount
                        Cr cash                     refunded portion
                        Cr late-fee-revenue         withheld portion (if any)
  monthly-depreciation: Dr depreciation-expense     charge
                        Cr accumulated-depreciation charge

SEE ALSO:
  - events.go: payload validation
  - ledger/mapping.go: role resolution
*/
package events

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/fleetcore/ledger-engine/ledger"
)

// Generator builds and posts journal entries from events.
type Generator struct {
	resolver *ledger.Resolver
	engine   *ledger.Engine
}

func NewGenerator(resolver *ledger.Resolver, engine *ledger.Engine) *Generator {
	return &Generator{resolver: resolver, engine: engine}
}

// Apply translates one event into a posted journal entry.
//
// created=false means the event had already been applied; the existing
// entry is returned untouched.
func (g *Generator) Apply(ctx context.Context, tenant ledger.TenantID, ev Event) (*ledger.JournalEntry, bool, error) {
	if tenant == "" {
		return nil, false, ledger.ErrAccessDenied
	}
	if err := ev.Validate(); err != nil {
		return nil, false, err
	}

	var in ledger.EntryInput
	var err error
	switch e := ev.(type) {
	case InvoiceIssued:
		in, err = g.invoiceLines(ctx, tenant, e)
	case PaymentReceived:
		in, err = g.paymentLines(ctx, tenant, e)
	case DepositReturned:
		in, err = g.depositLines(ctx, tenant, e)
	case DepreciationCharge:
		in, err = g.depreciationLines(ctx, tenant, e)
	default:
		return nil, false, &ledger.ValidationError{Field: "event", Message: fmt.Sprintf("unsupported event type %T", ev)}
	}
	if err != nil {
		return nil, false, err
	}

	in.ReferenceType = ev.Kind()
	in.ReferenceID = ev.Reference()

	entry, created, err := g.engine.CreateEntry(ctx, tenant, in)
	if err != nil {
		return nil, false, err
	}
	if !created {
		// A process that stopped between create and post leaves a draft
		// occupying the reference. Post it now so the replay makes the
		// amount durable instead of skipping it forever.
		if entry.Status == ledger.StatusDraft {
			posted, err := g.engine.Post(ctx, tenant, entry.ID)
			if err != nil {
				return nil, false, err
			}
			return posted, false, nil
		}
		return entry, false, nil
	}

	posted, err := g.engine.Post(ctx, tenant, entry.ID)
	if err != nil {
		return nil, false, err
	}
	return posted, true, nil
}

func (g *Generator) invoiceLines(ctx context.Context, tenant ledger.TenantID, e InvoiceIssued) (ledger.EntryInput, error) {
	roles := []string{ledger.RoleAccountsReceivable, ledger.RoleRentalRevenue}
	if e.LateFee.IsPositive() {
		roles = append(roles, ledger.RoleLateFeeRevenue)
	}
	accounts, err := g.resolver.ResolveMany(ctx, tenant, roles)
	if err != nil {
		return ledger.EntryInput{}, err
	}

	lines := []ledger.LineInput{
		{AccountID: accounts[ledger.RoleAccountsReceivable].ID, Debit: e.Total(), Description: "Invoice " + e.InvoiceID},
		{AccountID: accounts[ledger.RoleRentalRevenue].ID, Credit: e.RentalAmount, Description: "Rental revenue"},
	}
	if e.LateFee.IsPositive() {
		lines = append(lines, ledger.LineInput{
			AccountID: accounts[ledger.RoleLateFeeRevenue].ID, Credit: e.LateFee, Description: "Late fee",
		})
	}

	return ledger.EntryInput{
		EntryDate:   e.IssuedAt,
		Description: "Invoice issued: " + e.InvoiceID,
		Lines:       lines,
	}, nil
}

func (g *Generator) paymentLines(ctx context.Context, tenant ledger.TenantID, e PaymentReceived) (ledger.EntryInput, error) {
	accounts, err := g.resolver.ResolveMany(ctx, tenant, []string{ledger.RoleCash, ledger.RoleAccountsReceivable})
	if err != nil {
		return ledger.EntryInput{}, err
	}

	description := "Payment received: " + e.PaymentID
	if e.InvoiceID != "" {
		description += " for invoice " + e.InvoiceID
	}
	return ledger.EntryInput{
		EntryDate:   e.ReceivedAt,
		Description: description,
		Lines: []ledger.LineInput{
			{AccountID: accounts[ledger.RoleCash].ID, Debit: e.Amount, Description: "Cash in"},
			{AccountID: accounts[ledger.RoleAccountsReceivable].ID, Credit: e.Amount, Description: "Receivable settled"},
		},
	}, nil
}

func (g *Generator) depositLines(ctx context.Context, tenant ledger.TenantID, e DepositReturned) (ledger.EntryInput, error) {
	roles := []string{ledger.RoleSecurityDeposits, ledger.RoleCash}
	if e.Withheld.IsPositive() {
		roles = append(roles, ledger.RoleLateFeeRevenue)
	}
	accounts, err := g.resolver.ResolveMany(ctx, tenant, roles)
	if err != nil {
		return ledger.EntryInput{}, err
	}

	lines := []ledger.LineInput{
		{AccountID: accounts[ledger.RoleSecurityDeposits].ID, Debit: e.Amount, Description: "Deposit released"},
	}
	if e.Refunded().IsPositive() {
		lines = append(lines, ledger.LineInput{
			AccountID: accounts[ledger.RoleCash].ID, Credit: e.Refunded(), Description: "Deposit refunded",
		})
	}
	if e.Withheld.IsPositive() {
		lines = append(lines, ledger.LineInput{
			AccountID: accounts[ledger.RoleLateFeeRevenue].ID, Credit: e.Withheld, Description: "Deposit withheld",
		})
	}

	return ledger.EntryInput{
		EntryDate:   e.ReturnedAt,
		Description: "Deposit returned: " + e.DepositID,
		Lines:       lines,
	}, nil
}

func (g *Generator) depreciationLines(ctx context.Context, tenant ledger.TenantID, e DepreciationCharge) (ledger.EntryInput, error) {
	accounts, err := g.resolver.ResolveMany(ctx, tenant, []string{
		ledger.RoleDepreciationExpense, ledger.RoleAccumulatedDepreciation,
	})
	if err != nil {
		return ledger.EntryInput{}, err
	}

	return ledger.EntryInput{
		EntryDate:   e.Period.End(),
		Description: fmt.Sprintf("Depreciation %s for asset %s", e.Period, e.AssetID),
		Lines: []ledger.LineInput{
			{AccountID: accounts[ledger.RoleDepreciationExpense].ID, Debit: e.Amount, Description: "Monthly depreciation"},
			{AccountID: accounts[ledger.RoleAccumulatedDepreciation].ID, Credit: e.Amount, Description: "Accumulated depreciation"},
		},
	}, nil
}

// =============================================================================
// DEPRECIATION MATH
// =============================================================================

var monthsPerYear = decimal.NewFromInt(12)

// MonthlyDepreciation is the straight-line monthly charge:
// (purchase - salvage) / (useful life in months), rounded to currency
// precision.
func MonthlyDepreciation(purchasePrice, salvageValue decimal.Decimal, usefulLifeYears int) decimal.Decimal {
	if usefulLifeYears <= 0 {
		return decimal.Zero
	}
	months := decimal.NewFromInt(int64(usefulLifeYears)).Mul(monthsPerYear)
	return ledger.RoundMoney(purchasePrice.Sub(salvageValue).Div(months))
}

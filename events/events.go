/*
Package events turns business events into journal entries.

PURPOSE:
  The rest of the application never writes journal lines by hand. It
  emits one of the event types in this file (invoice issued, payment
  received, deposit returned, depreciation charge) and the Generator
  translates it into a balanced entry through the role resolver.

EVENT SHAPE:
  Events are concrete tagged structs, not loose maps. Each validates its
  own payload at the boundary and carries the idempotency reference that
  makes replays safe: the generator hands (Kind, Reference) to the
  journal engine as the entry's reference pair.

SEE ALSO:
  - generators.go: event -> lines translation
  - batch.go: bulk runs over contracts and assets
*/
package events

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetcore/ledger-engine/ledger"
)

// =============================================================================
// EVENT KINDS
// =============================================================================

const (
	KindInvoiceIssued      = "invoice-issued"
	KindPaymentReceived    = "payment-received"
	KindDepositReturned    = "deposit-returned"
	KindDepreciationCharge = "monthly-depreciation"
)

// Event is one business fact destined for the journal.
type Event interface {
	// Kind is the entry's reference type.
	Kind() string

	// Reference identifies the source entity (the entry's reference id).
	Reference() string

	// Validate checks the payload before any ledger work happens.
	Validate() error
}

// =============================================================================
// PERIOD - accounting month
// =============================================================================

// Period is one accounting month, rendered "YYYY-MM".
type Period struct {
	Year  int
	Month time.Month
}

// ParsePeriod parses "YYYY-MM".
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, &ledger.ValidationError{Field: "period", Message: fmt.Sprintf("%q is not YYYY-MM", s)}
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// PeriodOf returns the period containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Start is the first instant of the month (UTC).
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End is the last day of the month at midnight (UTC). Generated entries
// are dated here so month-end reports include them.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

func (p Period) IsZero() bool {
	return p.Year == 0
}

// Before reports whether p is an earlier month than other.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// =============================================================================
// INVOICE ISSUED
// =============================================================================

// InvoiceIssued records a rental invoice: receivable against revenue,
// with an optional late-fee component on its own revenue line.
type InvoiceIssued struct {
	InvoiceID    string
	ContractID   string
	RentalAmount decimal.Decimal
	LateFee      decimal.Decimal
	IssuedAt     time.Time
}

func (e InvoiceIssued) Kind() string      { return KindInvoiceIssued }
func (e InvoiceIssued) Reference() string { return e.InvoiceID }

func (e InvoiceIssued) Validate() error {
	if e.InvoiceID == "" {
		return &ledger.ValidationError{Field: "invoice_id", Message: "must not be empty"}
	}
	if err := requireAmount("rental_amount", e.RentalAmount); err != nil {
		return err
	}
	if e.LateFee.IsNegative() || !ledger.IsMoney(e.LateFee) {
		return &ledger.ValidationError{Field: "late_fee", Message: "must be a non-negative amount with max 2 decimals"}
	}
	if e.IssuedAt.IsZero() {
		return &ledger.ValidationError{Field: "issued_at", Message: "must be set"}
	}
	return nil
}

// Total is the receivable amount: rental plus late fee.
func (e InvoiceIssued) Total() decimal.Decimal {
	return e.RentalAmount.Add(e.LateFee)
}

// =============================================================================
// PAYMENT RECEIVED
// =============================================================================

// PaymentReceived settles a receivable: cash against accounts receivable.
type PaymentReceived struct {
	PaymentID  string
	InvoiceID  string
	Amount     decimal.Decimal
	ReceivedAt time.Time
}

func (e PaymentReceived) Kind() string      { return KindPaymentReceived }
func (e PaymentReceived) Reference() string { return e.PaymentID }

func (e PaymentReceived) Validate() error {
	if e.PaymentID == "" {
		return &ledger.ValidationError{Field: "payment_id", Message: "must not be empty"}
	}
	if err := requireAmount("amount", e.Amount); err != nil {
		return err
	}
	if e.ReceivedAt.IsZero() {
		return &ledger.ValidationError{Field: "received_at", Message: "must be set"}
	}
	return nil
}

// =============================================================================
// DEPOSIT RETURNED
// =============================================================================

// DepositReturned releases a customer's security deposit. Any withheld
// portion (damage, late fees) stays with the company as fee revenue.
type DepositReturned struct {
	DepositID  string
	ContractID string
	Amount     decimal.Decimal // total deposit held
	Withheld   decimal.Decimal // portion kept, 0 <= Withheld <= Amount
	ReturnedAt time.Time
}

func (e DepositReturned) Kind() string      { return KindDepositReturned }
func (e DepositReturned) Reference() string { return e.DepositID }

func (e DepositReturned) Validate() error {
	if e.DepositID == "" {
		return &ledger.ValidationError{Field: "deposit_id", Message: "must not be empty"}
	}
	if err := requireAmount("amount", e.Amount); err != nil {
		return err
	}
	if e.Withheld.IsNegative() || !ledger.IsMoney(e.Withheld) {
		return &ledger.ValidationError{Field: "withheld", Message: "must be a non-negative amount with max 2 decimals"}
	}
	if e.Withheld.GreaterThan(e.Amount) {
		return &ledger.ValidationError{Field: "withheld", Message: "cannot exceed the deposit amount"}
	}
	if e.ReturnedAt.IsZero() {
		return &ledger.ValidationError{Field: "returned_at", Message: "must be set"}
	}
	return nil
}

// Refunded is the cash actually paid back.
func (e DepositReturned) Refunded() decimal.Decimal {
	return e.Amount.Sub(e.Withheld)
}

// =============================================================================
// DEPRECIATION CHARGE
// =============================================================================

// DepreciationCharge books one month of straight-line depreciation for
// one asset. The reference combines asset and period, so re-running a
// month is idempotent per asset.
type DepreciationCharge struct {
	AssetID string
	Period  Period
	Amount  decimal.Decimal
}

func (e DepreciationCharge) Kind() string { return KindDepreciationCharge }

func (e DepreciationCharge) Reference() string {
	return e.AssetID + "/" + e.Period.String()
}

func (e DepreciationCharge) Validate() error {
	if e.AssetID == "" {
		return &ledger.ValidationError{Field: "asset_id", Message: "must not be empty"}
	}
	if e.Period.IsZero() {
		return &ledger.ValidationError{Field: "period", Message: "must be set"}
	}
	return requireAmount("amount", e.Amount)
}

// =============================================================================
// SHARED VALIDATION
// =============================================================================

func requireAmount(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return &ledger.ValidationError{Field: field, Message: "must be positive"}
	}
	if !ledger.IsMoney(d) {
		return &ledger.ValidationError{Field: field, Message: fmt.Sprintf("more than %d decimal places", ledger.CurrencyPlaces)}
	}
	return nil
}

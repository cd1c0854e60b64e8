/*
Package ledger provides the double-entry accounting core.

PURPOSE:
  This package contains the tenant-scoped data model and algorithms for a
  double-entry journal: the chart of accounts, journal entries with balanced
  lines, role-to-account mapping, and balance aggregation. Account balances
  are never stored - they are always computed by summing posted lines, so
  they cannot drift out of sync with the journal.

KEY CONCEPTS IN THIS FILE (types.go):
  - Account: a node in the per-tenant chart of accounts (levels 1-6)
  - JournalEntry / JournalLine: a balanced entry and its debit/credit lines
  - CostCenter: an analytical tag on lines, outside the balance invariant
  - AccountMapping: binds an abstract business role to a concrete account

DESIGN PRINCIPLES:
  1. Immutability: posted entries are never edited, only reversed
  2. Precision: decimal.Decimal everywhere, two decimal places
  3. Explicit tenancy: every operation takes a TenantID parameter
  4. Idempotency: (reference type, reference id) keys make event-driven
     entry creation safe to retry

SEE ALSO:
  - engine.go: entry validation, posting, reversal
  - chart.go: chart-of-accounts CRUD and structural validation
  - mapping.go: role resolution and default-account blueprints
  - aggregator.go: balance and trial-balance reads
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type AccountID string
type EntryID string
type LineID string
type CostCenterID string
type MappingID string

// =============================================================================
// MONEY - two-decimal currency amounts
// =============================================================================

// CurrencyPlaces is the smallest-unit precision for all amounts.
// Single base currency per tenant; no revaluation.
const CurrencyPlaces = 2

// RoundMoney rounds to the currency precision, half up.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// IsMoney reports whether d carries no more than CurrencyPlaces decimals.
func IsMoney(d decimal.Decimal) bool {
	return d.Equal(d.Round(CurrencyPlaces))
}

func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// ACCOUNT - node in the chart of accounts
// =============================================================================

type AccountType string

const (
	AccountAsset     AccountType = "asset"
	AccountLiability AccountType = "liability"
	AccountEquity    AccountType = "equity"
	AccountRevenue   AccountType = "revenue"
	AccountExpense   AccountType = "expense"
)

// ValidAccountType reports whether t is one of the five account types.
func ValidAccountType(t AccountType) bool {
	switch t {
	case AccountAsset, AccountLiability, AccountEquity, AccountRevenue, AccountExpense:
		return true
	}
	return false
}

// BalanceSide is the natural side of an account's balance.
type BalanceSide string

const (
	SideDebit  BalanceSide = "debit"
	SideCredit BalanceSide = "credit"
)

// Account belongs to exactly one tenant. Header accounts aggregate child
// activity but never receive postings. Balance is derived, never stored.
type Account struct {
	ID       AccountID
	TenantID TenantID
	Code     string // unique within tenant; level == position depth
	Name     string
	Type     AccountType
	Level    int // 1 (root) .. 6 (most detailed)
	IsHeader bool
	ParentID *AccountID // required for level > 1, parent level == Level-1
	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MinPostableLevel is the shallowest level that may receive postings.
const MinPostableLevel = 3

// MaxAccountLevel bounds the chart hierarchy depth.
const MaxAccountLevel = 6

// Postable reports whether the account may appear on a journal line.
func (a *Account) Postable() bool {
	return !a.IsHeader && a.Level >= MinPostableLevel && a.IsActive
}

// NormalSide returns the side on which this account naturally carries its
// balance: debit for assets and expenses, credit for the rest.
func (a *Account) NormalSide() BalanceSide {
	switch a.Type {
	case AccountAsset, AccountExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// =============================================================================
// JOURNAL ENTRY - balanced header + lines
// =============================================================================

type EntryStatus string

const (
	StatusDraft    EntryStatus = "draft"
	StatusPosted   EntryStatus = "posted"
	StatusReversed EntryStatus = "reversed"
)

// JournalEntry is the unit of double-entry bookkeeping.
//
// INVARIANTS:
//   - at least 2 lines
//   - TotalDebit == TotalCredit for any posted entry
//   - never mutated after posting, except the posted -> reversed transition
type JournalEntry struct {
	ID          EntryID
	TenantID    TenantID
	Sequence    int64  // per-tenant monotone; gaps allowed, duplicates never
	Number      string // human-readable, e.g. "JE-000042"
	EntryDate   time.Time
	Description string
	Status      EntryStatus

	// Idempotency key: an active (non-reversed) entry per
	// (tenant, ReferenceType, ReferenceID) pair.
	ReferenceType string
	ReferenceID   string

	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal

	// Reversal linkage, both directions.
	ReversesEntryID   *EntryID
	ReversedByEntryID *EntryID

	Lines []JournalLine

	CreatedAt time.Time
	PostedAt  *time.Time
}

// HasReference reports whether the entry carries an idempotency key.
func (e *JournalEntry) HasReference() bool {
	return e.ReferenceType != "" && e.ReferenceID != ""
}

// JournalLine carries exactly one nonzero side.
type JournalLine struct {
	ID          LineID
	EntryID     EntryID
	LineNumber  int // display and tie-break order, 1-based
	AccountID   AccountID
	Debit       decimal.Decimal // >= 0
	Credit      decimal.Decimal // >= 0
	Description string
	CostCenterID *CostCenterID
}

// =============================================================================
// COST CENTER - analytical tag, not part of the balance invariant
// =============================================================================

type CostCenter struct {
	ID       CostCenterID
	TenantID TenantID
	Code     string
	Name     string
	ParentID *CostCenterID
	Budget   decimal.Decimal
	IsActive bool

	CreatedAt time.Time
}

// =============================================================================
// ACCOUNT MAPPING - abstract role -> concrete account
// =============================================================================

// MappingSource records how a mapping came to exist. Mappings set by a
// human are never silently overwritten by the resolver.
type MappingSource string

const (
	MappingAuto   MappingSource = "auto"
	MappingManual MappingSource = "manual"
)

// AccountMapping binds a business role ("accounts-receivable",
// "rental-revenue", ...) to one account. At most one active mapping per
// (tenant, role).
type AccountMapping struct {
	ID        MappingID
	TenantID  TenantID
	Role      string
	AccountID AccountID
	Source    MappingSource
	IsActive  bool

	CreatedAt time.Time
}

// =============================================================================
// BALANCE READS - derived, never stored
// =============================================================================

// AccountBalance is the summed activity of posted lines for one account.
type AccountBalance struct {
	AccountID        AccountID
	AccountCode      string
	AccountName      string
	AccountType      AccountType
	DebitTotal       decimal.Decimal
	CreditTotal      decimal.Decimal
	NetBalance       decimal.Decimal // on the account's normal side
	TransactionCount int
}

// ChartStatistics summarizes a tenant's chart of accounts.
type ChartStatistics struct {
	TotalAccounts  int
	ActiveAccounts int
	ByType         map[AccountType]int
	ByLevel        map[int]int
	HeaderCount    int
	DetailCount    int
	MaxDepth       int
	AvgDepth       float64
}

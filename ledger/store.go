/*
store.go - Persistence interfaces for the ledger

PURPOSE:
  Defines the boundary between domain logic and the database. The journal
  is append-only: entries are inserted, transition draft -> posted ->
  reversed, and are never deleted. Balances are read by summation, so no
  interface here exposes a writable balance.

KEY INTERFACES:
  AccountStore:    chart-of-accounts persistence
  MappingStore:    role-to-account mappings
  EntryStore:      journal entries + lines (atomic insert)
  BalanceReader:   posted-line aggregation (read side)
  CostCenterStore: cost centers and their actuals
  Store:           the union; TxRunner adds transactional scope

ATOMICITY:
  InsertEntry persists the header and all lines in one database
  transaction - a partial entry is never observable. WithTx scopes the
  idempotency lookup and the insert together so concurrent retries
  cannot create two active entries for the same reference.

IMPLEMENTATIONS:
  - store/sqlite: production store, enforces the reference uniqueness
    with a partial unique index
  - ledger/store (memory): in-memory store for tests and demos

SEE ALSO:
  - engine.go: the only writer of journal entries
  - aggregator.go: the only consumer of BalanceReader
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT STORE
// =============================================================================

// AccountFilter narrows ListAccounts. Zero values mean "no filter".
type AccountFilter struct {
	Type       AccountType
	Level      int
	ActiveOnly bool
}

type AccountStore interface {
	// SaveAccount inserts or updates an account.
	SaveAccount(ctx context.Context, a Account) error

	// GetAccount returns nil, ErrNotFound if absent or owned by another tenant.
	GetAccount(ctx context.Context, tenant TenantID, id AccountID) (*Account, error)

	// GetAccountByCode looks up by tenant-scoped code. nil, ErrNotFound if absent.
	GetAccountByCode(ctx context.Context, tenant TenantID, code string) (*Account, error)

	// ListAccounts returns accounts ordered by code.
	ListAccounts(ctx context.Context, tenant TenantID, filter AccountFilter) ([]Account, error)

	// HasActiveChildren reports whether any active account points at id.
	HasActiveChildren(ctx context.Context, tenant TenantID, id AccountID) (bool, error)

	// HasPostings reports whether any journal line references id.
	HasPostings(ctx context.Context, tenant TenantID, id AccountID) (bool, error)
}

// =============================================================================
// MAPPING STORE
// =============================================================================

type MappingStore interface {
	// GetMapping returns the active mapping for (tenant, role).
	// nil, ErrNotFound if absent.
	GetMapping(ctx context.Context, tenant TenantID, role string) (*AccountMapping, error)

	// SaveMapping inserts a mapping. Fails with ErrConflict if an active
	// mapping already exists for (tenant, role).
	SaveMapping(ctx context.Context, m AccountMapping) error
}

// =============================================================================
// ENTRY STORE
// =============================================================================

type EntryStore interface {
	// InsertEntry persists header and lines atomically. Fails with
	// ErrConflict if an active entry already holds the same
	// (tenant, reference type, reference id).
	InsertEntry(ctx context.Context, e JournalEntry) error

	// GetEntry returns the entry with its lines. nil, ErrNotFound if absent.
	GetEntry(ctx context.Context, tenant TenantID, id EntryID) (*JournalEntry, error)

	// FindEntryByReference returns the active (non-reversed) entry for the
	// idempotency pair. nil, ErrNotFound if absent.
	FindEntryByReference(ctx context.Context, tenant TenantID, refType, refID string) (*JournalEntry, error)

	// ListEntries returns entries ordered by sequence, newest first.
	ListEntries(ctx context.Context, tenant TenantID, limit int) ([]JournalEntry, error)

	// NextSequence allocates the next per-tenant entry sequence.
	// Gaps are acceptable; duplicates are not.
	NextSequence(ctx context.Context, tenant TenantID) (int64, error)

	// MarkPosted transitions draft -> posted.
	MarkPosted(ctx context.Context, tenant TenantID, id EntryID, at time.Time) error

	// MarkReversed transitions posted -> reversed and records the link to
	// the reversing entry.
	MarkReversed(ctx context.Context, tenant TenantID, id EntryID, reversedBy EntryID) error
}

// =============================================================================
// BALANCE READER - posted lines only
// =============================================================================

// ActivityTotals is the raw summed activity for one account.
type ActivityTotals struct {
	AccountID AccountID
	Debit     decimal.Decimal
	Credit    decimal.Decimal
	Count     int
}

type BalanceReader interface {
	// AccountActivity sums posted lines for one account up to asOf
	// (inclusive). Nil asOf means "all time".
	AccountActivity(ctx context.Context, tenant TenantID, id AccountID, asOf *time.Time) (ActivityTotals, error)

	// AllActivity sums posted lines grouped by account, ordered by
	// account code. Accounts with no activity are omitted.
	AllActivity(ctx context.Context, tenant TenantID, asOf *time.Time) ([]ActivityTotals, error)
}

// =============================================================================
// COST CENTER STORE
// =============================================================================

type CostCenterStore interface {
	SaveCostCenter(ctx context.Context, c CostCenter) error
	GetCostCenter(ctx context.Context, tenant TenantID, id CostCenterID) (*CostCenter, error)
	ListCostCenters(ctx context.Context, tenant TenantID) ([]CostCenter, error)

	// CostCenterActivity sums posted lines tagged with the cost center.
	CostCenterActivity(ctx context.Context, tenant TenantID, id CostCenterID) (ActivityTotals, error)
}

// =============================================================================
// STORE - the union, plus transactional scope
// =============================================================================

// Store is everything the ledger core needs from persistence.
type Store interface {
	AccountStore
	MappingStore
	EntryStore
	BalanceReader
	CostCenterStore
}

// TxRunner executes fn within one database transaction. The Store handed
// to fn sees uncommitted writes; if fn errors, everything rolls back.
// Required for the idempotency check-then-insert and for atomic
// multi-role resolution.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(Store) error) error
}

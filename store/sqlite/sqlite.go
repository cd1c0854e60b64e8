/*
Package sqlite provides the SQLite-backed implementation of the ledger
storage interfaces.

PURPOSE:
  Implements ledger.Store (chart, mappings, journal, balances, cost
  centers), ledger.TxRunner, and events.Registry (contracts, assets,
  batch runs) over one SQLite database.

APPEND-ONLY ENFORCEMENT:
  journal_entries and journal_entry_lines never see a DELETE. The only
  UPDATEs on an entry are the draft -> posted and posted -> reversed
  status transitions; lines are immutable after insert.

KEY CONSTRAINTS:
  - idx_accounts_code:     one code per tenant
  - idx_entries_reference: at most one ACTIVE (non-reversed) entry per
    (tenant, reference_type, reference_id) - the idempotency backstop
    that makes concurrent event replays safe
  - idx_mappings_role:     at most one active mapping per (tenant, role)
  - entry_sequences:       per-tenant monotone entry numbering

AMOUNTS:
  Monetary values are stored as decimal strings and summed in Go with
  shopspring/decimal. SQLite's SUM would coerce them to floats.

CONCURRENCY:
  sync.RWMutex plus WAL mode. WithTx holds the write lock for the whole
  transaction; the Store handed to fn runs on the open *sql.Tx and must
  not re-enter the public API.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/fleetcore/ledger-engine/events"
	"github.com/fleetcore/ledger-engine/ledger"
)

// Store implements ledger.Store, ledger.TxRunner, and events.Registry.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Chart of accounts (one tree per tenant)
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		level INTEGER NOT NULL,
		is_header BOOLEAN NOT NULL DEFAULT FALSE,
		parent_id TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_accounts_code
		ON accounts(tenant_id, code);
	CREATE INDEX IF NOT EXISTS idx_accounts_parent
		ON accounts(tenant_id, parent_id);

	-- Role -> account mappings
	CREATE TABLE IF NOT EXISTS account_mappings (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		role TEXT NOT NULL,
		account_id TEXT NOT NULL,
		source TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_mappings_role
		ON account_mappings(tenant_id, role) WHERE is_active;

	-- Journal entries (append-only)
	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		number TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		description TEXT,
		status TEXT NOT NULL,
		reference_type TEXT NOT NULL DEFAULT '',
		reference_id TEXT NOT NULL DEFAULT '',
		total_debit TEXT NOT NULL,
		total_credit TEXT NOT NULL,
		reverses_entry_id TEXT,
		reversed_by_entry_id TEXT,
		created_at TEXT NOT NULL,
		posted_at TEXT
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_seq
		ON journal_entries(tenant_id, seq);

	-- CRITICAL: the idempotency backstop. At most one ACTIVE entry per
	-- (tenant, reference type, reference id); reversed entries release
	-- the slot so a corrected event can be re-applied.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_reference
		ON journal_entries(tenant_id, reference_type, reference_id)
		WHERE status != 'reversed' AND reference_type != '';

	CREATE INDEX IF NOT EXISTS idx_entries_tenant_date
		ON journal_entries(tenant_id, entry_date);
	CREATE INDEX IF NOT EXISTS idx_entries_status
		ON journal_entries(tenant_id, status);

	-- Journal lines (immutable after insert)
	CREATE TABLE IF NOT EXISTS journal_entry_lines (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL,
		line_number INTEGER NOT NULL,
		account_id TEXT NOT NULL,
		debit TEXT NOT NULL,
		credit TEXT NOT NULL,
		description TEXT,
		cost_center_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_lines_entry
		ON journal_entry_lines(entry_id);
	CREATE INDEX IF NOT EXISTS idx_lines_account
		ON journal_entry_lines(account_id);
	CREATE INDEX IF NOT EXISTS idx_lines_cost_center
		ON journal_entry_lines(cost_center_id) WHERE cost_center_id IS NOT NULL;

	-- Per-tenant entry numbering
	CREATE TABLE IF NOT EXISTS entry_sequences (
		tenant_id TEXT PRIMARY KEY,
		next INTEGER NOT NULL
	);

	-- Cost centers (analytical dimension)
	CREATE TABLE IF NOT EXISTS cost_centers (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		code TEXT NOT NULL,
		name TEXT NOT NULL,
		parent_id TEXT,
		budget TEXT NOT NULL DEFAULT '0',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_cost_centers_code
		ON cost_centers(tenant_id, code);

	-- Rental contracts (feed the invoice sweep)
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		customer_name TEXT NOT NULL,
		vehicle_id TEXT,
		monthly_rate TEXT NOT NULL,
		deposit_amount TEXT NOT NULL DEFAULT '0',
		start_date TEXT NOT NULL,
		end_date TEXT,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_tenant
		ON contracts(tenant_id, is_active);

	-- Fleet assets (feed the depreciation sweep)
	CREATE TABLE IF NOT EXISTS assets (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		purchase_price TEXT NOT NULL,
		salvage_value TEXT NOT NULL DEFAULT '0',
		useful_life_years INTEGER NOT NULL,
		in_service_date TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assets_tenant
		ON assets(tenant_id, is_active);

	-- Batch runs (audit trail of sweeps)
	CREATE TABLE IF NOT EXISTS batch_runs (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		period TEXT NOT NULL,
		status TEXT NOT NULL,
		processed INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		failed INTEGER NOT NULL DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_batch_runs_tenant
		ON batch_runs(tenant_id, started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (ledger.TxRunner)
// =============================================================================

// WithTx executes fn within one database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore is the Store view handed to WithTx callbacks. It reuses the
// parent's query helpers on the open transaction and takes no locks.
type txStore struct {
	q      *sql.Tx
	parent *Store
}

func (ts *txStore) SaveAccount(ctx context.Context, a ledger.Account) error {
	return ts.parent.saveAccount(ctx, ts.q, a)
}
func (ts *txStore) GetAccount(ctx context.Context, tenant ledger.TenantID, id ledger.AccountID) (*ledger.Account, error) {
	return ts.parent.getAccount(ctx, ts.q, tenant, id)
}
func (ts *txStore) GetAccountByCode(ctx context.Context, tenant ledger.TenantID, code string) (*ledger.Account, error) {
	return ts.parent.getAccountByCode(ctx, ts.q, tenant, code)
}
func (ts *txStore) ListAccounts(ctx context.Context, tenant ledger.TenantID, filter ledger.AccountFilter) ([]ledger.Account, error) {
	return ts.parent.listAccounts(ctx, ts.q, tenant, filter)
}
func (ts *txStore) HasActiveChildren(ctx context.Context, tenant ledger.TenantID, id ledger.AccountID) (bool, error) {
	return ts.parent.hasActiveChildren(ctx, ts.q, tenant, id)
}
func (ts *txStore) HasPostings(ctx context.Context, tenant ledger.TenantID, id ledger.AccountID) (bool, error) {
	return ts.parent.hasPostings(ctx, ts.q, tenant, id)
}
func (ts *txStore) GetMapping(ctx context.Context, tenant ledger.TenantID, role string) (*ledger.AccountMapping, error) {
	return ts.parent.getMapping(ctx, ts.q, tenant, role)
}
func (ts *txStore) SaveMapping(ctx context.Context, m ledger.AccountMapping) error {
	return ts.parent.saveMapping(ctx, ts.q, m)
}
func (ts *txStore) InsertEntry(ctx context.Context, e ledger.JournalEntry) error {
	return ts.parent.insertEntry(ctx, ts.q, e)
}
func (ts *txStore) GetEntry(ctx context.Context, tenant ledger.TenantID, id ledger.EntryID) (*ledger.JournalEntry, error) {
	return ts.parent.getEntry(ctx, ts.q, tenant, id)
}
func (ts *txStore) FindEntryByReference(ctx context.Context, tenant ledger.TenantID, refType, refID string) (*ledger.JournalEntry, error) {
	return ts.parent.findEntryByReference(ctx, ts.q, tenant, refType, refID)
}
func (ts *txStore) ListEntries(ctx context.Context, tenant ledger.TenantID, limit int) ([]ledger.JournalEntry, error) {
	return ts.parent.listEntries(ctx, ts.q, tenant, limit)
}
func (ts *txStore) NextSequence(ctx context.Context, tenant ledger.TenantID) (int64, error) {
	return ts.parent.nextSequence(ctx, ts.q, tenant)
}
func (ts *txStore) MarkPosted(ctx context.Context, tenant ledger.TenantID, id ledger.EntryID, at time.Time) error {
	return ts.parent.markPosted(ctx, ts.q, tenant, id, at)
}
func (ts *txStore) MarkReversed(ctx context.Context, tenant ledger.TenantID, id ledger.EntryID, reversedBy ledger.EntryID) error {
	return ts.parent.markReversed(ctx, ts.q, tenant, id, reversedBy)
}
func (ts *txStore) AccountActivity(ctx context.Context, tenant ledger.TenantID, id ledger.AccountID, asOf *time.Time) (ledger.ActivityTotals, error) {
	return ts.parent.accountActivity(ctx, ts.q, tenant, id, asOf)
}
func (ts *txStore) AllActivity(ctx context.Context, tenant ledger.TenantID, asOf *time.Time) ([]ledger.ActivityTotals, error) {
	return ts.parent.allActivity(ctx, ts.q, tenant, asOf)
}
func (ts *txStore) SaveCostCenter(ctx context.Context, c ledger.CostCenter) error {
	return ts.parent.saveCostCenter(ctx, ts.q, c)
}
func (ts *txStore) GetCostCenter(ctx context.Context, tenant ledger.TenantID, id ledger.CostCenterID) (*ledger.CostCenter, error) {
	return ts.parent.getCostCenter(ctx, ts.q, tenant, id)
}
func (ts *txStore) ListCostCenters(ctx context.Context, tenant ledger.TenantID) ([]ledger.CostCenter, error) {
	return ts.parent.listCostCenters(ctx, ts.q, tenant)
}
func (ts *txStore) CostCenterActivity(ctx context.Context, tenant ledger.TenantID, id ledger.CostCenterID) (ledger.ActivityTotals, error) {
	return ts.parent.costCenterActivity(ctx, ts.q, tenant, id)
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

func (s *Store) SaveAccount(ctx context.Context, a ledger.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveAccount(ctx, s.db, a)
}

func (s *Store) saveAccount(ctx context.Context, q querier, a ledger.Account) error {
	query := `
		INSERT INTO accounts
		(id, tenant_id, code, name, type, level, is_header, parent_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		a.ID, a.TenantID, a.Code, a.Name, a.Type, a.Level, a.IsHeader,
		nullableID(a.ParentID), a.IsActive,
		a.CreatedAt.UTC().Format(time.RFC3339), a.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.ConflictError{Reason: fmt.Sprintf("account code %q already exists", a.Code)}
		}
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

const accountColumns = `id, tenant_id, code, name, type, level, is_header, parent_id, is_active, created_at, updated_at`

func (s *Store) GetAccount(ctx context.Context, tenant ledger.TenantID, id ledger.AccountID) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAccount(ctx, s.db, tenant, id)
}

func (s *Store) getAccount(ctx context.Context, q querier, tenant ledger.TenantID, id ledger.AccountID) (*ledger.Account, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE tenant_id = ? AND id = ?`,
		tenant, id,
	)
	return scanAccount(row)
}

func (s *Store) GetAccountByCode(ctx context.Context, tenant ledger.TenantID, code string) (*ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getAccountByCode(ctx, s.db, tenant, code)
}

func (s *Store) getAccountByCode(ctx context.Context, q querier, tenant ledger.TenantID, code string) (*ledger.Account, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE tenant_id = ? AND code = ?`,
		tenant, code,
	)
	return scanAccount(row)
}

func (s *Store) ListAccounts(ctx context.Context, tenant ledger.TenantID, filter ledger.AccountFilter) ([]ledger.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listAccounts(ctx, s.db, tenant, filter)
}

func (s *Store) listAccounts(ctx context.Context, q querier, tenant ledger.TenantID, filter ledger.AccountFilter) ([]ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE tenant_id = ?`
	args := []any{tenant}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, filter.Type)
	}
	if filter.Level != 0 {
		query += ` AND level = ?`
		args = append(args, filter.Level)
	}
	if filter.ActiveOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY code ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		a, err := scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (s *Store) HasActiveChildren(ctx context.Context, tenant ledger.TenantID, id ledger.AccountID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasActiveChildren(ctx, s.db, tenant, id)
}

func (s *Store) hasActiveChildren(ctx context.Context, q querier, tenant ledger.TenantID, id ledger.AccountID) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE tenant_id = ? AND parent_id = ? AND is_active)`,
		tenant, id,
	).Scan(&exists)
	return exists, err
}

func (s *Store) HasPostings(ctx context.Context, tenant ledger.TenantID, id ledger.AccountID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasPostings(ctx, s.db, tenant, id)
}

func (s *Store) hasPostings(ctx context.Context, q querier, tenant ledger.TenantID, id ledger.AccountID) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM journal_entry_lines l
			JOIN journal_entries e ON e.id = l.entry_id
			WHERE e.tenant_id = ? AND l.account_id = ?
		)`,
		tenant, id,
	).Scan(&exists)
	return exists, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row *sql.Row) (*ledger.Account, error) {
	a, err := scanAccountRow(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	return a, err
}

func scanAccountRow(r rowScanner) (*ledger.Account, error) {
	var (
		a         ledger.Account
		parentID  sql.NullString
		createdAt string
		updatedAt string
	)
	err := r.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.Level,
		&a.IsHeader, &parentID, &a.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		pid := ledger.AccountID(parentID.String)
		a.ParentID = &pid
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &a, nil
}

// =============================================================================
// MAPPING STORE
// =============================================================================

func (s *Store) GetMapping(ctx context.Context, tenant ledger.TenantID, role string) (*ledger.AccountMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getMapping(ctx, s.db, tenant, role)
}

func (s *Store) getMapping(ctx context.Context, q querier, tenant ledger.TenantID, role string) (*ledger.AccountMapping, error) {
	var (
		m         ledger.AccountMapping
		createdAt string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, tenant_id, role, account_id, source, is_active, created_at
		FROM account_mappings
		WHERE tenant_id = ? AND role = ? AND is_active`,
		tenant, role,
	).Scan(&m.ID, &m.TenantID, &m.Role, &m.AccountID, &m.Source, &m.IsActive, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping: %w", err)
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

func (s *Store) SaveMapping(ctx context.Context, m ledger.AccountMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveMapping(ctx, s.db, m)
}

func (s *Store) saveMapping(ctx context.Context, q querier, m ledger.AccountMapping) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO account_mappings (id, tenant_id, role, account_id, source, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.TenantID, m.Role, m.AccountID, m.Source, m.IsActive,
		m.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.ConflictError{Reason: "active mapping already exists for role " + m.Role}
		}
		return fmt.Errorf("failed to save mapping: %w", err)
	}
	return nil
}

// =============================================================================
// ENTRY STORE
// =============================================================================

func (s *Store) InsertEntry(ctx context.Context, e ledger.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Outside WithTx, wrap header+lines in their own transaction so a
	// partial entry is never observable.
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := s.insertEntry(ctx, sqlTx, e); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func (s *Store) insertEntry(ctx context.Context, q querier, e ledger.JournalEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO journal_entries
		(id, tenant_id, seq, number, entry_date, description, status,
		 reference_type, reference_id, total_debit, total_credit,
		 reverses_entry_id, reversed_by_entry_id, created_at, posted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TenantID, e.Sequence, e.Number,
		e.EntryDate.UTC().Format(time.RFC3339), e.Description, e.Status,
		e.ReferenceType, e.ReferenceID,
		e.TotalDebit.String(), e.TotalCredit.String(),
		nullableEntryID(e.ReversesEntryID), nullableEntryID(e.ReversedByEntryID),
		e.CreatedAt.UTC().Format(time.RFC3339), nullableTime(e.PostedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.ConflictError{
				Reason: fmt.Sprintf("active entry already exists for reference %s/%s", e.ReferenceType, e.ReferenceID),
			}
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	for _, l := range e.Lines {
		_, err := q.ExecContext(ctx, `
			INSERT INTO journal_entry_lines
			(id, entry_id, line_number, account_id, debit, credit, description, cost_center_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, l.EntryID, l.LineNumber, l.AccountID,
			l.Debit.String(), l.Credit.String(), l.Description,
			nullableCostCenterID(l.CostCenterID),
		)
		if err != nil {
			return fmt.Errorf("failed to insert line %d: %w", l.LineNumber, err)
		}
	}
	return nil
}

const entryColumns = `id, tenant_id, seq, number, entry_date, description, status,
	reference_type, reference_id, total_debit, total_credit,
	reverses_entry_id, reversed_by_entry_id, created_at, posted_at`

func (s *Store) GetEntry(ctx context.Context, tenant ledger.TenantID, id ledger.EntryID) (*ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEntry(ctx, s.db, tenant, id)
}

func (s *Store) getEntry(ctx context.Context, q querier, tenant ledger.TenantID, id ledger.EntryID) (*ledger.JournalEntry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id = ? AND id = ?`,
		tenant, id,
	)
	e, err := scanEntryRow(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadLines(ctx, q, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) FindEntryByReference(ctx context.Context, tenant ledger.TenantID, refType, refID string) (*ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findEntryByReference(ctx, s.db, tenant, refType, refID)
}

func (s *Store) findEntryByReference(ctx context.Context, q querier, tenant ledger.TenantID, refType, refID string) (*ledger.JournalEntry, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM journal_entries
		 WHERE tenant_id = ? AND reference_type = ? AND reference_id = ? AND status != 'reversed'`,
		tenant, refType, refID,
	)
	e, err := scanEntryRow(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadLines(ctx, q, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Store) ListEntries(ctx context.Context, tenant ledger.TenantID, limit int) ([]ledger.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listEntries(ctx, s.db, tenant, limit)
}

func (s *Store) listEntries(ctx context.Context, q querier, tenant ledger.TenantID, limit int) ([]ledger.JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE tenant_id = ? ORDER BY seq DESC`
	args := []any{tenant}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.JournalEntry
	for rows.Next() {
		e, err := scanEntryRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range entries {
		if err := s.loadLines(ctx, q, &entries[i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

func (s *Store) loadLines(ctx context.Context, q querier, e *ledger.JournalEntry) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, entry_id, line_number, account_id, debit, credit, description, cost_center_id
		FROM journal_entry_lines
		WHERE entry_id = ?
		ORDER BY line_number ASC`,
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to query lines: %w", err)
	}
	defer rows.Close()

	e.Lines = nil
	for rows.Next() {
		var (
			l            ledger.JournalLine
			debit        string
			credit       string
			description  sql.NullString
			costCenterID sql.NullString
		)
		if err := rows.Scan(&l.ID, &l.EntryID, &l.LineNumber, &l.AccountID,
			&debit, &credit, &description, &costCenterID); err != nil {
			return fmt.Errorf("failed to scan line: %w", err)
		}
		l.Debit = mustParseDecimal(debit)
		l.Credit = mustParseDecimal(credit)
		l.Description = description.String
		if costCenterID.Valid {
			cc := ledger.CostCenterID(costCenterID.String)
			l.CostCenterID = &cc
		}
		e.Lines = append(e.Lines, l)
	}
	return rows.Err()
}

func scanEntryRow(r rowScanner) (*ledger.JournalEntry, error) {
	var (
		e                 ledger.JournalEntry
		entryDate         string
		description       sql.NullString
		totalDebit        string
		totalCredit       string
		reversesEntryID   sql.NullString
		reversedByEntryID sql.NullString
		createdAt         string
		postedAt          sql.NullString
	)
	err := r.Scan(&e.ID, &e.TenantID, &e.Sequence, &e.Number, &entryDate,
		&description, &e.Status, &e.ReferenceType, &e.ReferenceID,
		&totalDebit, &totalCredit, &reversesEntryID, &reversedByEntryID,
		&createdAt, &postedAt)
	if err != nil {
		return nil, err
	}
	e.EntryDate, _ = time.Parse(time.RFC3339, entryDate)
	e.Description = description.String
	e.TotalDebit = mustParseDecimal(totalDebit)
	e.TotalCredit = mustParseDecimal(totalCredit)
	if reversesEntryID.Valid {
		id := ledger.EntryID(reversesEntryID.String)
		e.ReversesEntryID = &id
	}
	if reversedByEntryID.Valid {
		id := ledger.EntryID(reversedByEntryID.String)
		e.ReversedByEntryID = &id
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	if postedAt.Valid {
		t, _ := time.Parse(time.RFC3339, postedAt.String)
		e.PostedAt = &t
	}
	return &e, nil
}

func (s *Store) NextSequence(ctx context.Context, tenant ledger.TenantID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextSequence(ctx, s.db, tenant)
}

func (s *Store) nextSequence(ctx context.Context, q querier, tenant ledger.TenantID) (int64, error) {
	var next int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO entry_sequences (tenant_id, next) VALUES (?, 1)
		ON CONFLICT(tenant_id) DO UPDATE SET next = next + 1
		RETURNING next`,
		tenant,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate sequence: %w", err)
	}
	return next, nil
}

func (s *Store) MarkPosted(ctx context.Context, tenant ledger.TenantID, id ledger.EntryID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markPosted(ctx, s.db, tenant, id, at)
}

func (s *Store) markPosted(ctx context.Context, q querier, tenant ledger.TenantID, id ledger.EntryID, at time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE journal_entries SET status = 'posted', posted_at = ?
		WHERE tenant_id = ? AND id = ? AND status = 'draft'`,
		at.UTC().Format(time.RFC3339), tenant, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark posted: %w", err)
	}
	return requireRow(res)
}

func (s *Store) MarkReversed(ctx context.Context, tenant ledger.TenantID, id ledger.EntryID, reversedBy ledger.EntryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markReversed(ctx, s.db, tenant, id, reversedBy)
}

func (s *Store) markReversed(ctx context.Context, q querier, tenant ledger.TenantID, id ledger.EntryID, reversedBy ledger.EntryID) error {
	res, err := q.ExecContext(ctx, `
		UPDATE journal_entries SET status = 'reversed', reversed_by_entry_id = ?
		WHERE tenant_id = ? AND id = ? AND status = 'posted'`,
		reversedBy, tenant, id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark reversed: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

// =============================================================================
// BALANCE READER
// =============================================================================

// Balance sums happen in Go with decimal arithmetic; SQLite's SUM over
// the stored strings would silently go through floats.

func (s *Store) AccountActivity(ctx context.Context, tenant ledger.TenantID, id ledger.AccountID, asOf *time.Time) (ledger.ActivityTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountActivity(ctx, s.db, tenant, id, asOf)
}

func (s *Store) accountActivity(ctx context.Context, q querier, tenant ledger.TenantID, id ledger.AccountID, asOf *time.Time) (ledger.ActivityTotals, error) {
	totals := ledger.ActivityTotals{AccountID: id, Debit: decimal.Zero, Credit: decimal.Zero}

	query := `
		SELECT l.debit, l.credit
		FROM journal_entry_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		WHERE e.tenant_id = ? AND l.account_id = ? AND e.status != 'draft'`
	args := []any{tenant, id}
	if asOf != nil {
		query += ` AND e.entry_date <= ?`
		args = append(args, asOf.UTC().Format(time.RFC3339))
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return totals, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var debit, credit string
		if err := rows.Scan(&debit, &credit); err != nil {
			return totals, err
		}
		totals.Debit = totals.Debit.Add(mustParseDecimal(debit))
		totals.Credit = totals.Credit.Add(mustParseDecimal(credit))
		totals.Count++
	}
	return totals, rows.Err()
}

func (s *Store) AllActivity(ctx context.Context, tenant ledger.TenantID, asOf *time.Time) ([]ledger.ActivityTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allActivity(ctx, s.db, tenant, asOf)
}

func (s *Store) allActivity(ctx context.Context, q querier, tenant ledger.TenantID, asOf *time.Time) ([]ledger.ActivityTotals, error) {
	query := `
		SELECT l.account_id, l.debit, l.credit
		FROM journal_entry_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		JOIN accounts a ON a.id = l.account_id
		WHERE e.tenant_id = ? AND e.status != 'draft'`
	args := []any{tenant}
	if asOf != nil {
		query += ` AND e.entry_date <= ?`
		args = append(args, asOf.UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY a.code ASC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	// Rows arrive ordered by account code, so each account's lines are
	// contiguous and one running total per group suffices.
	var out []ledger.ActivityTotals
	var current *ledger.ActivityTotals
	for rows.Next() {
		var accountID ledger.AccountID
		var debit, credit string
		if err := rows.Scan(&accountID, &debit, &credit); err != nil {
			return nil, err
		}
		if current == nil || current.AccountID != accountID {
			out = append(out, ledger.ActivityTotals{AccountID: accountID, Debit: decimal.Zero, Credit: decimal.Zero})
			current = &out[len(out)-1]
		}
		current.Debit = current.Debit.Add(mustParseDecimal(debit))
		current.Credit = current.Credit.Add(mustParseDecimal(credit))
		current.Count++
	}
	return out, rows.Err()
}

// =============================================================================
// COST CENTER STORE
// =============================================================================

func (s *Store) SaveCostCenter(ctx context.Context, c ledger.CostCenter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveCostCenter(ctx, s.db, c)
}

func (s *Store) saveCostCenter(ctx context.Context, q querier, c ledger.CostCenter) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO cost_centers (id, tenant_id, code, name, parent_id, budget, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			budget = excluded.budget,
			is_active = excluded.is_active`,
		c.ID, c.TenantID, c.Code, c.Name, nullableCostCenterID(c.ParentID),
		c.Budget.String(), c.IsActive, c.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &ledger.ConflictError{Reason: fmt.Sprintf("cost center code %q already exists", c.Code)}
		}
		return fmt.Errorf("failed to save cost center: %w", err)
	}
	return nil
}

func (s *Store) GetCostCenter(ctx context.Context, tenant ledger.TenantID, id ledger.CostCenterID) (*ledger.CostCenter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getCostCenter(ctx, s.db, tenant, id)
}

func (s *Store) getCostCenter(ctx context.Context, q querier, tenant ledger.TenantID, id ledger.CostCenterID) (*ledger.CostCenter, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, tenant_id, code, name, parent_id, budget, is_active, created_at
		FROM cost_centers WHERE tenant_id = ? AND id = ?`,
		tenant, id,
	)
	c, err := scanCostCenter(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	return c, err
}

func (s *Store) ListCostCenters(ctx context.Context, tenant ledger.TenantID) ([]ledger.CostCenter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listCostCenters(ctx, s.db, tenant)
}

func (s *Store) listCostCenters(ctx context.Context, q querier, tenant ledger.TenantID) ([]ledger.CostCenter, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, tenant_id, code, name, parent_id, budget, is_active, created_at
		FROM cost_centers WHERE tenant_id = ? ORDER BY code ASC`,
		tenant,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost centers: %w", err)
	}
	defer rows.Close()

	var centers []ledger.CostCenter
	for rows.Next() {
		c, err := scanCostCenter(rows)
		if err != nil {
			return nil, err
		}
		centers = append(centers, *c)
	}
	return centers, rows.Err()
}

func scanCostCenter(r rowScanner) (*ledger.CostCenter, error) {
	var (
		c         ledger.CostCenter
		parentID  sql.NullString
		budget    string
		createdAt string
	)
	err := r.Scan(&c.ID, &c.TenantID, &c.Code, &c.Name, &parentID, &budget, &c.IsActive, &createdAt)
	if err != nil {
		return nil, err
	}
	if parentID.Valid {
		pid := ledger.CostCenterID(parentID.String)
		c.ParentID = &pid
	}
	c.Budget = mustParseDecimal(budget)
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

func (s *Store) CostCenterActivity(ctx context.Context, tenant ledger.TenantID, id ledger.CostCenterID) (ledger.ActivityTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.costCenterActivity(ctx, s.db, tenant, id)
}

func (s *Store) costCenterActivity(ctx context.Context, q querier, tenant ledger.TenantID, id ledger.CostCenterID) (ledger.ActivityTotals, error) {
	totals := ledger.ActivityTotals{Debit: decimal.Zero, Credit: decimal.Zero}

	rows, err := q.QueryContext(ctx, `
		SELECT l.debit, l.credit
		FROM journal_entry_lines l
		JOIN journal_entries e ON e.id = l.entry_id
		WHERE e.tenant_id = ? AND l.cost_center_id = ? AND e.status != 'draft'`,
		tenant, id,
	)
	if err != nil {
		return totals, fmt.Errorf("failed to query cost center activity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var debit, credit string
		if err := rows.Scan(&debit, &credit); err != nil {
			return totals, err
		}
		totals.Debit = totals.Debit.Add(mustParseDecimal(debit))
		totals.Credit = totals.Credit.Add(mustParseDecimal(credit))
		totals.Count++
	}
	return totals, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func mustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullableID(id *ledger.AccountID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func nullableEntryID(id *ledger.EntryID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func nullableCostCenterID(id *ledger.CostCenterID) any {
	if id == nil {
		return nil
	}
	return string(*id)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Compile-time interface checks.
var (
	_ ledger.Store    = (*Store)(nil)
	_ ledger.Store    = (*txStore)(nil)
	_ ledger.TxRunner = (*Store)(nil)
	_ events.Registry = (*Store)(nil)
)

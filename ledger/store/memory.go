// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fleetcore/ledger-engine/ledger"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps the whole ledger in maps. WithTx snapshots the state and
// restores it when fn fails, which is enough to mirror the rollback
// semantics the SQLite store gets from real transactions.
type Memory struct {
	mu sync.RWMutex
	// txMu serializes transactions so snapshot/restore stays coherent.
	txMu sync.Mutex

	accounts  map[ledger.TenantID]map[ledger.AccountID]ledger.Account
	byCode    map[ledger.TenantID]map[string]ledger.AccountID
	mappings  map[ledger.TenantID]map[string]ledger.AccountMapping
	entries   map[ledger.TenantID]map[ledger.EntryID]ledger.JournalEntry
	refIndex  map[ledger.TenantID]map[refKey]ledger.EntryID
	sequences map[ledger.TenantID]int64
	centers   map[ledger.TenantID]map[ledger.CostCenterID]ledger.CostCenter
}

type refKey struct {
	Type string
	ID   string
}

func NewMemory() *Memory {
	return &Memory{
		accounts:  make(map[ledger.TenantID]map[ledger.AccountID]ledger.Account),
		byCode:    make(map[ledger.TenantID]map[string]ledger.AccountID),
		mappings:  make(map[ledger.TenantID]map[string]ledger.AccountMapping),
		entries:   make(map[ledger.TenantID]map[ledger.EntryID]ledger.JournalEntry),
		refIndex:  make(map[ledger.TenantID]map[refKey]ledger.EntryID),
		sequences: make(map[ledger.TenantID]int64),
		centers:   make(map[ledger.TenantID]map[ledger.CostCenterID]ledger.CostCenter),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn with all-or-nothing semantics: on error the pre-call
// state is restored. One transaction at a time.
func (m *Memory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snapshot := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	accounts  map[ledger.TenantID]map[ledger.AccountID]ledger.Account
	byCode    map[ledger.TenantID]map[string]ledger.AccountID
	mappings  map[ledger.TenantID]map[string]ledger.AccountMapping
	entries   map[ledger.TenantID]map[ledger.EntryID]ledger.JournalEntry
	refIndex  map[ledger.TenantID]map[refKey]ledger.EntryID
	sequences map[ledger.TenantID]int64
	centers   map[ledger.TenantID]map[ledger.CostCenterID]ledger.CostCenter
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return memorySnapshot{
		accounts:  copyNested(m.accounts),
		byCode:    copyNested(m.byCode),
		mappings:  copyNested(m.mappings),
		entries:   copyNested(m.entries),
		refIndex:  copyNested(m.refIndex),
		sequences: copyMap(m.sequences),
		centers:   copyNested(m.centers),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.accounts = s.accounts
	m.byCode = s.byCode
	m.mappings = s.mappings
	m.entries = s.entries
	m.refIndex = s.refIndex
	m.sequences = s.sequences
	m.centers = s.centers
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyNested[K1, K2 comparable, V any](src map[K1]map[K2]V) map[K1]map[K2]V {
	dst := make(map[K1]map[K2]V, len(src))
	for k, inner := range src {
		dst[k] = copyMap(inner)
	}
	return dst
}

// =============================================================================
// ACCOUNT STORE
// =============================================================================

func (m *Memory) SaveAccount(_ context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accounts[a.TenantID] == nil {
		m.accounts[a.TenantID] = make(map[ledger.AccountID]ledger.Account)
		m.byCode[a.TenantID] = make(map[string]ledger.AccountID)
	}
	m.accounts[a.TenantID][a.ID] = a
	m.byCode[a.TenantID][a.Code] = a.ID
	return nil
}

func (m *Memory) GetAccount(_ context.Context, tenant ledger.TenantID, id ledger.AccountID) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[tenant][id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &a, nil
}

func (m *Memory) GetAccountByCode(_ context.Context, tenant ledger.TenantID, code string) (*ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byCode[tenant][code]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	a := m.accounts[tenant][id]
	return &a, nil
}

func (m *Memory) ListAccounts(_ context.Context, tenant ledger.TenantID, filter ledger.AccountFilter) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.Account
	for _, a := range m.accounts[tenant] {
		if filter.Type != "" && a.Type != filter.Type {
			continue
		}
		if filter.Level != 0 && a.Level != filter.Level {
			continue
		}
		if filter.ActiveOnly && !a.IsActive {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) HasActiveChildren(_ context.Context, tenant ledger.TenantID, id ledger.AccountID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, a := range m.accounts[tenant] {
		if a.ParentID != nil && *a.ParentID == id && a.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) HasPostings(_ context.Context, tenant ledger.TenantID, id ledger.AccountID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries[tenant] {
		for _, l := range e.Lines {
			if l.AccountID == id {
				return true, nil
			}
		}
	}
	return false, nil
}

// =============================================================================
// MAPPING STORE
// =============================================================================

func (m *Memory) GetMapping(_ context.Context, tenant ledger.TenantID, role string) (*ledger.AccountMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mapping, ok := m.mappings[tenant][role]
	if !ok || !mapping.IsActive {
		return nil, ledger.ErrNotFound
	}
	return &mapping, nil
}

func (m *Memory) SaveMapping(_ context.Context, mapping ledger.AccountMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.mappings[mapping.TenantID][mapping.Role]; ok && existing.IsActive {
		return &ledger.ConflictError{Reason: "active mapping already exists for role " + mapping.Role}
	}
	if m.mappings[mapping.TenantID] == nil {
		m.mappings[mapping.TenantID] = make(map[string]ledger.AccountMapping)
	}
	m.mappings[mapping.TenantID][mapping.Role] = mapping
	return nil
}

// =============================================================================
// ENTRY STORE
// =============================================================================

func (m *Memory) InsertEntry(_ context.Context, e ledger.JournalEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.HasReference() {
		k := refKey{Type: e.ReferenceType, ID: e.ReferenceID}
		if _, taken := m.refIndex[e.TenantID][k]; taken {
			return &ledger.ConflictError{
				Reason: "active entry already exists for reference " + e.ReferenceType + "/" + e.ReferenceID,
			}
		}
		if m.refIndex[e.TenantID] == nil {
			m.refIndex[e.TenantID] = make(map[refKey]ledger.EntryID)
		}
		m.refIndex[e.TenantID][k] = e.ID
	}

	if m.entries[e.TenantID] == nil {
		m.entries[e.TenantID] = make(map[ledger.EntryID]ledger.JournalEntry)
	}
	m.entries[e.TenantID][e.ID] = e
	return nil
}

func (m *Memory) GetEntry(_ context.Context, tenant ledger.TenantID, id ledger.EntryID) (*ledger.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.entries[tenant][id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &e, nil
}

func (m *Memory) FindEntryByReference(_ context.Context, tenant ledger.TenantID, refType, refID string) (*ledger.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.refIndex[tenant][refKey{Type: refType, ID: refID}]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	e := m.entries[tenant][id]
	return &e, nil
}

func (m *Memory) ListEntries(_ context.Context, tenant ledger.TenantID, limit int) ([]ledger.JournalEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.JournalEntry
	for _, e := range m.entries[tenant] {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence > out[j].Sequence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) NextSequence(_ context.Context, tenant ledger.TenantID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sequences[tenant]++
	return m.sequences[tenant], nil
}

func (m *Memory) MarkPosted(_ context.Context, tenant ledger.TenantID, id ledger.EntryID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[tenant][id]
	if !ok {
		return ledger.ErrNotFound
	}
	e.Status = ledger.StatusPosted
	e.PostedAt = &at
	m.entries[tenant][id] = e
	return nil
}

func (m *Memory) MarkReversed(_ context.Context, tenant ledger.TenantID, id ledger.EntryID, reversedBy ledger.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[tenant][id]
	if !ok {
		return ledger.ErrNotFound
	}
	e.Status = ledger.StatusReversed
	e.ReversedByEntryID = &reversedBy
	m.entries[tenant][id] = e

	// A reversed entry no longer occupies its reference slot.
	if e.HasReference() {
		delete(m.refIndex[tenant], refKey{Type: e.ReferenceType, ID: e.ReferenceID})
	}
	return nil
}

// =============================================================================
// BALANCE READER
// =============================================================================

func (m *Memory) AccountActivity(_ context.Context, tenant ledger.TenantID, id ledger.AccountID, asOf *time.Time) (ledger.ActivityTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := ledger.ActivityTotals{AccountID: id, Debit: decimal.Zero, Credit: decimal.Zero}
	for _, e := range m.entries[tenant] {
		if !countsForBalance(e, asOf) {
			continue
		}
		for _, l := range e.Lines {
			if l.AccountID != id {
				continue
			}
			totals.Debit = totals.Debit.Add(l.Debit)
			totals.Credit = totals.Credit.Add(l.Credit)
			totals.Count++
		}
	}
	return totals, nil
}

func (m *Memory) AllActivity(_ context.Context, tenant ledger.TenantID, asOf *time.Time) ([]ledger.ActivityTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byAccount := make(map[ledger.AccountID]*ledger.ActivityTotals)
	for _, e := range m.entries[tenant] {
		if !countsForBalance(e, asOf) {
			continue
		}
		for _, l := range e.Lines {
			t := byAccount[l.AccountID]
			if t == nil {
				t = &ledger.ActivityTotals{AccountID: l.AccountID, Debit: decimal.Zero, Credit: decimal.Zero}
				byAccount[l.AccountID] = t
			}
			t.Debit = t.Debit.Add(l.Debit)
			t.Credit = t.Credit.Add(l.Credit)
			t.Count++
		}
	}

	var out []ledger.ActivityTotals
	for _, t := range byAccount {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		return m.accounts[tenant][out[i].AccountID].Code < m.accounts[tenant][out[j].AccountID].Code
	})
	return out, nil
}

// countsForBalance: posted and reversed entries contribute (a reversal
// pair cancels itself); drafts never do.
func countsForBalance(e ledger.JournalEntry, asOf *time.Time) bool {
	if e.Status == ledger.StatusDraft {
		return false
	}
	if asOf != nil && e.EntryDate.After(*asOf) {
		return false
	}
	return true
}

// =============================================================================
// COST CENTER STORE
// =============================================================================

func (m *Memory) SaveCostCenter(_ context.Context, c ledger.CostCenter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.centers[c.TenantID] == nil {
		m.centers[c.TenantID] = make(map[ledger.CostCenterID]ledger.CostCenter)
	}
	m.centers[c.TenantID][c.ID] = c
	return nil
}

func (m *Memory) GetCostCenter(_ context.Context, tenant ledger.TenantID, id ledger.CostCenterID) (*ledger.CostCenter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.centers[tenant][id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return &c, nil
}

func (m *Memory) ListCostCenters(_ context.Context, tenant ledger.TenantID) ([]ledger.CostCenter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.CostCenter
	for _, c := range m.centers[tenant] {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) CostCenterActivity(_ context.Context, tenant ledger.TenantID, id ledger.CostCenterID) (ledger.ActivityTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totals := ledger.ActivityTotals{Debit: decimal.Zero, Credit: decimal.Zero}
	for _, e := range m.entries[tenant] {
		if e.Status == ledger.StatusDraft {
			continue
		}
		for _, l := range e.Lines {
			if l.CostCenterID == nil || *l.CostCenterID != id {
				continue
			}
			totals.Debit = totals.Debit.Add(l.Debit)
			totals.Credit = totals.Credit.Add(l.Credit)
			totals.Count++
		}
	}
	return totals, nil
}

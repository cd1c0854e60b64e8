/*
engine.go - Journal engine: create, post, reverse

PURPOSE:
  The correctness core of the ledger. Every journal entry passes through
  here, and the engine guarantees:

  1. BALANCED: sum(debits) == sum(credits) at currency precision
  2. ALL-OR-NOTHING: a failed entry persists nothing, ever
  3. IDEMPOTENT: one active entry per (tenant, reference type, reference id);
     re-running a generator returns the existing entry unchanged
  4. APPEND-ONLY: corrections happen via mirrored reversal entries,
     originals are kept for audit

VALIDATION ORDER:
  (a) at least 2 lines
  (b) each line has exactly one nonzero side, no negatives, max 2 decimals
  (c) each account exists, is active, and is postable (detail, level >= 3)
  (d) totals balance exactly

CONCURRENCY:
  The idempotency lookup and the insert run inside one store transaction.
  The store backs this with a uniqueness constraint on the reference pair
  (active entries only), so two concurrent retries cannot both insert;
  the loser re-reads and returns the winner's entry.

SEE ALSO:
  - store.go: EntryStore contract
  - aggregator.go: read side, posted entries only
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine validates and persists journal entries.
type Engine struct {
	store Store
	tx    TxRunner
	now   func() time.Time
}

func NewEngine(store Store, tx TxRunner) *Engine {
	return &Engine{store: store, tx: tx, now: time.Now}
}

// =============================================================================
// CREATE
// =============================================================================

// LineInput is one requested journal line.
type LineInput struct {
	AccountID    AccountID
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	Description  string
	CostCenterID *CostCenterID
}

// EntryInput is a requested journal entry.
type EntryInput struct {
	EntryDate     time.Time
	Description   string
	Lines         []LineInput
	ReferenceType string
	ReferenceID   string
}

// CreateEntry validates the request and persists a draft entry.
//
// Returns created=false when an active entry already exists for the
// reference pair; the existing entry is returned unchanged. This is the
// guarantee that lets event generators be re-run safely.
func (e *Engine) CreateEntry(ctx context.Context, tenant TenantID, in EntryInput) (*JournalEntry, bool, error) {
	if tenant == "" {
		return nil, false, ErrAccessDenied
	}
	if err := e.validateLines(ctx, tenant, in.Lines); err != nil {
		return nil, false, err
	}

	totalDebit := decimal.Zero
	totalCredit := decimal.Zero
	for _, l := range in.Lines {
		totalDebit = totalDebit.Add(l.Debit)
		totalCredit = totalCredit.Add(l.Credit)
	}
	if !totalDebit.Equal(totalCredit) {
		return nil, false, &UnbalancedEntryError{TotalDebit: totalDebit, TotalCredit: totalCredit}
	}

	var entry *JournalEntry
	created := false
	err := e.tx.WithTx(ctx, func(s Store) error {
		// Idempotency: an active entry for the same reference wins.
		if in.ReferenceType != "" && in.ReferenceID != "" {
			existing, err := s.FindEntryByReference(ctx, tenant, in.ReferenceType, in.ReferenceID)
			if err != nil && !IsNotFound(err) {
				return err
			}
			if existing != nil {
				entry = existing
				return nil
			}
		}

		seq, err := s.NextSequence(ctx, tenant)
		if err != nil {
			return err
		}

		now := e.now().UTC()
		newEntry := JournalEntry{
			ID:            EntryID(uuid.NewString()),
			TenantID:      tenant,
			Sequence:      seq,
			Number:        FormatEntryNumber(seq),
			EntryDate:     in.EntryDate,
			Description:   in.Description,
			Status:        StatusDraft,
			ReferenceType: in.ReferenceType,
			ReferenceID:   in.ReferenceID,
			TotalDebit:    totalDebit,
			TotalCredit:   totalCredit,
			CreatedAt:     now,
		}
		for i, l := range in.Lines {
			newEntry.Lines = append(newEntry.Lines, JournalLine{
				ID:           LineID(uuid.NewString()),
				EntryID:      newEntry.ID,
				LineNumber:   i + 1,
				AccountID:    l.AccountID,
				Debit:        l.Debit,
				Credit:       l.Credit,
				Description:  l.Description,
				CostCenterID: l.CostCenterID,
			})
		}

		if err := s.InsertEntry(ctx, newEntry); err != nil {
			// A concurrent retry beat us to the reference pair: return
			// the winner's entry instead of failing the caller.
			if errors.Is(err, ErrConflict) && in.ReferenceType != "" && in.ReferenceID != "" {
				existing, lookupErr := s.FindEntryByReference(ctx, tenant, in.ReferenceType, in.ReferenceID)
				if lookupErr == nil && existing != nil {
					entry = existing
					return nil
				}
			}
			return err
		}
		entry = &newEntry
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return entry, created, nil
}

// validateLines runs checks (a) through (c). Balance is checked by the caller.
func (e *Engine) validateLines(ctx context.Context, tenant TenantID, lines []LineInput) error {
	if len(lines) < 2 {
		return &ValidationError{Field: "lines", Message: "a journal entry needs at least 2 lines"}
	}

	for i, l := range lines {
		n := i + 1
		if l.Debit.IsNegative() || l.Credit.IsNegative() {
			return &ValidationError{Field: "amount", Line: n, Message: "amounts must not be negative"}
		}
		hasDebit := l.Debit.IsPositive()
		hasCredit := l.Credit.IsPositive()
		if hasDebit == hasCredit {
			return &ValidationError{Field: "amount", Line: n, Message: "exactly one of debit or credit must be nonzero"}
		}
		if !IsMoney(l.Debit) || !IsMoney(l.Credit) {
			return &ValidationError{Field: "amount", Line: n, Message: fmt.Sprintf("more than %d decimal places", CurrencyPlaces)}
		}

		account, err := e.store.GetAccount(ctx, tenant, l.AccountID)
		if err != nil {
			if IsNotFound(err) {
				return &InvalidAccountError{AccountID: l.AccountID, Line: n, Reason: "account does not exist"}
			}
			return err
		}
		if !account.IsActive {
			return &InvalidAccountError{AccountID: l.AccountID, Line: n, Reason: "account is inactive"}
		}
		if account.IsHeader {
			return &InvalidAccountError{AccountID: l.AccountID, Line: n, Reason: "header accounts cannot receive postings"}
		}
		if account.Level < MinPostableLevel {
			return &InvalidAccountError{
				AccountID: l.AccountID, Line: n,
				Reason: fmt.Sprintf("account level %d is above the postable threshold (level >= %d)", account.Level, MinPostableLevel),
			}
		}
	}
	return nil
}

// =============================================================================
// POST
// =============================================================================

// Post transitions draft -> posted. The balance invariant is re-checked
// at commit time as a defense against concurrent mutation.
func (e *Engine) Post(ctx context.Context, tenant TenantID, id EntryID) (*JournalEntry, error) {
	if tenant == "" {
		return nil, ErrAccessDenied
	}

	var posted *JournalEntry
	err := e.tx.WithTx(ctx, func(s Store) error {
		entry, err := s.GetEntry(ctx, tenant, id)
		if err != nil {
			return err
		}
		if entry.Status != StatusDraft {
			return fmt.Errorf("entry %s: %w", entry.Number, ErrAlreadyPosted)
		}

		totalDebit := decimal.Zero
		totalCredit := decimal.Zero
		for _, l := range entry.Lines {
			totalDebit = totalDebit.Add(l.Debit)
			totalCredit = totalCredit.Add(l.Credit)
		}
		if !totalDebit.Equal(totalCredit) {
			return &UnbalancedEntryError{TotalDebit: totalDebit, TotalCredit: totalCredit}
		}

		at := e.now().UTC()
		if err := s.MarkPosted(ctx, tenant, id, at); err != nil {
			return err
		}
		entry.Status = StatusPosted
		entry.PostedAt = &at
		posted = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

// =============================================================================
// REVERSE
// =============================================================================

// Reverse creates a mirrored entry (debits and credits swapped, same
// magnitudes), posts it, and marks the original reversed. The original's
// lines are never touched.
func (e *Engine) Reverse(ctx context.Context, tenant TenantID, id EntryID, reason string) (*JournalEntry, error) {
	if tenant == "" {
		return nil, ErrAccessDenied
	}

	var reversal *JournalEntry
	err := e.tx.WithTx(ctx, func(s Store) error {
		original, err := s.GetEntry(ctx, tenant, id)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return fmt.Errorf("entry %s: %w", original.Number, ErrNotPosted)
		}

		seq, err := s.NextSequence(ctx, tenant)
		if err != nil {
			return err
		}

		now := e.now().UTC()
		description := "Reversal of " + original.Number
		if reason != "" {
			description += ": " + reason
		}

		rev := JournalEntry{
			ID:              EntryID(uuid.NewString()),
			TenantID:        tenant,
			Sequence:        seq,
			Number:          FormatEntryNumber(seq),
			EntryDate:       now,
			Description:     description,
			Status:          StatusPosted,
			ReferenceType:   "reversal",
			ReferenceID:     string(original.ID),
			TotalDebit:      original.TotalCredit,
			TotalCredit:     original.TotalDebit,
			ReversesEntryID: &original.ID,
			CreatedAt:       now,
			PostedAt:        &now,
		}
		for _, l := range original.Lines {
			rev.Lines = append(rev.Lines, JournalLine{
				ID:           LineID(uuid.NewString()),
				EntryID:      rev.ID,
				LineNumber:   l.LineNumber,
				AccountID:    l.AccountID,
				Debit:        l.Credit, // swapped
				Credit:       l.Debit,  // swapped
				Description:  l.Description,
				CostCenterID: l.CostCenterID,
			})
		}

		if err := s.InsertEntry(ctx, rev); err != nil {
			return err
		}
		if err := s.MarkReversed(ctx, tenant, original.ID, rev.ID); err != nil {
			return err
		}
		reversal = &rev
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reversal, nil
}

// =============================================================================
// NUMBERING
// =============================================================================

// FormatEntryNumber renders the human-readable entry number.
func FormatEntryNumber(seq int64) string {
	return fmt.Sprintf("JE-%06d", seq)
}

/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All error types in one place. Callers classify with errors.Is against
  the sentinels; structured types carry enough detail (offending line
  index, computed totals) to fix the request and retry.

ERROR CATEGORIES:
  1. Request errors    - malformed input, caller's fault (4xx)
  2. Accounting errors - unbalanced entry, non-postable account
  3. Structural errors - chart conflicts, missing blueprints, tenancy

SEE ALSO:
  - engine.go: produces UnbalancedEntryError / InvalidAccountError
  - mapping.go: produces ConfigurationError
  - chart.go: produces ValidationError / ConflictError
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the base for malformed requests.
	ErrValidation = errors.New("validation failed")

	// ErrUnbalancedEntry is returned when debits do not equal credits.
	ErrUnbalancedEntry = errors.New("journal entry is not balanced")

	// ErrInvalidAccount is returned when a line references an account that
	// is missing, inactive, or not postable.
	ErrInvalidAccount = errors.New("invalid account for posting")

	// ErrConfiguration is returned when no blueprint is registered for a
	// requested role. Surfaced to an operator, never auto-guessed.
	ErrConfiguration = errors.New("accounting configuration missing")

	// ErrConflict is returned on structural or idempotency conflicts.
	ErrConflict = errors.New("conflict")

	// ErrAccessDenied is returned when the tenant scope is absent or
	// violated. Ledger operations fail closed.
	ErrAccessDenied = errors.New("access denied: missing tenant scope")

	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotPosted is returned when reversing an entry that is not posted.
	ErrNotPosted = errors.New("entry is not posted")

	// ErrAlreadyPosted is returned when posting a non-draft entry.
	ErrAlreadyPosted = errors.New("entry is not a draft")
)

// =============================================================================
// STRUCTURED ERRORS - carry additional context
// =============================================================================

// ValidationError reports a malformed request. Line is 1-based when the
// failure concerns a specific journal line, 0 otherwise.
type ValidationError struct {
	Field   string
	Line    int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("validation failed on line %d: %s: %s", e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// UnbalancedEntryError carries the computed totals and their delta so the
// caller can see exactly how far off the entry is.
type UnbalancedEntryError struct {
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

func (e *UnbalancedEntryError) Delta() decimal.Decimal {
	return e.TotalDebit.Sub(e.TotalCredit)
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("entry not balanced: debits %s != credits %s (delta %s)",
		e.TotalDebit.StringFixed(2), e.TotalCredit.StringFixed(2), e.Delta().StringFixed(2))
}

func (e *UnbalancedEntryError) Unwrap() error { return ErrUnbalancedEntry }

// InvalidAccountError identifies the offending line and why its account
// cannot take the posting.
type InvalidAccountError struct {
	AccountID AccountID
	Line      int // 1-based
	Reason    string
}

func (e *InvalidAccountError) Error() string {
	return fmt.Sprintf("line %d: account %s: %s", e.Line, e.AccountID, e.Reason)
}

func (e *InvalidAccountError) Unwrap() error { return ErrInvalidAccount }

// ConfigurationError names the role that has no blueprint.
type ConfigurationError struct {
	Role string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no account blueprint registered for role %q", e.Role)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// ConflictError describes a structural conflict, e.g. deactivating an
// account that still has active children.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string { return "conflict: " + e.Reason }

func (e *ConflictError) Unwrap() error { return ErrConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError reports whether the error is the caller's fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrUnbalancedEntry) ||
		errors.Is(err, ErrInvalidAccount) ||
		errors.Is(err, ErrNotPosted) ||
		errors.Is(err, ErrAlreadyPosted)
}

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether the error is a structural or idempotency conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

/*
chart.go - Chart-of-accounts service

PURPOSE:
  CRUD over accounts with structural validation. The chart is a tree per
  tenant: levels 1 (root) through 6, parent level always one less than
  the child's, codes unique within the tenant. Header accounts aggregate
  and never receive postings; detail accounts at level >= 3 do.

CODE SCHEME:
  Codes are digit strings where depth equals length: "1" Assets (level 1),
  "11" Current Assets (level 2), "111" Cash and Banks (level 3),
  "1111" Cash on Hand (level 4). The parent of a code is the code with
  its last digit removed. SeedDefaultChart relies on this.

DEACTIVATION:
  Accounts are deactivated, never deleted - posted lines keep referencing
  them for audit. Deactivation is refused while the account has active
  children or posted activity.

SEE ALSO:
  - mapping.go: creates accounts lazily from blueprints using the same scheme
  - engine.go: enforces postability at entry-creation time
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChartService owns structural validation of the account tree.
type ChartService struct {
	store Store
	now   func() time.Time
}

func NewChartService(store Store) *ChartService {
	return &ChartService{store: store, now: time.Now}
}

// CreateAccountInput is the request to create one account.
type CreateAccountInput struct {
	Code     string
	Name     string
	Type     AccountType
	Level    int
	ParentID *AccountID
	IsHeader bool
}

// CreateAccount validates and persists a new account.
func (s *ChartService) CreateAccount(ctx context.Context, tenant TenantID, in CreateAccountInput) (*Account, error) {
	if tenant == "" {
		return nil, ErrAccessDenied
	}
	if in.Code == "" {
		return nil, &ValidationError{Field: "code", Message: "must not be empty"}
	}
	if in.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "must not be empty"}
	}
	if !ValidAccountType(in.Type) {
		return nil, &ValidationError{Field: "type", Message: fmt.Sprintf("unknown account type %q", in.Type)}
	}
	if in.Level < 1 || in.Level > MaxAccountLevel {
		return nil, &ValidationError{Field: "level", Message: fmt.Sprintf("must be between 1 and %d", MaxAccountLevel)}
	}
	if in.Level > 1 && in.ParentID == nil {
		return nil, &ValidationError{Field: "parent_id", Message: "required for accounts below level 1"}
	}
	if in.Level == 1 && in.ParentID != nil {
		return nil, &ValidationError{Field: "parent_id", Message: "level-1 accounts cannot have a parent"}
	}

	// Code uniqueness within the tenant.
	if existing, err := s.store.GetAccountByCode(ctx, tenant, in.Code); err != nil && !IsNotFound(err) {
		return nil, err
	} else if existing != nil {
		return nil, &ValidationError{Field: "code", Message: fmt.Sprintf("code %q already exists", in.Code)}
	}

	// Parent checks: same tenant, level exactly one above, still active.
	if in.ParentID != nil {
		parent, err := s.store.GetAccount(ctx, tenant, *in.ParentID)
		if err != nil {
			if IsNotFound(err) {
				return nil, &ValidationError{Field: "parent_id", Message: "parent account does not exist"}
			}
			return nil, err
		}
		if parent.Level != in.Level-1 {
			return nil, &ValidationError{
				Field:   "parent_id",
				Message: fmt.Sprintf("parent is level %d, expected level %d", parent.Level, in.Level-1),
			}
		}
		if !parent.IsActive {
			return nil, &ValidationError{Field: "parent_id", Message: "parent account is inactive"}
		}
	}

	now := s.now().UTC()
	account := Account{
		ID:        AccountID(uuid.NewString()),
		TenantID:  tenant,
		Code:      in.Code,
		Name:      in.Name,
		Type:      in.Type,
		Level:     in.Level,
		IsHeader:  in.IsHeader,
		ParentID:  in.ParentID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveAccount(ctx, account); err != nil {
		return nil, err
	}
	return &account, nil
}

// DeactivateAccount soft-deletes an account. Refused while the account
// has active children or posted journal lines.
func (s *ChartService) DeactivateAccount(ctx context.Context, tenant TenantID, id AccountID) (*Account, error) {
	if tenant == "" {
		return nil, ErrAccessDenied
	}
	account, err := s.store.GetAccount(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if !account.IsActive {
		return account, nil // already inactive, nothing to do
	}

	hasChildren, err := s.store.HasActiveChildren(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if hasChildren {
		return nil, &ConflictError{Reason: fmt.Sprintf("account %s has active child accounts", account.Code)}
	}
	hasPostings, err := s.store.HasPostings(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if hasPostings {
		return nil, &ConflictError{Reason: fmt.Sprintf("account %s has journal activity", account.Code)}
	}

	account.IsActive = false
	account.UpdatedAt = s.now().UTC()
	if err := s.store.SaveAccount(ctx, *account); err != nil {
		return nil, err
	}
	return account, nil
}

// ListAccounts returns the tenant's accounts ordered by code.
func (s *ChartService) ListAccounts(ctx context.Context, tenant TenantID, filter AccountFilter) ([]Account, error) {
	if tenant == "" {
		return nil, ErrAccessDenied
	}
	return s.store.ListAccounts(ctx, tenant, filter)
}

// Statistics is a pure aggregation read over the chart.
func (s *ChartService) Statistics(ctx context.Context, tenant TenantID) (*ChartStatistics, error) {
	if tenant == "" {
		return nil, ErrAccessDenied
	}
	accounts, err := s.store.ListAccounts(ctx, tenant, AccountFilter{})
	if err != nil {
		return nil, err
	}

	stats := &ChartStatistics{
		ByType:  make(map[AccountType]int),
		ByLevel: make(map[int]int),
	}
	depthSum := 0
	for _, a := range accounts {
		stats.TotalAccounts++
		if a.IsActive {
			stats.ActiveAccounts++
		}
		stats.ByType[a.Type]++
		stats.ByLevel[a.Level]++
		if a.IsHeader {
			stats.HeaderCount++
		} else {
			stats.DetailCount++
		}
		if a.Level > stats.MaxDepth {
			stats.MaxDepth = a.Level
		}
		depthSum += a.Level
	}
	if stats.TotalAccounts > 0 {
		stats.AvgDepth = float64(depthSum) / float64(stats.TotalAccounts)
	}
	return stats, nil
}

// =============================================================================
// DEFAULT CHART - rental-company template
// =============================================================================

// defaultChartEntry describes one account in the seed template.
type defaultChartEntry struct {
	Code     string
	Name     string
	Type     AccountType
	IsHeader bool
}

// defaultChart is the starter chart of accounts for a fleet/rental
// tenant. Level and parent follow from the code scheme.
func defaultChart() []defaultChartEntry {
	return []defaultChartEntry{
		{"1", "Assets", AccountAsset, true},
		{"11", "Current Assets", AccountAsset, true},
		{"111", "Cash and Banks", AccountAsset, true},
		{"1111", "Cash on Hand", AccountAsset, false},
		{"1112", "Bank Accounts", AccountAsset, false},
		{"112", "Receivables", AccountAsset, true},
		{"1121", "Accounts Receivable - Trade", AccountAsset, false},
		{"1122", "Rental Deposits Receivable", AccountAsset, false},
		{"12", "Fixed Assets", AccountAsset, true},
		{"121", "Vehicles", AccountAsset, false},
		{"129", "Accumulated Depreciation", AccountAsset, true},
		{"1291", "Accumulated Depreciation - Vehicles", AccountAsset, false},
		{"2", "Liabilities", AccountLiability, true},
		{"21", "Current Liabilities", AccountLiability, true},
		{"211", "Accounts Payable", AccountLiability, false},
		{"213", "Customer Deposits", AccountLiability, true},
		{"2131", "Customer Security Deposits", AccountLiability, false},
		{"3", "Equity", AccountEquity, true},
		{"31", "Capital", AccountEquity, true},
		{"311", "Owner Capital", AccountEquity, false},
		{"4", "Revenue", AccountRevenue, true},
		{"41", "Operating Revenue", AccountRevenue, true},
		{"411", "Rental Revenue", AccountRevenue, true},
		{"4111", "Daily Rental Revenue", AccountRevenue, false},
		{"4112", "Monthly Rental Revenue", AccountRevenue, false},
		{"412", "Service Revenue", AccountRevenue, true},
		{"4121", "Late Fee Revenue", AccountRevenue, false},
		{"5", "Expenses", AccountExpense, true},
		{"51", "Operating Expenses", AccountExpense, true},
		{"511", "Vehicle Expenses", AccountExpense, false},
		{"512", "Maintenance Expenses", AccountExpense, false},
		{"514", "Depreciation Expenses", AccountExpense, true},
		{"5141", "Vehicle Depreciation Expense", AccountExpense, false},
	}
}

// SeedDefaultChart creates the starter chart for a tenant. Accounts that
// already exist (by code) are left untouched, so seeding is idempotent.
func (s *ChartService) SeedDefaultChart(ctx context.Context, tenant TenantID) (int, error) {
	if tenant == "" {
		return 0, ErrAccessDenied
	}

	created := 0
	for _, entry := range defaultChart() {
		existing, err := s.store.GetAccountByCode(ctx, tenant, entry.Code)
		if err != nil && !IsNotFound(err) {
			return created, err
		}
		if existing != nil {
			continue
		}

		var parentID *AccountID
		if len(entry.Code) > 1 {
			parentCode := entry.Code[:len(entry.Code)-1]
			parent, err := s.store.GetAccountByCode(ctx, tenant, parentCode)
			if err != nil {
				return created, fmt.Errorf("seed chart: parent %q for %q: %w", parentCode, entry.Code, err)
			}
			parentID = &parent.ID
		}

		if _, err := s.CreateAccount(ctx, tenant, CreateAccountInput{
			Code:     entry.Code,
			Name:     entry.Name,
			Type:     entry.Type,
			Level:    len(entry.Code),
			ParentID: parentID,
			IsHeader: entry.IsHeader,
		}); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

/*
mapping.go - Account mapping resolver and blueprint registry

PURPOSE:
  Business code never hardcodes account ids. Generators ask for abstract
  roles ("accounts-receivable", "rental-revenue", ...) and the resolver
  translates them to concrete accounts for the tenant. When no mapping
  exists, the resolver consults the blueprint registry, creates the
  default account (and any missing header ancestors), records the
  mapping, and returns it.

DEFAULTING POLICY:
  The blueprint registry is the ONLY place default accounts come from.
  An unknown role fails with ConfigurationError - the resolver never
  guesses. Mappings created by a human (Source=manual) are never
  overwritten by the resolver.

ANCESTOR CREATION:
  Blueprint codes follow the chart code scheme (level == len(code),
  parent == code minus last digit). Missing ancestors are created as
  header accounts using the registry's header-name table.

SEE ALSO:
  - chart.go: the code scheme and default chart
  - events/: the generators that consume roles
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// WELL-KNOWN ROLES
// =============================================================================

const (
	RoleCash                    = "cash"
	RoleAccountsReceivable      = "accounts-receivable"
	RoleRentalRevenue           = "rental-revenue"
	RoleSecurityDeposits        = "security-deposits"
	RoleDepreciationExpense     = "depreciation-expense"
	RoleAccumulatedDepreciation = "accumulated-depreciation"
	RoleLateFeeRevenue          = "late-fee-revenue"
)

// =============================================================================
// BLUEPRINT REGISTRY
// =============================================================================

// AccountBlueprint is the template for a role's default account. Level
// and parent follow from the code.
type AccountBlueprint struct {
	Code string
	Name string
	Type AccountType
}

// BlueprintRegistry maps roles to default-account templates.
type BlueprintRegistry struct {
	blueprints  map[string]AccountBlueprint
	headerNames map[string]string // code -> display name for implied ancestors
}

// NewBlueprintRegistry returns a registry preloaded with the fleet/rental
// defaults. Additional roles can be registered at startup.
func NewBlueprintRegistry() *BlueprintRegistry {
	r := &BlueprintRegistry{
		blueprints:  make(map[string]AccountBlueprint),
		headerNames: make(map[string]string),
	}

	r.Register(RoleCash, AccountBlueprint{Code: "1111", Name: "Cash on Hand", Type: AccountAsset})
	r.Register(RoleAccountsReceivable, AccountBlueprint{Code: "1121", Name: "Accounts Receivable - Trade", Type: AccountAsset})
	r.Register(RoleRentalRevenue, AccountBlueprint{Code: "4111", Name: "Daily Rental Revenue", Type: AccountRevenue})
	r.Register(RoleSecurityDeposits, AccountBlueprint{Code: "2131", Name: "Customer Security Deposits", Type: AccountLiability})
	r.Register(RoleDepreciationExpense, AccountBlueprint{Code: "5141", Name: "Vehicle Depreciation Expense", Type: AccountExpense})
	r.Register(RoleAccumulatedDepreciation, AccountBlueprint{Code: "1291", Name: "Accumulated Depreciation - Vehicles", Type: AccountAsset})
	r.Register(RoleLateFeeRevenue, AccountBlueprint{Code: "4121", Name: "Late Fee Revenue", Type: AccountRevenue})

	for code, name := range map[string]string{
		"1":   "Assets",
		"11":  "Current Assets",
		"111": "Cash and Banks",
		"112": "Receivables",
		"12":  "Fixed Assets",
		"129": "Accumulated Depreciation",
		"2":   "Liabilities",
		"21":  "Current Liabilities",
		"213": "Customer Deposits",
		"4":   "Revenue",
		"41":  "Operating Revenue",
		"411": "Rental Revenue",
		"412": "Service Revenue",
		"5":   "Expenses",
		"51":  "Operating Expenses",
		"514": "Depreciation Expenses",
	} {
		r.RegisterHeader(code, name)
	}
	return r
}

// Register adds or replaces a role blueprint.
func (r *BlueprintRegistry) Register(role string, bp AccountBlueprint) {
	r.blueprints[role] = bp
}

// RegisterHeader names a header ancestor code.
func (r *BlueprintRegistry) RegisterHeader(code, name string) {
	r.headerNames[code] = name
}

// Lookup returns the blueprint for a role, or ConfigurationError.
func (r *BlueprintRegistry) Lookup(role string) (AccountBlueprint, error) {
	bp, ok := r.blueprints[role]
	if !ok {
		return AccountBlueprint{}, &ConfigurationError{Role: role}
	}
	return bp, nil
}

func (r *BlueprintRegistry) headerName(code string) string {
	if name, ok := r.headerNames[code]; ok {
		return name
	}
	return "Account Group " + code
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver translates roles to accounts, creating defaults when absent.
type Resolver struct {
	store    Store
	tx       TxRunner
	registry *BlueprintRegistry
	now      func() time.Time
}

func NewResolver(store Store, tx TxRunner, registry *BlueprintRegistry) *Resolver {
	return &Resolver{store: store, tx: tx, registry: registry, now: time.Now}
}

// Resolve returns the account mapped to role, creating the default
// account and mapping if none exists yet.
func (r *Resolver) Resolve(ctx context.Context, tenant TenantID, role string) (*Account, error) {
	if tenant == "" {
		return nil, ErrAccessDenied
	}

	var account *Account
	err := r.tx.WithTx(ctx, func(s Store) error {
		var err error
		account, err = r.resolveIn(ctx, s, tenant, role)
		return err
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// ResolveMany resolves all roles or none: a single unresolvable role
// rolls back every mapping the call would have created.
func (r *Resolver) ResolveMany(ctx context.Context, tenant TenantID, roles []string) (map[string]*Account, error) {
	if tenant == "" {
		return nil, ErrAccessDenied
	}

	out := make(map[string]*Account, len(roles))
	err := r.tx.WithTx(ctx, func(s Store) error {
		for _, role := range roles {
			account, err := r.resolveIn(ctx, s, tenant, role)
			if err != nil {
				return err
			}
			out[role] = account
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Resolver) resolveIn(ctx context.Context, s Store, tenant TenantID, role string) (*Account, error) {
	// Existing active mapping wins, whatever its source.
	mapping, err := s.GetMapping(ctx, tenant, role)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	if mapping != nil {
		account, err := s.GetAccount(ctx, tenant, mapping.AccountID)
		if err != nil {
			if IsNotFound(err) {
				return nil, &ConfigurationError{Role: role}
			}
			return nil, err
		}
		return account, nil
	}

	bp, err := r.registry.Lookup(role)
	if err != nil {
		return nil, err
	}

	account, err := r.ensureAccount(ctx, s, tenant, bp)
	if err != nil {
		return nil, err
	}

	if err := s.SaveMapping(ctx, AccountMapping{
		ID:        MappingID(uuid.NewString()),
		TenantID:  tenant,
		Role:      role,
		AccountID: account.ID,
		Source:    MappingAuto,
		IsActive:  true,
		CreatedAt: r.now().UTC(),
	}); err != nil {
		return nil, err
	}
	return account, nil
}

// ensureAccount returns the account with the blueprint's code, creating
// it (and any missing header ancestors) when absent.
func (r *Resolver) ensureAccount(ctx context.Context, s Store, tenant TenantID, bp AccountBlueprint) (*Account, error) {
	if existing, err := s.GetAccountByCode(ctx, tenant, bp.Code); err == nil {
		return existing, nil
	} else if !IsNotFound(err) {
		return nil, err
	}

	if len(bp.Code) < MinPostableLevel {
		return nil, fmt.Errorf("blueprint code %q is too shallow to be postable", bp.Code)
	}

	parentID, err := r.ensureAncestors(ctx, s, tenant, bp)
	if err != nil {
		return nil, err
	}

	now := r.now().UTC()
	account := Account{
		ID:        AccountID(uuid.NewString()),
		TenantID:  tenant,
		Code:      bp.Code,
		Name:      bp.Name,
		Type:      bp.Type,
		Level:     len(bp.Code),
		IsHeader:  false,
		ParentID:  parentID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.SaveAccount(ctx, account); err != nil {
		return nil, err
	}
	return &account, nil
}

// ensureAncestors walks the code prefix chain root-first, creating header
// accounts as needed, and returns the immediate parent's id.
func (r *Resolver) ensureAncestors(ctx context.Context, s Store, tenant TenantID, bp AccountBlueprint) (*AccountID, error) {
	var parentID *AccountID
	for i := 1; i < len(bp.Code); i++ {
		code := bp.Code[:i]
		existing, err := s.GetAccountByCode(ctx, tenant, code)
		if err == nil {
			parentID = &existing.ID
			continue
		}
		if !IsNotFound(err) {
			return nil, err
		}

		now := r.now().UTC()
		header := Account{
			ID:        AccountID(uuid.NewString()),
			TenantID:  tenant,
			Code:      code,
			Name:      r.registry.headerName(code),
			Type:      bp.Type,
			Level:     i,
			IsHeader:  true,
			ParentID:  parentID,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.SaveAccount(ctx, header); err != nil {
			return nil, err
		}
		parentID = &header.ID
	}
	return parentID, nil
}

/*
registry.go - Business payload registry: contracts, assets, batch runs

PURPOSE:
  The batch runner needs to know WHAT to bill and depreciate. Contracts
  and assets are the minimal business records that feed the monthly
  sweeps; they carry no accounting state of their own - the journal is
  the only source of financial truth. Batch runs are persisted for audit
  and for the UI's run history.

SEE ALSO:
  - batch.go: builds events from these records
  - store/sqlite: the persistent implementation
*/
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetcore/ledger-engine/ledger"
)

// =============================================================================
// CONTRACT - a running rental agreement
// =============================================================================

type Contract struct {
	ID            string
	TenantID      ledger.TenantID
	CustomerName  string
	VehicleID     string
	MonthlyRate   decimal.Decimal
	DepositAmount decimal.Decimal
	StartDate     time.Time
	EndDate       *time.Time
	IsActive      bool

	CreatedAt time.Time
}

// BillableIn reports whether the contract should be invoiced for the
// period: active, started by the period's end, not ended before the
// period's start.
func (c *Contract) BillableIn(p Period) bool {
	if !c.IsActive {
		return false
	}
	if c.StartDate.After(p.End()) {
		return false
	}
	if c.EndDate != nil && c.EndDate.Before(p.Start()) {
		return false
	}
	return true
}

// InvoiceID is the deterministic invoice reference for a billing period,
// so re-running a month cannot double-bill.
func (c *Contract) InvoiceID(p Period) string {
	return c.ID + "/" + p.String()
}

// =============================================================================
// ASSET - a depreciable fleet vehicle
// =============================================================================

type Asset struct {
	ID              string
	TenantID        ledger.TenantID
	Name            string
	PurchasePrice   decimal.Decimal
	SalvageValue    decimal.Decimal
	UsefulLifeYears int
	InServiceDate   time.Time
	IsActive        bool

	CreatedAt time.Time
}

// MonthlyCharge is the asset's straight-line monthly depreciation.
func (a *Asset) MonthlyCharge() decimal.Decimal {
	return MonthlyDepreciation(a.PurchasePrice, a.SalvageValue, a.UsefulLifeYears)
}

// DepreciableIn reports whether the asset takes a charge for the period:
// active, in service by the period's start, and not yet past its useful
// life.
func (a *Asset) DepreciableIn(p Period) bool {
	if !a.IsActive || a.UsefulLifeYears <= 0 {
		return false
	}
	first := PeriodOf(a.InServiceDate)
	if p.Before(first) {
		return false
	}
	elapsed := (p.Year-first.Year)*12 + int(p.Month) - int(first.Month)
	return elapsed < a.UsefulLifeYears*12
}

// =============================================================================
// BATCH RUN - audit record of one sweep
// =============================================================================

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// BatchRun records one execution of a batch sweep for one tenant.
type BatchRun struct {
	ID        string
	TenantID  ledger.TenantID
	Kind      string // event kind the run generated
	Period    string
	Status    RunStatus
	Processed int
	Skipped   int
	Failed    int
	Error     string

	StartedAt  time.Time
	FinishedAt *time.Time

	// Errors carries the per-event messages of the run that produced this
	// record. Only the first is persisted (the Error column); the rest
	// exist for the immediate caller's response.
	Errors []string
}

// =============================================================================
// REGISTRY - persistence contract
// =============================================================================

// Registry stores the business records behind batch runs.
type Registry interface {
	SaveContract(ctx context.Context, c Contract) error
	GetContract(ctx context.Context, tenant ledger.TenantID, id string) (*Contract, error)
	ListContracts(ctx context.Context, tenant ledger.TenantID, activeOnly bool) ([]Contract, error)

	SaveAsset(ctx context.Context, a Asset) error
	GetAsset(ctx context.Context, tenant ledger.TenantID, id string) (*Asset, error)
	ListAssets(ctx context.Context, tenant ledger.TenantID, activeOnly bool) ([]Asset, error)

	SaveBatchRun(ctx context.Context, r BatchRun) error
	ListBatchRuns(ctx context.Context, tenant ledger.TenantID, limit int) ([]BatchRun, error)

	// ListTenants returns every tenant with contracts or assets, for the
	// scheduler's cross-tenant sweep.
	ListTenants(ctx context.Context) ([]ledger.TenantID, error)
}

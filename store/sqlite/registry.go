/*
registry.go - events.Registry implementation

PURPOSE:
  Persistence for the business records behind batch runs: rental
  contracts (invoice sweep), fleet assets (depreciation sweep), and the
  batch_runs audit trail. Same database, same locking discipline as the
  ledger side.

SEE ALSO:
  - sqlite.go: schema and ledger.Store implementation
  - events/registry.go: the interface and record types
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fleetcore/ledger-engine/events"
	"github.com/fleetcore/ledger-engine/ledger"
)

// =============================================================================
// CONTRACTS
// =============================================================================

func (s *Store) SaveContract(ctx context.Context, c events.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts
		(id, tenant_id, customer_name, vehicle_id, monthly_rate, deposit_amount,
		 start_date, end_date, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			customer_name = excluded.customer_name,
			monthly_rate = excluded.monthly_rate,
			deposit_amount = excluded.deposit_amount,
			end_date = excluded.end_date,
			is_active = excluded.is_active`,
		c.ID, c.TenantID, c.CustomerName, c.VehicleID,
		c.MonthlyRate.String(), c.DepositAmount.String(),
		c.StartDate.UTC().Format(time.RFC3339), nullableTime(c.EndDate),
		c.IsActive, c.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

const contractColumns = `id, tenant_id, customer_name, vehicle_id, monthly_rate, deposit_amount,
	start_date, end_date, is_active, created_at`

func (s *Store) GetContract(ctx context.Context, tenant ledger.TenantID, id string) (*events.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+contractColumns+` FROM contracts WHERE tenant_id = ? AND id = ?`,
		tenant, id,
	)
	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	return c, err
}

func (s *Store) ListContracts(ctx context.Context, tenant ledger.TenantID, activeOnly bool) ([]events.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + contractColumns + ` FROM contracts WHERE tenant_id = ?`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to query contracts: %w", err)
	}
	defer rows.Close()

	var contracts []events.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *c)
	}
	return contracts, rows.Err()
}

func scanContract(r rowScanner) (*events.Contract, error) {
	var (
		c             events.Contract
		vehicleID     sql.NullString
		monthlyRate   string
		depositAmount string
		startDate     string
		endDate       sql.NullString
		createdAt     string
	)
	err := r.Scan(&c.ID, &c.TenantID, &c.CustomerName, &vehicleID,
		&monthlyRate, &depositAmount, &startDate, &endDate, &c.IsActive, &createdAt)
	if err != nil {
		return nil, err
	}
	c.VehicleID = vehicleID.String
	c.MonthlyRate = mustParseDecimal(monthlyRate)
	c.DepositAmount = mustParseDecimal(depositAmount)
	c.StartDate, _ = time.Parse(time.RFC3339, startDate)
	if endDate.Valid {
		t, _ := time.Parse(time.RFC3339, endDate.String)
		c.EndDate = &t
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &c, nil
}

// =============================================================================
// ASSETS
// =============================================================================

func (s *Store) SaveAsset(ctx context.Context, a events.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assets
		(id, tenant_id, name, purchase_price, salvage_value, useful_life_years,
		 in_service_date, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			salvage_value = excluded.salvage_value,
			is_active = excluded.is_active`,
		a.ID, a.TenantID, a.Name,
		a.PurchasePrice.String(), a.SalvageValue.String(), a.UsefulLifeYears,
		a.InServiceDate.UTC().Format(time.RFC3339), a.IsActive,
		a.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save asset: %w", err)
	}
	return nil
}

const assetColumns = `id, tenant_id, name, purchase_price, salvage_value, useful_life_years,
	in_service_date, is_active, created_at`

func (s *Store) GetAsset(ctx context.Context, tenant ledger.TenantID, id string) (*events.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+assetColumns+` FROM assets WHERE tenant_id = ? AND id = ?`,
		tenant, id,
	)
	a, err := scanAsset(row)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	return a, err
}

func (s *Store) ListAssets(ctx context.Context, tenant ledger.TenantID, activeOnly bool) ([]events.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + assetColumns + ` FROM assets WHERE tenant_id = ?`
	if activeOnly {
		query += ` AND is_active`
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []events.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *a)
	}
	return assets, rows.Err()
}

func scanAsset(r rowScanner) (*events.Asset, error) {
	var (
		a             events.Asset
		purchasePrice string
		salvageValue  string
		inServiceDate string
		createdAt     string
	)
	err := r.Scan(&a.ID, &a.TenantID, &a.Name, &purchasePrice, &salvageValue,
		&a.UsefulLifeYears, &inServiceDate, &a.IsActive, &createdAt)
	if err != nil {
		return nil, err
	}
	a.PurchasePrice = mustParseDecimal(purchasePrice)
	a.SalvageValue = mustParseDecimal(salvageValue)
	a.InServiceDate, _ = time.Parse(time.RFC3339, inServiceDate)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &a, nil
}

// =============================================================================
// BATCH RUNS
// =============================================================================

func (s *Store) SaveBatchRun(ctx context.Context, r events.BatchRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO batch_runs
		(id, tenant_id, kind, period, status, processed, skipped, failed, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			processed = excluded.processed,
			skipped = excluded.skipped,
			failed = excluded.failed,
			error = excluded.error,
			finished_at = excluded.finished_at`,
		r.ID, r.TenantID, r.Kind, r.Period, r.Status,
		r.Processed, r.Skipped, r.Failed, r.Error,
		r.StartedAt.UTC().Format(time.RFC3339), nullableTime(r.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save batch run: %w", err)
	}
	return nil
}

func (s *Store) ListBatchRuns(ctx context.Context, tenant ledger.TenantID, limit int) ([]events.BatchRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, tenant_id, kind, period, status, processed, skipped, failed, error, started_at, finished_at
		FROM batch_runs WHERE tenant_id = ? ORDER BY started_at DESC`
	args := []any{tenant}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch runs: %w", err)
	}
	defer rows.Close()

	var runs []events.BatchRun
	for rows.Next() {
		var (
			r          events.BatchRun
			errMsg     sql.NullString
			startedAt  string
			finishedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.TenantID, &r.Kind, &r.Period, &r.Status,
			&r.Processed, &r.Skipped, &r.Failed, &errMsg, &startedAt, &finishedAt); err != nil {
			return nil, err
		}
		r.Error = errMsg.String
		r.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		if finishedAt.Valid {
			t, _ := time.Parse(time.RFC3339, finishedAt.String)
			r.FinishedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ListTenants returns every tenant that owns contracts or assets.
func (s *Store) ListTenants(ctx context.Context) ([]ledger.TenantID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id FROM contracts
		UNION
		SELECT tenant_id FROM assets
		ORDER BY tenant_id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []ledger.TenantID
	for rows.Next() {
		var t ledger.TenantID
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

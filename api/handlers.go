/*
handlers.go - HTTP API handlers for the fleet accounting ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                    List chart of accounts
    POST   /api/accounts                    Create account
    POST   /api/accounts/seed-defaults      Load the default chart
    GET    /api/accounts/statistics         Chart statistics
    GET    /api/accounts/{id}/balance       Derived account balance
    POST   /api/accounts/{id}/deactivate    Deactivate a leaf account

  Journal:
    GET    /api/journal-entries             List entries, newest first
    POST   /api/journal-entries             Create a draft entry
    GET    /api/journal-entries/{id}        Entry with lines
    POST   /api/journal-entries/{id}/post   Post a draft
    POST   /api/journal-entries/{id}/reverse Reverse a posted entry

  Reporting:
    GET    /api/trial-balance               Trial balance, optional as_of
    GET    /api/cost-centers                List cost centers
    POST   /api/cost-centers                Create cost center
    GET    /api/cost-centers/{id}/actuals   Budget vs actual

  Events:
    POST   /api/events/payment-received     Book a customer payment
    POST   /api/events/deposit-returned     Book a deposit return

  Batch:
    POST   /api/batch/invoices?period=      Monthly invoice sweep
    POST   /api/batch/depreciation?period=  Monthly depreciation sweep
    GET    /api/batch/runs                  Run history

  Registry:
    GET/POST /api/contracts                 Rental contracts
    GET/POST /api/assets                    Depreciable fleet assets

TENANCY:
  Every /api route runs behind the tenant middleware (server.go). The
  tenant comes exclusively from the X-Tenant-ID header; handlers never
  read it from the body or query string.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, unbalanced entries, invalid accounts
  - 401: Missing tenant header
  - 404: Resource not found
  - 409: Conflict (duplicate code, duplicate mapping)
  - 422: Configuration errors (unmapped role)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - metrics.go: Prometheus instrumentation
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fleetcore/ledger-engine/events"
	"github.com/fleetcore/ledger-engine/ledger"
	"github.com/fleetcore/ledger-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Chart    *ledger.ChartService
	Engine   *ledger.Engine
	Resolver *ledger.Resolver
	Agg      *ledger.Aggregator
	Gen      *events.Generator
	Batch    *events.BatchService
	Metrics  *Metrics
}

// NewHandler wires the domain services around one store. workers bounds
// the batch runner's fan-out.
func NewHandler(store *sqlite.Store, workers int) *Handler {
	resolver := ledger.NewResolver(store, store, ledger.NewBlueprintRegistry())
	engine := ledger.NewEngine(store, store)
	gen := events.NewGenerator(resolver, engine)
	return &Handler{
		Store:    store,
		Chart:    ledger.NewChartService(store),
		Engine:   engine,
		Resolver: resolver,
		Agg:      ledger.NewAggregator(store),
		Gen:      gen,
		Batch:    events.NewBatchService(store, events.NewRunner(gen, workers)),
		Metrics:  NewMetrics(),
	}
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// ListAccounts returns the chart of accounts, optionally filtered by
// ?type=, ?level= and ?active=true.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	filter := ledger.AccountFilter{
		Type:       ledger.AccountType(r.URL.Query().Get("type")),
		ActiveOnly: r.URL.Query().Get("active") == "true",
	}
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		n, err := strconv.Atoi(lvl)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid level", err)
			return
		}
		filter.Level = n
	}

	accounts, err := h.Chart.ListAccounts(r.Context(), tenant, filter)
	if err != nil {
		writeDomainError(w, "Failed to list accounts", err)
		return
	}

	dtos := make([]AccountDTO, len(accounts))
	for i := range accounts {
		dtos[i] = toAccountDTO(&accounts[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount creates a new account in the chart.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := ledger.CreateAccountInput{
		Code:     req.Code,
		Name:     req.Name,
		Type:     ledger.AccountType(req.Type),
		Level:    req.Level,
		IsHeader: req.IsHeader,
	}
	if req.ParentID != nil {
		pid := ledger.AccountID(*req.ParentID)
		in.ParentID = &pid
	}

	account, err := h.Chart.CreateAccount(r.Context(), tenantFrom(r), in)
	if err != nil {
		writeDomainError(w, "Failed to create account", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(account))
}

// SeedDefaultChart loads the built-in fleet chart. Idempotent.
func (h *Handler) SeedDefaultChart(w http.ResponseWriter, r *http.Request) {
	created, err := h.Chart.SeedDefaultChart(r.Context(), tenantFrom(r))
	if err != nil {
		writeDomainError(w, "Failed to seed chart", err)
		return
	}
	writeJSON(w, http.StatusOK, SeedChartResponse{Created: created})
}

// ChartStatistics summarizes the tenant's chart.
func (h *Handler) ChartStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Chart.Statistics(r.Context(), tenantFrom(r))
	if err != nil {
		writeDomainError(w, "Failed to compute statistics", err)
		return
	}

	byType := make(map[string]int, len(stats.ByType))
	for t, n := range stats.ByType {
		byType[string(t)] = n
	}
	writeJSON(w, http.StatusOK, ChartStatisticsDTO{
		TotalAccounts:  stats.TotalAccounts,
		ActiveAccounts: stats.ActiveAccounts,
		ByType:         byType,
		ByLevel:        stats.ByLevel,
		HeaderCount:    stats.HeaderCount,
		DetailCount:    stats.DetailCount,
		MaxDepth:       stats.MaxDepth,
		AvgDepth:       stats.AvgDepth,
	})
}

// DeactivateAccount retires an account that has no active children and
// no postings.
func (h *Handler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	account, err := h.Chart.DeactivateAccount(r.Context(), tenantFrom(r), id)
	if err != nil {
		writeDomainError(w, "Failed to deactivate account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(account))
}

// GetAccountBalance returns the derived balance, optionally ?as_of=YYYY-MM-DD.
func (h *Handler) GetAccountBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.AccountID(chi.URLParam(r, "id"))

	asOf, err := parseAsOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return
	}

	balance, err := h.Agg.AccountBalance(r.Context(), tenantFrom(r), id, asOf)
	if err != nil {
		writeDomainError(w, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(balance, asOf))
}

// =============================================================================
// JOURNAL ENTRY HANDLERS
// =============================================================================

// ListEntries returns entries newest first, optionally ?limit=N.
func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	entries, err := h.Store.ListEntries(r.Context(), tenantFrom(r), limit)
	if err != nil {
		writeDomainError(w, "Failed to list entries", err)
		return
	}

	dtos := make([]JournalEntryDTO, len(entries))
	for i := range entries {
		dtos[i] = toEntryDTO(&entries[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEntry books a draft journal entry. A replayed reference returns
// the original entry with 200 instead of 201.
func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entryDate, err := time.Parse("2006-01-02", req.EntryDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid entry_date format (use YYYY-MM-DD)", err)
		return
	}

	in := ledger.EntryInput{
		EntryDate:     entryDate,
		Description:   req.Description,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
	}
	for _, l := range req.Lines {
		line := ledger.LineInput{
			AccountID:   ledger.AccountID(l.AccountID),
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
		}
		if l.CostCenterID != nil {
			cid := ledger.CostCenterID(*l.CostCenterID)
			line.CostCenterID = &cid
		}
		in.Lines = append(in.Lines, line)
	}

	entry, created, err := h.Engine.CreateEntry(r.Context(), tenantFrom(r), in)
	if err != nil {
		writeDomainError(w, "Failed to create entry", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.Metrics.EntriesCreated.Inc()
	}
	writeJSON(w, status, toEntryDTO(entry))
}

// GetEntry returns one entry with its lines.
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	id := ledger.EntryID(chi.URLParam(r, "id"))

	entry, err := h.Store.GetEntry(r.Context(), tenantFrom(r), id)
	if err != nil {
		writeDomainError(w, "Failed to get entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// PostEntry moves a draft into the posted state.
func (h *Handler) PostEntry(w http.ResponseWriter, r *http.Request) {
	id := ledger.EntryID(chi.URLParam(r, "id"))

	entry, err := h.Engine.Post(r.Context(), tenantFrom(r), id)
	if err != nil {
		writeDomainError(w, "Failed to post entry", err)
		return
	}
	h.Metrics.EntriesPosted.Inc()
	writeJSON(w, http.StatusOK, toEntryDTO(entry))
}

// ReverseEntry books and posts the mirror of a posted entry.
func (h *Handler) ReverseEntry(w http.ResponseWriter, r *http.Request) {
	id := ledger.EntryID(chi.URLParam(r, "id"))

	var req ReverseEntryRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	reversal, err := h.Engine.Reverse(r.Context(), tenantFrom(r), id, req.Reason)
	if err != nil {
		writeDomainError(w, "Failed to reverse entry", err)
		return
	}
	h.Metrics.EntriesReversed.Inc()
	writeJSON(w, http.StatusCreated, toEntryDTO(reversal))
}

// =============================================================================
// REPORTING HANDLERS
// =============================================================================

// TrialBalance returns the weighted trial balance, optionally ?as_of=.
func (h *Handler) TrialBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid as_of date (use YYYY-MM-DD)", err)
		return
	}

	tb, err := h.Agg.ComputeTrialBalance(r.Context(), tenantFrom(r), asOf)
	if err != nil {
		writeDomainError(w, "Failed to compute trial balance", err)
		return
	}

	dto := TrialBalanceDTO{
		Rows:         make([]TrialBalanceRowDTO, len(tb.Rows)),
		OutOfBalance: tb.OutOfBalance(),
	}
	if asOf != nil {
		dto.AsOf = strPtr(asOf.Format("2006-01-02"))
	}
	for i := range tb.Rows {
		dto.Rows[i] = TrialBalanceRowDTO{
			AccountBalanceDTO: toBalanceDTO(&tb.Rows[i].AccountBalance, nil),
			NormalSide:        string(tb.Rows[i].NormalSide),
		}
	}
	writeJSON(w, http.StatusOK, dto)
}

// ListCostCenters returns the tenant's cost centers.
func (h *Handler) ListCostCenters(w http.ResponseWriter, r *http.Request) {
	centers, err := h.Store.ListCostCenters(r.Context(), tenantFrom(r))
	if err != nil {
		writeDomainError(w, "Failed to list cost centers", err)
		return
	}

	dtos := make([]CostCenterDTO, len(centers))
	for i := range centers {
		dtos[i] = toCostCenterDTO(&centers[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCostCenter registers a cost center for line tagging.
func (h *Handler) CreateCostCenter(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r)

	var req CreateCostCenterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Code == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "code and name are required", nil)
		return
	}

	center := ledger.CostCenter{
		ID:        ledger.CostCenterID(uuid.NewString()),
		TenantID:  tenant,
		Code:      req.Code,
		Name:      req.Name,
		Budget:    req.Budget,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if req.ParentID != nil {
		pid := ledger.CostCenterID(*req.ParentID)
		center.ParentID = &pid
	}

	if err := h.Store.SaveCostCenter(r.Context(), center); err != nil {
		writeDomainError(w, "Failed to create cost center", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCostCenterDTO(&center))
}

// CostCenterActuals reports budget vs actual for one center.
func (h *Handler) CostCenterActuals(w http.ResponseWriter, r *http.Request) {
	id := ledger.CostCenterID(chi.URLParam(r, "id"))

	report, err := h.Agg.CostCenterActuals(r.Context(), tenantFrom(r), id)
	if err != nil {
		writeDomainError(w, "Failed to compute actuals", err)
		return
	}
	writeJSON(w, http.StatusOK, CostCenterReportDTO{
		CostCenter: toCostCenterDTO(&report.CostCenter),
		Actual:     report.Actual,
		Budget:     report.Budget,
		Variance:   report.Variance,
		LineCount:  report.LineCount,
	})
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// PaymentReceived books a customer payment against its invoice.
func (h *Handler) PaymentReceived(w http.ResponseWriter, r *http.Request) {
	var req PaymentReceivedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	receivedAt, err := parseTimestamp(req.ReceivedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid received_at", err)
		return
	}

	h.applyEvent(w, r, events.PaymentReceived{
		PaymentID:  req.PaymentID,
		InvoiceID:  req.InvoiceID,
		Amount:     req.Amount,
		ReceivedAt: receivedAt,
	})
}

// DepositReturned books a security deposit return, net of withholding.
func (h *Handler) DepositReturned(w http.ResponseWriter, r *http.Request) {
	var req DepositReturnedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	returnedAt, err := parseTimestamp(req.ReturnedAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid returned_at", err)
		return
	}

	h.applyEvent(w, r, events.DepositReturned{
		DepositID:  req.DepositID,
		ContractID: req.ContractID,
		Amount:     req.Amount,
		Withheld:   req.Withheld,
		ReturnedAt: returnedAt,
	})
}

func (h *Handler) applyEvent(w http.ResponseWriter, r *http.Request, ev events.Event) {
	entry, created, err := h.Gen.Apply(r.Context(), tenantFrom(r), ev)
	if err != nil {
		writeDomainError(w, "Failed to apply event", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.Metrics.EntriesCreated.Inc()
		h.Metrics.EntriesPosted.Inc()
	}
	writeJSON(w, status, EventResultDTO{Entry: toEntryDTO(entry), Created: created})
}

// =============================================================================
// CONTRACT AND ASSET HANDLERS
// =============================================================================

// ListContracts returns rental contracts, optionally ?active=true.
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.Store.ListContracts(r.Context(), tenantFrom(r),
		r.URL.Query().Get("active") == "true")
	if err != nil {
		writeDomainError(w, "Failed to list contracts", err)
		return
	}

	dtos := make([]ContractDTO, len(contracts))
	for i := range contracts {
		dtos[i] = toContractDTO(&contracts[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateContract registers a rental contract for the invoice sweep.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req CreateContractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.CustomerName == "" {
		writeError(w, http.StatusBadRequest, "id and customer_name are required", nil)
		return
	}
	if !req.MonthlyRate.IsPositive() {
		writeError(w, http.StatusBadRequest, "monthly_rate must be positive", nil)
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}

	contract := events.Contract{
		ID:            req.ID,
		TenantID:      tenantFrom(r),
		CustomerName:  req.CustomerName,
		VehicleID:     req.VehicleID,
		MonthlyRate:   req.MonthlyRate,
		DepositAmount: req.DepositAmount,
		StartDate:     startDate,
		IsActive:      true,
		CreatedAt:     time.Now().UTC(),
	}
	if req.EndDate != nil {
		end, err := time.Parse("2006-01-02", *req.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
			return
		}
		contract.EndDate = &end
	}

	if err := h.Store.SaveContract(r.Context(), contract); err != nil {
		writeDomainError(w, "Failed to save contract", err)
		return
	}
	writeJSON(w, http.StatusCreated, toContractDTO(&contract))
}

// ListAssets returns fleet assets, optionally ?active=true.
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := h.Store.ListAssets(r.Context(), tenantFrom(r),
		r.URL.Query().Get("active") == "true")
	if err != nil {
		writeDomainError(w, "Failed to list assets", err)
		return
	}

	dtos := make([]AssetDTO, len(assets))
	for i := range assets {
		dtos[i] = toAssetDTO(&assets[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAsset registers a depreciable asset for the monthly sweep.
func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	if !req.PurchasePrice.IsPositive() || req.UsefulLifeYears <= 0 {
		writeError(w, http.StatusBadRequest, "purchase_price and useful_life_years must be positive", nil)
		return
	}
	if req.SalvageValue.GreaterThan(req.PurchasePrice) {
		writeError(w, http.StatusBadRequest, "salvage_value cannot exceed purchase_price", nil)
		return
	}

	inService, err := time.Parse("2006-01-02", req.InServiceDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid in_service_date format (use YYYY-MM-DD)", err)
		return
	}

	asset := events.Asset{
		ID:              req.ID,
		TenantID:        tenantFrom(r),
		Name:            req.Name,
		PurchasePrice:   req.PurchasePrice,
		SalvageValue:    req.SalvageValue,
		UsefulLifeYears: req.UsefulLifeYears,
		InServiceDate:   inService,
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
	}

	if err := h.Store.SaveAsset(r.Context(), asset); err != nil {
		writeDomainError(w, "Failed to save asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssetDTO(&asset))
}

// =============================================================================
// BATCH HANDLERS
// =============================================================================

// RunInvoiceBatch triggers the invoice sweep for ?period=YYYY-MM
// (default: previous month).
func (h *Handler) RunInvoiceBatch(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, h.Batch.RunInvoices)
}

// RunDepreciationBatch triggers the depreciation sweep for
// ?period=YYYY-MM (default: previous month).
func (h *Handler) RunDepreciationBatch(w http.ResponseWriter, r *http.Request) {
	h.runBatch(w, r, h.Batch.RunDepreciation)
}

func (h *Handler) runBatch(w http.ResponseWriter, r *http.Request,
	sweep func(ctx context.Context, tenant ledger.TenantID, p events.Period) (*events.BatchRun, error)) {

	period := previousPeriod(time.Now().UTC())
	if raw := r.URL.Query().Get("period"); raw != "" {
		p, err := events.ParsePeriod(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid period (use YYYY-MM)", err)
			return
		}
		period = p
	}

	run, err := sweep(r.Context(), tenantFrom(r), period)
	if run != nil {
		h.Metrics.ObserveBatch(run)
	}
	if err != nil {
		if run != nil {
			// The run record carries the failure detail.
			writeJSON(w, statusFor(err), toBatchRunDTO(run))
			return
		}
		writeDomainError(w, "Batch run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchRunDTO(run))
}

// ListBatchRuns returns run history, newest first, optionally ?limit=N.
func (h *Handler) ListBatchRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListBatchRuns(r.Context(), tenantFrom(r), limit)
	if err != nil {
		writeDomainError(w, "Failed to list batch runs", err)
		return
	}

	dtos := make([]BatchRunDTO, len(runs))
	for i := range runs {
		dtos[i] = toBatchRunDTO(&runs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrAccessDenied):
		return http.StatusForbidden
	case ledger.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseAsOf(r *http.Request) (*time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseTimestamp accepts RFC3339 or a bare date; empty means now.
func parseTimestamp(raw string) (time.Time, error) {
	if raw == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// previousPeriod is the month before t, the default sweep target.
func previousPeriod(t time.Time) events.Period {
	firstOfMonth := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return events.PeriodOf(firstOfMonth.AddDate(0, 0, -1))
}

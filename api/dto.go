/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  All amounts travel as decimal strings ("1500.00"), never floats. The
  shopspring decimal type marshals quoted by default, which is exactly
  what an accounting API wants.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: the domain model behind them
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fleetcore/ledger-engine/events"
	"github.com/fleetcore/ledger-engine/ledger"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountDTO struct {
	ID        string  `json:"id"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	Level     int     `json:"level"`
	IsHeader  bool    `json:"is_header"`
	ParentID  *string `json:"parent_id,omitempty"`
	IsActive  bool    `json:"is_active"`
	CreatedAt string  `json:"created_at,omitempty"`
}

type CreateAccountRequest struct {
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Level    int     `json:"level"`
	ParentID *string `json:"parent_id,omitempty"`
	IsHeader bool    `json:"is_header"`
}

type SeedChartResponse struct {
	Created int `json:"created"`
}

type ChartStatisticsDTO struct {
	TotalAccounts  int            `json:"total_accounts"`
	ActiveAccounts int            `json:"active_accounts"`
	ByType         map[string]int `json:"by_type"`
	ByLevel        map[int]int    `json:"by_level"`
	HeaderCount    int            `json:"header_count"`
	DetailCount    int            `json:"detail_count"`
	MaxDepth       int            `json:"max_depth"`
	AvgDepth       float64        `json:"avg_depth"`
}

// =============================================================================
// JOURNAL ENTRIES
// =============================================================================

type JournalLineDTO struct {
	LineNumber   int             `json:"line_number"`
	AccountID    string          `json:"account_id"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	Description  string          `json:"description,omitempty"`
	CostCenterID *string         `json:"cost_center_id,omitempty"`
}

type JournalEntryDTO struct {
	ID                string           `json:"id"`
	Number            string           `json:"number"`
	EntryDate         string           `json:"entry_date"`
	Description       string           `json:"description"`
	Status            string           `json:"status"`
	ReferenceType     string           `json:"reference_type,omitempty"`
	ReferenceID       string           `json:"reference_id,omitempty"`
	TotalDebit        decimal.Decimal  `json:"total_debit"`
	TotalCredit       decimal.Decimal  `json:"total_credit"`
	ReversesEntryID   *string          `json:"reverses_entry_id,omitempty"`
	ReversedByEntryID *string          `json:"reversed_by_entry_id,omitempty"`
	Lines             []JournalLineDTO `json:"lines,omitempty"`
	CreatedAt         string           `json:"created_at,omitempty"`
	PostedAt          *string          `json:"posted_at,omitempty"`
}

type EntryLineRequest struct {
	AccountID    string          `json:"account_id"`
	Debit        decimal.Decimal `json:"debit"`
	Credit       decimal.Decimal `json:"credit"`
	Description  string          `json:"description,omitempty"`
	CostCenterID *string         `json:"cost_center_id,omitempty"`
}

type CreateEntryRequest struct {
	EntryDate     string             `json:"entry_date"`
	Description   string             `json:"description"`
	ReferenceType string             `json:"reference_type,omitempty"`
	ReferenceID   string             `json:"reference_id,omitempty"`
	Lines         []EntryLineRequest `json:"lines"`
}

type ReverseEntryRequest struct {
	Reason string `json:"reason"`
}

// =============================================================================
// BALANCES
// =============================================================================

type AccountBalanceDTO struct {
	AccountID        string          `json:"account_id"`
	AccountCode      string          `json:"account_code"`
	AccountName      string          `json:"account_name"`
	AccountType      string          `json:"account_type"`
	DebitTotal       decimal.Decimal `json:"debit_total"`
	CreditTotal      decimal.Decimal `json:"credit_total"`
	NetBalance       decimal.Decimal `json:"net_balance"`
	TransactionCount int             `json:"transaction_count"`
	AsOf             *string         `json:"as_of,omitempty"`
}

type TrialBalanceRowDTO struct {
	AccountBalanceDTO
	NormalSide string `json:"normal_side"`
}

type TrialBalanceDTO struct {
	AsOf         *string              `json:"as_of,omitempty"`
	Rows         []TrialBalanceRowDTO `json:"rows"`
	OutOfBalance decimal.Decimal      `json:"out_of_balance"`
}

// =============================================================================
// COST CENTERS
// =============================================================================

type CostCenterDTO struct {
	ID        string          `json:"id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	ParentID  *string         `json:"parent_id,omitempty"`
	Budget    decimal.Decimal `json:"budget"`
	IsActive  bool            `json:"is_active"`
	CreatedAt string          `json:"created_at,omitempty"`
}

type CreateCostCenterRequest struct {
	Code     string          `json:"code"`
	Name     string          `json:"name"`
	ParentID *string         `json:"parent_id,omitempty"`
	Budget   decimal.Decimal `json:"budget"`
}

type CostCenterReportDTO struct {
	CostCenter CostCenterDTO   `json:"cost_center"`
	Actual     decimal.Decimal `json:"actual"`
	Budget     decimal.Decimal `json:"budget"`
	Variance   decimal.Decimal `json:"variance"`
	LineCount  int             `json:"line_count"`
}

// =============================================================================
// BUSINESS EVENTS
// =============================================================================

type PaymentReceivedRequest struct {
	PaymentID  string          `json:"payment_id"`
	InvoiceID  string          `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	ReceivedAt string          `json:"received_at,omitempty"`
}

type DepositReturnedRequest struct {
	DepositID  string          `json:"deposit_id"`
	ContractID string          `json:"contract_id"`
	Amount     decimal.Decimal `json:"amount"`
	Withheld   decimal.Decimal `json:"withheld"`
	ReturnedAt string          `json:"returned_at,omitempty"`
}

// EventResultDTO reports what an applied event did to the journal.
type EventResultDTO struct {
	Entry   JournalEntryDTO `json:"entry"`
	Created bool            `json:"created"`
}

// =============================================================================
// CONTRACTS AND ASSETS
// =============================================================================

type ContractDTO struct {
	ID            string          `json:"id"`
	CustomerName  string          `json:"customer_name"`
	VehicleID     string          `json:"vehicle_id,omitempty"`
	MonthlyRate   decimal.Decimal `json:"monthly_rate"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
	StartDate     string          `json:"start_date"`
	EndDate       *string         `json:"end_date,omitempty"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     string          `json:"created_at,omitempty"`
}

type CreateContractRequest struct {
	ID            string          `json:"id"`
	CustomerName  string          `json:"customer_name"`
	VehicleID     string          `json:"vehicle_id,omitempty"`
	MonthlyRate   decimal.Decimal `json:"monthly_rate"`
	DepositAmount decimal.Decimal `json:"deposit_amount"`
	StartDate     string          `json:"start_date"`
	EndDate       *string         `json:"end_date,omitempty"`
}

type AssetDTO struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
	SalvageValue    decimal.Decimal `json:"salvage_value"`
	UsefulLifeYears int             `json:"useful_life_years"`
	InServiceDate   string          `json:"in_service_date"`
	MonthlyCharge   decimal.Decimal `json:"monthly_charge"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       string          `json:"created_at,omitempty"`
}

type CreateAssetRequest struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	PurchasePrice   decimal.Decimal `json:"purchase_price"`
	SalvageValue    decimal.Decimal `json:"salvage_value"`
	UsefulLifeYears int             `json:"useful_life_years"`
	InServiceDate   string          `json:"in_service_date"`
}

// =============================================================================
// BATCH RUNS
// =============================================================================

type BatchRunDTO struct {
	ID         string   `json:"id"`
	Kind       string   `json:"kind"`
	Period     string   `json:"period"`
	Status     string   `json:"status"`
	Processed  int      `json:"processed"`
	Skipped    int      `json:"skipped"`
	Failed     int      `json:"failed"`
	Error      string   `json:"error,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	StartedAt  string   `json:"started_at"`
	FinishedAt *string  `json:"finished_at,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAccountDTO(a *ledger.Account) AccountDTO {
	dto := AccountDTO{
		ID:        string(a.ID),
		Code:      a.Code,
		Name:      a.Name,
		Type:      string(a.Type),
		Level:     a.Level,
		IsHeader:  a.IsHeader,
		IsActive:  a.IsActive,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
	}
	if a.ParentID != nil {
		dto.ParentID = strPtr(string(*a.ParentID))
	}
	return dto
}

func toEntryDTO(e *ledger.JournalEntry) JournalEntryDTO {
	dto := JournalEntryDTO{
		ID:            string(e.ID),
		Number:        e.Number,
		EntryDate:     e.EntryDate.Format("2006-01-02"),
		Description:   e.Description,
		Status:        string(e.Status),
		ReferenceType: e.ReferenceType,
		ReferenceID:   e.ReferenceID,
		TotalDebit:    e.TotalDebit,
		TotalCredit:   e.TotalCredit,
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
	}
	if e.ReversesEntryID != nil {
		dto.ReversesEntryID = strPtr(string(*e.ReversesEntryID))
	}
	if e.ReversedByEntryID != nil {
		dto.ReversedByEntryID = strPtr(string(*e.ReversedByEntryID))
	}
	if e.PostedAt != nil {
		dto.PostedAt = strPtr(e.PostedAt.Format(time.RFC3339))
	}
	for _, l := range e.Lines {
		line := JournalLineDTO{
			LineNumber:  l.LineNumber,
			AccountID:   string(l.AccountID),
			Debit:       l.Debit,
			Credit:      l.Credit,
			Description: l.Description,
		}
		if l.CostCenterID != nil {
			line.CostCenterID = strPtr(string(*l.CostCenterID))
		}
		dto.Lines = append(dto.Lines, line)
	}
	return dto
}

func toBalanceDTO(b *ledger.AccountBalance, asOf *time.Time) AccountBalanceDTO {
	dto := AccountBalanceDTO{
		AccountID:        string(b.AccountID),
		AccountCode:      b.AccountCode,
		AccountName:      b.AccountName,
		AccountType:      string(b.AccountType),
		DebitTotal:       b.DebitTotal,
		CreditTotal:      b.CreditTotal,
		NetBalance:       b.NetBalance,
		TransactionCount: b.TransactionCount,
	}
	if asOf != nil {
		dto.AsOf = strPtr(asOf.Format("2006-01-02"))
	}
	return dto
}

func toCostCenterDTO(c *ledger.CostCenter) CostCenterDTO {
	dto := CostCenterDTO{
		ID:        string(c.ID),
		Code:      c.Code,
		Name:      c.Name,
		Budget:    c.Budget,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
	if c.ParentID != nil {
		dto.ParentID = strPtr(string(*c.ParentID))
	}
	return dto
}

func toContractDTO(c *events.Contract) ContractDTO {
	dto := ContractDTO{
		ID:            c.ID,
		CustomerName:  c.CustomerName,
		VehicleID:     c.VehicleID,
		MonthlyRate:   c.MonthlyRate,
		DepositAmount: c.DepositAmount,
		StartDate:     c.StartDate.Format("2006-01-02"),
		IsActive:      c.IsActive,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
	}
	if c.EndDate != nil {
		dto.EndDate = strPtr(c.EndDate.Format("2006-01-02"))
	}
	return dto
}

func toAssetDTO(a *events.Asset) AssetDTO {
	return AssetDTO{
		ID:              a.ID,
		Name:            a.Name,
		PurchasePrice:   a.PurchasePrice,
		SalvageValue:    a.SalvageValue,
		UsefulLifeYears: a.UsefulLifeYears,
		InServiceDate:   a.InServiceDate.Format("2006-01-02"),
		MonthlyCharge:   a.MonthlyCharge(),
		IsActive:        a.IsActive,
		CreatedAt:       a.CreatedAt.Format(time.RFC3339),
	}
}

func toBatchRunDTO(r *events.BatchRun) BatchRunDTO {
	dto := BatchRunDTO{
		ID:        r.ID,
		Kind:      r.Kind,
		Period:    r.Period,
		Status:    string(r.Status),
		Processed: r.Processed,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
		Error:     r.Error,
		Errors:    r.Errors,
		StartedAt: r.StartedAt.Format(time.RFC3339),
	}
	if r.FinishedAt != nil {
		dto.FinishedAt = strPtr(r.FinishedAt.Format(time.RFC3339))
	}
	return dto
}

func strPtr(s string) *string {
	return &s
}

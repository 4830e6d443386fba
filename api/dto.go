/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

WIRE FORMAT:
  - Money is a string with exactly two decimals ("120.00"). Requests may
    omit trailing zeros ("120", "0.5") but never carry more than two.
  - Dates are YYYY-MM-DD. Timestamps are RFC 3339 UTC.
  - Records are flat: a balance carries its customer and owner profile.

VALIDATION:
  Structural rules (required, max length) are struct tags checked by
  go-playground/validator. Amount and week rules live in the ledger package
  and are checked when the request is converted.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/cartledger/ledger"
)

// =============================================================================
// OWNERS & CUSTOMERS
// =============================================================================

type OwnerDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateOwnerRequest struct {
	ID   string `json:"id" validate:"omitempty,max=64"`
	Name string `json:"name" validate:"required,max=200"`
}

type CustomerDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CartNumber string `json:"cart_number"`
	OwnerID    string `json:"owner_id,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

type CreateCustomerRequest struct {
	ID         string `json:"id" validate:"omitempty,max=64"`
	Name       string `json:"name" validate:"required,max=200"`
	CartNumber string `json:"cart_number" validate:"required,max=32"`
	OwnerID    string `json:"owner_id" validate:"omitempty,max=64"`
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceDTO is a live weekly balance joined with its customer profile.
type BalanceDTO struct {
	ID               string `json:"id"`
	CustomerID       string `json:"customer_id"`
	CustomerName     string `json:"customer_name,omitempty"`
	CartNumber       string `json:"cart_number,omitempty"`
	OwnerID          string `json:"owner_id,omitempty"`
	OwnerName        string `json:"owner_name,omitempty"`
	WeekStartDate    string `json:"week_start_date"`
	WeekEndDate      string `json:"week_end_date"`
	OrdersTotal      string `json:"orders_total"`
	FranchiseFee     string `json:"franchise_fee"`
	CommissaryRent   string `json:"commissary_rent"`
	OldBalance       string `json:"old_balance"`
	TotalBalance     string `json:"total_balance"`
	AmountPaid       string `json:"amount_paid"`
	RemainingBalance string `json:"remaining_balance"`
	PaymentStatus    string `json:"payment_status"`
	Version          int64  `json:"version"`
	CreatedAt        string `json:"created_at,omitempty"`
	UpdatedAt        string `json:"updated_at,omitempty"`
}

// OpenBalanceRequest creates a live balance. WeekEndDate defaults to six
// days after WeekStartDate.
type OpenBalanceRequest struct {
	CustomerID     string `json:"customer_id" validate:"required"`
	WeekStartDate  string `json:"week_start_date" validate:"required"`
	WeekEndDate    string `json:"week_end_date"`
	OrdersTotal    string `json:"orders_total"`
	FranchiseFee   string `json:"franchise_fee"`
	CommissaryRent string `json:"commissary_rent"`
	OldBalance     string `json:"old_balance"`
	AmountPaid     string `json:"amount_paid"`
}

// EditFeesRequest changes any subset of the week's charges.
type EditFeesRequest struct {
	OrdersTotal    *string `json:"orders_total"`
	FranchiseFee   *string `json:"franchise_fee"`
	CommissaryRent *string `json:"commissary_rent"`
}

// EditPaymentRequest sets amount_paid to a new total.
type EditPaymentRequest struct {
	AmountPaid string `json:"amount_paid" validate:"required"`
}

// RecordPaymentRequest adds one payment to amount_paid.
type RecordPaymentRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// HistoryDTO is a frozen weekly balance.
type HistoryDTO struct {
	ID               string `json:"id"`
	BalanceID        string `json:"balance_id"`
	CustomerID       string `json:"customer_id"`
	CustomerName     string `json:"customer_name,omitempty"`
	CartNumber       string `json:"cart_number,omitempty"`
	OwnerName        string `json:"owner_name,omitempty"`
	WeekStartDate    string `json:"week_start_date"`
	WeekEndDate      string `json:"week_end_date"`
	OrdersTotal      string `json:"orders_total"`
	FranchiseFee     string `json:"franchise_fee"`
	CommissaryRent   string `json:"commissary_rent"`
	OldBalance       string `json:"old_balance"`
	TotalBalance     string `json:"total_balance"`
	AmountPaid       string `json:"amount_paid"`
	RemainingBalance string `json:"remaining_balance"`
	PaymentStatus    string `json:"payment_status"`
	RolledOverAt     string `json:"rolled_over_at"`
}

// =============================================================================
// ROLLOVER
// =============================================================================

type RolloverRequest struct {
	CustomerID    string `json:"customer_id" validate:"required"`
	WeekStartDate string `json:"week_start_date" validate:"required"`
}

type RolloverResponse struct {
	Closed     BalanceDTO `json:"closed"`
	Next       BalanceDTO `json:"next"`
	HistoryID  string     `json:"history_id"`
	SnapshotID string     `json:"snapshot_id"`
}

// BulkRolloverRequest is optional: an empty body rolls over every
// customer's latest unpaid week.
type BulkRolloverRequest struct {
	DueBefore   string `json:"due_before"`
	OwnerID     string `json:"owner_id"`
	Parallelism int    `json:"parallelism" validate:"omitempty,min=1,max=32"`
}

type BulkFailureDTO struct {
	CustomerID    string `json:"customer_id,omitempty"`
	WeekStartDate string `json:"week_start_date,omitempty"`
	Error         string `json:"error"`
}

type BulkRolloverResponse struct {
	RunID        string             `json:"run_id"`
	Outcome      string             `json:"outcome"`
	SuccessCount int                `json:"success_count"`
	ErrorCount   int                `json:"error_count"`
	Rolled       []RolloverResponse `json:"rolled"`
	Failures     []BulkFailureDTO   `json:"failures"`
}

// RolloverRunDTO is one recorded bulk rollover.
type RolloverRunDTO struct {
	ID           string  `json:"id"`
	Trigger      string  `json:"trigger"`
	DueBefore    *string `json:"due_before,omitempty"`
	StartedAt    string  `json:"started_at"`
	CompletedAt  *string `json:"completed_at,omitempty"`
	SuccessCount int     `json:"success_count"`
	ErrorCount   int     `json:"error_count"`
	Outcome      string  `json:"outcome,omitempty"`
}

// =============================================================================
// SUMMARY & SNAPSHOTS
// =============================================================================

type SummaryRowDTO struct {
	OwnerID          string `json:"owner_id,omitempty"`
	OwnerName        string `json:"owner_name"`
	CustomerID       string `json:"customer_id"`
	CustomerName     string `json:"customer_name"`
	CartNumber       string `json:"cart_number"`
	WeekStartDate    string `json:"week_start_date"`
	WeekEndDate      string `json:"week_end_date"`
	OrdersTotal      string `json:"orders_total"`
	FranchiseFee     string `json:"franchise_fee"`
	CommissaryRent   string `json:"commissary_rent"`
	TotalBalance     string `json:"total_balance"`
	AmountPaid       string `json:"amount_paid"`
	RemainingBalance string `json:"remaining_balance"`
}

type SummaryResponse struct {
	Rows  []SummaryRowDTO `json:"rows"`
	Total SummaryRowDTO   `json:"total"`
}

type SnapshotDTO struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	CustomerID    string          `json:"customer_id,omitempty"`
	WeekStartDate string          `json:"week_start_date"`
	WeekEndDate   string          `json:"week_end_date"`
	CreatedAt     string          `json:"created_at"`
	Rows          []SummaryRowDTO `json:"summary_data"`
}

// CaptureSnapshotRequest freezes the current grid. The week range defaults
// to the span of live weeks in the grid.
type CaptureSnapshotRequest struct {
	OwnerID       string `json:"owner_id"`
	WeekStartDate string `json:"week_start_date" validate:"required_with=WeekEndDate"`
	WeekEndDate   string `json:"week_end_date" validate:"required_with=WeekStartDate"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func money(d decimal.Decimal) string {
	return ledger.FormatAmount(d)
}

func date(t time.Time) string {
	return t.Format(ledger.DateLayout)
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func toOwnerDTO(o ledger.Owner) OwnerDTO {
	return OwnerDTO{ID: string(o.ID), Name: o.Name, CreatedAt: timestamp(o.CreatedAt)}
}

func toCustomerDTO(c ledger.Customer) CustomerDTO {
	return CustomerDTO{
		ID:         string(c.ID),
		Name:       c.Name,
		CartNumber: c.CartNumber,
		OwnerID:    string(c.OwnerID),
		CreatedAt:  timestamp(c.CreatedAt),
	}
}

func toBalanceDTO(b ledger.WeeklyBalance) BalanceDTO {
	return BalanceDTO{
		ID:               string(b.ID),
		CustomerID:       string(b.CustomerID),
		WeekStartDate:    date(b.Week.Start),
		WeekEndDate:      date(b.Week.End),
		OrdersTotal:      money(b.OrdersTotal),
		FranchiseFee:     money(b.FranchiseFee),
		CommissaryRent:   money(b.CommissaryRent),
		OldBalance:       money(b.OldBalance),
		TotalBalance:     money(b.TotalBalance),
		AmountPaid:       money(b.AmountPaid),
		RemainingBalance: money(b.RemainingBalance),
		PaymentStatus:    string(b.PaymentStatus),
		Version:          b.Version,
		CreatedAt:        timestamp(b.CreatedAt),
		UpdatedAt:        timestamp(b.UpdatedAt),
	}
}

func toBalanceViewDTO(v ledger.BalanceView) BalanceDTO {
	dto := toBalanceDTO(v.WeeklyBalance)
	dto.CustomerName = v.CustomerName
	dto.CartNumber = v.CartNumber
	dto.OwnerID = string(v.OwnerID)
	dto.OwnerName = v.OwnerName
	return dto
}

func toHistoryDTO(h ledger.HistoryView) HistoryDTO {
	f := h.Figures
	return HistoryDTO{
		ID:               string(h.ID),
		BalanceID:        string(h.BalanceID),
		CustomerID:       string(h.CustomerID),
		CustomerName:     h.CustomerName,
		CartNumber:       h.CartNumber,
		OwnerName:        h.OwnerName,
		WeekStartDate:    date(h.Week.Start),
		WeekEndDate:      date(h.Week.End),
		OrdersTotal:      money(f.OrdersTotal),
		FranchiseFee:     money(f.FranchiseFee),
		CommissaryRent:   money(f.CommissaryRent),
		OldBalance:       money(f.OldBalance),
		TotalBalance:     money(f.TotalBalance),
		AmountPaid:       money(f.AmountPaid),
		RemainingBalance: money(f.RemainingBalance),
		PaymentStatus:    string(f.PaymentStatus),
		RolledOverAt:     timestamp(h.RolledOverAt),
	}
}

func toRolloverResponse(p ledger.RolloverPlan) RolloverResponse {
	return RolloverResponse{
		Closed:     toBalanceDTO(p.Closed),
		Next:       toBalanceDTO(p.Next),
		HistoryID:  string(p.History.ID),
		SnapshotID: string(p.Snapshot.ID),
	}
}

func toBulkResponse(res ledger.BulkResult) BulkRolloverResponse {
	out := BulkRolloverResponse{
		RunID:        res.RunID,
		Outcome:      string(res.Outcome()),
		SuccessCount: res.SuccessCount,
		ErrorCount:   res.ErrorCount,
		Rolled:       make([]RolloverResponse, len(res.Rolled)),
		Failures:     make([]BulkFailureDTO, len(res.Failures)),
	}
	for i, p := range res.Rolled {
		out.Rolled[i] = toRolloverResponse(p)
	}
	for i, f := range res.Failures {
		dto := BulkFailureDTO{CustomerID: string(f.CustomerID), Error: f.Err.Error()}
		if !f.WeekStart.IsZero() {
			dto.WeekStartDate = date(f.WeekStart)
		}
		out.Failures[i] = dto
	}
	return out
}

func toRunDTO(r ledger.RolloverRun) RolloverRunDTO {
	dto := RolloverRunDTO{
		ID:           r.ID,
		Trigger:      string(r.Trigger),
		StartedAt:    timestamp(r.StartedAt),
		SuccessCount: r.SuccessCount,
		ErrorCount:   r.ErrorCount,
		Outcome:      string(r.Outcome),
	}
	if r.DueBefore != nil {
		s := date(*r.DueBefore)
		dto.DueBefore = &s
	}
	if r.CompletedAt != nil {
		s := timestamp(*r.CompletedAt)
		dto.CompletedAt = &s
	}
	return dto
}

func toSummaryRowDTO(r ledger.SummaryRow) SummaryRowDTO {
	dto := SummaryRowDTO{
		OwnerID:          string(r.OwnerID),
		OwnerName:        r.OwnerName,
		CustomerID:       string(r.CustomerID),
		CustomerName:     r.CustomerName,
		CartNumber:       r.CartNumber,
		OrdersTotal:      money(r.OrdersTotal),
		FranchiseFee:     money(r.FranchiseFee),
		CommissaryRent:   money(r.CommissaryRent),
		TotalBalance:     money(r.TotalBalance),
		AmountPaid:       money(r.AmountPaid),
		RemainingBalance: money(r.RemainingBalance),
	}
	if !r.WeekStart.IsZero() {
		dto.WeekStartDate = date(r.WeekStart)
	}
	if !r.WeekEnd.IsZero() {
		dto.WeekEndDate = date(r.WeekEnd)
	}
	return dto
}

func toSummaryRowDTOs(rows []ledger.SummaryRow) []SummaryRowDTO {
	out := make([]SummaryRowDTO, len(rows))
	for i, r := range rows {
		out[i] = toSummaryRowDTO(r)
	}
	return out
}

func toSnapshotDTO(s ledger.SummarySnapshot) SnapshotDTO {
	return SnapshotDTO{
		ID:            string(s.ID),
		Kind:          string(s.Kind),
		CustomerID:    string(s.CustomerID),
		WeekStartDate: date(s.Week.Start),
		WeekEndDate:   date(s.Week.End),
		CreatedAt:     timestamp(s.CreatedAt),
		Rows:          toSummaryRowDTOs(s.Rows),
	}
}

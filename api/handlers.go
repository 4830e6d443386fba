/*
handlers.go - HTTP API handlers for the weekly cart balance ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the ledger services.

ENDPOINTS:
  Owners & customers:
    GET    /api/owners                        List owners
    POST   /api/owners                        Create owner
    GET    /api/customers                     List customers
    POST   /api/customers                     Create customer (cart)
    GET    /api/customers/{id}                Get customer

  Balances:
    GET    /api/balances                      List live balances (?customer_id, ?owner_id, ?unpaid)
    POST   /api/balances                      Open a weekly balance
    GET    /api/balances/{id}                 Get balance
    PATCH  /api/balances/{id}/fees            Edit orders total and fees
    PUT    /api/balances/{id}/payment         Set amount paid
    POST   /api/balances/{id}/payments        Record one payment
    DELETE /api/balances/{id}                 Delete (admin, no history)
    GET    /api/history                       Rolled-over balances

  Rollover:
    POST   /api/rollover                      Roll over one customer's week
    POST   /api/rollover/bulk                 Roll over every unpaid customer
    GET    /api/rollover/runs                 Recent bulk runs

  Summary & snapshots:
    GET    /api/summary                       Per-customer aggregate grid
    GET    /api/summary/export                Grid as XLSX
    GET    /api/snapshots                     List snapshots (?kind, ?customer_id)
    POST   /api/snapshots                     Capture the current grid
    GET    /api/snapshots/{id}                Get snapshot
    GET    /api/snapshots/{id}/export         Snapshot as XLSX
    DELETE /api/snapshots/{id}                Delete snapshot

  Scenarios:
    GET    /api/scenarios                     List demo scenarios
    POST   /api/scenarios/load                Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: customer registry and reset
  - BalanceService, RolloverEngine, Reporter, Archiver: ledger services
  - validator: struct tag validation of request bodies

REQUEST FLOW:
  1. Decode JSON body and check struct tags
  2. Convert to ledger types (amounts, dates)
  3. Call the ledger service
  4. Serialize response
  5. Map errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found (checked first: a rollover of a missing row
         is both not-found and a consistency error)
  - 409: Consistency violations (duplicate week, stale version)
  - 503: Transient store failures after retries
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/cartledger/export"
	"github.com/warp/cartledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is the persistence the API needs beyond the ledger services.
type Store interface {
	ledger.Store
	Reset(ctx context.Context) error
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    Store
	Balances *ledger.BalanceService
	Rollover *ledger.RolloverEngine
	Reporter *ledger.Reporter
	Archiver *ledger.Archiver

	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
	newID    func() string

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler builds the ledger services over store and wires them into a
// handler. opts is shared by every service.
func NewHandler(store Store, opts ledger.Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.Locker == nil {
		opts.Locker = ledger.NewKeyedMutex()
	}

	reporter := ledger.NewReporter(store)
	return &Handler{
		Store:    store,
		Balances: ledger.NewBalanceService(store, opts),
		Rollover: ledger.NewRolloverEngine(store, opts),
		Reporter: reporter,
		Archiver: ledger.NewArchiver(store, reporter, opts),
		validate: newValidator(),
		log:      opts.Logger.Named("api"),
		now:      opts.Now,
		newID:    opts.NewID,
	}
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// OWNER & CUSTOMER HANDLERS
// =============================================================================

// ListOwners returns all owners.
func (h *Handler) ListOwners(w http.ResponseWriter, r *http.Request) {
	owners, err := h.Store.ListOwners(r.Context())
	if err != nil {
		h.fail(w, "Failed to list owners", err)
		return
	}
	dtos := make([]OwnerDTO, len(owners))
	for i, o := range owners {
		dtos[i] = toOwnerDTO(o)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateOwner creates an owner.
func (h *Handler) CreateOwner(w http.ResponseWriter, r *http.Request) {
	var req CreateOwnerRequest
	if !h.decode(w, r, &req) {
		return
	}
	owner := ledger.Owner{
		ID:        ledger.OwnerID(req.ID),
		Name:      req.Name,
		CreatedAt: h.now(),
	}
	if owner.ID == "" {
		owner.ID = ledger.OwnerID(h.newID())
	}
	if err := h.Store.SaveOwner(r.Context(), owner); err != nil {
		h.fail(w, "Failed to create owner", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOwnerDTO(owner))
}

// ListCustomers returns all customers.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Store.ListCustomers(r.Context())
	if err != nil {
		h.fail(w, "Failed to list customers", err)
		return
	}
	dtos := make([]CustomerDTO, len(customers))
	for i, c := range customers {
		dtos[i] = toCustomerDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCustomer creates a customer. An unknown owner_id is a 404.
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if !h.decode(w, r, &req) {
		return
	}
	c := ledger.Customer{
		ID:         ledger.CustomerID(req.ID),
		Name:       req.Name,
		CartNumber: req.CartNumber,
		OwnerID:    ledger.OwnerID(req.OwnerID),
		CreatedAt:  h.now(),
	}
	if c.ID == "" {
		c.ID = ledger.CustomerID(h.newID())
	}
	if err := h.Store.SaveCustomer(r.Context(), c); err != nil {
		h.fail(w, "Failed to create customer", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomerDTO(c))
}

// GetCustomer returns a customer by ID.
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.GetCustomer(r.Context(), ledger.CustomerID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Customer not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(c))
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// ListBalances returns live balances, newest week first.
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ledger.BalanceFilter{
		CustomerID: ledger.CustomerID(q.Get("customer_id")),
		OwnerID:    ledger.OwnerID(q.Get("owner_id")),
	}
	if v := q.Get("unpaid"); v != "" {
		unpaid, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid unpaid parameter", err)
			return
		}
		f.OnlyUnpaid = unpaid
	}

	views, err := h.Balances.List(r.Context(), f)
	if err != nil {
		h.fail(w, "Failed to list balances", err)
		return
	}
	dtos := make([]BalanceDTO, len(views))
	for i, v := range views {
		dtos[i] = toBalanceViewDTO(v)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// OpenBalance creates the live balance for a customer and week.
func (h *Handler) OpenBalance(w http.ResponseWriter, r *http.Request) {
	var req OpenBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}

	in, err := openInput(req)
	if err != nil {
		h.fail(w, "Invalid balance", err)
		return
	}
	b, err := h.Balances.Open(r.Context(), in)
	if err != nil {
		h.fail(w, "Failed to open balance", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBalanceDTO(b))
}

func openInput(req OpenBalanceRequest) (ledger.OpenInput, error) {
	start, err := ledger.ParseDate("week_start_date", req.WeekStartDate)
	if err != nil {
		return ledger.OpenInput{}, err
	}
	week := ledger.WeekOf(start)
	if req.WeekEndDate != "" {
		if week, err = ledger.ParseWeek(req.WeekStartDate, req.WeekEndDate); err != nil {
			return ledger.OpenInput{}, err
		}
	}

	var c ledger.Charges
	for _, f := range []struct {
		name  string
		value string
		dst   *decimal.Decimal
	}{
		{"orders_total", req.OrdersTotal, &c.OrdersTotal},
		{"franchise_fee", req.FranchiseFee, &c.FranchiseFee},
		{"commissary_rent", req.CommissaryRent, &c.CommissaryRent},
		{"amount_paid", req.AmountPaid, &c.AmountPaid},
	} {
		if *f.dst, err = ledger.ParseAmount(f.name, f.value); err != nil {
			return ledger.OpenInput{}, err
		}
	}
	in := ledger.OpenInput{CustomerID: ledger.CustomerID(req.CustomerID), Week: week, Charges: c}
	if req.OldBalance != "" {
		old, err := ledger.ParseAmount("old_balance", req.OldBalance)
		if err != nil {
			return ledger.OpenInput{}, err
		}
		in.OldBalance = &old
	}
	return in, nil
}

// GetBalance returns a live balance by ID.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Balances.Get(r.Context(), ledger.BalanceID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Balance not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// EditFees patches orders_total, franchise_fee and commissary_rent.
func (h *Handler) EditFees(w http.ResponseWriter, r *http.Request) {
	var req EditFeesRequest
	if !h.decode(w, r, &req) {
		return
	}

	var patch ledger.FeePatch
	for _, f := range []struct {
		name  string
		value *string
		dst   **decimal.Decimal
	}{
		{"orders_total", req.OrdersTotal, &patch.OrdersTotal},
		{"franchise_fee", req.FranchiseFee, &patch.FranchiseFee},
		{"commissary_rent", req.CommissaryRent, &patch.CommissaryRent},
	} {
		if f.value == nil {
			continue
		}
		d, err := parseRequiredAmount(f.name, *f.value)
		if err != nil {
			h.fail(w, "Invalid fees", err)
			return
		}
		*f.dst = &d
	}

	b, err := h.Balances.EditFees(r.Context(), ledger.BalanceID(chi.URLParam(r, "id")), patch)
	if err != nil {
		h.fail(w, "Failed to edit fees", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// EditPayment sets amount_paid to the given total.
func (h *Handler) EditPayment(w http.ResponseWriter, r *http.Request) {
	var req EditPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := parseRequiredAmount("amount_paid", req.AmountPaid)
	if err != nil {
		h.fail(w, "Invalid payment", err)
		return
	}
	b, err := h.Balances.EditPayment(r.Context(), ledger.BalanceID(chi.URLParam(r, "id")), amount)
	if err != nil {
		h.fail(w, "Failed to edit payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// RecordPayment adds a payment to amount_paid.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordPaymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	amount, err := parseRequiredAmount("amount", req.Amount)
	if err != nil {
		h.fail(w, "Invalid payment", err)
		return
	}
	b, err := h.Balances.RecordPayment(r.Context(), ledger.BalanceID(chi.URLParam(r, "id")), amount)
	if err != nil {
		h.fail(w, "Failed to record payment", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// DeleteBalance removes a live balance without writing history.
func (h *Handler) DeleteBalance(w http.ResponseWriter, r *http.Request) {
	if err := h.Balances.Delete(r.Context(), ledger.BalanceID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, "Failed to delete balance", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListHistory returns rolled-over balances, most recent rollover first.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit parameter", err)
		return
	}
	rows, err := h.Balances.History(r.Context(), ledger.HistoryFilter{
		CustomerID: ledger.CustomerID(q.Get("customer_id")),
		OwnerID:    ledger.OwnerID(q.Get("owner_id")),
		Limit:      limit,
	})
	if err != nil {
		h.fail(w, "Failed to list history", err)
		return
	}
	dtos := make([]HistoryDTO, len(rows))
	for i, row := range rows {
		dtos[i] = toHistoryDTO(row)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ROLLOVER HANDLERS
// =============================================================================

// RolloverBalance closes one customer's week and seeds the next.
func (h *Handler) RolloverBalance(w http.ResponseWriter, r *http.Request) {
	var req RolloverRequest
	if !h.decode(w, r, &req) {
		return
	}
	weekStart, err := ledger.ParseDate("week_start_date", req.WeekStartDate)
	if err != nil {
		h.fail(w, "Invalid rollover", err)
		return
	}
	plan, err := h.Rollover.Rollover(r.Context(), ledger.CustomerID(req.CustomerID), weekStart)
	if err != nil {
		h.fail(w, "Rollover failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRolloverResponse(plan))
}

// BulkRollover rolls over every customer's latest unpaid week. The response
// is 200 even when some customers fail; see outcome and failures.
func (h *Handler) BulkRollover(w http.ResponseWriter, r *http.Request) {
	var req BulkRolloverRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}

	opts := ledger.BulkOptions{
		OwnerID:     ledger.OwnerID(req.OwnerID),
		Parallelism: req.Parallelism,
		Trigger:     ledger.TriggerManual,
	}
	if req.DueBefore != "" {
		due, err := ledger.ParseDate("due_before", req.DueBefore)
		if err != nil {
			h.fail(w, "Invalid bulk rollover", err)
			return
		}
		opts.DueBefore = &due
	}

	res := h.Rollover.RolloverAll(r.Context(), opts)
	writeJSON(w, http.StatusOK, toBulkResponse(res))
}

// ListRolloverRuns returns recent bulk rollover runs.
func (h *Handler) ListRolloverRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit parameter", err)
		return
	}
	if limit == 0 {
		limit = 50
	}
	runs, err := h.Rollover.Runs(r.Context(), limit)
	if err != nil {
		h.fail(w, "Failed to list rollover runs", err)
		return
	}
	dtos := make([]RolloverRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SUMMARY & SNAPSHOT HANDLERS
// =============================================================================

// GetSummary returns the per-customer aggregate grid with a total row.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Reporter.Summaries(r.Context(), reportFilter(r))
	if err != nil {
		h.fail(w, "Failed to build summary", err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{
		Rows:  toSummaryRowDTOs(rows),
		Total: toSummaryRowDTO(ledger.GrandTotal(rows)),
	})
}

// ExportSummary returns the current grid as an XLSX workbook.
func (h *Handler) ExportSummary(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Reporter.Summaries(r.Context(), reportFilter(r))
	if err != nil {
		h.fail(w, "Failed to build summary", err)
		return
	}
	now := h.now()
	var buf bytes.Buffer
	if err := export.WriteSummary(&buf, "Weekly balances as of "+now.Format(ledger.DateLayout), rows); err != nil {
		h.fail(w, "Failed to export summary", err)
		return
	}
	writeXLSX(w, fmt.Sprintf("summary-%s.xlsx", now.Format(ledger.DateLayout)), buf.Bytes())
}

func reportFilter(r *http.Request) ledger.ReportFilter {
	q := r.URL.Query()
	return ledger.ReportFilter{
		OwnerID:    ledger.OwnerID(q.Get("owner_id")),
		CustomerID: ledger.CustomerID(q.Get("customer_id")),
	}
}

// ListSnapshots returns snapshots, newest first.
func (h *Handler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit parameter", err)
		return
	}
	f := ledger.SnapshotFilter{
		Kind:       ledger.SnapshotKind(q.Get("kind")),
		CustomerID: ledger.CustomerID(q.Get("customer_id")),
		Limit:      limit,
	}
	if f.Kind != "" && f.Kind != ledger.SnapshotRollover && f.Kind != ledger.SnapshotManual {
		writeError(w, http.StatusBadRequest, "Invalid kind parameter", nil)
		return
	}

	snaps, err := h.Archiver.List(r.Context(), f)
	if err != nil {
		h.fail(w, "Failed to list snapshots", err)
		return
	}
	dtos := make([]SnapshotDTO, len(snaps))
	for i, s := range snaps {
		dtos[i] = toSnapshotDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CaptureSnapshot freezes the current grid into a manual snapshot.
func (h *Handler) CaptureSnapshot(w http.ResponseWriter, r *http.Request) {
	var req CaptureSnapshotRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &req) {
			return
		}
	}

	opts := ledger.GridOptions{OwnerID: ledger.OwnerID(req.OwnerID)}
	if req.WeekStartDate != "" {
		week, err := ledger.ParseWeek(req.WeekStartDate, req.WeekEndDate)
		if err != nil {
			h.fail(w, "Invalid snapshot range", err)
			return
		}
		opts.Week = &week
	}

	snap, err := h.Archiver.CaptureGrid(r.Context(), opts)
	if err != nil {
		h.fail(w, "Failed to capture snapshot", err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotDTO(snap))
}

// GetSnapshot returns a snapshot by ID.
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Archiver.Get(r.Context(), ledger.SnapshotID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Snapshot not found", err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotDTO(snap))
}

// ExportSnapshot returns a snapshot as an XLSX workbook for printing.
func (h *Handler) ExportSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Archiver.Get(r.Context(), ledger.SnapshotID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, "Snapshot not found", err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteSnapshot(&buf, snap); err != nil {
		h.fail(w, "Failed to export snapshot", err)
		return
	}
	writeXLSX(w, fmt.Sprintf("snapshot-%s.xlsx", snap.ID), buf.Bytes())
}

// DeleteSnapshot hard-deletes a snapshot.
func (h *Handler) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := h.Archiver.Delete(r.Context(), ledger.SnapshotID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, "Failed to delete snapshot", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads a JSON body into dst and checks its validate tags. It writes
// a 400 and returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, len(fieldErrs))
			for i, fe := range fieldErrs {
				msgs[i] = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
			}
			writeError(w, http.StatusBadRequest, "Invalid request", errors.New(strings.Join(msgs, "; ")))
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return false
	}
	return true
}

// newValidator reports fields by their JSON name, so messages read
// "customer_id failed required".
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		switch name {
		case "-":
			return "-"
		case "":
			return fld.Name
		}
		return name
	})
	return v
}

// parseRequiredAmount is ParseAmount without the empty-means-zero default.
func parseRequiredAmount(field, s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, &ledger.ValidationError{Field: field, Reason: "is required"}
	}
	return ledger.ParseAmount(field, s)
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	return n, nil
}

// statusFor maps the ledger error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsClientError(err):
		return http.StatusBadRequest
	case ledger.IsConflict(err):
		return http.StatusConflict
	case ledger.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with the status its category maps to.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error(message, zap.Int("status", status), zap.Error(err))
	}
	writeError(w, status, message, err)
}

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

func writeXLSX(w http.ResponseWriter, filename string, body []byte) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

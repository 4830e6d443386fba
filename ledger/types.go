/*
Package ledger provides the weekly cart balance ledger and rollover engine.

PURPOSE:
  Tracks, per cart (customer), the week's order charges, fixed fees and
  payments. At the end of a week the unpaid remainder is rolled over into
  the following week as old_balance, and the closed week is copied into an
  append-only history table together with an immutable summary snapshot.

KEY CONCEPTS IN THIS FILE (types.go):
  - Charges: the five raw currency inputs of a weekly balance
  - Totals: values derived from Charges by Recompute
  - WeeklyBalance: the live, mutable row for one (customer, week)
  - BalanceHistory: frozen copy of a WeeklyBalance taken at rollover
  - SummarySnapshot: frozen aggregate rows for audit and printing

DESIGN PRINCIPLES:
  1. Precision: all amounts are decimal.Decimal with two fractional digits
  2. Derived values are never written directly, only via Recompute
  3. History and snapshots are never updated after they are written

SEE ALSO:
  - calculator.go: Recompute
  - rollover.go: RolloverEngine
  - store.go: persistence interface
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID string
type OwnerID string
type BalanceID string
type HistoryID string
type SnapshotID string

// =============================================================================
// PAYMENT STATUS
// =============================================================================

// PaymentStatus is derived by Recompute. There is no API to set it directly.
type PaymentStatus string

const (
	StatusUnpaid   PaymentStatus = "unpaid"
	StatusPartial  PaymentStatus = "partial"
	StatusPaidFull PaymentStatus = "paid_full"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusUnpaid, StatusPartial, StatusPaidFull:
		return true
	}
	return false
}

// =============================================================================
// CUSTOMERS
// =============================================================================

// Owner supervises a subset of carts.
type Owner struct {
	ID        OwnerID
	Name      string
	CreatedAt time.Time
}

// Customer is the billing subject: one franchise cart.
type Customer struct {
	ID         CustomerID
	Name       string
	CartNumber string
	OwnerID    OwnerID // empty when unassigned
	CreatedAt  time.Time
}

// =============================================================================
// BALANCE FIGURES
// =============================================================================

// Charges are the raw inputs of a weekly balance.
type Charges struct {
	OrdersTotal    decimal.Decimal
	FranchiseFee   decimal.Decimal
	CommissaryRent decimal.Decimal
	OldBalance     decimal.Decimal
	AmountPaid     decimal.Decimal
}

// Due is what the customer owes before payments: this week's charges plus
// the carried-forward old balance.
func (c Charges) Due() decimal.Decimal {
	return c.OrdersTotal.Add(c.FranchiseFee).Add(c.CommissaryRent).Add(c.OldBalance)
}

// Totals are derived from Charges. See Recompute.
type Totals struct {
	TotalBalance     decimal.Decimal
	RemainingBalance decimal.Decimal
	PaymentStatus    PaymentStatus
}

// Figures is the full set of stored amounts on a balance or history row.
type Figures struct {
	Charges
	Totals
}

// =============================================================================
// LIVE BALANCE
// =============================================================================

// WeeklyBalance is the live row for one customer and one week.
// At most one exists per (CustomerID, Week.Start).
type WeeklyBalance struct {
	ID         BalanceID
	CustomerID CustomerID
	Week       Week
	Figures

	// Version is bumped on every update; stores reject stale writes.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BalanceView is a live row joined with its customer and owner profile.
type BalanceView struct {
	WeeklyBalance
	CustomerName string
	CartNumber   string
	OwnerID      OwnerID
	OwnerName    string
}

// =============================================================================
// HISTORY
// =============================================================================

// BalanceHistory is the frozen copy of a WeeklyBalance at rollover time.
// Append-only: never recomputed, never updated.
type BalanceHistory struct {
	ID           HistoryID
	BalanceID    BalanceID
	CustomerID   CustomerID
	Week         Week
	Figures      Figures
	RolledOverAt time.Time
}

// HistoryView is a history row joined with its customer and owner profile.
type HistoryView struct {
	BalanceHistory
	CustomerName string
	CartNumber   string
	OwnerName    string
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

type SnapshotKind string

const (
	SnapshotRollover SnapshotKind = "rollover" // single customer, taken by a rollover
	SnapshotManual   SnapshotKind = "manual"   // full grid, taken by an operator
)

// SummaryRow is one customer's aggregate line, as shown on the dashboard
// grid and frozen into snapshots.
type SummaryRow struct {
	OwnerID          OwnerID         `json:"owner_id,omitempty"`
	OwnerName        string          `json:"owner_name"`
	CustomerID       CustomerID      `json:"customer_id"`
	CustomerName     string          `json:"customer_name"`
	CartNumber       string          `json:"cart_number"`
	WeekStart        time.Time       `json:"week_start_date"`
	WeekEnd          time.Time       `json:"week_end_date"`
	OrdersTotal      decimal.Decimal `json:"orders_total"`
	FranchiseFee     decimal.Decimal `json:"franchise_fee"`
	CommissaryRent   decimal.Decimal `json:"commissary_rent"`
	TotalBalance     decimal.Decimal `json:"total_balance"`
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

// SummarySnapshot is an immutable point-in-time copy of summary rows.
// It can be deleted as a whole but never edited.
type SummarySnapshot struct {
	ID         SnapshotID
	Kind       SnapshotKind
	CustomerID CustomerID // set for SnapshotRollover only
	Week       Week
	CreatedAt  time.Time
	Rows       []SummaryRow
}

// =============================================================================
// ROLLOVER RUNS
// =============================================================================

type RunTrigger string

const (
	TriggerManual    RunTrigger = "manual"
	TriggerScheduled RunTrigger = "scheduled"
	TriggerCLI       RunTrigger = "cli"
)

// RolloverRun records one bulk rollover invocation for display and audit.
type RolloverRun struct {
	ID           string
	Trigger      RunTrigger
	DueBefore    *time.Time
	StartedAt    time.Time
	CompletedAt  *time.Time
	SuccessCount int
	ErrorCount   int
	Outcome      BulkOutcome
}

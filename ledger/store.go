/*
store.go - Persistence interface for live balances, history and snapshots

PURPOSE:
  Defines the interface between the ledger logic and the database.
  Different implementations use SQLite, PostgreSQL, or in-memory storage.

KEY INTERFACES:
  Store:         live balances, append-only history, snapshots, customers
  RolloverStore: the single atomic rollover unit

APPEND-ONLY CONTRACT:
  History rows have InsertHistory and nothing else. No update, no delete.
  Snapshots have InsertSnapshot and DeleteSnapshot (whole-row hard delete).

ATOMIC ROLLOVER:
  RolloverUnpaidBalance must run as one transaction: load the live row,
  insert the snapshot, insert the history row, delete the live row and
  insert the next week's row. Readers never observe zero or two live rows
  for the customer.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - store/postgres/postgres.go: PostgreSQL
  - ledger/store/memory.go: In-memory for testing
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Interface for ledger persistence
// =============================================================================

type Store interface {
	LiveBalanceStore
	HistoryStore
	SnapshotStore
	CustomerStore
	RunStore
	RolloverStore
}

// LiveBalanceStore persists the mutable weekly rows.
type LiveBalanceStore interface {
	// InsertLiveBalance fails with ErrDuplicate if a live row already exists
	// for the same customer and week start.
	InsertLiveBalance(ctx context.Context, b WeeklyBalance) error

	// UpdateLiveBalance replaces the figures of row id if its version still
	// equals expectedVersion, and returns the stored row with its new version.
	// Stale versions fail with ErrConcurrentModification.
	UpdateLiveBalance(ctx context.Context, id BalanceID, expectedVersion int64, f Figures) (WeeklyBalance, error)

	// DeleteLiveBalance removes row id if its version equals expectedVersion.
	DeleteLiveBalance(ctx context.Context, id BalanceID, expectedVersion int64) error

	// GetLiveBalance returns ErrNotFound when id does not exist.
	GetLiveBalance(ctx context.Context, id BalanceID) (WeeklyBalance, error)

	// FindLiveBalance returns ErrNotFound when no row exists for the pair.
	FindLiveBalance(ctx context.Context, customerID CustomerID, weekStart time.Time) (WeeklyBalance, error)

	// QueryLiveBalances joins customer and owner profile in one query and
	// orders by week_start_date descending.
	QueryLiveBalances(ctx context.Context, f BalanceFilter) ([]BalanceView, error)
}

// HistoryStore is append-only.
type HistoryStore interface {
	InsertHistory(ctx context.Context, h BalanceHistory) error

	// QueryHistory orders by rolled_over_at descending.
	QueryHistory(ctx context.Context, f HistoryFilter) ([]HistoryView, error)
}

type SnapshotStore interface {
	InsertSnapshot(ctx context.Context, s SummarySnapshot) error

	// DeleteSnapshot returns ErrNotFound when id does not exist.
	DeleteSnapshot(ctx context.Context, id SnapshotID) error

	GetSnapshot(ctx context.Context, id SnapshotID) (SummarySnapshot, error)

	// QuerySnapshots orders by created_at descending.
	QuerySnapshots(ctx context.Context, f SnapshotFilter) ([]SummarySnapshot, error)
}

type CustomerStore interface {
	SaveOwner(ctx context.Context, o Owner) error
	ListOwners(ctx context.Context) ([]Owner, error)
	SaveCustomer(ctx context.Context, c Customer) error
	GetCustomer(ctx context.Context, id CustomerID) (Customer, error)
	ListCustomers(ctx context.Context) ([]Customer, error)
}

type RunStore interface {
	SaveRolloverRun(ctx context.Context, r RolloverRun) error
	ListRolloverRuns(ctx context.Context, limit int) ([]RolloverRun, error)
}

// RolloverStore exposes the atomic rollover unit.
type RolloverStore interface {
	// RolloverUnpaidBalance closes the live row of (CustomerID, WeekStart)
	// using PlanRollover and writes the plan in one transaction.
	// A missing live row yields a *ConsistencyError matching ErrNotFound.
	RolloverUnpaidBalance(ctx context.Context, req RolloverRequest) (RolloverPlan, error)
}

// =============================================================================
// FILTERS
// =============================================================================

type BalanceFilter struct {
	CustomerID CustomerID
	OwnerID    OwnerID
	// OnlyUnpaid keeps rows with remaining_balance > 0.
	OnlyUnpaid bool
}

type HistoryFilter struct {
	CustomerID CustomerID
	OwnerID    OwnerID
	Limit      int
}

type SnapshotFilter struct {
	Kind       SnapshotKind
	CustomerID CustomerID
	Limit      int
}

// MatchesBalance is used by stores that filter in memory.
func (f BalanceFilter) MatchesBalance(v BalanceView) bool {
	if f.CustomerID != "" && v.CustomerID != f.CustomerID {
		return false
	}
	if f.OwnerID != "" && v.OwnerID != f.OwnerID {
		return false
	}
	if f.OnlyUnpaid && !v.RemainingBalance.IsPositive() {
		return false
	}
	return true
}

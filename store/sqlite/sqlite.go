/*
Package sqlite provides a SQLite-backed implementation of ledger.Store.

PURPOSE:
  Persists customers, live weekly balances, balance history, summary
  snapshots and bulk rollover runs. The PostgreSQL store in
  store/postgres implements the same contract with a different dialect.

APPEND-ONLY ENFORCEMENT:
  - balance_history has INSERT statements only
  - summary_snapshots has INSERT and whole-row DELETE only
  - weekly_balances is the only table with UPDATE, guarded by version

KEY TABLES:
  owners, customers:  Cart registry
  weekly_balances:    Live mutable rows, UNIQUE(customer_id, week_start_date)
  balance_history:    Frozen rows, UNIQUE(customer_id, week_start_date)
  summary_snapshots:  Frozen aggregate rows as JSON
  rollover_runs:      Bulk rollover audit trail

AMOUNTS AND DATES:
  Amounts are TEXT holding the decimal string, so no float rounding ever
  happens in storage. Week boundaries are TEXT YYYY-MM-DD and timestamps
  are TEXT RFC3339 UTC with a fixed nine-digit fraction.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. RolloverUnpaidBalance runs in a
  single database transaction.

USAGE:
  store, err := sqlite.New("./data/cartledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/cartledger/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ledger.Store = (*Store)(nil)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS owners (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cart_number TEXT NOT NULL DEFAULT '',
		owner_id TEXT REFERENCES owners(id),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_customers_owner
		ON customers(owner_id);

	-- Live balances: mutable, one per customer and week
	CREATE TABLE IF NOT EXISTS weekly_balances (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		week_start_date TEXT NOT NULL,
		week_end_date TEXT NOT NULL,
		orders_total TEXT NOT NULL,
		franchise_fee TEXT NOT NULL,
		commissary_rent TEXT NOT NULL,
		old_balance TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		total_balance TEXT NOT NULL,
		remaining_balance TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_weekly_balances_customer_week
		ON weekly_balances(customer_id, week_start_date);
	CREATE INDEX IF NOT EXISTS idx_weekly_balances_week
		ON weekly_balances(week_start_date DESC);

	-- History: append-only copies of closed weeks
	CREATE TABLE IF NOT EXISTS balance_history (
		id TEXT PRIMARY KEY,
		balance_id TEXT NOT NULL,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		week_start_date TEXT NOT NULL,
		week_end_date TEXT NOT NULL,
		orders_total TEXT NOT NULL,
		franchise_fee TEXT NOT NULL,
		commissary_rent TEXT NOT NULL,
		old_balance TEXT NOT NULL,
		amount_paid TEXT NOT NULL,
		total_balance TEXT NOT NULL,
		remaining_balance TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		rolled_over_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_balance_history_customer_week
		ON balance_history(customer_id, week_start_date);
	CREATE INDEX IF NOT EXISTS idx_balance_history_rolled_over
		ON balance_history(rolled_over_at DESC);

	-- Snapshots: immutable, deletable as a whole
	CREATE TABLE IF NOT EXISTS summary_snapshots (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		customer_id TEXT,
		week_start_date TEXT NOT NULL,
		week_end_date TEXT NOT NULL,
		summary_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_summary_snapshots_created
		ON summary_snapshots(created_at DESC);

	CREATE TABLE IF NOT EXISTS rollover_runs (
		id TEXT PRIMARY KEY,
		run_trigger TEXT NOT NULL,
		due_before TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		success_count INTEGER NOT NULL DEFAULT 0,
		error_count INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_rollover_runs_started
		ON rollover_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LIVE BALANCES
// =============================================================================

const liveColumns = `
	b.id, b.customer_id, b.week_start_date, b.week_end_date,
	b.orders_total, b.franchise_fee, b.commissary_rent, b.old_balance, b.amount_paid,
	b.total_balance, b.remaining_balance, b.payment_status,
	b.version, b.created_at, b.updated_at,
	COALESCE(c.name, ''), COALESCE(c.cart_number, ''), COALESCE(c.owner_id, ''), COALESCE(o.name, '')
	FROM weekly_balances b
	LEFT JOIN customers c ON c.id = b.customer_id
	LEFT JOIN owners o ON o.id = c.owner_id`

func (s *Store) InsertLiveBalance(ctx context.Context, b ledger.WeeklyBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertLive(ctx, s.db, b)
}

func insertLive(ctx context.Context, db dbtx, b ledger.WeeklyBalance) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO weekly_balances (
			id, customer_id, week_start_date, week_end_date,
			orders_total, franchise_fee, commissary_rent, old_balance, amount_paid,
			total_balance, remaining_balance, payment_status,
			version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.CustomerID,
		formatDate(b.Week.Start), formatDate(b.Week.End),
		b.OrdersTotal, b.FranchiseFee, b.CommissaryRent, b.OldBalance, b.AmountPaid,
		b.TotalBalance, b.RemainingBalance, string(b.PaymentStatus),
		b.Version, formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	return wrapErr("insert live balance", err)
}

func (s *Store) UpdateLiveBalance(ctx context.Context, id ledger.BalanceID, expectedVersion int64, f ledger.Figures) (ledger.WeeklyBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE weekly_balances SET
			orders_total = ?, franchise_fee = ?, commissary_rent = ?, old_balance = ?, amount_paid = ?,
			total_balance = ?, remaining_balance = ?, payment_status = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		f.OrdersTotal, f.FranchiseFee, f.CommissaryRent, f.OldBalance, f.AmountPaid,
		f.TotalBalance, f.RemainingBalance, string(f.PaymentStatus),
		formatTime(time.Now().UTC()),
		id, expectedVersion,
	)
	if err != nil {
		return ledger.WeeklyBalance{}, wrapErr("update live balance", err)
	}
	if err := versionCheck(ctx, s.db, res, id); err != nil {
		return ledger.WeeklyBalance{}, err
	}

	v, err := getLive(ctx, s.db, "b.id = ?", id)
	return v.WeeklyBalance, err
}

func (s *Store) DeleteLiveBalance(ctx context.Context, id ledger.BalanceID, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteLive(ctx, s.db, id, expectedVersion)
}

func deleteLive(ctx context.Context, db dbtx, id ledger.BalanceID, expectedVersion int64) error {
	res, err := db.ExecContext(ctx,
		`DELETE FROM weekly_balances WHERE id = ? AND version = ?`, id, expectedVersion)
	if err != nil {
		return wrapErr("delete live balance", err)
	}
	return versionCheck(ctx, db, res, id)
}

// versionCheck distinguishes a missing row from a stale version after a
// guarded UPDATE or DELETE touched nothing.
func versionCheck(ctx context.Context, db dbtx, res sql.Result, id ledger.BalanceID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM weekly_balances WHERE id = ?`, id).Scan(&count); err != nil {
		return wrapErr("check live balance", err)
	}
	if count == 0 {
		return ledger.ErrNotFound
	}
	return ledger.ErrConcurrentModification
}

func (s *Store) GetLiveBalance(ctx context.Context, id ledger.BalanceID) (ledger.WeeklyBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := getLive(ctx, s.db, "b.id = ?", id)
	return v.WeeklyBalance, err
}

func (s *Store) FindLiveBalance(ctx context.Context, customerID ledger.CustomerID, weekStart time.Time) (ledger.WeeklyBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, err := getLive(ctx, s.db, "b.customer_id = ? AND b.week_start_date = ?", customerID, formatDate(weekStart))
	return v.WeeklyBalance, err
}

func getLive(ctx context.Context, db dbtx, where string, args ...any) (ledger.BalanceView, error) {
	row := db.QueryRowContext(ctx, "SELECT "+liveColumns+" WHERE "+where, args...)
	v, err := scanLive(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.BalanceView{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.BalanceView{}, wrapErr("get live balance", err)
	}
	return v, nil
}

func (s *Store) QueryLiveBalances(ctx context.Context, f ledger.BalanceFilter) ([]ledger.BalanceView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conds []string
	var args []any
	if f.CustomerID != "" {
		conds = append(conds, "b.customer_id = ?")
		args = append(args, f.CustomerID)
	}
	if f.OwnerID != "" {
		conds = append(conds, "c.owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.OnlyUnpaid {
		conds = append(conds, "CAST(b.remaining_balance AS REAL) > 0")
	}

	query := "SELECT " + liveColumns
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY b.week_start_date DESC, b.customer_id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query live balances", err)
	}
	defer rows.Close()

	var out []ledger.BalanceView
	for rows.Next() {
		v, err := scanLive(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLive(row scanner) (ledger.BalanceView, error) {
	var (
		v                             ledger.BalanceView
		start, end, status            string
		createdAt, updatedAt, ownerID string
	)
	err := row.Scan(
		&v.ID, &v.CustomerID, &start, &end,
		&v.OrdersTotal, &v.FranchiseFee, &v.CommissaryRent, &v.OldBalance, &v.AmountPaid,
		&v.TotalBalance, &v.RemainingBalance, &status,
		&v.Version, &createdAt, &updatedAt,
		&v.CustomerName, &v.CartNumber, &ownerID, &v.OwnerName,
	)
	if err != nil {
		return ledger.BalanceView{}, err
	}
	v.Week = ledger.Week{Start: parseDate(start), End: parseDate(end)}
	v.PaymentStatus = ledger.PaymentStatus(status)
	v.CreatedAt = parseTime(createdAt)
	v.UpdatedAt = parseTime(updatedAt)
	v.OwnerID = ledger.OwnerID(ownerID)
	return v, nil
}

// =============================================================================
// HISTORY (append-only)
// =============================================================================

func (s *Store) InsertHistory(ctx context.Context, h ledger.BalanceHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertHistory(ctx, s.db, h)
}

func insertHistory(ctx context.Context, db dbtx, h ledger.BalanceHistory) error {
	f := h.Figures
	_, err := db.ExecContext(ctx, `
		INSERT INTO balance_history (
			id, balance_id, customer_id, week_start_date, week_end_date,
			orders_total, franchise_fee, commissary_rent, old_balance, amount_paid,
			total_balance, remaining_balance, payment_status, rolled_over_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		h.ID, h.BalanceID, h.CustomerID,
		formatDate(h.Week.Start), formatDate(h.Week.End),
		f.OrdersTotal, f.FranchiseFee, f.CommissaryRent, f.OldBalance, f.AmountPaid,
		f.TotalBalance, f.RemainingBalance, string(f.PaymentStatus),
		formatTime(h.RolledOverAt),
	)
	return wrapErr("insert history", err)
}

func (s *Store) QueryHistory(ctx context.Context, f ledger.HistoryFilter) ([]ledger.HistoryView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT h.id, h.balance_id, h.customer_id, h.week_start_date, h.week_end_date,
		       h.orders_total, h.franchise_fee, h.commissary_rent, h.old_balance, h.amount_paid,
		       h.total_balance, h.remaining_balance, h.payment_status, h.rolled_over_at,
		       COALESCE(c.name, ''), COALESCE(c.cart_number, ''), COALESCE(o.name, '')
		FROM balance_history h
		LEFT JOIN customers c ON c.id = h.customer_id
		LEFT JOIN owners o ON o.id = c.owner_id
		WHERE (? = '' OR h.customer_id = ?)
		  AND (? = '' OR c.owner_id = ?)
		ORDER BY h.rolled_over_at DESC, h.week_start_date DESC`
	args := []any{f.CustomerID, f.CustomerID, f.OwnerID, f.OwnerID}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query history", err)
	}
	defer rows.Close()

	var out []ledger.HistoryView
	for rows.Next() {
		var (
			v                      ledger.HistoryView
			start, end, status, at string
		)
		fig := &v.Figures
		if err := rows.Scan(
			&v.ID, &v.BalanceID, &v.CustomerID, &start, &end,
			&fig.OrdersTotal, &fig.FranchiseFee, &fig.CommissaryRent, &fig.OldBalance, &fig.AmountPaid,
			&fig.TotalBalance, &fig.RemainingBalance, &status, &at,
			&v.CustomerName, &v.CartNumber, &v.OwnerName,
		); err != nil {
			return nil, err
		}
		v.Week = ledger.Week{Start: parseDate(start), End: parseDate(end)}
		fig.PaymentStatus = ledger.PaymentStatus(status)
		v.RolledOverAt = parseTime(at)
		out = append(out, v)
	}
	return out, rows.Err()
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (s *Store) InsertSnapshot(ctx context.Context, snap ledger.SummarySnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertSnapshot(ctx, s.db, snap)
}

func insertSnapshot(ctx context.Context, db dbtx, snap ledger.SummarySnapshot) error {
	rowsJSON, err := json.Marshal(snap.Rows)
	if err != nil {
		return fmt.Errorf("failed to marshal summary rows: %w", err)
	}
	var customerID sql.NullString
	if snap.CustomerID != "" {
		customerID = sql.NullString{String: string(snap.CustomerID), Valid: true}
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO summary_snapshots (id, kind, customer_id, week_start_date, week_end_date, summary_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, string(snap.Kind), customerID,
		formatDate(snap.Week.Start), formatDate(snap.Week.End),
		string(rowsJSON), formatTime(snap.CreatedAt),
	)
	return wrapErr("insert snapshot", err)
}

func (s *Store) DeleteSnapshot(ctx context.Context, id ledger.SnapshotID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM summary_snapshots WHERE id = ?`, id)
	if err != nil {
		return wrapErr("delete snapshot", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

const snapshotColumns = `id, kind, COALESCE(customer_id, ''), week_start_date, week_end_date, summary_json, created_at`

func (s *Store) GetSnapshot(ctx context.Context, id ledger.SnapshotID) (ledger.SummarySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+snapshotColumns+` FROM summary_snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.SummarySnapshot{}, ledger.ErrNotFound
	}
	return snap, err
}

func (s *Store) QuerySnapshots(ctx context.Context, f ledger.SnapshotFilter) ([]ledger.SummarySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + snapshotColumns + ` FROM summary_snapshots
		WHERE (? = '' OR kind = ?)
		  AND (? = '' OR customer_id = ?)
		ORDER BY created_at DESC, id ASC`
	args := []any{f.Kind, f.Kind, f.CustomerID, f.CustomerID}
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query snapshots", err)
	}
	defer rows.Close()

	var out []ledger.SummarySnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func scanSnapshot(row scanner) (ledger.SummarySnapshot, error) {
	var (
		snap                              ledger.SummarySnapshot
		kind, start, end, body, createdAt string
	)
	if err := row.Scan(&snap.ID, &kind, &snap.CustomerID, &start, &end, &body, &createdAt); err != nil {
		return ledger.SummarySnapshot{}, err
	}
	if err := json.Unmarshal([]byte(body), &snap.Rows); err != nil {
		return ledger.SummarySnapshot{}, fmt.Errorf("failed to unmarshal summary rows: %w", err)
	}
	snap.Kind = ledger.SnapshotKind(kind)
	snap.Week = ledger.Week{Start: parseDate(start), End: parseDate(end)}
	snap.CreatedAt = parseTime(createdAt)
	return snap, nil
}

// =============================================================================
// ATOMIC ROLLOVER
// =============================================================================

// withTx executes fn within a database transaction.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}

	return wrapErr("commit transaction", sqlTx.Commit())
}

func (s *Store) RolloverUnpaidBalance(ctx context.Context, req ledger.RolloverRequest) (ledger.RolloverPlan, error) {
	if err := req.Validate(); err != nil {
		return ledger.RolloverPlan{}, err
	}

	var plan ledger.RolloverPlan
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		closing, err := getLive(ctx, tx,
			"b.customer_id = ? AND b.week_start_date = ?", req.CustomerID, formatDate(req.WeekStart))
		if errors.Is(err, ledger.ErrNotFound) {
			return rolloverError(req, "no live balance", err)
		}
		if err != nil {
			return err
		}

		plan, err = ledger.PlanRollover(closing, req)
		if err != nil {
			return err
		}

		if err := insertSnapshot(ctx, tx, plan.Snapshot); err != nil {
			return rolloverError(req, "snapshot", err)
		}
		if err := insertHistory(ctx, tx, plan.History); err != nil {
			return rolloverError(req, "history already recorded for week", err)
		}
		if err := deleteLive(ctx, tx, plan.Closed.ID, plan.Closed.Version); err != nil {
			return rolloverError(req, "live balance changed", err)
		}
		if err := insertLive(ctx, tx, plan.Next); err != nil {
			return rolloverError(req, "next week already has a live balance", err)
		}
		return nil
	})
	if err != nil {
		return ledger.RolloverPlan{}, err
	}
	return plan, nil
}

// rolloverError keeps transient failures retryable and turns everything
// else into a ConsistencyError.
func rolloverError(req ledger.RolloverRequest, reason string, err error) error {
	if ledger.IsRetryable(err) {
		return err
	}
	return &ledger.ConsistencyError{
		CustomerID: req.CustomerID,
		WeekStart:  req.WeekStart,
		Reason:     reason,
		Err:        err,
	}
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (s *Store) SaveOwner(ctx context.Context, o ledger.Owner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO owners (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		o.ID, o.Name, formatTime(o.CreatedAt),
	)
	return wrapErr("save owner", err)
}

func (s *Store) ListOwners(ctx context.Context) ([]ledger.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM owners ORDER BY name`)
	if err != nil {
		return nil, wrapErr("list owners", err)
	}
	defer rows.Close()

	var out []ledger.Owner
	for rows.Next() {
		var o ledger.Owner
		var createdAt string
		if err := rows.Scan(&o.ID, &o.Name, &createdAt); err != nil {
			return nil, err
		}
		o.CreatedAt = parseTime(createdAt)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) SaveCustomer(ctx context.Context, c ledger.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	var ownerID sql.NullString
	if c.OwnerID != "" {
		ownerID = sql.NullString{String: string(c.OwnerID), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, name, cart_number, owner_id, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			cart_number = excluded.cart_number,
			owner_id = excluded.owner_id`,
		c.ID, c.Name, c.CartNumber, ownerID, formatTime(c.CreatedAt),
	)
	return wrapErr("save customer", err)
}

const customerColumns = `id, name, cart_number, COALESCE(owner_id, ''), created_at`

func (s *Store) GetCustomer(ctx context.Context, id ledger.CustomerID) (ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := scanCustomer(s.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Customer{}, ledger.ErrNotFound
	}
	return c, err
}

func (s *Store) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+customerColumns+` FROM customers ORDER BY name`)
	if err != nil {
		return nil, wrapErr("list customers", err)
	}
	defer rows.Close()

	var out []ledger.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCustomer(row scanner) (ledger.Customer, error) {
	var c ledger.Customer
	var ownerID, createdAt string
	if err := row.Scan(&c.ID, &c.Name, &c.CartNumber, &ownerID, &createdAt); err != nil {
		return ledger.Customer{}, err
	}
	c.OwnerID = ledger.OwnerID(ownerID)
	c.CreatedAt = parseTime(createdAt)
	return c, nil
}

// =============================================================================
// ROLLOVER RUNS
// =============================================================================

func (s *Store) SaveRolloverRun(ctx context.Context, r ledger.RolloverRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rollover_runs (id, run_trigger, due_before, started_at, completed_at, success_count, error_count, outcome)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			completed_at = excluded.completed_at,
			success_count = excluded.success_count,
			error_count = excluded.error_count,
			outcome = excluded.outcome`,
		r.ID, string(r.Trigger), nullDate(r.DueBefore), formatTime(r.StartedAt), nullTime(r.CompletedAt),
		r.SuccessCount, r.ErrorCount, string(r.Outcome),
	)
	return wrapErr("save rollover run", err)
}

func (s *Store) ListRolloverRuns(ctx context.Context, limit int) ([]ledger.RolloverRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_trigger, due_before, started_at, completed_at, success_count, error_count, outcome
		FROM rollover_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, wrapErr("list rollover runs", err)
	}
	defer rows.Close()

	var out []ledger.RolloverRun
	for rows.Next() {
		var (
			r                      ledger.RolloverRun
			trigger, startedAt, oc string
			dueBefore, completedAt sql.NullString
		)
		if err := rows.Scan(&r.ID, &trigger, &dueBefore, &startedAt, &completedAt,
			&r.SuccessCount, &r.ErrorCount, &oc); err != nil {
			return nil, err
		}
		r.Trigger = ledger.RunTrigger(trigger)
		r.Outcome = ledger.BulkOutcome(oc)
		r.StartedAt = parseTime(startedAt)
		if dueBefore.Valid {
			t := parseDate(dueBefore.String)
			r.DueBefore = &t
		}
		if completedAt.Valid {
			t := parseTime(completedAt.String)
			r.CompletedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"rollover_runs", "summary_snapshots", "balance_history", "weekly_balances", "customers", "owners"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// wrapErr maps driver errors onto the ledger error taxonomy.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch {
		case sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked:
			return &ledger.TransientError{Op: op, Err: err}
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%s: %w", op, ledger.ErrDuplicate)
		case sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey:
			return fmt.Errorf("%s: referenced row: %w", op, ledger.ErrNotFound)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

func formatDate(t time.Time) string {
	return t.Format(ledger.DateLayout)
}

// timeLayout keeps a fixed-width fraction so TEXT timestamps sort in time
// order. RFC3339Nano trims trailing zeros and does not.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseDate(s string) time.Time {
	t, _ := time.Parse(ledger.DateLayout, s)
	return t
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatDate(*t), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

/*
Package postgres provides a PostgreSQL-backed implementation of ledger.Store.

PURPOSE:
  Same contract as store/sqlite, for deployments where several ledger
  processes share one database. Amounts are NUMERIC(14,2), week
  boundaries are DATE and timestamps are TIMESTAMPTZ.

ATOMIC ROLLOVER:
  RolloverUnpaidBalance runs in one SERIALIZABLE transaction and locks the
  closing row with SELECT ... FOR UPDATE. Serialization failures and
  deadlocks surface as ledger.TransientError so the engine retries them.

SEE ALSO:
  - store/sqlite/sqlite.go: the SQLite dialect of the same store
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/cartledger/ledger"
)

// Store implements ledger.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ ledger.Store = (*Store)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New connects to dsn and migrates the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS owners (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		cart_number TEXT NOT NULL DEFAULT '',
		owner_id TEXT REFERENCES owners(id),
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS weekly_balances (
		id TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		week_start_date DATE NOT NULL,
		week_end_date DATE NOT NULL,
		orders_total NUMERIC(14,2) NOT NULL,
		franchise_fee NUMERIC(14,2) NOT NULL,
		commissary_rent NUMERIC(14,2) NOT NULL,
		old_balance NUMERIC(14,2) NOT NULL,
		amount_paid NUMERIC(14,2) NOT NULL,
		total_balance NUMERIC(14,2) NOT NULL,
		remaining_balance NUMERIC(14,2) NOT NULL CHECK (remaining_balance >= 0),
		payment_status TEXT NOT NULL,
		version BIGINT NOT NULL DEFAULT 1,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT uq_weekly_balances_customer_week UNIQUE (customer_id, week_start_date)
	);

	CREATE INDEX IF NOT EXISTS idx_weekly_balances_week
		ON weekly_balances(week_start_date DESC);

	CREATE TABLE IF NOT EXISTS balance_history (
		id TEXT PRIMARY KEY,
		balance_id TEXT NOT NULL,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		week_start_date DATE NOT NULL,
		week_end_date DATE NOT NULL,
		orders_total NUMERIC(14,2) NOT NULL,
		franchise_fee NUMERIC(14,2) NOT NULL,
		commissary_rent NUMERIC(14,2) NOT NULL,
		old_balance NUMERIC(14,2) NOT NULL,
		amount_paid NUMERIC(14,2) NOT NULL,
		total_balance NUMERIC(14,2) NOT NULL,
		remaining_balance NUMERIC(14,2) NOT NULL,
		payment_status TEXT NOT NULL,
		rolled_over_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT uq_balance_history_customer_week UNIQUE (customer_id, week_start_date)
	);

	CREATE TABLE IF NOT EXISTS summary_snapshots (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		customer_id TEXT,
		week_start_date DATE NOT NULL,
		week_end_date DATE NOT NULL,
		summary_data JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rollover_runs (
		id TEXT PRIMARY KEY,
		run_trigger TEXT NOT NULL,
		due_before DATE,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		success_count INT NOT NULL DEFAULT 0,
		error_count INT NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL DEFAULT ''
	);
	`)
	return err
}

// ============================================================================
// LIVE BALANCES
// ============================================================================

const liveSelect = `
	SELECT b.id, b.customer_id, b.week_start_date, b.week_end_date,
	       b.orders_total::text, b.franchise_fee::text, b.commissary_rent::text,
	       b.old_balance::text, b.amount_paid::text,
	       b.total_balance::text, b.remaining_balance::text, b.payment_status,
	       b.version, b.created_at, b.updated_at,
	       COALESCE(c.name, ''), COALESCE(c.cart_number, ''), COALESCE(c.owner_id, ''), COALESCE(o.name, '')
	FROM weekly_balances b
	LEFT JOIN customers c ON c.id = b.customer_id
	LEFT JOIN owners o ON o.id = c.owner_id`

func (s *Store) InsertLiveBalance(ctx context.Context, b ledger.WeeklyBalance) error {
	return insertLive(ctx, s.pool, b)
}

func insertLive(ctx context.Context, q querier, b ledger.WeeklyBalance) error {
	_, err := q.Exec(ctx, `
		INSERT INTO weekly_balances (
			id, customer_id, week_start_date, week_end_date,
			orders_total, franchise_fee, commissary_rent, old_balance, amount_paid,
			total_balance, remaining_balance, payment_status,
			version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric,
		          $10::numeric, $11::numeric, $12, $13, $14, $15)`,
		string(b.ID), string(b.CustomerID), b.Week.Start, b.Week.End,
		num(b.OrdersTotal), num(b.FranchiseFee), num(b.CommissaryRent), num(b.OldBalance), num(b.AmountPaid),
		num(b.TotalBalance), num(b.RemainingBalance), string(b.PaymentStatus),
		b.Version, b.CreatedAt, b.UpdatedAt,
	)
	return wrapErr("insert live balance", err)
}

func (s *Store) UpdateLiveBalance(ctx context.Context, id ledger.BalanceID, expectedVersion int64, f ledger.Figures) (ledger.WeeklyBalance, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE weekly_balances SET
			orders_total = $1::numeric, franchise_fee = $2::numeric, commissary_rent = $3::numeric,
			old_balance = $4::numeric, amount_paid = $5::numeric,
			total_balance = $6::numeric, remaining_balance = $7::numeric, payment_status = $8,
			version = version + 1, updated_at = now()
		WHERE id = $9 AND version = $10`,
		num(f.OrdersTotal), num(f.FranchiseFee), num(f.CommissaryRent), num(f.OldBalance), num(f.AmountPaid),
		num(f.TotalBalance), num(f.RemainingBalance), string(f.PaymentStatus),
		string(id), expectedVersion,
	)
	if err != nil {
		return ledger.WeeklyBalance{}, wrapErr("update live balance", err)
	}
	if err := versionCheck(ctx, s.pool, tag, id); err != nil {
		return ledger.WeeklyBalance{}, err
	}
	v, err := getLive(ctx, s.pool, "b.id = $1", string(id))
	return v.WeeklyBalance, err
}

func (s *Store) DeleteLiveBalance(ctx context.Context, id ledger.BalanceID, expectedVersion int64) error {
	return deleteLive(ctx, s.pool, id, expectedVersion)
}

func deleteLive(ctx context.Context, q querier, id ledger.BalanceID, expectedVersion int64) error {
	tag, err := q.Exec(ctx, `DELETE FROM weekly_balances WHERE id = $1 AND version = $2`, string(id), expectedVersion)
	if err != nil {
		return wrapErr("delete live balance", err)
	}
	return versionCheck(ctx, q, tag, id)
}

func versionCheck(ctx context.Context, q querier, tag pgconn.CommandTag, id ledger.BalanceID) error {
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM weekly_balances WHERE id = $1)`, string(id)).Scan(&exists); err != nil {
		return wrapErr("check live balance", err)
	}
	if !exists {
		return ledger.ErrNotFound
	}
	return ledger.ErrConcurrentModification
}

func (s *Store) GetLiveBalance(ctx context.Context, id ledger.BalanceID) (ledger.WeeklyBalance, error) {
	v, err := getLive(ctx, s.pool, "b.id = $1", string(id))
	return v.WeeklyBalance, err
}

func (s *Store) FindLiveBalance(ctx context.Context, customerID ledger.CustomerID, weekStart time.Time) (ledger.WeeklyBalance, error) {
	v, err := getLive(ctx, s.pool, "b.customer_id = $1 AND b.week_start_date = $2", string(customerID), ledger.Day(weekStart))
	return v.WeeklyBalance, err
}

func getLive(ctx context.Context, q querier, where string, args ...any) (ledger.BalanceView, error) {
	v, err := scanLive(q.QueryRow(ctx, liveSelect+" WHERE "+where, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.BalanceView{}, ledger.ErrNotFound
	}
	if err != nil {
		return ledger.BalanceView{}, wrapErr("get live balance", err)
	}
	return v, nil
}

func (s *Store) QueryLiveBalances(ctx context.Context, f ledger.BalanceFilter) ([]ledger.BalanceView, error) {
	var conds []string
	var args []any
	if f.CustomerID != "" {
		args = append(args, string(f.CustomerID))
		conds = append(conds, "b.customer_id = $"+strconv.Itoa(len(args)))
	}
	if f.OwnerID != "" {
		args = append(args, string(f.OwnerID))
		conds = append(conds, "c.owner_id = $"+strconv.Itoa(len(args)))
	}
	if f.OnlyUnpaid {
		conds = append(conds, "b.remaining_balance > 0")
	}

	query := liveSelect
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY b.week_start_date DESC, b.customer_id ASC"

	rows, err := s.pool.Query(ctx, query, args...)
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
	return out, wrapErr("query live balances", rows.Err())
}

func scanLive(row pgx.Row) (ledger.BalanceView, error) {
	var (
		v       ledger.BalanceView
		amounts [7]string
		status  string
		ownerID string
	)
	err := row.Scan(
		&v.ID, &v.CustomerID, &v.Week.Start, &v.Week.End,
		&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4],
		&amounts[5], &amounts[6], &status,
		&v.Version, &v.CreatedAt, &v.UpdatedAt,
		&v.CustomerName, &v.CartNumber, &ownerID, &v.OwnerName,
	)
	if err != nil {
		return ledger.BalanceView{}, err
	}
	if err := setFigures(&v.Figures, amounts, status); err != nil {
		return ledger.BalanceView{}, err
	}
	v.Week = ledger.NewWeek(v.Week.Start, v.Week.End)
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	v.OwnerID = ledger.OwnerID(ownerID)
	return v, nil
}

// ============================================================================
// HISTORY (append-only)
// ============================================================================

func (s *Store) InsertHistory(ctx context.Context, h ledger.BalanceHistory) error {
	return insertHistory(ctx, s.pool, h)
}

func insertHistory(ctx context.Context, q querier, h ledger.BalanceHistory) error {
	f := h.Figures
	_, err := q.Exec(ctx, `
		INSERT INTO balance_history (
			id, balance_id, customer_id, week_start_date, week_end_date,
			orders_total, franchise_fee, commissary_rent, old_balance, amount_paid,
			total_balance, remaining_balance, payment_status, rolled_over_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric,
		          $11::numeric, $12::numeric, $13, $14)`,
		string(h.ID), string(h.BalanceID), string(h.CustomerID), h.Week.Start, h.Week.End,
		num(f.OrdersTotal), num(f.FranchiseFee), num(f.CommissaryRent), num(f.OldBalance), num(f.AmountPaid),
		num(f.TotalBalance), num(f.RemainingBalance), string(f.PaymentStatus), h.RolledOverAt,
	)
	return wrapErr("insert history", err)
}

func (s *Store) QueryHistory(ctx context.Context, f ledger.HistoryFilter) ([]ledger.HistoryView, error) {
	query := `
		SELECT h.id, h.balance_id, h.customer_id, h.week_start_date, h.week_end_date,
		       h.orders_total::text, h.franchise_fee::text, h.commissary_rent::text,
		       h.old_balance::text, h.amount_paid::text,
		       h.total_balance::text, h.remaining_balance::text, h.payment_status, h.rolled_over_at,
		       COALESCE(c.name, ''), COALESCE(c.cart_number, ''), COALESCE(o.name, '')
		FROM balance_history h
		LEFT JOIN customers c ON c.id = h.customer_id
		LEFT JOIN owners o ON o.id = c.owner_id
		WHERE ($1 = '' OR h.customer_id = $1)
		  AND ($2 = '' OR c.owner_id = $2)
		ORDER BY h.rolled_over_at DESC, h.week_start_date DESC`
	args := []any{string(f.CustomerID), string(f.OwnerID)}
	if f.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query history", err)
	}
	defer rows.Close()

	var out []ledger.HistoryView
	for rows.Next() {
		var (
			v       ledger.HistoryView
			amounts [7]string
			status  string
		)
		if err := rows.Scan(
			&v.ID, &v.BalanceID, &v.CustomerID, &v.Week.Start, &v.Week.End,
			&amounts[0], &amounts[1], &amounts[2], &amounts[3], &amounts[4],
			&amounts[5], &amounts[6], &status, &v.RolledOverAt,
			&v.CustomerName, &v.CartNumber, &v.OwnerName,
		); err != nil {
			return nil, err
		}
		if err := setFigures(&v.Figures, amounts, status); err != nil {
			return nil, err
		}
		v.Week = ledger.NewWeek(v.Week.Start, v.Week.End)
		v.RolledOverAt = v.RolledOverAt.UTC()
		out = append(out, v)
	}
	return out, wrapErr("query history", rows.Err())
}

// ============================================================================
// SNAPSHOTS
// ============================================================================

func (s *Store) InsertSnapshot(ctx context.Context, snap ledger.SummarySnapshot) error {
	return insertSnapshot(ctx, s.pool, snap)
}

func insertSnapshot(ctx context.Context, q querier, snap ledger.SummarySnapshot) error {
	data, err := json.Marshal(snap.Rows)
	if err != nil {
		return fmt.Errorf("failed to marshal summary rows: %w", err)
	}
	var customerID *string
	if snap.CustomerID != "" {
		c := string(snap.CustomerID)
		customerID = &c
	}
	_, err = q.Exec(ctx, `
		INSERT INTO summary_snapshots (id, kind, customer_id, week_start_date, week_end_date, summary_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		string(snap.ID), string(snap.Kind), customerID, snap.Week.Start, snap.Week.End, data, snap.CreatedAt,
	)
	return wrapErr("insert snapshot", err)
}

func (s *Store) DeleteSnapshot(ctx context.Context, id ledger.SnapshotID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM summary_snapshots WHERE id = $1`, string(id))
	if err != nil {
		return wrapErr("delete snapshot", err)
	}
	if tag.RowsAffected() == 0 {
		return ledger.ErrNotFound
	}
	return nil
}

const snapshotSelect = `
	SELECT id, kind, COALESCE(customer_id, ''), week_start_date, week_end_date, summary_data, created_at
	FROM summary_snapshots`

func (s *Store) GetSnapshot(ctx context.Context, id ledger.SnapshotID) (ledger.SummarySnapshot, error) {
	snap, err := scanSnapshot(s.pool.QueryRow(ctx, snapshotSelect+" WHERE id = $1", string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.SummarySnapshot{}, ledger.ErrNotFound
	}
	return snap, wrapErr("get snapshot", err)
}

func (s *Store) QuerySnapshots(ctx context.Context, f ledger.SnapshotFilter) ([]ledger.SummarySnapshot, error) {
	query := snapshotSelect + `
		WHERE ($1 = '' OR kind = $1)
		  AND ($2 = '' OR customer_id = $2)
		ORDER BY created_at DESC, id ASC`
	args := []any{string(f.Kind), string(f.CustomerID)}
	if f.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
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
	return out, wrapErr("query snapshots", rows.Err())
}

func scanSnapshot(row pgx.Row) (ledger.SummarySnapshot, error) {
	var (
		snap ledger.SummarySnapshot
		kind string
		data []byte
	)
	if err := row.Scan(&snap.ID, &kind, &snap.CustomerID, &snap.Week.Start, &snap.Week.End, &data, &snap.CreatedAt); err != nil {
		return ledger.SummarySnapshot{}, err
	}
	if err := json.Unmarshal(data, &snap.Rows); err != nil {
		return ledger.SummarySnapshot{}, fmt.Errorf("failed to unmarshal summary rows: %w", err)
	}
	snap.Kind = ledger.SnapshotKind(kind)
	snap.Week = ledger.NewWeek(snap.Week.Start, snap.Week.End)
	snap.CreatedAt = snap.CreatedAt.UTC()
	return snap, nil
}

// ============================================================================
// ATOMIC ROLLOVER
// ============================================================================

// withTx wraps fn in a serializable transaction.
func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return wrapErr("begin transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return wrapErr("commit transaction", tx.Commit(ctx))
}

func (s *Store) RolloverUnpaidBalance(ctx context.Context, req ledger.RolloverRequest) (ledger.RolloverPlan, error) {
	if err := req.Validate(); err != nil {
		return ledger.RolloverPlan{}, err
	}

	var plan ledger.RolloverPlan
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		closing, err := getLive(ctx, tx,
			"b.customer_id = $1 AND b.week_start_date = $2 FOR UPDATE OF b",
			string(req.CustomerID), ledger.Day(req.WeekStart))
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

// ============================================================================
// CUSTOMERS
// ============================================================================

func (s *Store) SaveOwner(ctx context.Context, o ledger.Owner) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO owners (id, name, created_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		string(o.ID), o.Name, o.CreatedAt)
	return wrapErr("save owner", err)
}

func (s *Store) ListOwners(ctx context.Context) ([]ledger.Owner, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, created_at FROM owners ORDER BY name`)
	if err != nil {
		return nil, wrapErr("list owners", err)
	}
	defer rows.Close()

	var out []ledger.Owner
	for rows.Next() {
		var o ledger.Owner
		if err := rows.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, wrapErr("list owners", rows.Err())
}

func (s *Store) SaveCustomer(ctx context.Context, c ledger.Customer) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	var ownerID *string
	if c.OwnerID != "" {
		o := string(c.OwnerID)
		ownerID = &o
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customers (id, name, cart_number, owner_id, created_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			cart_number = EXCLUDED.cart_number,
			owner_id = EXCLUDED.owner_id`,
		string(c.ID), c.Name, c.CartNumber, ownerID, c.CreatedAt)
	return wrapErr("save customer", err)
}

const customerSelect = `SELECT id, name, cart_number, COALESCE(owner_id, ''), created_at FROM customers`

func (s *Store) GetCustomer(ctx context.Context, id ledger.CustomerID) (ledger.Customer, error) {
	var c ledger.Customer
	err := s.pool.QueryRow(ctx, customerSelect+" WHERE id = $1", string(id)).
		Scan(&c.ID, &c.Name, &c.CartNumber, &c.OwnerID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ledger.Customer{}, ledger.ErrNotFound
	}
	return c, wrapErr("get customer", err)
}

func (s *Store) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	rows, err := s.pool.Query(ctx, customerSelect+" ORDER BY name")
	if err != nil {
		return nil, wrapErr("list customers", err)
	}
	defer rows.Close()

	var out []ledger.Customer
	for rows.Next() {
		var c ledger.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.CartNumber, &c.OwnerID, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, wrapErr("list customers", rows.Err())
}

// ============================================================================
// ROLLOVER RUNS
// ============================================================================

func (s *Store) SaveRolloverRun(ctx context.Context, r ledger.RolloverRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO rollover_runs (id, run_trigger, due_before, started_at, completed_at, success_count, error_count, outcome)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			completed_at = EXCLUDED.completed_at,
			success_count = EXCLUDED.success_count,
			error_count = EXCLUDED.error_count,
			outcome = EXCLUDED.outcome`,
		r.ID, string(r.Trigger), r.DueBefore, r.StartedAt, r.CompletedAt,
		r.SuccessCount, r.ErrorCount, string(r.Outcome))
	return wrapErr("save rollover run", err)
}

func (s *Store) ListRolloverRuns(ctx context.Context, limit int) ([]ledger.RolloverRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_trigger, due_before, started_at, completed_at, success_count, error_count, outcome
		FROM rollover_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, wrapErr("list rollover runs", err)
	}
	defer rows.Close()

	var out []ledger.RolloverRun
	for rows.Next() {
		var (
			r                ledger.RolloverRun
			trigger, outcome string
		)
		if err := rows.Scan(&r.ID, &trigger, &r.DueBefore, &r.StartedAt, &r.CompletedAt,
			&r.SuccessCount, &r.ErrorCount, &outcome); err != nil {
			return nil, err
		}
		r.Trigger = ledger.RunTrigger(trigger)
		r.Outcome = ledger.BulkOutcome(outcome)
		out = append(out, r)
	}
	return out, wrapErr("list rollover runs", rows.Err())
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE rollover_runs, summary_snapshots, balance_history, weekly_balances, customers, owners`)
	return err
}

// ============================================================================
// HELPERS
// ============================================================================

// PostgreSQL SQLSTATE codes mapped onto the ledger taxonomy.
const (
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected:
			return &ledger.TransientError{Op: op, Err: err}
		case codeUniqueViolation:
			return fmt.Errorf("%s: %s: %w", op, pgErr.ConstraintName, ledger.ErrDuplicate)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: referenced row: %w", op, ledger.ErrNotFound)
		}
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return &ledger.TransientError{Op: op, Err: err}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// num renders an amount for a $n::numeric parameter.
func num(d decimal.Decimal) string {
	return d.StringFixed(ledger.CurrencyPlaces)
}

func setFigures(f *ledger.Figures, amounts [7]string, status string) error {
	dst := []*decimal.Decimal{
		&f.OrdersTotal, &f.FranchiseFee, &f.CommissaryRent, &f.OldBalance, &f.AmountPaid,
		&f.TotalBalance, &f.RemainingBalance,
	}
	for i, s := range amounts {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("failed to parse amount %q: %w", s, err)
		}
		*dst[i] = d
	}
	f.PaymentStatus = ledger.PaymentStatus(status)
	return nil
}

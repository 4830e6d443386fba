/*
rollover.go - Closing a week and seeding the next one

PURPOSE:
  The RolloverEngine closes a customer's live weekly balance:
    1. Load the live row for (customer, week start)
    2. Archive a single-row summary snapshot of it
    3. Copy it into balance history with rolled_over_at = now
    4. Replace it with the next week's row, old_balance = remaining_balance
  Steps 2-4 run in one store transaction (RolloverStore).

IDEMPOTENCY:
  The live row is gone after a successful rollover, so a second call for the
  same pair fails with a ConsistencyError. It never writes a second history
  row or a second next-week row.

BULK ROLLOVER:
  RolloverAll closes the latest live row of every customer that still owes
  money. Each customer runs in its own transaction and under its own lock.
  A failure is counted and the batch continues; RolloverAll never returns
  an error, only a BulkResult.

SEE ALSO:
  - plan.go: PlanRollover, the pure part of a rollover
  - snapshot.go: manual full-grid snapshots
*/
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// ROLLOVER ENGINE
// =============================================================================

type RolloverEngine struct {
	store Store
	opts  Options
}

func NewRolloverEngine(store Store, opts Options) *RolloverEngine {
	return &RolloverEngine{store: store, opts: opts.withDefaults()}
}

// Rollover closes the live row of (customerID, weekStart). Transient store
// errors are retried within the engine's RetryPolicy.
func (e *RolloverEngine) Rollover(ctx context.Context, customerID CustomerID, weekStart time.Time) (RolloverPlan, error) {
	return e.rollover(ctx, customerID, weekStart, e.opts.Retry)
}

func (e *RolloverEngine) rollover(ctx context.Context, customerID CustomerID, weekStart time.Time, policy RetryPolicy) (RolloverPlan, error) {
	if customerID == "" {
		return RolloverPlan{}, &ValidationError{Field: "customer_id", Reason: "is required"}
	}
	if weekStart.IsZero() {
		return RolloverPlan{}, &ValidationError{Field: "week_start_date", Reason: "is required"}
	}
	weekStart = Day(weekStart)

	unlock, err := e.opts.Locker.Lock(ctx, customerID)
	if err != nil {
		return RolloverPlan{}, err
	}
	defer unlock()

	started := time.Now()
	req := RolloverRequest{
		CustomerID:    customerID,
		WeekStart:     weekStart,
		RolledOverAt:  e.opts.Now(),
		SnapshotID:    SnapshotID(e.opts.NewID()),
		HistoryID:     HistoryID(e.opts.NewID()),
		NextBalanceID: BalanceID(e.opts.NewID()),
	}
	plan, err := withRetry(ctx, policy, e.opts.Logger, "rollover", func() (RolloverPlan, error) {
		return e.store.RolloverUnpaidBalance(ctx, req)
	})
	e.opts.Recorder.RolloverFinished(err, time.Since(started))
	if err != nil {
		e.opts.Logger.Warn("rollover failed",
			zap.String("customer_id", string(customerID)),
			zap.String("week_start_date", weekStart.Format(DateLayout)),
			zap.Error(err),
		)
		return RolloverPlan{}, err
	}
	e.opts.Recorder.SnapshotCaptured(SnapshotRollover)

	e.opts.Logger.Info("weekly balance rolled over",
		zap.String("customer_id", string(customerID)),
		zap.Stringer("closed_week", plan.Closed.Week),
		zap.Stringer("next_week", plan.Next.Week),
		zap.String("carried_forward", FormatAmount(plan.Next.OldBalance)),
		zap.String("snapshot_id", string(plan.Snapshot.ID)),
	)
	return plan, nil
}

// =============================================================================
// BULK ROLLOVER
// =============================================================================

type BulkOutcome string

const (
	BulkSuccess BulkOutcome = "success" // every target rolled over
	BulkPartial BulkOutcome = "partial" // some targets failed
	BulkFailed  BulkOutcome = "failed"  // every target failed
	BulkNoop    BulkOutcome = "noop"    // nothing to roll over
)

type BulkOptions struct {
	// DueBefore limits targets to weeks that ended strictly before it.
	DueBefore *time.Time

	// OwnerID limits targets to one owner's carts.
	OwnerID OwnerID

	// Parallelism > 1 rolls customers over concurrently. Default sequential.
	Parallelism int

	Trigger RunTrigger
}

type BulkFailure struct {
	CustomerID CustomerID
	WeekStart  time.Time
	Err        error
}

type BulkResult struct {
	RunID        string
	SuccessCount int
	ErrorCount   int
	Rolled       []RolloverPlan
	Failures     []BulkFailure
}

func (r BulkResult) Outcome() BulkOutcome {
	switch {
	case r.SuccessCount == 0 && r.ErrorCount == 0:
		return BulkNoop
	case r.ErrorCount == 0:
		return BulkSuccess
	case r.SuccessCount > 0:
		return BulkPartial
	default:
		return BulkFailed
	}
}

type bulkTarget struct {
	customerID CustomerID
	weekStart  time.Time
}

// RolloverAll closes the latest unpaid live row of every customer.
func (e *RolloverEngine) RolloverAll(ctx context.Context, opts BulkOptions) BulkResult {
	if opts.Trigger == "" {
		opts.Trigger = TriggerManual
	}
	run := RolloverRun{
		ID:        e.opts.NewID(),
		Trigger:   opts.Trigger,
		DueBefore: opts.DueBefore,
		StartedAt: e.opts.Now(),
	}
	if err := e.store.SaveRolloverRun(ctx, run); err != nil {
		e.opts.Logger.Warn("failed to save rollover run", zap.String("run_id", run.ID), zap.Error(err))
	}

	res := BulkResult{RunID: run.ID}
	targets, err := e.bulkTargets(ctx, opts)
	if err != nil {
		res.ErrorCount = 1
		res.Failures = append(res.Failures, BulkFailure{Err: fmt.Errorf("list rollover targets: %w", err)})
	} else {
		e.runTargets(ctx, targets, opts.Parallelism, &res)
	}

	completed := e.opts.Now()
	run.CompletedAt = &completed
	run.SuccessCount = res.SuccessCount
	run.ErrorCount = res.ErrorCount
	run.Outcome = res.Outcome()
	if err := e.store.SaveRolloverRun(ctx, run); err != nil {
		e.opts.Logger.Warn("failed to save rollover run", zap.String("run_id", run.ID), zap.Error(err))
	}

	e.opts.Recorder.BulkRolloverFinished(res)
	e.opts.Logger.Info("bulk rollover finished",
		zap.String("run_id", run.ID),
		zap.String("trigger", string(opts.Trigger)),
		zap.Int("success_count", res.SuccessCount),
		zap.Int("error_count", res.ErrorCount),
		zap.String("outcome", string(run.Outcome)),
	)
	return res
}

func (e *RolloverEngine) bulkTargets(ctx context.Context, opts BulkOptions) ([]bulkTarget, error) {
	rows, err := e.store.QueryLiveBalances(ctx, BalanceFilter{OwnerID: opts.OwnerID})
	if err != nil {
		return nil, err
	}

	// Rows arrive newest week first, so the first row per customer is its latest.
	seen := make(map[CustomerID]bool)
	var targets []bulkTarget
	for _, r := range rows {
		if seen[r.CustomerID] {
			continue
		}
		seen[r.CustomerID] = true
		if !r.RemainingBalance.IsPositive() {
			continue
		}
		if opts.DueBefore != nil && !r.Week.EndedBefore(*opts.DueBefore) {
			continue
		}
		targets = append(targets, bulkTarget{customerID: r.CustomerID, weekStart: r.Week.Start})
	}
	return targets, nil
}

func (e *RolloverEngine) runTargets(ctx context.Context, targets []bulkTarget, parallelism int, res *BulkResult) {
	var mu sync.Mutex
	one := func(t bulkTarget) {
		plan, err := e.rollover(ctx, t.customerID, t.weekStart, NoRetry())
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			res.ErrorCount++
			res.Failures = append(res.Failures, BulkFailure{CustomerID: t.customerID, WeekStart: t.weekStart, Err: err})
			return
		}
		res.SuccessCount++
		res.Rolled = append(res.Rolled, plan)
	}

	if parallelism <= 1 {
		for _, t := range targets {
			one(t)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(parallelism)
	for _, t := range targets {
		g.Go(func() error {
			one(t)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(res.Rolled, func(i, j int) bool { return res.Rolled[i].Closed.CustomerID < res.Rolled[j].Closed.CustomerID })
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].CustomerID < res.Failures[j].CustomerID })
}

// Runs lists recent bulk rollover runs, newest first.
func (e *RolloverEngine) Runs(ctx context.Context, limit int) ([]RolloverRun, error) {
	return e.store.ListRolloverRuns(ctx, limit)
}

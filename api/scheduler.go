/*
scheduler.go - Automated weekly rollover scheduler

PURPOSE:
  Periodically rolls over every customer's latest unpaid week once that
  week has ended, so carts start the new week with their old balance
  carried forward without an operator pressing the button.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Each check is one RolloverAll with DueBefore = today, so weeks that
    are still running are never touched
  - Rolled-over rows are gone from the live table, so a second check in
    the same week finds nothing to do (outcome "noop")
  - Every check is recorded as a rollover run with trigger "scheduled"

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active
  - Parallelism: customers rolled over concurrently per check

USAGE:
  scheduler := NewRolloverScheduler(engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: BulkRollover endpoint (manual trigger)
  - ledger/rollover.go: RolloverEngine.RolloverAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/cartledger/ledger"
)

// RolloverScheduler handles automated end-of-week rollover.
type RolloverScheduler struct {
	Engine        *ledger.RolloverEngine
	CheckInterval time.Duration
	Enabled       bool
	Parallelism   int

	// Now is overridable for tests.
	Now func() time.Time

	log    *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewRolloverScheduler creates a new scheduler.
func NewRolloverScheduler(engine *ledger.RolloverEngine, log *zap.Logger) *RolloverScheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &RolloverScheduler{
		Engine:        engine,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Parallelism:   1,
		Now:           func() time.Time { return time.Now().UTC() },
		log:           log.Named("scheduler"),
	}
}

// Start begins the scheduler.
func (rs *RolloverScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.log.Info("disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	rs.log.Info("started", zap.Duration("check_interval", rs.CheckInterval))
}

// Stop stops the scheduler and waits for a running check to finish.
func (rs *RolloverScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.log.Info("stopped")
}

func (rs *RolloverScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	rs.check(ctx)

	for {
		select {
		case <-ticker.C:
			rs.check(ctx)
		case <-stop:
			return
		}
	}
}

func (rs *RolloverScheduler) check(ctx context.Context) ledger.BulkResult {
	today := ledger.Day(rs.Now())
	res := rs.Engine.RolloverAll(ctx, ledger.BulkOptions{
		DueBefore:   &today,
		Parallelism: rs.Parallelism,
		Trigger:     ledger.TriggerScheduled,
	})
	if res.Outcome() != ledger.BulkNoop {
		rs.log.Info("check completed",
			zap.String("run_id", res.RunID),
			zap.Int("processed", res.SuccessCount),
			zap.Int("failed", res.ErrorCount),
		)
	}
	for _, f := range res.Failures {
		rs.log.Warn("rollover failed",
			zap.String("customer_id", string(f.CustomerID)),
			zap.Error(f.Err),
		)
	}
	return res
}

// RunNow triggers an immediate check (for testing/admin).
func (rs *RolloverScheduler) RunNow(ctx context.Context) ledger.BulkResult {
	return rs.check(ctx)
}

// NextRunTime returns when the next scheduled check will occur.
func (rs *RolloverScheduler) NextRunTime() time.Time {
	return rs.Now().Add(rs.CheckInterval)
}

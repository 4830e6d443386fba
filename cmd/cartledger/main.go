/*
main.go - Application entry point

PURPOSE:
  The cartledger CLI. Starts the HTTP server and runs the ledger's batch
  operations from the command line.

COMMANDS:
  serve      HTTP API, /metrics and the optional rollover scheduler
  rollover   Roll over one customer's week, or every unpaid customer
  snapshot   Capture the current summary grid, optionally as XLSX
  seed       Reset the store and load a demo scenario

CONFIGURATION:
  Environment variables only (see config/config.go), e.g.
    STORE_DRIVER=sqlite SQLITE_PATH=./data/cartledger.db
    STORE_DRIVER=postgres PG_DSN=postgres://...
    REDIS_ADDR=localhost:6379   (shared customer locks across processes)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM serve:
  1. Stops the rollover scheduler
  2. Stops accepting new connections
  3. Waits for active requests to complete (30s timeout)
  4. Closes the store and redis connections

EXAMPLES:
  cartledger serve
  cartledger rollover --due-before 2025-03-10
  cartledger rollover --customer cust-1 --week 2025-03-03
  cartledger snapshot --out grid.xlsx
  cartledger seed weekly-carts

SEE ALSO:
  - app.go: store, lock and handler wiring
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/cartledger/api"
	"github.com/warp/cartledger/config"
	"github.com/warp/cartledger/export"
	"github.com/warp/cartledger/ledger"
	"github.com/warp/cartledger/metrics"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cartledger",
		Short:         "Weekly cart balance ledger",
		Version:       readVersionFromEnv(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newRolloverCmd(), newSnapshotCmd(), newSeedCmd())
	return root
}

// bootstrap loads config, builds the logger and wires the app.
func bootstrap(ctx context.Context, m *metrics.Metrics) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	log, err := config.NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a, err := newApp(ctx, cfg, log, m)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return a, nil
}

// =============================================================================
// SERVE
// =============================================================================

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	m := metrics.New()
	a, err := bootstrap(ctx, m)
	if err != nil {
		return err
	}
	defer a.log.Sync()
	defer a.Close()

	cfg := a.cfg
	scheduler := api.NewRolloverScheduler(a.handler.Rollover, a.log)
	scheduler.Enabled = cfg.RolloverScheduleEnabled
	scheduler.CheckInterval = cfg.RolloverCheckInterval
	scheduler.Parallelism = cfg.RolloverParallelism
	scheduler.Start()
	defer scheduler.Stop()

	router := api.NewRouter(a.handler, api.RouterOptions{
		CORSOrigins:        cfg.CORSOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Metrics:            m,
		Logger:             a.log,
	})
	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server starting", zap.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	a.log.Info("server stopped")
	return nil
}

// =============================================================================
// ROLLOVER
// =============================================================================

func newRolloverCmd() *cobra.Command {
	var (
		customer    string
		week        string
		dueBefore   string
		owner       string
		parallelism int
	)
	cmd := &cobra.Command{
		Use:   "rollover",
		Short: "Roll over one customer's week, or every customer's latest unpaid week",
		Long: `With --customer and --week, closes that live week and seeds the next.
Without them, rolls over the latest unpaid week of every customer whose week
ended before --due-before (default: today).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (customer == "") != (week == "") {
				return errors.New("--customer and --week must be given together")
			}
			a, err := bootstrap(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.log.Sync()
			defer a.Close()

			out := cmd.OutOrStdout()
			if customer != "" {
				return rolloverOne(cmd.Context(), a, out, customer, week)
			}
			return rolloverAll(cmd.Context(), a, out, dueBefore, owner, parallelism)
		},
	}
	cmd.Flags().StringVar(&customer, "customer", "", "customer id for a single rollover")
	cmd.Flags().StringVar(&week, "week", "", "week start date (YYYY-MM-DD) for a single rollover")
	cmd.Flags().StringVar(&dueBefore, "due-before", "", "only weeks that ended before this date (default today)")
	cmd.Flags().StringVar(&owner, "owner", "", "only this owner's carts")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "customers rolled over concurrently (default ROLLOVER_PARALLELISM)")
	return cmd
}

func rolloverOne(ctx context.Context, a *app, out io.Writer, customer, week string) error {
	start, err := ledger.ParseDate("week", week)
	if err != nil {
		return err
	}
	plan, err := a.handler.Rollover.Rollover(ctx, ledger.CustomerID(customer), start)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "rolled over %s %s: carried %s into %s\n",
		customer, plan.Closed.Week, ledger.FormatAmount(plan.Next.OldBalance), plan.Next.Week)
	return nil
}

func rolloverAll(ctx context.Context, a *app, out io.Writer, dueBefore, owner string, parallelism int) error {
	due := ledger.Day(time.Now().UTC())
	if dueBefore != "" {
		d, err := ledger.ParseDate("due-before", dueBefore)
		if err != nil {
			return err
		}
		due = d
	}
	if parallelism <= 0 {
		parallelism = a.cfg.RolloverParallelism
	}

	res := a.handler.Rollover.RolloverAll(ctx, ledger.BulkOptions{
		DueBefore:   &due,
		OwnerID:     ledger.OwnerID(owner),
		Parallelism: parallelism,
		Trigger:     ledger.TriggerCLI,
	})
	fmt.Fprintf(out, "run %s: %s (%d rolled over, %d failed)\n",
		res.RunID, res.Outcome(), res.SuccessCount, res.ErrorCount)
	for _, p := range res.Rolled {
		fmt.Fprintf(out, "  ok   %s %s carried %s\n",
			p.Closed.CustomerID, p.Closed.Week, ledger.FormatAmount(p.Next.OldBalance))
	}
	for _, f := range res.Failures {
		fmt.Fprintf(out, "  fail %s: %v\n", f.CustomerID, f.Err)
	}
	if res.Outcome() == ledger.BulkFailed || res.Outcome() == ledger.BulkPartial {
		return fmt.Errorf("%d of %d rollovers failed", res.ErrorCount, res.ErrorCount+res.SuccessCount)
	}
	return nil
}

// =============================================================================
// SNAPSHOT
// =============================================================================

func newSnapshotCmd() *cobra.Command {
	var (
		owner string
		out   string
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture the current summary grid as a manual snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.log.Sync()
			defer a.Close()

			snap, err := a.handler.Archiver.CaptureGrid(cmd.Context(), ledger.GridOptions{OwnerID: ledger.OwnerID(owner)})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s: %d rows, week %s\n", snap.ID, len(snap.Rows), snap.Week)
			if out == "" {
				return nil
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := export.WriteSnapshot(f, snap); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "only this owner's carts")
	cmd.Flags().StringVar(&out, "out", "", "also write the snapshot as XLSX to this path")
	return cmd
}

// =============================================================================
// SEED
// =============================================================================

func newSeedCmd() *cobra.Command {
	ids := make([]string, 0, len(api.Scenarios()))
	for _, s := range api.Scenarios() {
		ids = append(ids, s.ID)
	}
	return &cobra.Command{
		Use:       "seed <scenario>",
		Short:     "Reset the store and load a demo scenario",
		Long:      "Deletes all data, then loads one of: " + strings.Join(ids, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: ids,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), nil)
			if err != nil {
				return err
			}
			defer a.log.Sync()
			defer a.Close()

			if err := a.handler.Seed(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "loaded scenario %s\n", args[0])
			return nil
		},
	}
}

func readVersionFromEnv() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}

package ledger

import (
	"context"

	"go.uber.org/zap"
)

// =============================================================================
// SNAPSHOT ARCHIVER - Immutable summaries for audit and printing
// =============================================================================

// Archiver captures and deletes summary snapshots.
//
// Two capture modes exist:
//   - rollover: one customer's row, written by RolloverStore inside the
//     rollover transaction (see PlanRollover)
//   - manual: the Reporter's whole current grid, via CaptureGrid
//
// Snapshots are never edited. Delete removes one entirely and has no effect
// on live or history rows.
type Archiver struct {
	store    SnapshotStore
	reporter *Reporter
	opts     Options
}

func NewArchiver(store SnapshotStore, reporter *Reporter, opts Options) *Archiver {
	return &Archiver{store: store, reporter: reporter, opts: opts.withDefaults()}
}

type GridOptions struct {
	OwnerID OwnerID
	// Week overrides the range stamped on the snapshot. By default it spans
	// the earliest and latest live week in the grid.
	Week *Week
}

// CaptureGrid freezes the current cross-customer summary into one snapshot.
func (a *Archiver) CaptureGrid(ctx context.Context, o GridOptions) (SummarySnapshot, error) {
	if o.Week != nil {
		if err := o.Week.Validate(); err != nil {
			return SummarySnapshot{}, err
		}
	}

	rows, err := a.reporter.Summaries(ctx, ReportFilter{OwnerID: o.OwnerID})
	if err != nil {
		return SummarySnapshot{}, err
	}
	if len(rows) == 0 {
		return SummarySnapshot{}, &ValidationError{Field: "summary_data", Reason: "no live balances to capture"}
	}

	week := gridWeek(rows)
	if o.Week != nil {
		week = NewWeek(o.Week.Start, o.Week.End)
	}

	snap := SummarySnapshot{
		ID:        SnapshotID(a.opts.NewID()),
		Kind:      SnapshotManual,
		Week:      week,
		CreatedAt: a.opts.Now(),
		Rows:      rows,
	}
	_, err = withRetry(ctx, a.opts.Retry, a.opts.Logger, "capture_grid", func() (struct{}, error) {
		return struct{}{}, a.store.InsertSnapshot(ctx, snap)
	})
	if err != nil {
		return SummarySnapshot{}, err
	}
	a.opts.Recorder.SnapshotCaptured(SnapshotManual)

	a.opts.Logger.Info("summary snapshot captured",
		zap.String("snapshot_id", string(snap.ID)),
		zap.Int("rows", len(rows)),
		zap.Stringer("week", week),
	)
	return snap, nil
}

// Delete hard-deletes a snapshot.
func (a *Archiver) Delete(ctx context.Context, id SnapshotID) error {
	_, err := withRetry(ctx, a.opts.Retry, a.opts.Logger, "delete_snapshot", func() (struct{}, error) {
		return struct{}{}, a.store.DeleteSnapshot(ctx, id)
	})
	if err != nil {
		return err
	}
	a.opts.Logger.Info("summary snapshot deleted", zap.String("snapshot_id", string(id)))
	return nil
}

func (a *Archiver) Get(ctx context.Context, id SnapshotID) (SummarySnapshot, error) {
	return a.store.GetSnapshot(ctx, id)
}

func (a *Archiver) List(ctx context.Context, f SnapshotFilter) ([]SummarySnapshot, error) {
	return a.store.QuerySnapshots(ctx, f)
}

func gridWeek(rows []SummaryRow) Week {
	w := Week{Start: rows[0].WeekStart, End: rows[0].WeekEnd}
	for _, r := range rows[1:] {
		if r.WeekStart.Before(w.Start) {
			w.Start = r.WeekStart
		}
		if r.WeekEnd.After(w.End) {
			w.End = r.WeekEnd
		}
	}
	return w
}

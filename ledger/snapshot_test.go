package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cartledger/ledger"
)

func TestArchiver_DeleteLeavesBalancesUntouched(t *testing.T) {
	// GIVEN: A rolled-over customer, another live customer and a manual
	//        snapshot of the grid
	// WHEN: Deleting the manual snapshot
	// THEN: It disappears from listings, live and history rows are unchanged

	f := newFixture(t)
	ctx := context.Background()
	c1 := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	c2 := f.addCustomer(t, "cust-2", "Dog Cart", "", "")
	f.open(t, c1, week1, partlyPaid())
	f.open(t, c2, week1, partlyPaid())
	_, err := f.engine.Rollover(ctx, c1, week1.Start)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	snap, err := f.archiver.CaptureGrid(ctx, ledger.GridOptions{})
	require.NoError(t, err)
	assert.Equal(t, ledger.SnapshotManual, snap.Kind)
	assert.Len(t, snap.Rows, 2)

	liveBefore, err := f.store.QueryLiveBalances(ctx, ledger.BalanceFilter{})
	require.NoError(t, err)
	historyBefore := f.historyFor(t, c1)

	require.NoError(t, f.archiver.Delete(ctx, snap.ID))

	all, err := f.archiver.List(ctx, ledger.SnapshotFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ledger.SnapshotRollover, all[0].Kind)

	liveAfter, err := f.store.QueryLiveBalances(ctx, ledger.BalanceFilter{})
	require.NoError(t, err)
	assert.Equal(t, liveBefore, liveAfter)
	assert.Equal(t, historyBefore, f.historyFor(t, c1))
}

func TestArchiver_DeleteMissing(t *testing.T) {
	f := newFixture(t)

	err := f.archiver.Delete(context.Background(), "nope")
	assert.True(t, ledger.IsNotFound(err))
}

func TestArchiver_CaptureGrid_Empty(t *testing.T) {
	f := newFixture(t)

	_, err := f.archiver.CaptureGrid(context.Background(), ledger.GridOptions{})
	assert.True(t, ledger.IsClientError(err))
}

func TestArchiver_CaptureGrid_IsFrozen(t *testing.T) {
	// GIVEN: A captured grid
	// WHEN: The live row is paid afterwards
	// THEN: The snapshot still shows the old figures

	f := newFixture(t)
	ctx := context.Background()
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	b := f.open(t, cust, week1, partlyPaid())

	snap, err := f.archiver.CaptureGrid(ctx, ledger.GridOptions{})
	require.NoError(t, err)
	assert.Equal(t, week1, snap.Week)

	_, err = f.balances.EditPayment(ctx, b.ID, amt("160.00"))
	require.NoError(t, err)

	got, err := f.archiver.Get(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, "80.00", ledger.FormatAmount(got.Rows[0].RemainingBalance))
}

func TestArchiver_CaptureGrid_WeekOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.open(t, f.addCustomer(t, "cust-1", "Taco Cart", "", ""), week1, partlyPaid())

	snap, err := f.archiver.CaptureGrid(ctx, ledger.GridOptions{Week: &week2})
	require.NoError(t, err)
	assert.Equal(t, week2, snap.Week)

	bad := ledger.NewWeek(week2.End, week2.Start)
	_, err = f.archiver.CaptureGrid(ctx, ledger.GridOptions{Week: &bad})
	assert.True(t, ledger.IsClientError(err))
}

func TestArchiver_ListFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	f.open(t, cust, week1, partlyPaid())
	_, err := f.engine.Rollover(ctx, cust, week1.Start)
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.archiver.CaptureGrid(ctx, ledger.GridOptions{})
	require.NoError(t, err)

	manual, err := f.archiver.List(ctx, ledger.SnapshotFilter{Kind: ledger.SnapshotManual})
	require.NoError(t, err)
	assert.Len(t, manual, 1)

	forCustomer, err := f.archiver.List(ctx, ledger.SnapshotFilter{CustomerID: cust})
	require.NoError(t, err)
	require.Len(t, forCustomer, 1)
	assert.Equal(t, ledger.SnapshotRollover, forCustomer[0].Kind)

	newest, err := f.archiver.List(ctx, ledger.SnapshotFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, ledger.SnapshotManual, newest[0].Kind)
}

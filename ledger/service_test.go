package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cartledger/ledger"
)

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

// =============================================================================
// OPEN
// =============================================================================

func TestBalanceService_Open_RecomputesTotals(t *testing.T) {
	f := newFixture(t)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "owner-1", "Alice")

	b := f.open(t, cust, week1, partlyPaid())

	assert.Equal(t, int64(1), b.Version)
	assert.True(t, amt("160.00").Equal(b.TotalBalance))
	assert.True(t, amt("80.00").Equal(b.RemainingBalance))
	assert.Equal(t, ledger.StatusPartial, b.PaymentStatus)

	got, err := f.balances.Get(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

func TestBalanceService_Open_DuplicateWeekRejected(t *testing.T) {
	// GIVEN: A live row for cust-1, week1
	// WHEN: Opening a second live row for the same pair
	// THEN: ErrDuplicate, and still exactly one live row

	f := newFixture(t)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	f.open(t, cust, week1, partlyPaid())

	_, err := f.balances.Open(context.Background(), ledger.OpenInput{CustomerID: cust, Week: week1})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ledger.ErrDuplicate))
	assert.True(t, ledger.IsConflict(err))
	assert.Len(t, f.liveFor(t, cust), 1)
}

func TestBalanceService_Open_UnknownCustomer(t *testing.T) {
	f := newFixture(t)

	_, err := f.balances.Open(context.Background(), ledger.OpenInput{CustomerID: "ghost", Week: week1})

	assert.True(t, ledger.IsNotFound(err))
}

func TestBalanceService_Open_RejectsBadInput(t *testing.T) {
	f := newFixture(t)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")

	_, err := f.balances.Open(context.Background(), ledger.OpenInput{CustomerID: cust})
	assert.True(t, ledger.IsClientError(err), "missing week")

	_, err = f.balances.Open(context.Background(), ledger.OpenInput{
		CustomerID: cust,
		Week:       week1,
		Charges:    charges("-5.00", "0", "0", "0", "0"),
	})
	assert.True(t, ledger.IsClientError(err), "negative orders_total")
	assert.Empty(t, f.liveFor(t, cust))
}

func TestBalanceService_Open_CarriesPreviousRemaining(t *testing.T) {
	// GIVEN: week1 with 120/15/25 charges and 80.00 paid, so 80.00 is owed
	// WHEN: Opening week2 without charges
	// THEN: week2 starts with old_balance 80.00 and the grid still shows the debt

	f := newFixture(t)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	f.open(t, cust, week1, partlyPaid())

	next, err := f.balances.Open(context.Background(), ledger.OpenInput{CustomerID: cust, Week: week2})
	require.NoError(t, err)

	assert.True(t, amt("80.00").Equal(next.OldBalance))
	assert.True(t, amt("80.00").Equal(next.RemainingBalance))
	assert.True(t, next.TotalBalance.IsZero())
	assert.Equal(t, ledger.StatusUnpaid, next.PaymentStatus)

	rows, err := f.reporter.Summaries(context.Background(), ledger.ReportFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "80.00", ledger.FormatAmount(rows[0].RemainingBalance))

	res := f.engine.RolloverAll(context.Background(), ledger.BulkOptions{})
	require.Equal(t, 1, res.SuccessCount)
	assert.Equal(t, week2, res.Rolled[0].Closed.Week)
	assert.True(t, amt("80.00").Equal(res.Rolled[0].Next.OldBalance))
}

func TestBalanceService_Open_CarriesFromHistory(t *testing.T) {
	// GIVEN: week1 rolled over, and the week2 row it produced deleted
	// WHEN: Opening week3
	// THEN: The remaining balance of the rolled-over week1 is carried

	f := newFixture(t)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	f.open(t, cust, week1, partlyPaid())
	ctx := context.Background()
	plan, err := f.engine.Rollover(ctx, cust, week1.Start)
	require.NoError(t, err)
	require.NoError(t, f.balances.Delete(ctx, plan.Next.ID))

	week3 := week2.Next()
	b, err := f.balances.Open(ctx, ledger.OpenInput{CustomerID: cust, Week: week3, Charges: charges("10.00", "0", "0", "0", "0")})
	require.NoError(t, err)

	assert.True(t, amt("80.00").Equal(b.OldBalance))
	assert.True(t, amt("90.00").Equal(b.RemainingBalance))
}

func TestBalanceService_Open_ExplicitOldBalance(t *testing.T) {
	f := newFixture(t)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	ctx := context.Background()

	// A first period takes the given old balance.
	first, err := f.balances.Open(ctx, ledger.OpenInput{CustomerID: cust, Week: week1, OldBalance: ptr(amt("42.10"))})
	require.NoError(t, err)
	assert.True(t, amt("42.10").Equal(first.OldBalance))

	// Later periods accept only the carried amount.
	_, err = f.balances.Open(ctx, ledger.OpenInput{CustomerID: cust, Week: week2, OldBalance: ptr(amt("0"))})
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "old_balance", verr.Field)
	assert.Contains(t, verr.Reason, "42.10")
	assert.Len(t, f.liveFor(t, cust), 1)

	second, err := f.balances.Open(ctx, ledger.OpenInput{CustomerID: cust, Week: week2, OldBalance: ptr(amt("42.1"))})
	require.NoError(t, err)
	assert.True(t, amt("42.10").Equal(second.OldBalance))
}

// =============================================================================
// EDITS
// =============================================================================

func TestBalanceService_EditFees_KeepsUnsetFields(t *testing.T) {
	f := newFixture(t)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	b := f.open(t, cust, week1, partlyPaid())

	updated, err := f.balances.EditFees(context.Background(), b.ID, ledger.FeePatch{
		FranchiseFee: ptr(amt("35.00")),
	})
	require.NoError(t, err)

	assert.True(t, amt("120.00").Equal(updated.OrdersTotal))
	assert.True(t, amt("35.00").Equal(updated.FranchiseFee))
	assert.True(t, amt("180.00").Equal(updated.TotalBalance))
	assert.True(t, amt("100.00").Equal(updated.RemainingBalance))
	assert.Equal(t, int64(2), updated.Version)
}

func TestBalanceService_EditFees_EmptyPatch(t *testing.T) {
	f := newFixture(t)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	b := f.open(t, cust, week1, partlyPaid())

	_, err := f.balances.EditFees(context.Background(), b.ID, ledger.FeePatch{})
	assert.True(t, ledger.IsClientError(err))
}

func TestBalanceService_RecordPayment_ReachesPaidFull(t *testing.T) {
	// GIVEN: 120/15/25 charges with 80.00 paid, 80.00 still owed
	// WHEN: Recording 50.00 then 30.00
	// THEN: partial, then paid_full with nothing remaining

	f := newFixture(t)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	b := f.open(t, cust, week1, partlyPaid())
	ctx := context.Background()

	b, err := f.balances.RecordPayment(ctx, b.ID, amt("50.00"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPartial, b.PaymentStatus)
	assert.True(t, amt("30.00").Equal(b.RemainingBalance))

	b, err = f.balances.RecordPayment(ctx, b.ID, amt("30.00"))
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPaidFull, b.PaymentStatus)
	assert.True(t, b.RemainingBalance.IsZero())
	assert.True(t, amt("160.00").Equal(b.AmountPaid))
}

func TestBalanceService_RecordPayment_RejectsZero(t *testing.T) {
	f := newFixture(t)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	b := f.open(t, cust, week1, partlyPaid())

	_, err := f.balances.RecordPayment(context.Background(), b.ID, decimal.Zero)
	assert.True(t, ledger.IsClientError(err))
}

func TestBalanceService_EditPayment_Overpay(t *testing.T) {
	f := newFixture(t)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	b := f.open(t, cust, week1, partlyPaid())

	b, err := f.balances.EditPayment(context.Background(), b.ID, amt("500.00"))
	require.NoError(t, err)

	assert.True(t, b.RemainingBalance.IsZero())
	assert.Equal(t, ledger.StatusPaidFull, b.PaymentStatus)
}

func TestBalanceService_Edit_MissingRow(t *testing.T) {
	f := newFixture(t)

	_, err := f.balances.EditPayment(context.Background(), "missing", amt("1.00"))
	assert.True(t, ledger.IsNotFound(err))
}

func TestBalanceService_Edit_RetriesTransientErrors(t *testing.T) {
	// GIVEN: A store whose first two updates fail with a transient error
	// WHEN: Editing a payment
	// THEN: The third attempt succeeds

	fs := newFaultyStore()
	f := newFixtureWithStore(t, fs, fs.Memory)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	b := f.open(t, cust, week1, partlyPaid())
	fs.transientUpdate = 2

	updated, err := f.balances.EditPayment(context.Background(), b.ID, amt("160.00"))
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusPaidFull, updated.PaymentStatus)
	assert.Equal(t, 3, fs.updateCalls)
}

func TestBalanceService_Edit_GivesUpAfterMaxTries(t *testing.T) {
	fs := newFaultyStore()
	f := newFixtureWithStore(t, fs, fs.Memory)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	b := f.open(t, cust, week1, partlyPaid())
	fs.transientUpdate = 10

	_, err := f.balances.EditPayment(context.Background(), b.ID, amt("160.00"))

	require.Error(t, err)
	assert.True(t, ledger.IsRetryable(err))
	assert.Equal(t, 3, fs.updateCalls)
}

func TestStore_StaleVersionRejected(t *testing.T) {
	f := newFixture(t)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	b := f.open(t, cust, week1, partlyPaid())
	ctx := context.Background()

	_, err := f.store.UpdateLiveBalance(ctx, b.ID, b.Version, b.Figures)
	require.NoError(t, err)

	_, err = f.store.UpdateLiveBalance(ctx, b.ID, b.Version, b.Figures)
	assert.True(t, errors.Is(err, ledger.ErrConcurrentModification))
	assert.True(t, ledger.IsConflict(err))
}

func TestBalanceService_Delete(t *testing.T) {
	f := newFixture(t)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "", "")
	b := f.open(t, cust, week1, partlyPaid())
	ctx := context.Background()

	require.NoError(t, f.balances.Delete(ctx, b.ID))

	assert.Empty(t, f.liveFor(t, cust))
	assert.Empty(t, f.historyFor(t, cust), "delete never writes history")
	assert.True(t, ledger.IsNotFound(f.balances.Delete(ctx, b.ID)))
}

func TestBalanceService_List_JoinsProfile(t *testing.T) {
	f := newFixture(t)
	cust := f.addCustomer(t, "cust-1", "Taco Cart", "owner-1", "Alice")
	f.open(t, cust, week1, partlyPaid())
	// 10.00 of charges plus the 80.00 carried from week1, all paid.
	f.open(t, cust, week2, charges("10.00", "0", "0", "0", "90.00"))

	rows, err := f.balances.List(context.Background(), ledger.BalanceFilter{OwnerID: "owner-1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, week2, rows[0].Week, "newest week first")
	assert.Equal(t, "Taco Cart", rows[0].CustomerName)
	assert.Equal(t, "Alice", rows[0].OwnerName)
	assert.Equal(t, "C-cust-1", rows[0].CartNumber)

	unpaid, err := f.balances.List(context.Background(), ledger.BalanceFilter{OnlyUnpaid: true})
	require.NoError(t, err)
	require.Len(t, unpaid, 1)
	assert.Equal(t, week1, unpaid[0].Week)
}

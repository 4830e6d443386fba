package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanRollover(t *testing.T) {
	week := WeekOf(Date(2025, time.March, 3))
	fig, err := NewFigures(Charges{
		OrdersTotal:    MustAmount("120.00"),
		FranchiseFee:   MustAmount("15.00"),
		CommissaryRent: MustAmount("25.00"),
		OldBalance:     MustAmount("0"),
		AmountPaid:     MustAmount("80.00"),
	})
	require.NoError(t, err)

	at := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.FixedZone("EST", -5*3600))
	closing := BalanceView{
		WeeklyBalance: WeeklyBalance{ID: "bal-1", CustomerID: "cust-1", Week: week, Figures: fig, Version: 3},
		CustomerName:  "Taco Cart",
	}
	plan, err := PlanRollover(closing, RolloverRequest{
		CustomerID:    "cust-1",
		WeekStart:     week.Start,
		RolledOverAt:  at,
		SnapshotID:    "snap-1",
		HistoryID:     "hist-1",
		NextBalanceID: "bal-2",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), plan.Closed.Version)
	assert.Equal(t, fig, plan.History.Figures)
	assert.Equal(t, time.UTC, plan.History.RolledOverAt.Location())
	assert.Equal(t, BalanceID("bal-2"), plan.Next.ID)
	assert.Equal(t, int64(1), plan.Next.Version)
	assert.Equal(t, week.Next(), plan.Next.Week)
	assert.Equal(t, "80.00", FormatAmount(plan.Next.OldBalance))
	assert.Equal(t, StatusUnpaid, plan.Next.PaymentStatus)
	require.Len(t, plan.Snapshot.Rows, 1)
	assert.Equal(t, "Taco Cart", plan.Snapshot.Rows[0].CustomerName)
}

func TestPlanRollover_RequiresIDs(t *testing.T) {
	_, err := PlanRollover(BalanceView{}, RolloverRequest{CustomerID: "c", WeekStart: Date(2025, 1, 6)})
	assert.True(t, IsClientError(err))
}

package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// RolloverRequest identifies the live row to close. The engine assigns ids
// and the clock reading so every store writes identical rows.
type RolloverRequest struct {
	CustomerID    CustomerID
	WeekStart     time.Time
	RolledOverAt  time.Time
	SnapshotID    SnapshotID
	HistoryID     HistoryID
	NextBalanceID BalanceID
}

func (r RolloverRequest) Validate() error {
	if r.CustomerID == "" {
		return &ValidationError{Field: "customer_id", Reason: "is required"}
	}
	if r.WeekStart.IsZero() {
		return &ValidationError{Field: "week_start_date", Reason: "is required"}
	}
	if r.RolledOverAt.IsZero() || r.SnapshotID == "" || r.HistoryID == "" || r.NextBalanceID == "" {
		return &ValidationError{Field: "rollover_request", Reason: "ids and timestamp must be assigned"}
	}
	return nil
}

// RolloverPlan is everything one rollover writes.
type RolloverPlan struct {
	Closed   WeeklyBalance
	Snapshot SummarySnapshot
	History  BalanceHistory
	Next     WeeklyBalance
}

// PlanRollover computes the rows produced by closing the given live row.
// The next week's old_balance is exactly the closed remaining_balance and
// every other input starts at zero.
func PlanRollover(closing BalanceView, req RolloverRequest) (RolloverPlan, error) {
	if err := req.Validate(); err != nil {
		return RolloverPlan{}, err
	}

	at := req.RolledOverAt.UTC()
	closed := closing.WeeklyBalance

	nextFigures, err := NewFigures(Charges{
		OrdersTotal:    decimal.Zero,
		FranchiseFee:   decimal.Zero,
		CommissaryRent: decimal.Zero,
		OldBalance:     closed.RemainingBalance,
		AmountPaid:     decimal.Zero,
	})
	if err != nil {
		return RolloverPlan{}, err
	}

	return RolloverPlan{
		Closed: closed,
		Snapshot: SummarySnapshot{
			ID:         req.SnapshotID,
			Kind:       SnapshotRollover,
			CustomerID: closed.CustomerID,
			Week:       closed.Week,
			CreatedAt:  at,
			Rows:       []SummaryRow{summaryRowOf(closing)},
		},
		History: BalanceHistory{
			ID:           req.HistoryID,
			BalanceID:    closed.ID,
			CustomerID:   closed.CustomerID,
			Week:         closed.Week,
			Figures:      closed.Figures,
			RolledOverAt: at,
		},
		Next: WeeklyBalance{
			ID:         req.NextBalanceID,
			CustomerID: closed.CustomerID,
			Week:       closed.Week.Next(),
			Figures:    nextFigures,
			Version:    1,
			CreatedAt:  at,
			UpdatedAt:  at,
		},
	}, nil
}

// summaryRowOf is the single-row aggregate of one live balance.
func summaryRowOf(v BalanceView) SummaryRow {
	return SummaryRow{
		OwnerID:          v.OwnerID,
		OwnerName:        v.OwnerName,
		CustomerID:       v.CustomerID,
		CustomerName:     v.CustomerName,
		CartNumber:       v.CartNumber,
		WeekStart:        v.Week.Start,
		WeekEnd:          v.Week.End,
		OrdersTotal:      v.OrdersTotal,
		FranchiseFee:     v.FranchiseFee,
		CommissaryRent:   v.CommissaryRent,
		TotalBalance:     v.TotalBalance,
		AmountPaid:       v.AmountPaid,
		RemainingBalance: v.RemainingBalance,
	}
}

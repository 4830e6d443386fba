package ledger

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// =============================================================================
// AGGREGATION REPORTER - Cross-week summary per customer
// =============================================================================

// Reporter builds the read-only per-customer grid from live rows.
// It never writes. Results may trail concurrent writes.
type Reporter struct {
	store LiveBalanceStore
	group singleflight.Group
}

func NewReporter(store LiveBalanceStore) *Reporter {
	return &Reporter{store: store}
}

type ReportFilter struct {
	OwnerID    OwnerID
	CustomerID CustomerID
}

// Summaries returns one row per customer with live balances. Identical
// concurrent calls share one store query. The shared query is detached from
// any single caller's cancellation; each caller still stops waiting when its
// own ctx is done.
func (r *Reporter) Summaries(ctx context.Context, f ReportFilter) ([]SummaryRow, error) {
	key := string(f.OwnerID) + "|" + string(f.CustomerID)
	queryCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		rows, err := r.store.QueryLiveBalances(queryCtx, BalanceFilter{OwnerID: f.OwnerID, CustomerID: f.CustomerID})
		if err != nil {
			return nil, err
		}
		return Aggregate(rows), nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	shared := res.Val.([]SummaryRow)
	out := make([]SummaryRow, len(shared))
	copy(out, shared)
	return out, nil
}

// Aggregate folds live rows into one SummaryRow per customer.
//
// orders_total, franchise_fee, commissary_rent, total_balance and amount_paid
// are summed over every live row of the customer. remaining_balance is taken
// from the latest week only: it already includes earlier weeks through the
// old_balance chain, so summing it would count them twice.
func Aggregate(rows []BalanceView) []SummaryRow {
	type acc struct {
		row    SummaryRow
		latest BalanceView
	}
	byCustomer := make(map[CustomerID]*acc)
	var order []CustomerID

	for _, v := range rows {
		a, ok := byCustomer[v.CustomerID]
		if !ok {
			a = &acc{
				row: SummaryRow{
					OwnerID:        v.OwnerID,
					OwnerName:      v.OwnerName,
					CustomerID:     v.CustomerID,
					CustomerName:   v.CustomerName,
					CartNumber:     v.CartNumber,
					WeekStart:      v.Week.Start,
					WeekEnd:        v.Week.End,
					OrdersTotal:    decimal.Zero,
					FranchiseFee:   decimal.Zero,
					CommissaryRent: decimal.Zero,
					TotalBalance:   decimal.Zero,
					AmountPaid:     decimal.Zero,
				},
				latest: v,
			}
			byCustomer[v.CustomerID] = a
			order = append(order, v.CustomerID)
		}

		a.row.OrdersTotal = a.row.OrdersTotal.Add(v.OrdersTotal)
		a.row.FranchiseFee = a.row.FranchiseFee.Add(v.FranchiseFee)
		a.row.CommissaryRent = a.row.CommissaryRent.Add(v.CommissaryRent)
		a.row.TotalBalance = a.row.TotalBalance.Add(v.TotalBalance)
		a.row.AmountPaid = a.row.AmountPaid.Add(v.AmountPaid)

		if v.Week.Start.Before(a.row.WeekStart) {
			a.row.WeekStart = v.Week.Start
		}
		if v.Week.End.After(a.row.WeekEnd) {
			a.row.WeekEnd = v.Week.End
		}
		if v.Week.Start.After(a.latest.Week.Start) {
			a.latest = v
		}
	}

	out := make([]SummaryRow, 0, len(order))
	for _, id := range order {
		a := byCustomer[id]
		a.row.RemainingBalance = a.latest.RemainingBalance
		out = append(out, a.row)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OwnerName != out[j].OwnerName {
			return out[i].OwnerName < out[j].OwnerName
		}
		if out[i].CustomerName != out[j].CustomerName {
			return out[i].CustomerName < out[j].CustomerName
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out
}

// GrandTotal sums a grid into one footer row. RemainingBalance is the sum of
// each customer's latest remaining balance.
func GrandTotal(rows []SummaryRow) SummaryRow {
	t := SummaryRow{
		CustomerName:     "TOTAL",
		OrdersTotal:      decimal.Zero,
		FranchiseFee:     decimal.Zero,
		CommissaryRent:   decimal.Zero,
		TotalBalance:     decimal.Zero,
		AmountPaid:       decimal.Zero,
		RemainingBalance: decimal.Zero,
	}
	for _, r := range rows {
		t.OrdersTotal = t.OrdersTotal.Add(r.OrdersTotal)
		t.FranchiseFee = t.FranchiseFee.Add(r.FranchiseFee)
		t.CommissaryRent = t.CommissaryRent.Add(r.CommissaryRent)
		t.TotalBalance = t.TotalBalance.Add(r.TotalBalance)
		t.AmountPaid = t.AmountPaid.Add(r.AmountPaid)
		t.RemainingBalance = t.RemainingBalance.Add(r.RemainingBalance)
	}
	return t
}

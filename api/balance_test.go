/*
balance_test.go - Tests for the live balance endpoints

Tests for:
- Opening a weekly balance (120/15/25 with 80.00 paid, defaults, rejections)
- Fee and payment edits and their recomputed totals
- Listing filters and admin delete
*/
package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenBalance_DerivesTotals(t *testing.T) {
	// GIVEN: A cart
	s := newTestServer(t)
	s.addCart(t, "own-1", "cust-1", "Maria Alvarez")

	// WHEN: Opening a week with 120 orders, 15 fee, 25 rent and 80 paid
	b := s.open(t, OpenBalanceRequest{
		CustomerID: "cust-1", WeekStartDate: "2025-03-03",
		OrdersTotal: "120", FranchiseFee: "15.00", CommissaryRent: "25", AmountPaid: "80",
	})

	// THEN: Totals are derived and money is rendered with two decimals
	assert.Equal(t, "2025-03-09", b.WeekEndDate)
	assert.Equal(t, "120.00", b.OrdersTotal)
	assert.Equal(t, "0.00", b.OldBalance)
	assert.Equal(t, "160.00", b.TotalBalance)
	assert.Equal(t, "80.00", b.RemainingBalance)
	assert.Equal(t, "partial", b.PaymentStatus)
	assert.Equal(t, int64(1), b.Version)
}

func TestOpenBalance_ExplicitWeekEnd(t *testing.T) {
	s := newTestServer(t)
	s.addCart(t, "own-1", "cust-1", "Maria Alvarez")

	b := s.open(t, OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-03-03", WeekEndDate: "2025-03-05"})

	assert.Equal(t, "2025-03-05", b.WeekEndDate)
	assert.Equal(t, "unpaid", b.PaymentStatus)
}

func TestOpenBalance_CarriesPreviousWeek(t *testing.T) {
	// GIVEN: A week with 80.00 still owed
	s := newTestServer(t)
	s.addCart(t, "own-1", "cust-1", "Maria Alvarez")
	s.open(t, OpenBalanceRequest{
		CustomerID: "cust-1", WeekStartDate: "2025-03-03",
		OrdersTotal: "120", FranchiseFee: "15", CommissaryRent: "25", AmountPaid: "80",
	})

	// WHEN: Opening the next week with a different old balance
	rec := s.do(t, http.MethodPost, "/api/balances", OpenBalanceRequest{
		CustomerID: "cust-1", WeekStartDate: "2025-03-10", OldBalance: "0",
	})

	// THEN: It is rejected
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Details, "80.00")

	// AND: Without one, the debt is carried and the summary keeps it
	b := s.open(t, OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-03-10", OrdersTotal: "10"})
	assert.Equal(t, "80.00", b.OldBalance)
	assert.Equal(t, "90.00", b.RemainingBalance)

	summary := decodeBody[SummaryResponse](t, s.do(t, http.MethodGet, "/api/summary", nil))
	require.Len(t, summary.Rows, 1)
	assert.Equal(t, "90.00", summary.Rows[0].RemainingBalance)
}

func TestOpenBalance_Rejections(t *testing.T) {
	s := newTestServer(t)
	s.addCart(t, "own-1", "cust-1", "Maria Alvarez")
	s.open(t, OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-03-10"})

	tests := []struct {
		name    string
		req     OpenBalanceRequest
		want    int
		details string
	}{
		{"missing customer", OpenBalanceRequest{WeekStartDate: "2025-03-03"}, http.StatusBadRequest, "customer_id"},
		{"missing week", OpenBalanceRequest{CustomerID: "cust-1"}, http.StatusBadRequest, "week_start_date"},
		{"bad date", OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-3-3"}, http.StatusBadRequest, "week_start_date"},
		{"inverted week", OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-03-03", WeekEndDate: "2025-03-01"}, http.StatusBadRequest, "week_end_date"},
		{"negative amount", OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-03-03", OrdersTotal: "-1"}, http.StatusBadRequest, "orders_total"},
		{"sub-cent amount", OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-03-03", FranchiseFee: "15.005"}, http.StatusBadRequest, "franchise_fee"},
		{"not a number", OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-03-03", AmountPaid: "ten"}, http.StatusBadRequest, "amount_paid"},
		{"unknown customer", OpenBalanceRequest{CustomerID: "nobody", WeekStartDate: "2025-03-03"}, http.StatusNotFound, ""},
		{"duplicate week", OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-03-10"}, http.StatusConflict, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/balances", tt.req)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.details != "" {
				assert.Contains(t, decodeBody[ErrorResponse](t, rec).Details, tt.details)
			}
		})
	}
}

func TestEditFees_RecomputesAndKeepsUntouchedFees(t *testing.T) {
	// GIVEN: 120/15/25 charges with 80.00 paid
	s := newTestServer(t)
	s.addCart(t, "own-1", "cust-1", "Maria Alvarez")
	b := s.open(t, OpenBalanceRequest{
		CustomerID: "cust-1", WeekStartDate: "2025-03-03",
		OrdersTotal: "120", FranchiseFee: "15", CommissaryRent: "25", AmountPaid: "80",
	})

	// WHEN: Only the orders total changes
	orders := "200.50"
	rec := s.do(t, http.MethodPatch, "/api/balances/"+b.ID+"/fees", EditFeesRequest{OrdersTotal: &orders})

	// THEN: Totals follow and the other fees are kept
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, "200.50", got.OrdersTotal)
	assert.Equal(t, "15.00", got.FranchiseFee)
	assert.Equal(t, "240.50", got.TotalBalance)
	assert.Equal(t, "160.50", got.RemainingBalance)
	assert.Equal(t, int64(2), got.Version)
}

func TestEditFees_Rejections(t *testing.T) {
	s := newTestServer(t)
	s.addCart(t, "own-1", "cust-1", "Maria Alvarez")
	b := s.open(t, OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-03-03"})

	empty := ""
	negative := "-3"
	fine := "1"

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPatch, "/api/balances/"+b.ID+"/fees", EditFeesRequest{}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPatch, "/api/balances/"+b.ID+"/fees", EditFeesRequest{FranchiseFee: &empty}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPatch, "/api/balances/"+b.ID+"/fees", EditFeesRequest{CommissaryRent: &negative}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPatch, "/api/balances/missing/fees", EditFeesRequest{OrdersTotal: &fine}).Code)
}

func TestPayments_SetAndRecord(t *testing.T) {
	// GIVEN: A balance of 160.00 due
	s := newTestServer(t)
	s.addCart(t, "own-1", "cust-1", "Maria Alvarez")
	b := s.open(t, OpenBalanceRequest{
		CustomerID: "cust-1", WeekStartDate: "2025-03-03",
		OrdersTotal: "120", FranchiseFee: "15", CommissaryRent: "25",
	})

	// WHEN: Setting amount paid to 100 and then recording 60.00 more
	rec := s.do(t, http.MethodPut, "/api/balances/"+b.ID+"/payment", EditPaymentRequest{AmountPaid: "100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "partial", decodeBody[BalanceDTO](t, rec).PaymentStatus)

	rec = s.do(t, http.MethodPost, "/api/balances/"+b.ID+"/payments", RecordPaymentRequest{Amount: "60.00"})

	// THEN: The balance is paid in full
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, "160.00", got.AmountPaid)
	assert.Equal(t, "0.00", got.RemainingBalance)
	assert.Equal(t, "paid_full", got.PaymentStatus)
}

func TestPayments_Overpayment(t *testing.T) {
	s := newTestServer(t)
	s.addCart(t, "own-1", "cust-1", "Maria Alvarez")
	b := s.open(t, OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-03-03", OrdersTotal: "50"})

	rec := s.do(t, http.MethodPut, "/api/balances/"+b.ID+"/payment", EditPaymentRequest{AmountPaid: "75"})

	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, "0.00", got.RemainingBalance)
	assert.Equal(t, "paid_full", got.PaymentStatus)
}

func TestPayments_Rejections(t *testing.T) {
	s := newTestServer(t)
	s.addCart(t, "own-1", "cust-1", "Maria Alvarez")
	b := s.open(t, OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-03-03", OrdersTotal: "50"})

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/balances/"+b.ID+"/payment", EditPaymentRequest{}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPut, "/api/balances/"+b.ID+"/payment", EditPaymentRequest{AmountPaid: "-5"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/balances/"+b.ID+"/payments", RecordPaymentRequest{Amount: "0"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/balances/"+b.ID+"/payments", RecordPaymentRequest{Amount: "0.001"}).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/balances/missing/payments", RecordPaymentRequest{Amount: "1"}).Code)
}

func TestListBalances_Filters(t *testing.T) {
	// GIVEN: Two owners' carts, one paid
	s := newTestServer(t)
	s.addCart(t, "own-1", "cust-1", "Maria Alvarez")
	s.addCart(t, "own-2", "cust-2", "Sam Baker")
	s.open(t, OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-03-03", OrdersTotal: "10"})
	s.open(t, OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-03-10", OrdersTotal: "10", AmountPaid: "20"})
	s.open(t, OpenBalanceRequest{CustomerID: "cust-2", WeekStartDate: "2025-03-10", OrdersTotal: "20"})

	// WHEN / THEN: Rows are flat, joined and newest week first
	all := decodeBody[[]BalanceDTO](t, s.do(t, http.MethodGet, "/api/balances", nil))
	require.Len(t, all, 3)
	assert.Equal(t, "2025-03-10", all[0].WeekStartDate)
	assert.Equal(t, "2025-03-03", all[2].WeekStartDate)
	assert.Equal(t, "Maria Alvarez", all[0].CustomerName)
	assert.Equal(t, "Owner own-1", all[0].OwnerName)

	owner := decodeBody[[]BalanceDTO](t, s.do(t, http.MethodGet, "/api/balances?owner_id=own-2", nil))
	require.Len(t, owner, 1)
	assert.Equal(t, "cust-2", owner[0].CustomerID)

	unpaid := decodeBody[[]BalanceDTO](t, s.do(t, http.MethodGet, "/api/balances?unpaid=true&customer_id=cust-1", nil))
	require.Len(t, unpaid, 1)
	assert.Equal(t, "2025-03-03", unpaid[0].WeekStartDate)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/balances?unpaid=maybe", nil).Code)
}

func TestDeleteBalance(t *testing.T) {
	// GIVEN: A live balance
	s := newTestServer(t)
	s.addCart(t, "own-1", "cust-1", "Maria Alvarez")
	b := s.open(t, OpenBalanceRequest{CustomerID: "cust-1", WeekStartDate: "2025-03-03", OrdersTotal: "10"})

	// WHEN: Deleting it
	rec := s.do(t, http.MethodDelete, "/api/balances/"+b.ID, nil)

	// THEN: It is gone and no history was written
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/balances/"+b.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/balances/"+b.ID, nil).Code)
	history := decodeBody[[]HistoryDTO](t, s.do(t, http.MethodGet, "/api/history", nil))
	assert.Empty(t, history)
}

package ledger_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cartledger/ledger"
)

var amt = ledger.MustAmount

func charges(orders, franchise, rent, old, paid string) ledger.Charges {
	return ledger.Charges{
		OrdersTotal:    amt(orders),
		FranchiseFee:   amt(franchise),
		CommissaryRent: amt(rent),
		OldBalance:     amt(old),
		AmountPaid:     amt(paid),
	}
}

// =============================================================================
// RECOMPUTE
// =============================================================================

func TestRecompute_PartialPayment(t *testing.T) {
	// GIVEN: 120 orders, 15 franchise fee, 25 rent, nothing carried, 80 paid
	// WHEN: Recomputing
	// THEN: 160 charged, 80 remaining, partial

	got, err := ledger.Recompute(charges("120.00", "15.00", "25.00", "0.00", "80.00"))
	require.NoError(t, err)

	assert.True(t, amt("160.00").Equal(got.TotalBalance), "total_balance = %s", got.TotalBalance)
	assert.True(t, amt("80.00").Equal(got.RemainingBalance), "remaining_balance = %s", got.RemainingBalance)
	assert.Equal(t, ledger.StatusPartial, got.PaymentStatus)
}

func TestRecompute_Overpayment_ClampsToZero(t *testing.T) {
	// GIVEN: Payment exceeding charges plus old balance
	// WHEN: Recomputing
	// THEN: Remaining is clamped to zero and status is paid_full

	got, err := ledger.Recompute(charges("100.00", "10.00", "10.00", "30.00", "200.00"))
	require.NoError(t, err)

	assert.True(t, got.RemainingBalance.IsZero())
	assert.Equal(t, ledger.StatusPaidFull, got.PaymentStatus)
}

func TestRecompute_ExactPayment_PaidFull(t *testing.T) {
	got, err := ledger.Recompute(charges("100.00", "0", "0", "50.00", "150.00"))
	require.NoError(t, err)

	assert.True(t, got.RemainingBalance.IsZero())
	assert.Equal(t, ledger.StatusPaidFull, got.PaymentStatus)
}

func TestRecompute_OldBalanceNotInTotal(t *testing.T) {
	// GIVEN: Only a carried-forward balance
	// THEN: total_balance excludes it, remaining includes it

	got, err := ledger.Recompute(charges("0", "0", "0", "80.00", "0"))
	require.NoError(t, err)

	assert.True(t, got.TotalBalance.IsZero())
	assert.True(t, amt("80.00").Equal(got.RemainingBalance))
	assert.Equal(t, ledger.StatusUnpaid, got.PaymentStatus)
}

func TestRecompute_NothingDue_IsUnpaid(t *testing.T) {
	got, err := ledger.Recompute(charges("0", "0", "0", "0", "0"))
	require.NoError(t, err)

	assert.True(t, got.RemainingBalance.IsZero())
	assert.Equal(t, ledger.StatusUnpaid, got.PaymentStatus)
}

func TestRecompute_NothingPaid_IsUnpaid(t *testing.T) {
	got, err := ledger.Recompute(charges("50.00", "0", "0", "0", "0"))
	require.NoError(t, err)

	assert.Equal(t, ledger.StatusUnpaid, got.PaymentStatus)
}

func TestRecompute_Invariants(t *testing.T) {
	cases := []ledger.Charges{
		charges("0", "0", "0", "0", "0"),
		charges("0.01", "0", "0", "0", "0"),
		charges("10.10", "20.20", "30.30", "0.40", "61.00"),
		charges("10.10", "20.20", "30.30", "0.40", "61.01"),
		charges("999999.99", "1.00", "0", "12.34", "5.00"),
		charges("0", "0", "0", "0", "10.00"),
	}
	for _, c := range cases {
		got, err := ledger.Recompute(c)
		require.NoError(t, err)

		expectedTotal := c.OrdersTotal.Add(c.FranchiseFee).Add(c.CommissaryRent)
		assert.True(t, expectedTotal.Equal(got.TotalBalance))
		assert.False(t, got.RemainingBalance.IsNegative())
		assert.True(t, got.PaymentStatus.Valid())
		if got.RemainingBalance.IsPositive() {
			assert.NotEqual(t, ledger.StatusPaidFull, got.PaymentStatus)
		}
	}
}

func TestRecompute_IsPure(t *testing.T) {
	c := charges("120.00", "15.00", "25.00", "0.00", "80.00")
	first, err := ledger.Recompute(c)
	require.NoError(t, err)
	second, err := ledger.Recompute(c)
	require.NoError(t, err)

	assert.True(t, first.RemainingBalance.Equal(second.RemainingBalance))
	assert.Equal(t, first.PaymentStatus, second.PaymentStatus)
	assert.True(t, amt("80.00").Equal(c.AmountPaid), "input must not be modified")
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestRecompute_RejectsNegative(t *testing.T) {
	_, err := ledger.Recompute(charges("-1.00", "0", "0", "0", "0"))

	var vErr *ledger.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "orders_total", vErr.Field)
	assert.True(t, errors.Is(err, ledger.ErrValidation))
	assert.True(t, ledger.IsClientError(err))
}

func TestRecompute_RejectsSubCentPrecision(t *testing.T) {
	_, err := ledger.Recompute(charges("0", "0", "0", "0", "10.005"))

	var vErr *ledger.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "amount_paid", vErr.Field)
}

func TestParseAmount(t *testing.T) {
	d, err := ledger.ParseAmount("orders_total", "120.5")
	require.NoError(t, err)
	assert.Equal(t, "120.50", ledger.FormatAmount(d))

	d, err = ledger.ParseAmount("orders_total", "")
	require.NoError(t, err)
	assert.True(t, d.IsZero())

	_, err = ledger.ParseAmount("orders_total", "abc")
	assert.True(t, ledger.IsClientError(err))

	_, err = ledger.ParseAmount("orders_total", "1.234")
	assert.True(t, ledger.IsClientError(err))
}

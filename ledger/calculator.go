package ledger

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE CALCULATOR - Pure derivation of totals and payment status
// =============================================================================

// CurrencyPlaces is the number of fractional digits every amount carries.
const CurrencyPlaces = 2

// Recompute derives the totals of a weekly balance from its raw charges.
//
//	total_balance     = orders_total + franchise_fee + commissary_rent
//	remaining_balance = max(0, total_balance + old_balance - amount_paid)
//	payment_status    = paid_full  if remaining <= 0 and due > 0
//	                    partial    if amount_paid > 0 and remaining > 0
//	                    unpaid     otherwise (including due == 0)
//
// Negative amounts and amounts with more than two fractional digits are
// rejected with a *ValidationError. Recompute has no side effects.
func Recompute(c Charges) (Totals, error) {
	if err := c.Validate(); err != nil {
		return Totals{}, err
	}

	total := c.OrdersTotal.Add(c.FranchiseFee).Add(c.CommissaryRent)
	due := total.Add(c.OldBalance)

	remaining := due.Sub(c.AmountPaid)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}

	return Totals{
		TotalBalance:     total,
		RemainingBalance: remaining,
		PaymentStatus:    deriveStatus(due, c.AmountPaid, remaining),
	}, nil
}

func deriveStatus(due, paid, remaining decimal.Decimal) PaymentStatus {
	switch {
	case !remaining.IsPositive() && due.IsPositive():
		return StatusPaidFull
	case paid.IsPositive() && remaining.IsPositive():
		return StatusPartial
	default:
		return StatusUnpaid
	}
}

// NewFigures runs Recompute and bundles inputs with results.
func NewFigures(c Charges) (Figures, error) {
	t, err := Recompute(c)
	if err != nil {
		return Figures{}, err
	}
	return Figures{Charges: c, Totals: t}, nil
}

// Validate checks every charge is a non-negative currency amount.
func (c Charges) Validate() error {
	fields := []struct {
		name  string
		value decimal.Decimal
	}{
		{"orders_total", c.OrdersTotal},
		{"franchise_fee", c.FranchiseFee},
		{"commissary_rent", c.CommissaryRent},
		{"old_balance", c.OldBalance},
		{"amount_paid", c.AmountPaid},
	}
	for _, f := range fields {
		if err := ValidateAmount(f.name, f.value); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAmount rejects negative values and sub-cent precision.
func ValidateAmount(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return &ValidationError{Field: field, Reason: "must not be negative"}
	}
	if !d.Equal(d.Truncate(CurrencyPlaces)) {
		return &ValidationError{Field: field, Reason: "must have at most two decimal places"}
	}
	return nil
}

// ParseAmount parses a currency string such as "120.00".
func ParseAmount(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Reason: "is not a number"}
	}
	if err := ValidateAmount(field, d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// MustAmount parses s or panics. Intended for tests and seed data.
func MustAmount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// FormatAmount renders d with exactly two fractional digits.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(CurrencyPlaces)
}

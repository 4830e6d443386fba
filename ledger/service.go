package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// BALANCE SERVICE - Fee and payment edits on live rows
// =============================================================================

// BalanceService opens weekly balances and applies fee and payment edits.
// Every edit re-runs Recompute and is written with a version check while
// holding the customer's lock.
type BalanceService struct {
	store Store
	opts  Options
}

func NewBalanceService(store Store, opts Options) *BalanceService {
	return &BalanceService{store: store, opts: opts.withDefaults()}
}

// OpenInput seeds a new live balance. Charges.OldBalance is not read:
// the old balance is the remaining balance of the customer's previous
// period, or OldBalance for a customer with no previous period.
type OpenInput struct {
	CustomerID CustomerID
	Week       Week
	Charges    Charges

	// OldBalance is the opening debt of a customer's first period. When a
	// previous period exists it may be given only if it matches that
	// period's remaining balance. Nil means zero or the carried amount.
	OldBalance *decimal.Decimal
}

// FeePatch changes any subset of the week's charges. Nil fields are kept.
type FeePatch struct {
	OrdersTotal    *decimal.Decimal
	FranchiseFee   *decimal.Decimal
	CommissaryRent *decimal.Decimal
}

func (p FeePatch) IsEmpty() bool {
	return p.OrdersTotal == nil && p.FranchiseFee == nil && p.CommissaryRent == nil
}

// Open creates the live balance for a customer and week. The old balance
// is carried from the customer's latest earlier period, live or rolled over.
func (s *BalanceService) Open(ctx context.Context, in OpenInput) (WeeklyBalance, error) {
	if in.CustomerID == "" {
		return WeeklyBalance{}, &ValidationError{Field: "customer_id", Reason: "is required"}
	}
	week := NewWeek(in.Week.Start, in.Week.End)
	if err := week.Validate(); err != nil {
		return WeeklyBalance{}, err
	}
	charges := in.Charges
	charges.OldBalance = decimal.Zero
	if _, err := NewFigures(charges); err != nil {
		return WeeklyBalance{}, err
	}
	if in.OldBalance != nil {
		if err := ValidateAmount("old_balance", *in.OldBalance); err != nil {
			return WeeklyBalance{}, err
		}
	}
	if _, err := s.store.GetCustomer(ctx, in.CustomerID); err != nil {
		return WeeklyBalance{}, err
	}

	unlock, err := s.opts.Locker.Lock(ctx, in.CustomerID)
	if err != nil {
		return WeeklyBalance{}, err
	}
	defer unlock()

	carried, found, err := s.carriedBalance(ctx, in.CustomerID, week.Start)
	if err != nil {
		return WeeklyBalance{}, err
	}
	switch {
	case found && in.OldBalance != nil && !in.OldBalance.Equal(carried):
		return WeeklyBalance{}, &ValidationError{
			Field:  "old_balance",
			Reason: fmt.Sprintf("must equal the previous period's remaining balance %s", FormatAmount(carried)),
		}
	case found:
		charges.OldBalance = carried
	case in.OldBalance != nil:
		charges.OldBalance = *in.OldBalance
	}
	figures, err := NewFigures(charges)
	if err != nil {
		return WeeklyBalance{}, err
	}

	now := s.opts.Now()
	b := WeeklyBalance{
		ID:         BalanceID(s.opts.NewID()),
		CustomerID: in.CustomerID,
		Week:       week,
		Figures:    figures,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = withRetry(ctx, s.opts.Retry, s.opts.Logger, "open", func() (struct{}, error) {
		return struct{}{}, s.store.InsertLiveBalance(ctx, b)
	})
	s.opts.Recorder.BalanceEdited("open", err)
	if err != nil {
		return WeeklyBalance{}, fmt.Errorf("open balance for %s %s: %w", in.CustomerID, week, err)
	}

	s.opts.Logger.Info("weekly balance opened",
		zap.String("customer_id", string(b.CustomerID)),
		zap.String("balance_id", string(b.ID)),
		zap.Stringer("week", b.Week),
		zap.String("old_balance", FormatAmount(b.OldBalance)),
		zap.Bool("carried", found),
	)
	return b, nil
}

// carriedBalance returns the remaining balance of the customer's latest
// period starting before weekStart, looking at live rows and history.
func (s *BalanceService) carriedBalance(ctx context.Context, customerID CustomerID, weekStart time.Time) (decimal.Decimal, bool, error) {
	var (
		latest    time.Time
		remaining decimal.Decimal
		found     bool
	)
	consider := func(start time.Time, r decimal.Decimal) {
		if !start.Before(weekStart) || (found && !start.After(latest)) {
			return
		}
		latest, remaining, found = start, r, true
	}

	live, err := s.store.QueryLiveBalances(ctx, BalanceFilter{CustomerID: customerID})
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("previous period for %s: %w", customerID, err)
	}
	for _, b := range live {
		consider(b.Week.Start, b.RemainingBalance)
	}
	history, err := s.store.QueryHistory(ctx, HistoryFilter{CustomerID: customerID})
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("previous period for %s: %w", customerID, err)
	}
	for _, h := range history {
		consider(h.Week.Start, h.Figures.RemainingBalance)
	}
	return remaining, found, nil
}

// EditFees applies a fee patch and recomputes the derived totals.
func (s *BalanceService) EditFees(ctx context.Context, id BalanceID, patch FeePatch) (WeeklyBalance, error) {
	if patch.IsEmpty() {
		return WeeklyBalance{}, &ValidationError{Field: "fees", Reason: "at least one fee must be given"}
	}
	for name, v := range map[string]*decimal.Decimal{
		"orders_total":    patch.OrdersTotal,
		"franchise_fee":   patch.FranchiseFee,
		"commissary_rent": patch.CommissaryRent,
	} {
		if v == nil {
			continue
		}
		if err := ValidateAmount(name, *v); err != nil {
			return WeeklyBalance{}, err
		}
	}

	return s.mutate(ctx, id, "edit_fees", func(c Charges) (Charges, error) {
		if patch.OrdersTotal != nil {
			c.OrdersTotal = *patch.OrdersTotal
		}
		if patch.FranchiseFee != nil {
			c.FranchiseFee = *patch.FranchiseFee
		}
		if patch.CommissaryRent != nil {
			c.CommissaryRent = *patch.CommissaryRent
		}
		return c, nil
	})
}

// EditPayment sets amount_paid to the given total.
func (s *BalanceService) EditPayment(ctx context.Context, id BalanceID, amountPaid decimal.Decimal) (WeeklyBalance, error) {
	if err := ValidateAmount("amount_paid", amountPaid); err != nil {
		return WeeklyBalance{}, err
	}
	return s.mutate(ctx, id, "edit_payment", func(c Charges) (Charges, error) {
		c.AmountPaid = amountPaid
		return c, nil
	})
}

// RecordPayment adds a payment entry to amount_paid.
func (s *BalanceService) RecordPayment(ctx context.Context, id BalanceID, amount decimal.Decimal) (WeeklyBalance, error) {
	if err := ValidateAmount("amount", amount); err != nil {
		return WeeklyBalance{}, err
	}
	if amount.IsZero() {
		return WeeklyBalance{}, &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return s.mutate(ctx, id, "record_payment", func(c Charges) (Charges, error) {
		c.AmountPaid = c.AmountPaid.Add(amount)
		return c, nil
	})
}

// Delete removes a live row without writing history. Administrative use only.
func (s *BalanceService) Delete(ctx context.Context, id BalanceID) error {
	current, err := s.store.GetLiveBalance(ctx, id)
	if err != nil {
		return err
	}
	unlock, err := s.opts.Locker.Lock(ctx, current.CustomerID)
	if err != nil {
		return err
	}
	defer unlock()

	_, err = withRetry(ctx, s.opts.Retry, s.opts.Logger, "delete", func() (struct{}, error) {
		b, err := s.store.GetLiveBalance(ctx, id)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.store.DeleteLiveBalance(ctx, id, b.Version)
	})
	s.opts.Recorder.BalanceEdited("delete", err)
	if err != nil {
		return err
	}
	s.opts.Logger.Info("weekly balance deleted",
		zap.String("customer_id", string(current.CustomerID)),
		zap.String("balance_id", string(id)),
	)
	return nil
}

func (s *BalanceService) Get(ctx context.Context, id BalanceID) (WeeklyBalance, error) {
	return s.store.GetLiveBalance(ctx, id)
}

func (s *BalanceService) List(ctx context.Context, f BalanceFilter) ([]BalanceView, error) {
	return s.store.QueryLiveBalances(ctx, f)
}

func (s *BalanceService) History(ctx context.Context, f HistoryFilter) ([]HistoryView, error) {
	return s.store.QueryHistory(ctx, f)
}

// mutate is the read-modify-write loop shared by all edits.
func (s *BalanceService) mutate(ctx context.Context, id BalanceID, op string, change func(Charges) (Charges, error)) (WeeklyBalance, error) {
	current, err := s.store.GetLiveBalance(ctx, id)
	if err != nil {
		return WeeklyBalance{}, err
	}

	unlock, err := s.opts.Locker.Lock(ctx, current.CustomerID)
	if err != nil {
		return WeeklyBalance{}, err
	}
	defer unlock()

	updated, err := withRetry(ctx, s.opts.Retry, s.opts.Logger, op, func() (WeeklyBalance, error) {
		b, err := s.store.GetLiveBalance(ctx, id)
		if err != nil {
			return WeeklyBalance{}, err
		}
		charges, err := change(b.Charges)
		if err != nil {
			return WeeklyBalance{}, err
		}
		figures, err := NewFigures(charges)
		if err != nil {
			return WeeklyBalance{}, err
		}
		return s.store.UpdateLiveBalance(ctx, id, b.Version, figures)
	})
	s.opts.Recorder.BalanceEdited(op, err)
	if err != nil {
		return WeeklyBalance{}, err
	}

	s.opts.Logger.Debug("weekly balance updated",
		zap.String("op", op),
		zap.String("balance_id", string(id)),
		zap.String("remaining_balance", FormatAmount(updated.RemainingBalance)),
		zap.String("payment_status", string(updated.PaymentStatus)),
	)
	return updated, nil
}

/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates owners, carts and
	weekly balances that demonstrate specific ledger features.

AVAILABLE SCENARIOS:
	weekly-carts:   One owner, three carts in the current week (partial,
	                paid in full, unpaid with an old balance)
	rollover-due:   Last week's balances still open and unpaid, ready for a
	                bulk rollover
	carry-chain:    A cart rolled over twice, showing history rows, rollover
	                snapshots and the carried-forward old balance

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create owners and customers
 3. Open weekly balances through the BalanceService
 4. Optionally record payments and roll weeks over through the engine

Weeks are anchored on the Monday of the current week, so the data stays
meaningful whenever it is loaded.

USAGE VIA API:
	POST /api/scenarios/load
	{"scenario_id": "weekly-carts"}

NOTE:
	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: other handlers
  - cmd/cartledger/main.go: seed command
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/warp/cartledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "weekly-carts",
		Name:        "Weekly Carts",
		Description: "Three carts in the current week: partial, paid in full, unpaid with old balance",
	},
	{
		ID:          "rollover-due",
		Name:        "Rollover Due",
		Description: "Last week's balances still open and unpaid, ready for bulk rollover",
	},
	{
		ID:          "carry-chain",
		Name:        "Carry Chain",
		Description: "One cart rolled over twice with history and rollover snapshots",
	},
}

// Scenarios lists the available scenario IDs.
func Scenarios() []ScenarioDTO {
	out := make([]ScenarioDTO, len(scenarios))
	copy(out, scenarios)
	return out
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Seed(r.Context(), req.ScenarioID); err != nil {
		if ledger.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Unknown scenario", err)
			return
		}
		h.fail(w, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		h.fail(w, "Failed to reset database", err)
		return
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// Seed resets the store and loads scenario id.
func (h *Handler) Seed(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "weekly-carts":
		load = h.loadWeeklyCartsScenario
	case "rollover-due":
		load = h.loadRolloverDueScenario
	case "carry-chain":
		load = h.loadCarryChainScenario
	default:
		return &ledger.ValidationError{Field: "scenario_id", Reason: fmt.Sprintf("unknown scenario %q", id)}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	h.currentScenario = ""

	if err := load(ctx); err != nil {
		return err
	}
	h.currentScenario = id
	h.log.Info("scenario loaded", zap.String("scenario", id))
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type seedCart struct {
	id, name, cart string
}

func (h *Handler) seedOwner(ctx context.Context, id, name string, carts ...seedCart) error {
	now := h.now()
	if err := h.Store.SaveOwner(ctx, ledger.Owner{ID: ledger.OwnerID(id), Name: name, CreatedAt: now}); err != nil {
		return fmt.Errorf("owner %s: %w", id, err)
	}
	for _, c := range carts {
		err := h.Store.SaveCustomer(ctx, ledger.Customer{
			ID:         ledger.CustomerID(c.id),
			Name:       c.name,
			CartNumber: c.cart,
			OwnerID:    ledger.OwnerID(id),
			CreatedAt:  now,
		})
		if err != nil {
			return fmt.Errorf("customer %s: %w", c.id, err)
		}
	}
	return nil
}

func (h *Handler) seedBalance(ctx context.Context, customerID string, week ledger.Week, orders, fee, rent, old, paid string) (ledger.WeeklyBalance, error) {
	b, err := h.Balances.Open(ctx, ledger.OpenInput{
		CustomerID: ledger.CustomerID(customerID),
		Week:       week,
		Charges: ledger.Charges{
			OrdersTotal:    ledger.MustAmount(orders),
			FranchiseFee:   ledger.MustAmount(fee),
			CommissaryRent: ledger.MustAmount(rent),
			AmountPaid:     ledger.MustAmount(paid),
		},
		OldBalance: ptr(ledger.MustAmount(old)),
	})
	if err != nil {
		return ledger.WeeklyBalance{}, fmt.Errorf("balance %s %s: %w", customerID, week, err)
	}
	return b, nil
}

// currentWeek is the Monday-to-Sunday week containing the handler's clock.
func (h *Handler) currentWeek() ledger.Week {
	today := ledger.Day(h.now())
	offset := (int(today.Weekday()) + 6) % 7
	return ledger.WeekOf(today.AddDate(0, 0, -offset))
}

func (h *Handler) loadWeeklyCartsScenario(ctx context.Context) error {
	err := h.seedOwner(ctx, "owner-downtown", "Downtown Carts",
		seedCart{"cust-alvarez", "Maria Alvarez", "C-101"},
		seedCart{"cust-baker", "Sam Baker", "C-102"},
		seedCart{"cust-chen", "Wei Chen", "C-103"},
	)
	if err != nil {
		return err
	}

	week := h.currentWeek()
	// 120 + 15 + 25 due, 80 paid: 80 remaining, partial.
	if _, err := h.seedBalance(ctx, "cust-alvarez", week, "120.00", "15.00", "25.00", "0.00", "80.00"); err != nil {
		return err
	}
	if _, err := h.seedBalance(ctx, "cust-baker", week, "310.40", "15.00", "25.00", "0.00", "350.40"); err != nil {
		return err
	}
	_, err = h.seedBalance(ctx, "cust-chen", week, "95.25", "15.00", "25.00", "42.10", "0.00")
	return err
}

func (h *Handler) loadRolloverDueScenario(ctx context.Context) error {
	err := h.seedOwner(ctx, "owner-harbor", "Harbor Street Group",
		seedCart{"cust-diaz", "Luis Diaz", "H-201"},
		seedCart{"cust-evans", "Kim Evans", "H-202"},
	)
	if err != nil {
		return err
	}
	err = h.seedOwner(ctx, "owner-market", "Market Square",
		seedCart{"cust-fox", "Jordan Fox", "M-301"},
	)
	if err != nil {
		return err
	}

	lastWeek := ledger.WeekOf(h.currentWeek().Start.AddDate(0, 0, -7))
	if _, err := h.seedBalance(ctx, "cust-diaz", lastWeek, "210.00", "15.00", "25.00", "0.00", "100.00"); err != nil {
		return err
	}
	if _, err := h.seedBalance(ctx, "cust-evans", lastWeek, "180.00", "15.00", "25.00", "12.50", "0.00"); err != nil {
		return err
	}
	// Paid in full: bulk rollover leaves it alone.
	_, err = h.seedBalance(ctx, "cust-fox", lastWeek, "90.00", "15.00", "25.00", "0.00", "130.00")
	return err
}

func (h *Handler) loadCarryChainScenario(ctx context.Context) error {
	err := h.seedOwner(ctx, "owner-riverside", "Riverside Carts",
		seedCart{"cust-garcia", "Ana Garcia", "R-401"},
	)
	if err != nil {
		return err
	}

	start := h.currentWeek().Start.AddDate(0, 0, -14)
	b, err := h.seedBalance(ctx, "cust-garcia", ledger.WeekOf(start), "150.00", "15.00", "25.00", "0.00", "100.00")
	if err != nil {
		return err
	}

	// Two closes: 90.00 carries into the next week, which then gets its
	// own charges and a partial payment before it too is rolled over.
	plan, err := h.Rollover.Rollover(ctx, b.CustomerID, b.Week.Start)
	if err != nil {
		return fmt.Errorf("first rollover: %w", err)
	}
	fees := ledger.FeePatch{
		OrdersTotal:    ptr(ledger.MustAmount("130.00")),
		FranchiseFee:   ptr(ledger.MustAmount("15.00")),
		CommissaryRent: ptr(ledger.MustAmount("25.00")),
	}
	if _, err := h.Balances.EditFees(ctx, plan.Next.ID, fees); err != nil {
		return fmt.Errorf("edit fees: %w", err)
	}
	if _, err := h.Balances.RecordPayment(ctx, plan.Next.ID, ledger.MustAmount("200.00")); err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	if _, err := h.Rollover.Rollover(ctx, b.CustomerID, plan.Next.Week.Start); err != nil {
		return fmt.Errorf("second rollover: %w", err)
	}
	return nil
}

func ptr[T any](v T) *T {
	return &v
}

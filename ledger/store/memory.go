// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/warp/cartledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements ledger.Store. A single mutex makes every method,
// including RolloverUnpaidBalance, atomic.
type Memory struct {
	mu        sync.RWMutex
	owners    map[ledger.OwnerID]ledger.Owner
	customers map[ledger.CustomerID]ledger.Customer
	live      map[ledger.BalanceID]ledger.WeeklyBalance
	liveKeys  map[key]ledger.BalanceID
	history   []ledger.BalanceHistory
	histKeys  map[key]bool
	snapshots map[ledger.SnapshotID]ledger.SummarySnapshot
	runs      map[string]ledger.RolloverRun
}

// key enforces one row per (customer, week start).
type key struct {
	CustomerID ledger.CustomerID
	WeekStart  string
}

func keyOf(customerID ledger.CustomerID, weekStart time.Time) key {
	return key{CustomerID: customerID, WeekStart: weekStart.Format(ledger.DateLayout)}
}

func NewMemory() *Memory {
	return &Memory{
		owners:    make(map[ledger.OwnerID]ledger.Owner),
		customers: make(map[ledger.CustomerID]ledger.Customer),
		live:      make(map[ledger.BalanceID]ledger.WeeklyBalance),
		liveKeys:  make(map[key]ledger.BalanceID),
		histKeys:  make(map[key]bool),
		snapshots: make(map[ledger.SnapshotID]ledger.SummarySnapshot),
		runs:      make(map[string]ledger.RolloverRun),
	}
}

// =============================================================================
// LIVE BALANCES
// =============================================================================

func (m *Memory) InsertLiveBalance(_ context.Context, b ledger.WeeklyBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLiveLocked(b)
}

func (m *Memory) insertLiveLocked(b ledger.WeeklyBalance) error {
	k := keyOf(b.CustomerID, b.Week.Start)
	if _, exists := m.liveKeys[k]; exists {
		return ledger.ErrDuplicate
	}
	if _, exists := m.live[b.ID]; exists {
		return ledger.ErrDuplicate
	}
	m.live[b.ID] = b
	m.liveKeys[k] = b.ID
	return nil
}

func (m *Memory) UpdateLiveBalance(_ context.Context, id ledger.BalanceID, expectedVersion int64, f ledger.Figures) (ledger.WeeklyBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.live[id]
	if !ok {
		return ledger.WeeklyBalance{}, ledger.ErrNotFound
	}
	if b.Version != expectedVersion {
		return ledger.WeeklyBalance{}, ledger.ErrConcurrentModification
	}
	b.Figures = f
	b.Version++
	b.UpdatedAt = time.Now().UTC()
	m.live[id] = b
	return b, nil
}

func (m *Memory) DeleteLiveBalance(_ context.Context, id ledger.BalanceID, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteLiveLocked(id, expectedVersion)
}

func (m *Memory) deleteLiveLocked(id ledger.BalanceID, expectedVersion int64) error {
	b, ok := m.live[id]
	if !ok {
		return ledger.ErrNotFound
	}
	if b.Version != expectedVersion {
		return ledger.ErrConcurrentModification
	}
	delete(m.live, id)
	delete(m.liveKeys, keyOf(b.CustomerID, b.Week.Start))
	return nil
}

func (m *Memory) GetLiveBalance(_ context.Context, id ledger.BalanceID) (ledger.WeeklyBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	b, ok := m.live[id]
	if !ok {
		return ledger.WeeklyBalance{}, ledger.ErrNotFound
	}
	return b, nil
}

func (m *Memory) FindLiveBalance(_ context.Context, customerID ledger.CustomerID, weekStart time.Time) (ledger.WeeklyBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.liveKeys[keyOf(customerID, weekStart)]
	if !ok {
		return ledger.WeeklyBalance{}, ledger.ErrNotFound
	}
	return m.live[id], nil
}

func (m *Memory) QueryLiveBalances(_ context.Context, f ledger.BalanceFilter) ([]ledger.BalanceView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.BalanceView
	for _, b := range m.live {
		v := m.viewLocked(b)
		if f.MatchesBalance(v) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Week.Start.Equal(out[j].Week.Start) {
			return out[i].Week.Start.After(out[j].Week.Start)
		}
		return out[i].CustomerID < out[j].CustomerID
	})
	return out, nil
}

func (m *Memory) viewLocked(b ledger.WeeklyBalance) ledger.BalanceView {
	v := ledger.BalanceView{WeeklyBalance: b}
	if c, ok := m.customers[b.CustomerID]; ok {
		v.CustomerName = c.Name
		v.CartNumber = c.CartNumber
		v.OwnerID = c.OwnerID
		if o, ok := m.owners[c.OwnerID]; ok {
			v.OwnerName = o.Name
		}
	}
	return v
}

// =============================================================================
// HISTORY (append-only)
// =============================================================================

func (m *Memory) InsertHistory(_ context.Context, h ledger.BalanceHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertHistoryLocked(h)
}

func (m *Memory) insertHistoryLocked(h ledger.BalanceHistory) error {
	k := keyOf(h.CustomerID, h.Week.Start)
	if m.histKeys[k] {
		return ledger.ErrDuplicate
	}
	m.histKeys[k] = true
	m.history = append(m.history, h)
	return nil
}

func (m *Memory) QueryHistory(_ context.Context, f ledger.HistoryFilter) ([]ledger.HistoryView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.HistoryView
	for _, h := range m.history {
		c := m.customers[h.CustomerID]
		if f.CustomerID != "" && h.CustomerID != f.CustomerID {
			continue
		}
		if f.OwnerID != "" && c.OwnerID != f.OwnerID {
			continue
		}
		out = append(out, ledger.HistoryView{
			BalanceHistory: h,
			CustomerName:   c.Name,
			CartNumber:     c.CartNumber,
			OwnerName:      m.owners[c.OwnerID].Name,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RolledOverAt.After(out[j].RolledOverAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// =============================================================================
// SNAPSHOTS
// =============================================================================

func (m *Memory) InsertSnapshot(_ context.Context, s ledger.SummarySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertSnapshotLocked(s)
}

func (m *Memory) insertSnapshotLocked(s ledger.SummarySnapshot) error {
	if _, exists := m.snapshots[s.ID]; exists {
		return ledger.ErrDuplicate
	}
	m.snapshots[s.ID] = cloneSnapshot(s)
	return nil
}

func (m *Memory) DeleteSnapshot(_ context.Context, id ledger.SnapshotID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.snapshots[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(m.snapshots, id)
	return nil
}

func (m *Memory) GetSnapshot(_ context.Context, id ledger.SnapshotID) (ledger.SummarySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.snapshots[id]
	if !ok {
		return ledger.SummarySnapshot{}, ledger.ErrNotFound
	}
	return cloneSnapshot(s), nil
}

func (m *Memory) QuerySnapshots(_ context.Context, f ledger.SnapshotFilter) ([]ledger.SummarySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ledger.SummarySnapshot
	for _, s := range m.snapshots {
		if f.Kind != "" && s.Kind != f.Kind {
			continue
		}
		if f.CustomerID != "" && s.CustomerID != f.CustomerID {
			continue
		}
		out = append(out, cloneSnapshot(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func cloneSnapshot(s ledger.SummarySnapshot) ledger.SummarySnapshot {
	rows := make([]ledger.SummaryRow, len(s.Rows))
	copy(rows, s.Rows)
	s.Rows = rows
	return s
}

// =============================================================================
// ATOMIC ROLLOVER
// =============================================================================

func (m *Memory) RolloverUnpaidBalance(_ context.Context, req ledger.RolloverRequest) (ledger.RolloverPlan, error) {
	if err := req.Validate(); err != nil {
		return ledger.RolloverPlan{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.liveKeys[keyOf(req.CustomerID, req.WeekStart)]
	if !ok {
		return ledger.RolloverPlan{}, &ledger.ConsistencyError{
			CustomerID: req.CustomerID,
			WeekStart:  req.WeekStart,
			Reason:     "no live balance",
			Err:        ledger.ErrNotFound,
		}
	}
	plan, err := ledger.PlanRollover(m.viewLocked(m.live[id]), req)
	if err != nil {
		return ledger.RolloverPlan{}, err
	}

	// Check every constraint before the first write so a failure leaves
	// nothing behind.
	if m.histKeys[keyOf(plan.History.CustomerID, plan.History.Week.Start)] {
		return ledger.RolloverPlan{}, rolloverConflict(req, "history already recorded for week")
	}
	if _, exists := m.liveKeys[keyOf(plan.Next.CustomerID, plan.Next.Week.Start)]; exists {
		return ledger.RolloverPlan{}, rolloverConflict(req, "next week already has a live balance")
	}
	if _, exists := m.snapshots[plan.Snapshot.ID]; exists {
		return ledger.RolloverPlan{}, rolloverConflict(req, "snapshot id already used")
	}
	if _, exists := m.live[plan.Next.ID]; exists && plan.Next.ID != plan.Closed.ID {
		return ledger.RolloverPlan{}, rolloverConflict(req, "next balance id already used")
	}

	m.snapshots[plan.Snapshot.ID] = cloneSnapshot(plan.Snapshot)
	if err := m.insertHistoryLocked(plan.History); err != nil {
		return ledger.RolloverPlan{}, fmt.Errorf("rollover insert history: %w", err)
	}
	if err := m.deleteLiveLocked(plan.Closed.ID, plan.Closed.Version); err != nil {
		return ledger.RolloverPlan{}, fmt.Errorf("rollover close live balance: %w", err)
	}
	if err := m.insertLiveLocked(plan.Next); err != nil {
		return ledger.RolloverPlan{}, fmt.Errorf("rollover insert next balance: %w", err)
	}
	return plan, nil
}

func rolloverConflict(req ledger.RolloverRequest, reason string) error {
	return &ledger.ConsistencyError{
		CustomerID: req.CustomerID,
		WeekStart:  req.WeekStart,
		Reason:     reason,
		Err:        ledger.ErrDuplicate,
	}
}

// =============================================================================
// CUSTOMERS
// =============================================================================

func (m *Memory) SaveOwner(_ context.Context, o ledger.Owner) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	m.owners[o.ID] = o
	return nil
}

func (m *Memory) ListOwners(_ context.Context) ([]ledger.Owner, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.Owner, 0, len(m.owners))
	for _, o := range m.owners {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) SaveCustomer(_ context.Context, c ledger.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.OwnerID != "" {
		if _, ok := m.owners[c.OwnerID]; !ok {
			return ledger.ErrNotFound
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.customers[c.ID] = c
	return nil
}

func (m *Memory) GetCustomer(_ context.Context, id ledger.CustomerID) (ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return ledger.Customer{}, ledger.ErrNotFound
	}
	return c, nil
}

func (m *Memory) ListCustomers(_ context.Context) ([]ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.Customer, 0, len(m.customers))
	for _, c := range m.customers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// ROLLOVER RUNS
// =============================================================================

func (m *Memory) SaveRolloverRun(_ context.Context, r ledger.RolloverRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = r
	return nil
}

func (m *Memory) ListRolloverRuns(_ context.Context, limit int) ([]ledger.RolloverRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]ledger.RolloverRun, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Reset clears all data (for testing/demo).
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.owners = make(map[ledger.OwnerID]ledger.Owner)
	m.customers = make(map[ledger.CustomerID]ledger.Customer)
	m.live = make(map[ledger.BalanceID]ledger.WeeklyBalance)
	m.liveKeys = make(map[key]ledger.BalanceID)
	m.history = nil
	m.histKeys = make(map[key]bool)
	m.snapshots = make(map[ledger.SnapshotID]ledger.SummarySnapshot)
	m.runs = make(map[string]ledger.RolloverRun)
	return nil
}

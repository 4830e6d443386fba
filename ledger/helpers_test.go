package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/warp/cartledger/ledger"
	"github.com/warp/cartledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	week1 = ledger.WeekOf(ledger.Date(2025, time.March, 3))
	week2 = week1.Next()
)

type fixture struct {
	store    ledger.Store
	mem      *store.Memory
	balances *ledger.BalanceService
	engine   *ledger.RolloverEngine
	reporter *ledger.Reporter
	archiver *ledger.Archiver
	clock    *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	mem := store.NewMemory()
	return newFixtureWithStore(t, mem, mem)
}

// newFixtureWithStore lets tests wrap the memory store to inject faults.
func newFixtureWithStore(t *testing.T, s ledger.Store, mem *store.Memory) *fixture {
	clock := &testClock{now: time.Date(2025, time.March, 10, 6, 0, 0, 0, time.UTC)}
	opts := ledger.Options{
		Locker: ledger.NewKeyedMutex(),
		Retry:  ledger.RetryPolicy{MaxTries: 3, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
		Logger: zaptest.NewLogger(t),
		Now:    clock.Now,
	}
	reporter := ledger.NewReporter(s)
	return &fixture{
		store:    s,
		mem:      mem,
		balances: ledger.NewBalanceService(s, opts),
		engine:   ledger.NewRolloverEngine(s, opts),
		reporter: reporter,
		archiver: ledger.NewArchiver(s, reporter, opts),
		clock:    clock,
	}
}

func (f *fixture) addCustomer(t *testing.T, id, name, ownerID, ownerName string) ledger.CustomerID {
	t.Helper()
	ctx := context.Background()
	if ownerID != "" {
		require.NoError(t, f.store.SaveOwner(ctx, ledger.Owner{ID: ledger.OwnerID(ownerID), Name: ownerName}))
	}
	require.NoError(t, f.store.SaveCustomer(ctx, ledger.Customer{
		ID:         ledger.CustomerID(id),
		Name:       name,
		CartNumber: "C-" + id,
		OwnerID:    ledger.OwnerID(ownerID),
	}))
	return ledger.CustomerID(id)
}

func (f *fixture) open(t *testing.T, customerID ledger.CustomerID, week ledger.Week, c ledger.Charges) ledger.WeeklyBalance {
	t.Helper()
	in := ledger.OpenInput{CustomerID: customerID, Week: week, Charges: c}
	if !c.OldBalance.IsZero() {
		old := c.OldBalance
		in.OldBalance = &old
	}
	b, err := f.balances.Open(context.Background(), in)
	require.NoError(t, err)
	return b
}

func (f *fixture) liveFor(t *testing.T, customerID ledger.CustomerID) []ledger.BalanceView {
	t.Helper()
	rows, err := f.store.QueryLiveBalances(context.Background(), ledger.BalanceFilter{CustomerID: customerID})
	require.NoError(t, err)
	return rows
}

func (f *fixture) historyFor(t *testing.T, customerID ledger.CustomerID) []ledger.HistoryView {
	t.Helper()
	rows, err := f.store.QueryHistory(context.Background(), ledger.HistoryFilter{CustomerID: customerID})
	require.NoError(t, err)
	return rows
}

// partlyPaid is 120 orders, 15 franchise fee, 25 rent, 80 paid.
func partlyPaid() ledger.Charges {
	return charges("120.00", "15.00", "25.00", "0.00", "80.00")
}

// =============================================================================
// FAULT INJECTION
// =============================================================================

// faultyStore fails rollovers for selected customers and can fail the
// first n updates with a transient error.
type faultyStore struct {
	*store.Memory

	mu              sync.Mutex
	failRollover    map[ledger.CustomerID]error
	transientUpdate int
	updateCalls     int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{Memory: store.NewMemory(), failRollover: make(map[ledger.CustomerID]error)}
}

func (s *faultyStore) RolloverUnpaidBalance(ctx context.Context, req ledger.RolloverRequest) (ledger.RolloverPlan, error) {
	s.mu.Lock()
	err := s.failRollover[req.CustomerID]
	s.mu.Unlock()
	if err != nil {
		return ledger.RolloverPlan{}, err
	}
	return s.Memory.RolloverUnpaidBalance(ctx, req)
}

func (s *faultyStore) UpdateLiveBalance(ctx context.Context, id ledger.BalanceID, expectedVersion int64, f ledger.Figures) (ledger.WeeklyBalance, error) {
	s.mu.Lock()
	s.updateCalls++
	fail := s.updateCalls <= s.transientUpdate
	s.mu.Unlock()
	if fail {
		return ledger.WeeklyBalance{}, &ledger.TransientError{Op: "update live balance", Err: errors.New("database is locked")}
	}
	return s.Memory.UpdateLiveBalance(ctx, id, expectedVersion, f)
}

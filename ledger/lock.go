package ledger

import (
	"context"
	"fmt"
	"sync"
)

// ErrLockNotObtained is returned when a customer lock could not be taken
// before the context expired. It is retryable.
var ErrLockNotObtained = fmt.Errorf("customer lock not obtained: %w", ErrTransient)

// Locker serializes mutations of the same customer. Two rollovers, or a
// rollover and an edit, for one customer never run concurrently.
type Locker interface {
	// Lock blocks until the customer's lock is held or ctx is done.
	// The returned func releases it and is safe to call more than once.
	Lock(ctx context.Context, customerID CustomerID) (unlock func(), err error)
}

// =============================================================================
// KEYED MUTEX - In-process Locker
// =============================================================================

// KeyedMutex is a Locker for a single process. The zero value is ready to use.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[CustomerID]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[CustomerID]*keyLock)}
}

func (k *KeyedMutex) Lock(ctx context.Context, customerID CustomerID) (func(), error) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[CustomerID]*keyLock)
	}
	l, ok := k.locks[customerID]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[customerID] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				k.release(customerID, l)
			})
		}, nil
	case <-ctx.Done():
		k.release(customerID, l)
		return nil, fmt.Errorf("%w: %v", ErrLockNotObtained, ctx.Err())
	}
}

func (k *KeyedMutex) release(customerID CustomerID, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, customerID)
	}
}

// held reports the number of customers with a waiter or holder. Tests only.
func (k *KeyedMutex) held() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// Package lock provides a Redis-backed ledger.Locker so several ledger
// processes sharing one database never mutate the same customer at once.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/cartledger/ledger"
)

const keyPrefix = "cartledger:lock:customer:"

type Options struct {
	// TTL bounds how long a crashed holder keeps the lock.
	TTL time.Duration
	// WaitTimeout bounds how long Lock waits when ctx has no deadline.
	WaitTimeout time.Duration
	// RetryInterval is the polling interval while waiting.
	RetryInterval time.Duration
	Logger        *zap.Logger
}

// Redis implements ledger.Locker with bsm/redislock.
type Redis struct {
	client *redislock.Client
	opts   Options
}

var _ ledger.Locker = (*Redis)(nil)

func NewRedis(rdb redis.UniversalClient, opts Options) *Redis {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Second
	}
	if opts.WaitTimeout <= 0 {
		opts.WaitTimeout = 10 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 25 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Redis{client: redislock.New(rdb), opts: opts}
}

func (r *Redis) Lock(ctx context.Context, customerID ledger.CustomerID) (func(), error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.WaitTimeout)
		defer cancel()
	}

	key := keyPrefix + string(customerID)
	l, err := r.client.Obtain(ctx, key, r.opts.TTL, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(r.opts.RetryInterval),
	})
	if errors.Is(err, redislock.ErrNotObtained) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrLockNotObtained, customerID)
	}
	if err != nil {
		return nil, &ledger.TransientError{Op: "obtain customer lock", Err: err}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := l.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				r.opts.Logger.Warn("failed to release customer lock",
					zap.String("customer_id", string(customerID)),
					zap.Error(err),
				)
			}
		})
	}, nil
}

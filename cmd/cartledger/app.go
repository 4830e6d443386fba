package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/cartledger/api"
	"github.com/warp/cartledger/config"
	"github.com/warp/cartledger/ledger"
	"github.com/warp/cartledger/lock"
	"github.com/warp/cartledger/metrics"
	"github.com/warp/cartledger/store/postgres"
	"github.com/warp/cartledger/store/sqlite"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	metrics *metrics.Metrics
	store   api.Store
	handler *api.Handler
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger, m *metrics.Metrics) (*app, error) {
	a := &app{cfg: cfg, log: log, metrics: m}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store

	locker, err := a.openLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := ledger.Options{
		Locker: locker,
		Retry:  cfg.RetryPolicy(),
		Logger: log,
	}
	if m != nil {
		opts.Recorder = m
	}
	a.handler = api.NewHandler(store, opts)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (api.Store, error) {
	switch a.cfg.StoreDriver {
	case "postgres":
		s, err := postgres.New(ctx, a.cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		a.log.Info("store ready", zap.String("driver", "postgres"))
		return s, nil
	default:
		path := a.cfg.SQLitePath
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
		}
		s, err := sqlite.New(path)
		if err != nil {
			return nil, fmt.Errorf("sqlite store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		a.log.Info("store ready", zap.String("driver", "sqlite"), zap.String("path", path))
		return s, nil
	}
}

// openLocker returns the Redis lock when REDIS_ADDR is set so several
// processes can share one database, and an in-process lock otherwise.
func (a *app) openLocker(ctx context.Context) (ledger.Locker, error) {
	if !a.cfg.DistributedLocking() {
		return ledger.NewKeyedMutex(), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", a.cfg.RedisAddr, err)
	}
	a.closers = append(a.closers, rdb.Close)
	a.log.Info("distributed locking enabled", zap.String("redis_addr", a.cfg.RedisAddr))
	return lock.NewRedis(rdb, lock.Options{TTL: a.cfg.LockTTL, Logger: a.log}), nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

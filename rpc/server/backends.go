package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/ValentinKolb/kvproxy/lib/kv/badgerkv"
	"github.com/ValentinKolb/kvproxy/lib/kv/rediskv"
	"github.com/ValentinKolb/kvproxy/rpc/common"
	"github.com/lni/dragonboat/v4/logger"
)

const (
	RawBackendBadger = "badger"
	RawBackendRedis  = "redis"
)

// Backends are the kv clients the shards are served from
type Backends struct {
	Raw kv.IRawClient
	Txn kv.ITxnClient

	closers []io.Closer
}

// OpenBackends opens the backends needed by the configured shards. The txn
// shards always use badger, raw shards use badger or redis.
func OpenBackends(config common.ServerConfig) (*Backends, error) {
	b := &Backends{}

	needRaw := config.HasShardType(common.ShardTypeRaw)
	needTxn := config.HasShardType(common.ShardTypeTxn)
	rawBackend := config.Backend.RawBackend
	if rawBackend == "" {
		rawBackend = RawBackendBadger
	}
	if rawBackend != RawBackendBadger && rawBackend != RawBackendRedis {
		return nil, fmt.Errorf("invalid raw backend: %s (expected one of: badger, redis)", rawBackend)
	}

	if needTxn || (needRaw && rawBackend == RawBackendBadger) {
		store, err := badgerkv.Open(badgerkv.Config{
			Dir:             config.Backend.DataDir,
			InMemory:        config.Backend.DataDir == "",
			LockWaitTimeout: config.Backend.LockWaitTimeout,
			Logger:          logger.GetLogger("badger"),
		})
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, store)
		b.Txn = store.Txn()
		if rawBackend == RawBackendBadger {
			b.Raw = store.Raw()
		}
	}

	if needRaw && rawBackend == RawBackendRedis {
		client := rediskv.New(rediskv.Options{
			Address:  config.Backend.RedisAddress,
			Password: config.Backend.RedisPassword,
			DB:       config.Backend.RedisDB,
		})
		b.closers = append(b.closers, client)
		b.Raw = client

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("redis at %s is not reachable: %w", config.Backend.RedisAddress, err)
		}
	}

	return b, nil
}

// Close closes every backend opened by OpenBackends
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

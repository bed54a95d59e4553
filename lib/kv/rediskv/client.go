package rediskv

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"

	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/redis/go-redis/v9"
)

var Logger = logger.GetLogger("kv/redis")

// Options configures the connection to the redis server.
type Options struct {
	// Address of the redis server (host:port).
	Address string
	// Password required when connecting to the redis server.
	Password string
	// DB to select after connecting.
	DB int
	// TLSConfig enables TLS when set.
	TLSConfig *tls.Config
	// MaxRetries is passed through to the redis client (-1 disables retries).
	MaxRetries int
}

// DefaultOptions returns options for a local redis server.
func DefaultOptions() Options {
	return Options{
		Address: "localhost:6379",
		DB:      0,
	}
}

// Client is a raw kv client that stores each key as a redis string.
type Client struct {
	rdb *redis.Client
}

// New creates a raw client for the redis server described by options.
// No connection is made until the first call.
func New(options Options) *Client {
	Logger.Infof("using redis at %s (db %d)", options.Address, options.DB)
	return &Client{
		rdb: redis.NewClient(&redis.Options{
			Addr:       options.Address,
			Password:   options.Password,
			DB:         options.DB,
			TLSConfig:  options.TLSConfig,
			MaxRetries: options.MaxRetries,
		}),
	}
}

// Ping checks that the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return translate("ping", c.rdb.Ping(ctx).Err())
}

func (c *Client) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if len(key) == 0 {
		return nil, false, kv.Errorf(kv.KindInvalidKey, "get", "key must not be empty")
	}
	value, err := c.rdb.Get(ctx, string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, translate("get", err)
	}
	return value, true, nil
}

func (c *Client) Put(ctx context.Context, key, value []byte) error {
	if len(key) == 0 {
		return kv.Errorf(kv.KindInvalidKey, "put", "key must not be empty")
	}
	return translate("put", c.rdb.Set(ctx, string(key), value, 0).Err())
}

func (c *Client) Delete(ctx context.Context, key []byte) error {
	if len(key) == 0 {
		return kv.Errorf(kv.KindInvalidKey, "delete", "key must not be empty")
	}
	return translate("delete", c.rdb.Del(ctx, string(key)).Err())
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// translate maps go-redis errors onto kv error kinds. A failure on the wire
// leaves it open whether the server applied the command.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var netErr net.Error
	var replyErr redis.Error
	switch {
	case errors.Is(err, redis.ErrClosed):
		return kv.NewError(kv.KindIO, op, err)
	case errors.As(err, &netErr) && netErr.Timeout():
		return kv.NewError(kv.KindUndetermined, op, err)
	case errors.As(err, &netErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return kv.NewError(kv.KindTransport, op, err)
	case errors.As(err, &replyErr):
		// the server rejected the command (WRONGTYPE, OOM, READONLY, ...)
		return kv.NewError(kv.KindUnsupported, op, err)
	default:
		return kv.NewError(kv.KindInternal, op, err)
	}
}

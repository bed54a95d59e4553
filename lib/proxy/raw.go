package proxy

import (
	"context"

	"github.com/ValentinKolb/kvproxy/lib/classify"
	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/lni/dragonboat/v4/logger"
	"google.golang.org/grpc/codes"
)

var Logger = logger.GetLogger("proxy")

// RawProxy forwards single key operations to a raw kv client.
type RawProxy struct {
	client kv.IRawClient
}

// NewRawProxy creates a RawProxy for client.
func NewRawProxy(client kv.IRawClient) *RawProxy {
	return &RawProxy{client: client}
}

// Get returns the value stored for key, or a NotFound status if there is none.
func (p *RawProxy) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := checkKey("raw get", key); err != nil {
		return nil, err
	}
	value, found, err := p.client.Get(ctx, key)
	if err != nil {
		return nil, failed("raw get", err)
	}
	if !found {
		return nil, classify.NotFound()
	}
	return value, nil
}

// Put stores value under key.
func (p *RawProxy) Put(ctx context.Context, key, value []byte) error {
	if err := checkKey("raw put", key); err != nil {
		return err
	}
	if err := p.client.Put(ctx, key, value); err != nil {
		return failed("raw put", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key succeeds.
func (p *RawProxy) Delete(ctx context.Context, key []byte) error {
	if err := checkKey("raw delete", key); err != nil {
		return err
	}
	if err := p.client.Delete(ctx, key); err != nil {
		return failed("raw delete", err)
	}
	return nil
}

// Close closes the underlying client.
func (p *RawProxy) Close() error {
	return p.client.Close()
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func checkKey(op string, key []byte) error {
	if len(key) == 0 {
		return classify.Error(op, kv.Errorf(kv.KindInvalidKey, op, "key must not be empty"))
	}
	return nil
}

// failed classifies err and logs ambiguous outcomes.
func failed(op string, err error) error {
	st := classify.Error(op, err)
	if classify.Code(st) == codes.Unknown {
		Logger.Warningf("%s: %v", op, err)
	} else {
		Logger.Debugf("%s: %v", op, err)
	}
	return st
}

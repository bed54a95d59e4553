package client

import (
	"github.com/ValentinKolb/kvproxy/rpc/common"
	"github.com/ValentinKolb/kvproxy/rpc/serializer"
	"github.com/ValentinKolb/kvproxy/rpc/transport"
)

// NewRawClient creates a client for a raw shard and connects its transport
func NewRawClient(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RawClient, error) {
	adapter, err := newRPCClientAdapter(shardId, config, transport, serializer)
	if err != nil {
		return nil, err
	}
	return &RawClient{adapter}, nil
}

// RawClient calls the raw service of a proxy server.
// All errors are grpc status errors.
type RawClient struct {
	rpcClientAdapter
}

// Get returns the value of key. A missing key is a NOT_FOUND status.
func (c *RawClient) Get(key []byte) ([]byte, error) {
	resp, err := c.invoke(common.NewRawGetRequest(key))
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// Put sets key to value
func (c *RawClient) Put(key, value []byte) error {
	_, err := c.invoke(common.NewRawPutRequest(key, value))
	return err
}

// Delete removes key
func (c *RawClient) Delete(key []byte) error {
	_, err := c.invoke(common.NewRawDeleteRequest(key))
	return err
}

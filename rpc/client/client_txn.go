package client

import (
	"github.com/ValentinKolb/kvproxy/lib/kv"
	"github.com/ValentinKolb/kvproxy/rpc/common"
	"github.com/ValentinKolb/kvproxy/rpc/serializer"
	"github.com/ValentinKolb/kvproxy/rpc/transport"
)

// NewTxnClient creates a client for a txn shard and connects its transport
func NewTxnClient(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*TxnClient, error) {
	adapter, err := newRPCClientAdapter(shardId, config, transport, serializer)
	if err != nil {
		return nil, err
	}
	return &TxnClient{adapter}, nil
}

// TxnClient calls the transaction service of a proxy server. Transactions are
// referenced by the session id returned from Begin.
// All errors are grpc status errors.
type TxnClient struct {
	rpcClientAdapter
}

// Begin starts a transaction and returns its session id
func (c *TxnClient) Begin(mode kv.Mode) (uint32, error) {
	resp, err := c.invoke(common.NewTxnBeginRequest(mode))
	if err != nil {
		return 0, err
	}
	return resp.TxnID, nil
}

// Get reads key within the transaction. A missing key is a NOT_FOUND status.
func (c *TxnClient) Get(txnID uint32, key []byte) ([]byte, error) {
	resp, err := c.invoke(common.NewTxnGetRequest(txnID, key))
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// Put writes key within the transaction
func (c *TxnClient) Put(txnID uint32, key, value []byte) error {
	_, err := c.invoke(common.NewTxnPutRequest(txnID, key, value))
	return err
}

// Delete removes key within the transaction
func (c *TxnClient) Delete(txnID uint32, key []byte) error {
	_, err := c.invoke(common.NewTxnDeleteRequest(txnID, key))
	return err
}

// Commit commits the transaction. The session ends whatever the outcome.
func (c *TxnClient) Commit(txnID uint32) error {
	_, err := c.invoke(common.NewTxnCommitRequest(txnID))
	return err
}

// Rollback discards the transaction. The session ends whatever the outcome.
func (c *TxnClient) Rollback(txnID uint32) error {
	_, err := c.invoke(common.NewTxnRollbackRequest(txnID))
	return err
}

// Run executes fn inside a transaction. The transaction is committed if fn
// returns nil and rolled back otherwise.
func (c *TxnClient) Run(mode kv.Mode, fn func(txnID uint32) error) error {
	txnID, err := c.Begin(mode)
	if err != nil {
		return err
	}
	if err := fn(txnID); err != nil {
		if rbErr := c.Rollback(txnID); rbErr != nil {
			Logger.Warningf("rollback of txn %d failed: %v", txnID, rbErr)
		}
		return err
	}
	return c.Commit(txnID)
}

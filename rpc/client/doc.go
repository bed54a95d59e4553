// Package client implements typed RPC clients for the proxy server.
//
// Key Components:
//
//   - RawClient: Get, Put and Delete on a raw shard.
//
//   - TxnClient: Begin, Get, Put, Delete, Commit and Rollback on a txn shard,
//     plus Run which wraps a function in a transaction.
//
// Every error returned by the clients is a grpc status error, use
// status.Code(err) to inspect it:
//
//   - NotFound: the key has no value
//   - Aborted: the operation failed, retrying the whole transaction is safe
//   - Unknown: the outcome is not known, this includes failures of the
//     transport itself. After a failed commit reconcile before retrying.
//   - FailedPrecondition: the session id is unknown or already finished
//   - InvalidArgument: the server could not decode or route the request
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints:              []string{"localhost:8080"},
//	    RetryCount:             2,
//	    ConnectionsPerEndpoint: 4,
//	  },
//	}
//
//	txns, err := client.NewTxnClient(200, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer txns.Close()
//
//	err = txns.Run(kv.ModeOptimistic, func(id uint32) error {
//	  return txns.Put(id, []byte("a"), []byte("b"))
//	})
package client

// Package server implements the RPC server of the proxy. It binds the raw and
// transactional proxy services to shards and serves them on any transport with
// any serializer.
//
// Key Components:
//
//   - IRPCServerAdapter: Interface translating decoded messages into calls on
//     one proxy service. NewRawServerAdapter serves raw.* messages,
//     NewTxnServerAdapter serves txn.* messages.
//
//   - Backends: The kv clients behind the shards. OpenBackends opens an
//     embedded badger store for txn shards and, depending on the config, badger
//     or redis for raw shards.
//
//   - NewRPCServer: Factory function creating a server for a config, transport
//     and serializer.
//
// Request Handling:
//
// Every request is routed by its shard id. Requests for unknown shards, requests
// that cannot be decoded and message types the shard does not serve are answered
// with a MsgTError message carrying INVALID_ARGUMENT. All other requests get a
// response of the same message type whose status comes from the proxy services.
// Each request runs with a context bounded by TimeoutSecond.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards: []common.ServerShard{
//	    {ShardID: 100, Type: common.ShardTypeRaw},
//	    {ShardID: 200, Type: common.ShardTypeTxn},
//	  },
//	  TimeoutSecond: 5,
//	  Transport: common.ServerTransportConfig{Endpoint: ":8080"},
//	}
//
//	s := server.NewRPCServer(config, tcp.NewTCPDefaultServerTransport(), serializer.NewBinarySerializer(), nil)
//	go func() { _ = s.Serve() }()
//	defer s.Close()
//
// Metrics:
//
// If MetricsEndpoint is set, request counters by message type and status code,
// request durations and the number of live sessions per txn shard are served in
// the prometheus text format at /metrics.
package server

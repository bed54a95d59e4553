// Package grpc carries the proxy's RPC protocol over grpc. The service has a
// single unary method, /kvproxy.Proxy/Call, whose request and response bodies
// are the messages produced by the rpc serializer; a pass-through codec keeps
// grpc from re-encoding them. The target shard is sent in the "shard-id"
// metadata header.
//
// The client keeps ConnectionsPerEndpoint grpc connections per endpoint and
// selects them round-robin. Calls on a connection that was not ready and fail
// as Unavailable are retried on the next connection, other failures are
// returned unchanged.
package grpc

// Package http implements an HTTP-based transport layer for the proxy's RPC
// protocol. Each request is a POST to /{shardId} whose body is the serialized
// message, the response body carries the serialized reply.
//
// Key Components:
//
//   - httpClientTransport: Implements IRPCClientTransport. It spreads requests
//     round-robin over the configured endpoints. Only requests that could not be
//     delivered (dial errors) are retried; a request that reached a server is
//     never sent twice.
//
//   - httpServerTransport: Implements IRPCServerTransport on top of net/http.
//     Close shuts the server down gracefully, in-flight requests complete first.
//
// With the debug log level a logging middleware records method, path, status
// and duration of every request.
package http

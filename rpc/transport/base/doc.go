// Package base implements the framed stream transport shared by the tcp and
// unix transports. The protocol-specific parts (dialing, listening, socket
// options) are supplied through IClientConnector and IServerConnector.
//
// Every frame carries a header with the shard id, a request id and the payload
// length. The client multiplexes concurrent requests over a small pool of
// connections per endpoint and matches responses by request id, so responses
// may arrive out of order.
//
// Server:
//
//   - one reader goroutine per connection and a bounded number of workers
//     (workersPerConn) handling its requests concurrently
//   - request buffers come from a sync.Pool
//   - Close stops the listener, unblocks the readers and waits for the
//     running workers to write their responses
//
// Client:
//
//   - connections are chosen round-robin over all endpoints
//   - a request is retried on another connection only if it was never
//     written. Once written, a failure is returned to the caller because the
//     server may have applied it.
package base

// Package rpc is the wire layer of kvproxy. It carries raw and transactional
// key-value calls between the CLI clients and the proxy server.
//
// Subpackages:
//
//   - common: the Message exchanged for every call, server and client
//     configuration, and the logger factory.
//
//   - serializer: encodes a Message as binary, JSON or GOB.
//
//   - transport: moves encoded messages tagged with a shard id. Implemented
//     over TCP, Unix sockets, HTTP and gRPC.
//
//   - server: routes a message to the raw or txn shard it addresses and
//     answers with a status code.
//
//   - client: typed raw and txn clients that turn the status codes back into
//     errors.
package rpc

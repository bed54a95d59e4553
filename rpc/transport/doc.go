// Package transport declares the contract between the proxy's RPC layer and
// the network. A transport only moves opaque byte payloads tagged with a shard
// id, it never looks into the encoded messages.
//
// The server side hands every request to a single ServerHandleFunc. The client
// side sends a request to one of the configured endpoints and returns the
// matching response. Implementations live in the tcp, unix, http and grpc
// subpackages.
package transport

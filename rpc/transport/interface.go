package transport

import (
	"github.com/ValentinKolb/kvproxy/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc answers one encoded request addressed to shardId.
// It is called concurrently and must always return a response payload.
type ServerHandleFunc func(shardId uint64, req []byte) (resp []byte)

// IRPCServerTransport accepts requests from the network and hands them to the
// registered handler.
type IRPCServerTransport interface {
	// RegisterHandler sets the handler, it must be called before Listen
	RegisterHandler(handler ServerHandleFunc)
	// Listen serves incoming requests on config.Transport.Endpoint.
	// It blocks until Close is called (returning nil) or the listener fails.
	Listen(config common.ServerConfig) error
	// Close stops accepting requests. In-flight requests are finished first.
	Close() error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport sends encoded requests to one of the proxy endpoints.
type IRPCClientTransport interface {
	// Connect opens the connections to config.Transport.Endpoints
	Connect(config common.ClientConfig) error
	// Send delivers req to shardId and waits for the response.
	// A request is only retried if it is known not to have reached the server.
	Send(shardId uint64, req []byte) (resp []byte, err error)
	// Close closes all connections, pending requests fail
	Close() error
}

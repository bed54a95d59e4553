package server

import (
	"context"

	"github.com/ValentinKolb/kvproxy/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It translates decoded requests into calls on one proxy service
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response
	// Failures are reported as a status inside the response, never as a nil response
	Handle(ctx context.Context, req *common.Message) (resp *common.Message)
	// Close releases the service behind the adapter
	Close(ctx context.Context) error
}

package client

import (
	"fmt"

	"github.com/ValentinKolb/kvproxy/rpc/common"
	"github.com/ValentinKolb/kvproxy/rpc/serializer"
	"github.com/ValentinKolb/kvproxy/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	Logger = logger.GetLogger("rpc/client")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation of an RPC client
// Used by the RawClient and TxnClient with composition pattern
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

func newRPCClientAdapter(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (rpcClientAdapter, error) {
	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return rpcClientAdapter{}, err
	}
	return rpcClientAdapter{
		shardId:    shardId,
		config:     config,
		transport:  transport,
		serializer: serializer,
	}, nil
}

// Close closes the underlying transport
func (a *rpcClientAdapter) Close() error {
	return a.transport.Close()
}

// invoke sends a request and returns the response. All errors are status
// errors: the status of the response, or UNKNOWN if the request failed in
// the transport or serializer (its outcome on the server is not known).
func (a *rpcClientAdapter) invoke(req *common.Message) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := a.serializer.Serialize(*req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "failed to serialize request: %v", err)
	}

	// Send the request
	respBytes, err := a.transport.Send(a.shardId, reqBytes)
	if err != nil {
		Logger.Debugf("%s request to shard %d failed: %v", req.MsgType, a.shardId, err)
		return nil, status.Errorf(codes.Unknown, "%s request failed: %v", req.MsgType, err)
	}

	// Deserialize the response
	resp := &common.Message{}
	if err := a.serializer.Deserialize(respBytes, resp); err != nil {
		return nil, status.Errorf(codes.Unknown, "failed to deserialize %s response: %v", req.MsgType, err)
	}

	// Error responses carry their status
	if resp.MsgType == common.MsgTError {
		if err := resp.Status(); err != nil {
			return nil, err
		}
		return nil, status.Error(codes.Unknown, "error response without status")
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, status.Error(codes.Unknown,
			fmt.Sprintf("unexpected message type: %s, expected %s", resp.MsgType, req.MsgType))
	}

	if err := resp.Status(); err != nil {
		return resp, err
	}
	return resp, nil
}

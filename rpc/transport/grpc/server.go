package grpc

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/ValentinKolb/kvproxy/rpc/common"
	"github.com/ValentinKolb/kvproxy/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

var Logger = logger.GetLogger("transport/grpc")

// frameHandler is the service implementation registered with grpc
type frameHandler interface {
	Call(ctx context.Context, req *rawFrame) (*rawFrame, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*frameHandler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: methodName,
			Handler:    callHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kvproxy",
}

func callHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(rawFrame)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(frameHandler).Call(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: fullMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(frameHandler).Call(ctx, req.(*rawFrame))
	}
	return interceptor(ctx, in, info, handler)
}

// NewGrpcServerTransport creates a server transport serving the rpc protocol
// as a single unary grpc method. The shard id travels in the request metadata.
func NewGrpcServerTransport() transport.IRPCServerTransport {
	return &grpcServerTransport{}
}

type grpcServerTransport struct {
	handler transport.ServerHandleFunc

	mu     sync.Mutex
	server *grpc.Server
	closed bool
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *grpcServerTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *grpcServerTransport) Listen(config common.ServerConfig) error {
	listener, err := net.Listen("tcp", config.Transport.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}

	opts := []grpc.ServerOption{
		grpc.ForceServerCodec(rawCodec{}),
	}
	if size := config.Transport.WriteBufferSize; size > 0 {
		opts = append(opts, grpc.WriteBufferSize(size))
	}
	if size := config.Transport.ReadBufferSize; size > 0 {
		opts = append(opts, grpc.ReadBufferSize(size))
	}
	if workers := config.Transport.WorkersPerConn; workers > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(workers)))
	}
	if sec := config.Transport.TCPKeepAliveSec; sec > 0 {
		opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{
			Time: time.Duration(sec) * time.Second,
		}))
	}

	server := grpc.NewServer(opts...)
	server.RegisterService(&serviceDesc, t)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = listener.Close()
		return nil
	}
	t.server = server
	t.mu.Unlock()

	Logger.Infof("Starting grpc server on %s", listener.Addr())

	// Serve returns nil once GracefulStop was called
	return server.Serve(listener)
}

func (t *grpcServerTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	server := t.server
	t.mu.Unlock()

	if server != nil {
		server.GracefulStop()
	}
	return nil
}

// Call implements frameHandler
func (t *grpcServerTransport) Call(ctx context.Context, req *rawFrame) (*rawFrame, error) {
	shardID, err := shardFromContext(ctx)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp := t.handler(shardID, req.data)
	Logger.Debugf("Processed request for shard %d took %s", shardID, time.Since(start))
	return &rawFrame{data: resp}, nil
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func shardFromContext(ctx context.Context) (uint64, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return 0, status.Error(codes.InvalidArgument, "missing request metadata")
	}
	values := md.Get(shardIDKey)
	if len(values) != 1 {
		return 0, status.Errorf(codes.InvalidArgument, "expected exactly one %s header", shardIDKey)
	}
	shardID, err := strconv.ParseUint(values[0], 10, 64)
	if err != nil {
		return 0, status.Errorf(codes.InvalidArgument, "invalid %s: %v", shardIDKey, err)
	}
	return shardID, nil
}

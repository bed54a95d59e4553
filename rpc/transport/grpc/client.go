package grpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/kvproxy/rpc/common"
	"github.com/ValentinKolb/kvproxy/rpc/transport"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const defaultTimeout = 5 * time.Second

// NewGrpcClientTransport creates a client transport for the grpc server transport
func NewGrpcClientTransport() transport.IRPCClientTransport {
	return &grpcClientTransport{}
}

type grpcClientTransport struct {
	conns      []*grpc.ClientConn
	next       atomic.Uint32
	retryCount int
	timeout    time.Duration
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *grpcClientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return errors.New("no endpoints configured")
	}
	_ = t.Close()

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	}
	if size := config.Transport.WriteBufferSize; size > 0 {
		opts = append(opts, grpc.WithWriteBufferSize(size))
	}
	if size := config.Transport.ReadBufferSize; size > 0 {
		opts = append(opts, grpc.WithReadBufferSize(size))
	}

	perEndpoint := config.Transport.ConnectionsPerEndpoint
	if perEndpoint <= 0 {
		perEndpoint = 1
	}

	for _, endpoint := range config.Transport.Endpoints {
		for i := 0; i < perEndpoint; i++ {
			conn, err := grpc.NewClient(endpoint, opts...)
			if err != nil {
				_ = t.Close()
				return fmt.Errorf("failed to create grpc client for %s: %w", endpoint, err)
			}
			conn.Connect()
			t.conns = append(t.conns, conn)
		}
	}

	t.retryCount = config.Transport.RetryCount
	t.timeout = config.Timeout()
	if t.timeout <= 0 {
		t.timeout = defaultTimeout
	}
	return nil
}

// Send invokes the remote method on the next connection. A request is only
// retried if its connection was not ready and the call failed as unavailable,
// in that case the request never reached a server.
func (t *grpcClientTransport) Send(shardId uint64, req []byte) ([]byte, error) {
	if len(t.conns) == 0 {
		return nil, errors.New("grpc transport not initialized")
	}

	var lastErr error
	for attempt := 0; attempt <= t.retryCount; attempt++ {
		conn := t.conns[int(t.next.Add(1)-1)%len(t.conns)]
		ready := conn.GetState() == connectivity.Ready

		resp, err := t.invoke(conn, shardId, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if ready || status.Code(err) != codes.Unavailable {
			return nil, err
		}
	}
	return nil, lastErr
}

func (t *grpcClientTransport) Close() error {
	var errs []error
	for _, conn := range t.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	t.conns = nil
	return errors.Join(errs...)
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *grpcClientTransport) invoke(conn *grpc.ClientConn, shardId uint64, req []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, shardIDKey, strconv.FormatUint(shardId, 10))

	out := new(rawFrame)
	if err := conn.Invoke(ctx, fullMethod, &rawFrame{data: req}, out); err != nil {
		return nil, err
	}
	return out.data, nil
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/kvproxy/lib/classify"
	"github.com/ValentinKolb/kvproxy/lib/proxy"
	"github.com/ValentinKolb/kvproxy/rpc/common"
	"github.com/ValentinKolb/kvproxy/rpc/serializer"
	"github.com/ValentinKolb/kvproxy/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var Logger = logger.GetLogger("rpc")

// closeTimeout bounds how long Close waits for rollbacks of live sessions
const closeTimeout = 10 * time.Second

// serverShard is a shard served by the RPC server, its type decides which
// messages the adapter accepts
type serverShard struct {
	Type    common.ServerShardType
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters. If backends is
// nil the backends are opened from the config when serving starts and closed
// with the server.
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		tcp.NewTCPDefaultServerTransport(),
//		serializer.NewBinarySerializer(),
//		nil,
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
	backends *Backends,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	return &RPCServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		backends:   backends,
		ownBackend: backends == nil,
		shards:     xsync.NewMapOf[uint64, serverShard](),
		metrics:    newServerMetrics(),
	}
}

// RPCServer binds the proxy services to shards and serves them on a transport
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	backends   *Backends
	ownBackend bool
	shards     *xsync.MapOf[uint64, serverShard]
	metrics    *serverMetrics

	metricsServer *http.Server
	closeOnce     sync.Once
	closeErr      error
}

// Serve initializes the shards and serves requests until Close is called
func (s *RPCServer) Serve() error {
	if err := s.init(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport, rolls back all live sessions and closes the
// backends. It is safe to call Close more than once.
func (s *RPCServer) Close() error {
	s.closeOnce.Do(func() {
		var errs []error

		if err := s.transport.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close transport: %w", err))
		}

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()

		s.shards.Range(func(shardID uint64, shard serverShard) bool {
			if err := shard.Adapter.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to close shard %d: %w", shardID, err))
			}
			return true
		})

		if s.metricsServer != nil {
			if err := s.metricsServer.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop metrics endpoint: %w", err))
			}
		}

		if s.ownBackend && s.backends != nil {
			if err := s.backends.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close backends: %w", err))
			}
		}

		s.closeErr = errors.Join(errs...)
		Logger.Infof("RPC server stopped")
	})
	return s.closeErr
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (s *RPCServer) init() error {
	Logger.Infof("Created RPC Server")
	Logger.Infof(s.config.String())

	if len(s.config.Shards) == 0 {
		return errors.New("no shards configured")
	}

	if s.backends == nil {
		backends, err := OpenBackends(s.config)
		if err != nil {
			return fmt.Errorf("failed to open backends: %w", err)
		}
		s.backends = backends
	}

	/*
		Note: A single RPC Server can serve any number of raw and txn shards.
		All shards of one type share the same backend, but every txn shard has
		its own session registry, so session ids are only valid on the shard
		that issued them.
	*/

	for _, shardConfig := range s.config.Shards {
		switch shardConfig.Type {
		case common.ShardTypeRaw:
			if s.backends.Raw == nil {
				return fmt.Errorf("no raw backend for shard %d", shardConfig.ShardID)
			}
			s.shards.Store(shardConfig.ShardID, serverShard{
				Type:    common.ShardTypeRaw,
				Adapter: NewRawServerAdapter(s.backends.Raw),
			})
			Logger.Infof("created raw shard %d", shardConfig.ShardID)

		case common.ShardTypeTxn:
			if s.backends.Txn == nil {
				return fmt.Errorf("no txn backend for shard %d", shardConfig.ShardID)
			}
			adapter := NewTxnServerAdapter(s.backends.Txn, proxy.TxnOptions{
				IdleTimeout: s.config.SessionIdleTimeout,
			})
			s.shards.Store(shardConfig.ShardID, serverShard{
				Type:    common.ShardTypeTxn,
				Adapter: adapter,
			})
			s.metrics.sessionGauge(shardConfig.ShardID, adapter)
			Logger.Infof("created txn shard %d", shardConfig.ShardID)

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}
	}

	if s.config.MetricsEndpoint != "" {
		s.startMetricsEndpoint()
	}

	Logger.Infof("kvproxy setup completed successfully")

	// Configure the transport layer
	s.transport.RegisterHandler(s.handle)

	return nil
}

// handle decodes a request, dispatches it to the shard's adapter and encodes the response
func (s *RPCServer) handle(shardId uint64, req []byte) []byte {
	var msg common.Message
	var resp *common.Message

	shard, ok := s.shards.Load(shardId)
	if !ok {
		// Case shard does not exist -> error
		s.metrics.rejected("unknown_shard")
		resp = common.NewErrorResponse(classify.InvalidArgument("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		s.metrics.rejected("decode")
		resp = common.NewErrorResponse(classify.InvalidArgument("failed to deserialize request: %v", err))
	} else if !accepts(shard.Type, msg.MsgType) {
		s.metrics.rejected("wrong_shard_type")
		resp = common.NewErrorResponse(
			classify.InvalidArgument("message type %s is not served by %s shard %d", msg.MsgType, shard.Type, shardId),
		)
	} else {
		ctx, cancel := s.requestContext()
		start := time.Now()
		resp = shard.Adapter.Handle(ctx, &msg)
		cancel()
		s.metrics.observe(msg.MsgType, resp, start)
	}

	out, err := s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("failed to serialize %s response: %v", resp.MsgType, err)
		out, _ = s.serializer.Serialize(*common.NewErrorResponse(
			status.Errorf(codes.Unknown, "failed to serialize response: %v", err),
		))
	}
	return out
}

func (s *RPCServer) requestContext() (context.Context, context.CancelFunc) {
	if s.config.TimeoutSecond <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), time.Duration(s.config.TimeoutSecond)*time.Second)
}

func (s *RPCServer) startMetricsEndpoint() {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", s.metrics.handler())
	s.metricsServer = &http.Server{
		Addr:    s.config.MetricsEndpoint,
		Handler: mux,
	}

	go func() {
		Logger.Infof("Serving metrics on %s/metrics", s.config.MetricsEndpoint)
		if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics endpoint failed: %v", err)
		}
	}()
}

// accepts reports whether a shard of type t serves messages of type msgType
func accepts(t common.ServerShardType, msgType common.MessageType) bool {
	switch t {
	case common.ShardTypeRaw:
		return msgType.IsRaw()
	case common.ShardTypeTxn:
		return msgType.IsTxn()
	default:
		return false
	}
}

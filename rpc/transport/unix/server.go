package unix

import (
	"fmt"
	"net"
	"os"

	"github.com/ValentinKolb/kvproxy/rpc/common"
	"github.com/ValentinKolb/kvproxy/rpc/transport"
	"github.com/ValentinKolb/kvproxy/rpc/transport/base"
)

const (
	defaultBufferSize = 64 * 1024 // 64 KB
	defaultWorkers    = 64
)

// serverConnector implements the IServerConnector interface for Unix sockets
type serverConnector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector)
// --------------------------------------------------------------------------

func (c *serverConnector) GetName() string {
	return "unix"
}

func (c *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	socketPath := config.Transport.Endpoint

	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %v", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unix socket: %v", err)
	}
	return listener, nil
}

func (c *serverConnector) UpgradeConnection(conn net.Conn, config common.ServerConfig) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}
	if size := config.Transport.WriteBufferSize; size > 0 {
		if err := unixConn.SetWriteBuffer(size); err != nil {
			return err
		}
	}
	if size := config.Transport.ReadBufferSize; size > 0 {
		if err := unixConn.SetReadBuffer(size); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Server Transport Factory Method
// --------------------------------------------------------------------------

// NewUnixDefaultServerTransport creates a new Unix server transport with default buffer size
func NewUnixDefaultServerTransport() transport.IRPCServerTransport {
	return NewUnixServerTransport(defaultBufferSize, defaultWorkers)
}

// NewUnixServerTransport creates a new Unix server transport with specified buffer size and workers per connection
func NewUnixServerTransport(bufferSize, workersPerConn int) transport.IRPCServerTransport {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if workersPerConn <= 0 {
		workersPerConn = defaultWorkers
	}
	return base.NewBaseServerTransport(&serverConnector{}, bufferSize, workersPerConn)
}

package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerShardType selects the service a shard exposes.
type ServerShardType string

const (
	ShardTypeRaw ServerShardType = "raw"
	ShardTypeTxn ServerShardType = "txn"
)

// ParseShardType parses a shard type name as used on the command line.
func ParseShardType(s string) (ServerShardType, error) {
	switch ServerShardType(strings.ToLower(strings.TrimSpace(s))) {
	case ShardTypeRaw:
		return ShardTypeRaw, nil
	case ShardTypeTxn:
		return ShardTypeTxn, nil
	default:
		return "", fmt.Errorf("invalid shard type: %s (expected one of: raw, txn)", s)
	}
}

type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Type is the service of the shard
	Type ServerShardType
}

// ParseShards parses a comma-separated list of ID=TYPE pairs (e.g. "100=raw,200=txn").
func ParseShards(s string) ([]ServerShard, error) {
	var shards []ServerShard
	seen := make(map[uint64]struct{})
	for _, shardConfig := range strings.Split(s, ",") {
		parts := strings.Split(shardConfig, "=")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid shard format: %s (expected ID=TYPE)", shardConfig)
		}

		shardID, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid shard ID %s: %v", parts[0], err)
		}
		if _, ok := seen[shardID]; ok {
			return nil, fmt.Errorf("duplicate shard ID %d", shardID)
		}
		seen[shardID] = struct{}{}

		shardType, err := ParseShardType(parts[1])
		if err != nil {
			return nil, err
		}
		shards = append(shards, ServerShard{ShardID: shardID, Type: shardType})
	}
	return shards, nil
}

// LogConfig configures the process wide loggers.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string
	// Format is console or json
	Format string
	// Output is stdout, stderr or a file path
	Output string
}

// BackendConfig selects and configures the kv backends behind the shards.
type BackendConfig struct {
	// DataDir is the badger data directory, empty keeps all data in memory
	DataDir string
	// LockWaitTimeout bounds waits for keys locked by pessimistic transactions
	LockWaitTimeout time.Duration
	// RawBackend is "badger" (shared with the txn shards) or "redis"
	RawBackend string
	// Redis connection for RawBackend "redis"
	RedisAddress  string
	RedisPassword string
	RedisDB       int
}

// ServerTransportConfig configures the server side transport.
type ServerTransportConfig struct {
	// Endpoint is the listen address (host:port or a unix socket path)
	Endpoint string
	// WorkersPerConn bounds the concurrent requests per connection (tcp, unix)
	WorkersPerConn int
	// BufferSize is the size of the pooled read buffers (tcp, unix)
	BufferSize int
	SocketConf
	TCPConf
}

// ServerConfig holds all configuration parameters of the proxy server.
type ServerConfig struct {
	// Shards to serve
	Shards []ServerShard

	// Timeout applied to every request (and socket reads/writes)
	TimeoutSecond int64

	// Sessions idle for longer than this are rolled back, 0 disables it
	SessionIdleTimeout time.Duration

	// MetricsEndpoint serves /metrics, empty disables it
	MetricsEndpoint string

	Transport ServerTransportConfig
	Backend   BackendConfig
	Log       LogConfig
}

// HasShardType checks if the configuration contains a shard of the given type
func (c *ServerConfig) HasShardType(t ServerShardType) bool {
	for _, shard := range c.Shards {
		if shard.Type == t {
			return true
		}
	}
	return false
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))
	if c.MetricsEndpoint != "" {
		addField("Metrics", c.MetricsEndpoint+"/metrics")
	}

	// Sessions
	addSection("Sessions")
	if c.SessionIdleTimeout > 0 {
		addField("Idle Timeout", c.SessionIdleTimeout.String())
	} else {
		addField("Idle Timeout", "disabled")
	}

	// Backend
	addSection("Backend")
	if c.Backend.DataDir == "" {
		addField("Badger", "in-memory")
	} else {
		addField("Badger", c.Backend.DataDir)
	}
	addField("Lock Wait Timeout", c.Backend.LockWaitTimeout.String())
	addField("Raw Backend", c.Backend.RawBackend)
	if c.Backend.RawBackend == "redis" {
		addField("Redis Address", c.Backend.RedisAddress)
		addField("Redis DB", strconv.Itoa(c.Backend.RedisDB))
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.Log.Level)
	addField("Log Format", c.Log.Format)
	addField("Log Output", c.Log.Output)

	// Shards
	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), string(shard.Type))
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// Shared transport settings
// --------------------------------------------------------------------------

// SocketConf holds socket buffer sizes (tcp, unix)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific socket options
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientTransportConfig struct {
	Endpoints              []string
	RetryCount             int
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

type ClientConfig struct {
	TimeoutSecond int
	Transport     ClientTransportConfig
}

// Timeout returns the configured timeout as a duration (0 means none).
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.Transport.RetryCount))
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}

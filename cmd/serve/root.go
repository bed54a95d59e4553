package serve

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cmdUtil "github.com/ValentinKolb/kvproxy/cmd/util"
	"github.com/ValentinKolb/kvproxy/rpc/common"
	"github.com/ValentinKolb/kvproxy/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the kvproxy server",
		Long:    `Start the kvproxy server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is KVPROXY_<flag> (e.g. KVPROXY_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "shards"
	ServeCmd.PersistentFlags().String(key, "100=raw,200=txn", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=TYPE where TYPE is one of: raw, txn"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("Timeout in seconds for every request"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/kvproxy.sock, ...)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address for the prometheus /metrics endpoint (e.g. localhost:9090), disabled if empty"))

	key = "session-idle-timeout"
	ServeCmd.PersistentFlags().Duration(key, 0, cmdUtil.WrapString("Transactions not used for longer than this are rolled back (e.g. 5m), 0 disables it"))

	key = "workers"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("Maximum concurrent requests per connection (tcp, unix, grpc)"))

	key = "buffer-size"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("Size of the pooled request buffers in KB (tcp, unix)"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Directory of the embedded badger database. If empty all data is kept in memory"))

	key = "lock-wait-timeout"
	ServeCmd.PersistentFlags().Duration(key, 3*time.Second, cmdUtil.WrapString("How long a pessimistic transaction waits for a key locked by another transaction"))

	key = "raw-backend"
	ServeCmd.PersistentFlags().String(key, server.RawBackendBadger, cmdUtil.WrapString("Backend of the raw shards (badger, redis)"))

	key = "redis-address"
	ServeCmd.PersistentFlags().String(key, "localhost:6379", cmdUtil.WrapString("Address of the redis server (raw-backend redis)"))

	key = "redis-password"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Password of the redis server (raw-backend redis)"))

	key = "redis-db"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("Database of the redis server (raw-backend redis)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "log-format"
	ServeCmd.PersistentFlags().String(key, "console", cmdUtil.WrapString("Format of the log output (console, json)"))

	key = "log-output"
	ServeCmd.PersistentFlags().String(key, "stderr", cmdUtil.WrapString("Where logs are written (stdout, stderr or a file path)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// parse shards
	shards, err := common.ParseShards(viper.GetString("shards"))
	if err != nil {
		return err
	}
	serveCmdConfig.Shards = shards

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.SessionIdleTimeout = viper.GetDuration("session-idle-timeout")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")

	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:       viper.GetString("endpoint"),
		WorkersPerConn: viper.GetInt("workers"),
		BufferSize:     viper.GetInt("buffer-size") * 1024,
	}

	serveCmdConfig.Backend = common.BackendConfig{
		DataDir:         viper.GetString("data-dir"),
		LockWaitTimeout: viper.GetDuration("lock-wait-timeout"),
		RawBackend:      viper.GetString("raw-backend"),
		RedisAddress:    viper.GetString("redis-address"),
		RedisPassword:   viper.GetString("redis-password"),
		RedisDB:         viper.GetInt("redis-db"),
	}

	serveCmdConfig.Log = common.LogConfig{
		Level:  viper.GetString("log-level"),
		Format: viper.GetString("log-format"),
		Output: viper.GetString("log-output"),
	}

	if serveCmdConfig.TimeoutSecond < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if serveCmdConfig.SessionIdleTimeout < 0 {
		return fmt.Errorf("session-idle-timeout must not be negative")
	}

	return nil
}

// run starts the kvproxy server and stops it on SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	if err := common.InitLoggers(serveCmdConfig.Log); err != nil {
		return err
	}
	defer common.SyncLoggers()

	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport(*serveCmdConfig)
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		t,
		s,
		nil,
	)

	served := make(chan error, 1)
	go func() { served <- serv.Serve() }()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	select {
	case err := <-served:
		// the transport failed or the setup was invalid
		return errors.Join(err, serv.Close())
	case sig := <-signals:
		server.Logger.Infof("received %s, shutting down", sig)
		closeErr := serv.Close()
		return errors.Join(<-served, closeErr)
	}
}

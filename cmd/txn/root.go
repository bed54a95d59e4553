package txn

import (
	"fmt"
	"strconv"

	"github.com/ValentinKolb/kvproxy/cmd/util"
	"github.com/ValentinKolb/kvproxy/rpc/client"
	"github.com/spf13/cobra"
)

var (
	txnClient *client.TxnClient

	// TxnCommands represents the txn command group
	TxnCommands = &cobra.Command{
		Use:   "txn",
		Short: "Perform transactional key-value operations",
		Long: `Perform transactional key-value operations. A transaction is started with
'begin', which prints its session id. The session lives on the server until it
is committed or rolled back, so the other commands can be issued from separate
invocations.`,
		PersistentPreRunE: setupTxnClient,
	}
)

func init() {
	// Add common RPC flags to the txn command
	util.SetupRPCClientFlags(TxnCommands)

	// Default shard ID for txn operations (different from the raw default)
	TxnCommands.PersistentFlags().Int("shard", 200, util.WrapString("ID of the shard to connect to"))
	TxnCommands.PersistentFlags().String("mode", "optimistic", util.WrapString("Transaction mode for begin, run and perf (optimistic, pessimistic)"))

	// Add subcommands
	TxnCommands.AddCommand(beginCmd)
	TxnCommands.AddCommand(getCmd)
	TxnCommands.AddCommand(putCmd)
	TxnCommands.AddCommand(delCmd)
	TxnCommands.AddCommand(commitCmd)
	TxnCommands.AddCommand(rollbackCmd)
	TxnCommands.AddCommand(runCmd)
	TxnCommands.AddCommand(perfTestCmd)
}

// setupTxnClient initializes the txn RPC client
func setupTxnClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config := util.GetClientConfig()
	shardId := util.GetShardID()

	// Get serializer and transport
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	t, err := util.GetTransport()
	if err != nil {
		return err
	}

	txnClient, err = client.NewTxnClient(
		shardId,
		*config,
		t,
		s,
	)

	return err
}

// parseTxnID parses a session id argument
func parseTxnID(s string) (uint32, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid txn id %q (expected a positive number)", s)
	}
	return uint32(id), nil
}

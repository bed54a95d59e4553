package raw

import (
	"github.com/ValentinKolb/kvproxy/cmd/util"
	"github.com/ValentinKolb/kvproxy/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rawClient *client.RawClient

	// RawCommands represents the raw command group
	RawCommands = &cobra.Command{
		Use:               "raw",
		Short:             "Perform raw key-value operations",
		PersistentPreRunE: setupRawClient,
	}
)

func init() {
	// Add common RPC flags to the raw command
	util.SetupRPCClientFlags(RawCommands)

	// Default shard ID for raw operations (different from the txn default)
	RawCommands.PersistentFlags().Int("shard", 100, util.WrapString("ID of the shard to connect to"))

	// Add subcommands
	RawCommands.AddCommand(getCmd)
	RawCommands.AddCommand(putCmd)
	RawCommands.AddCommand(delCmd)
}

// setupRawClient initializes the raw RPC client
func setupRawClient(cmd *cobra.Command, _ []string) error {
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

	rawClient, err = client.NewRawClient(
		shardId,
		*config,
		t,
		s,
	)

	return err
}

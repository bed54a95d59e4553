package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/kvproxy/cmd/raw"
	"github.com/ValentinKolb/kvproxy/cmd/serve"
	"github.com/ValentinKolb/kvproxy/cmd/txn"
	"github.com/ValentinKolb/kvproxy/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "kvproxy",
		Short: "RPC proxy for raw and transactional key-value access",
		Long: fmt.Sprintf(`kvproxy (v%s)

A network facing proxy that exposes the raw and transactional operations of a
key-value store over RPC. Transactions live on the server between calls and are
referenced by session ids.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kvproxy",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kvproxy v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(raw.RawCommands)
	RootCmd.AddCommand(txn.TxnCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (binary, json, gob)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix, http, grpc)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

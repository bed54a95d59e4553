package raw

import (
	"fmt"

	"github.com/ValentinKolb/kvproxy/cmd/util"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Gets the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := rawClient.Get([]byte(args[0]))
			if err != nil {
				return util.StatusError(err)
			}
			fmt.Println(string(value))
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rawClient.Put([]byte(args[0]), []byte(args[1])); err != nil {
				return util.StatusError(err)
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "delete [key]",
		Short: "Deletes a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rawClient.Delete([]byte(args[0])); err != nil {
				return util.StatusError(err)
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
)

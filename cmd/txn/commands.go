package txn

import (
	"fmt"

	"github.com/ValentinKolb/kvproxy/cmd/util"
	"github.com/spf13/cobra"
)

var (
	beginCmd = &cobra.Command{
		Use:   "begin",
		Short: "Starts a transaction and prints its id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := util.GetMode()
			if err != nil {
				return err
			}
			id, err := txnClient.Begin(mode)
			if err != nil {
				return util.StatusError(err)
			}
			fmt.Println(id)
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [txn-id] [key]",
		Short: "Gets the value for a key within a transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTxnID(args[0])
			if err != nil {
				return err
			}
			value, err := txnClient.Get(id, []byte(args[1]))
			if err != nil {
				return util.StatusError(err)
			}
			fmt.Println(string(value))
			return nil
		},
	}
	putCmd = &cobra.Command{
		Use:   "put [txn-id] [key] [value]",
		Short: "Sets the value for a key within a transaction",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTxnID(args[0])
			if err != nil {
				return err
			}
			if err := txnClient.Put(id, []byte(args[1]), []byte(args[2])); err != nil {
				return util.StatusError(err)
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "delete [txn-id] [key]",
		Short: "Deletes a key within a transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTxnID(args[0])
			if err != nil {
				return err
			}
			if err := txnClient.Delete(id, []byte(args[1])); err != nil {
				return util.StatusError(err)
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
	commitCmd = &cobra.Command{
		Use:   "commit [txn-id]",
		Short: "Commits a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTxnID(args[0])
			if err != nil {
				return err
			}
			if err := txnClient.Commit(id); err != nil {
				return util.StatusError(err)
			}
			fmt.Println("committed successfully")
			return nil
		},
	}
	rollbackCmd = &cobra.Command{
		Use:   "rollback [txn-id]",
		Short: "Rolls back a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseTxnID(args[0])
			if err != nil {
				return err
			}
			if err := txnClient.Rollback(id); err != nil {
				return util.StatusError(err)
			}
			fmt.Println("rolled back successfully")
			return nil
		},
	}
)

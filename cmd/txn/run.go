package txn

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/kvproxy/cmd/util"
	"github.com/ValentinKolb/kvproxy/lib/classify"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [op...]",
	Short: "Runs a sequence of operations in one transaction",
	Long: `Runs a sequence of operations in a single transaction and commits it. If an
operation fails the transaction is rolled back. Operations are written as

  get:KEY  put:KEY=VALUE  delete:KEY

e.g. kvproxy txn run put:a=1 put:b=2 get:a`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ops, err := parseOps(args)
		if err != nil {
			return err
		}
		mode, err := util.GetMode()
		if err != nil {
			return err
		}

		err = txnClient.Run(mode, func(id uint32) error {
			for _, o := range ops {
				if err := o.apply(id); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return util.StatusError(err)
		}
		fmt.Println("committed successfully")
		return nil
	},
}

type opKind string

const (
	opGet    opKind = "get"
	opPut    opKind = "put"
	opDelete opKind = "delete"
)

// op is a single operation of a run
type op struct {
	kind  opKind
	key   string
	value string
}

// apply executes the operation in the transaction id, a missing key on get is not an error
func (o op) apply(id uint32) error {
	switch o.kind {
	case opGet:
		value, err := txnClient.Get(id, []byte(o.key))
		if classify.IsNotFound(err) {
			fmt.Printf("%s: (not found)\n", o.key)
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", o.key, value)
		return nil
	case opPut:
		return txnClient.Put(id, []byte(o.key), []byte(o.value))
	case opDelete:
		return txnClient.Delete(id, []byte(o.key))
	default:
		return fmt.Errorf("unknown operation %s", o.kind)
	}
}

// parseOps parses the operations of a run
func parseOps(args []string) ([]op, error) {
	ops := make([]op, 0, len(args))
	for _, arg := range args {
		kind, rest, ok := strings.Cut(arg, ":")
		if !ok || rest == "" {
			return nil, fmt.Errorf("invalid operation %q (expected get:KEY, put:KEY=VALUE or delete:KEY)", arg)
		}
		switch opKind(kind) {
		case opGet, opDelete:
			ops = append(ops, op{kind: opKind(kind), key: rest})
		case opPut:
			key, value, ok := strings.Cut(rest, "=")
			if !ok || key == "" {
				return nil, fmt.Errorf("invalid put %q (expected put:KEY=VALUE)", arg)
			}
			ops = append(ops, op{kind: opPut, key: key, value: value})
		default:
			return nil, fmt.Errorf("unknown operation %q in %q", kind, arg)
		}
	}
	return ops, nil
}

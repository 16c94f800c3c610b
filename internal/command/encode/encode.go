package encode

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"chainjobs/internal/chain/encoder"
)

func GetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <function>...",
		Short: "Prints the call data for argument-less contract functions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range args {
				data, err := encoder.Encode(name)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", encoder.Signature(name), hexutil.Encode(data))
			}
			return nil
		},
	}
}

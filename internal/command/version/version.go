package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"chainjobs/internal/command"
)

func GetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Returns the current chainjobs version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), command.Version)
		},
	}
}

package root

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chainjobs/internal/command"
	"chainjobs/internal/command/check"
	"chainjobs/internal/command/encode"
	"chainjobs/internal/command/run"
	"chainjobs/internal/command/version"
)

type RootCommand struct {
	baseCmd *cobra.Command
	cfgPath string
}

// NewRootCommand builds the CLI. Without a subcommand it behaves like run.
func NewRootCommand() *RootCommand {
	rootCommand := &RootCommand{}
	rootCommand.baseCmd = &cobra.Command{
		Use:           "chainjobs",
		Short:         "chainjobs periodically calls smart contract functions on a blockchain node",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run.Run(cmd.Context(), rootCommand.cfgPath)
		},
	}
	command.RegisterConfigFlag(rootCommand.baseCmd, &rootCommand.cfgPath)

	rootCommand.registerSubCommands()

	return rootCommand
}

func (rc *RootCommand) registerSubCommands() {
	rc.baseCmd.AddCommand(
		run.GetCommand(),
		check.GetCommand(),
		encode.GetCommand(),
		version.GetCommand(),
	)
}

// Command exposes the underlying cobra command.
func (rc *RootCommand) Command() *cobra.Command { return rc.baseCmd }

func (rc *RootCommand) Execute() {
	if err := rc.baseCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)

		os.Exit(1)
	}
}

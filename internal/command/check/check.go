package check

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chainjobs/internal/chain/rpc"
	"chainjobs/internal/command"
	"chainjobs/internal/config"
	logx "chainjobs/pkg/logx"
)

func GetCommand() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probes the configured node and prints its client version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCheck(cmd, cfgPath)
		},
	}
	command.RegisterConfigFlag(cmd, &cfgPath)
	return cmd
}

func runCheck(cmd *cobra.Command, cfgPath string) error {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return err
	}
	timeout, err := config.ParseDurationOmitted("node.call_timeout", cfg.Node.CallTimeout, rpc.DefaultCallTimeout)
	if err != nil {
		return err
	}
	node := rpc.New(rpc.Config{URL: strings.TrimSpace(cfg.Node.URL), CallTimeout: timeout}, logx.Nop())
	defer node.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	version, err := node.ClientVersion(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(cmd.OutOrStdout(), version)
	return nil
}

package command

import "github.com/spf13/cobra"

const (
	DefaultConfigPath = "./config.yaml"
	ConfigFlag        = "config"
)

// Version is set at build time with -ldflags "-X chainjobs/internal/command.Version=...".
var Version = "dev"

// RegisterConfigFlag adds the --config flag to cmd.
func RegisterConfigFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, ConfigFlag, "c", DefaultConfigPath, "path to the JSON or YAML config file")
}

// Package cli implements the gatekeeper command line.
package cli

import (
	"github.com/spf13/cobra"
)

// rootOptions are the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd creates the root gatekeeper command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "gatekeeper",
		Short: "Rate limit admission control with time travel",
		Long: `Gatekeeper decides, per client, whether a request is admitted under one of
five rate limiting algorithms. Serve them over HTTP, simulate traffic on a
virtual clock, or replay recorded traffic through several algorithms at once.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config")

	root.AddCommand(
		newServerCmd(opts),
		newSimulateCmd(opts),
		newReplayCmd(opts),
		newGenerateCmd(),
	)

	return root
}

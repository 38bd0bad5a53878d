package cmd

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	configSet  bool
	logLevel   string
}

// NewRootCmd builds the plugrun command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "plugrun",
		Short: "plugrun - plug execution engine",
		Long: `plugrun hosts provider plugs: it validates their field values, decides
when they are eligible to run and invokes them with bound parameters.

Commands inspect and run individual plugs, or serve the admin API together
with the scheduler.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.configSet = cmd.Flags().Changed("config")
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "plugrun.yaml", "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newListCmd(opts),
		newValidateCmd(opts),
		newEligibleCmd(opts),
		newRunCmd(opts),
		newServeCmd(opts),
	)

	return rootCmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

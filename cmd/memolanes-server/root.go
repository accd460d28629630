package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

// flagBootstrapFile is the optional TOML config file path, bound to
// every subcommand the same way a CLI's root command binds a shared
// --config flag.
var flagBootstrapFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "memolanes-server",
		Short:         "Personal geospatial snapshot sync and archive service",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagBootstrapFile, "config", "", "optional TOML bootstrap config file path")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSchedulerOnceCmd())

	return cmd
}

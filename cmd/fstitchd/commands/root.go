// Package commands implements fstitchd's CLI surface.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "fstitchd",
	Short: "featherstitch block-device daemon",
	Long: `fstitchd runs the featherstitch patch-graph stack: a dependency
engine, a write-back cache, and a leaf block device (in-memory or
file-backed), with an optional debug trace sink and Prometheus metrics.

Use "fstitchd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/featherstitch/config.yaml)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(groupCmd)
	rootCmd.AddCommand(versionCmd)
}

// GetConfigFile returns the --config flag value.
func GetConfigFile() string {
	return cfgFile
}

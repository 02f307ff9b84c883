// Package commands implements fstitchctl's CLI surface.
package commands

import "github.com/spf13/cobra"

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "fstitchctl",
	Short: "Inspect featherstitch device files, trace logs, and WAL state",
	Long: `fstitchctl reads the on-disk artifacts an fstitchd process
produces — a device file, a §6 debug trace log, a dirty-block WAL — and
reports on them. It does not talk to a running fstitchd over the
network; there is no such transport in this module.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(walCmd)
	rootCmd.AddCommand(versionCmd)
}

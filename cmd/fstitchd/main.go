// Command fstitchd runs the featherstitch block-device stack as a
// long-lived process: a patch-graph engine in front of a write-back
// cache in front of a leaf block device, with the periodic dirty-limit
// maintenance loop and optional debug trace / Prometheus metrics.
package main

import (
	"fmt"
	"os"

	"github.com/ucla-readable/featherstitch/cmd/fstitchd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

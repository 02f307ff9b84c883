// Command fstitchctl inspects the artifacts an fstitchd process leaves
// behind: a device file's block layout, a debug trace log, and a WAL
// persister's recovered dirty set. There is no RPC transport between
// fstitchd and fstitchctl — the patch graph and engine are process-
// local and were never meant to be reached over the network (spec.md
// §1 places filesystem front-ends and their wire protocols out of
// scope) — so fstitchctl is a client to fstitchd's on-disk artifacts,
// not to a running process.
package main

import (
	"fmt"
	"os"

	"github.com/ucla-readable/featherstitch/cmd/fstitchctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

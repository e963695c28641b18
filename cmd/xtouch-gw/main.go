// Command xtouch-gw is the reference gateway binary: it wires the Control
// Map, State Actor, Persistence Actor, Driver Registry, Surface Driver, and
// Router described in internal/ into a running process, following the
// bootstrap/hot-reload and graceful-shutdown conventions laid out in
// internal/bootstrap and internal/runner.
package main

import (
	"fmt"
	"os"

	"github.com/juliencr/xtouch-gw/cmd/xtouch-gw/commands"
)

// Build-time variables injected via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.Date = date

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

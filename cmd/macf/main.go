// Command macf is the agent telemetry and recovery substrate: an
// append-only event log, hook lifecycle handlers, a layered policy
// manifest and search index, a warm search daemon, and an optional
// reverse proxy, all driven through one CLI.
package main

import (
	"os"
	"runtime/debug"

	"github.com/cversek/macf/internal/commands"
)

// version is set via ldflags (-X main.version=v1.0.0) or detected
// automatically from Go module info embedded by go install.
var version = "dev"

func main() {
	if version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			version = info.Main.Version
		}
	}
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}

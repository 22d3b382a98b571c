// ragdesk - upload documents for retrieval and manage their categories.
package main

import (
	"os"

	"github.com/ragdesk/ragdesk/internal/cli"
	"github.com/ragdesk/ragdesk/internal/version"
)

// Version information, overridden by ldflags in release builds.
var (
	Version   = "v0.3.0-dev"
	BuildTime = "unknown"
)

func main() {
	// internal/version is the single source read by every package
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

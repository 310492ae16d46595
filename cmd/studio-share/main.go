// studio-share uploads files and folders to a storage server over SSH.
package main

import (
	"os"

	"github.com/45Drives/studio-share-sub000/internal/cli"
	"github.com/45Drives/studio-share-sub000/internal/version"
)

// Set by -ldflags at release time.
var (
	Version   = "v0.1.0-dev"
	BuildTime = "unknown"
)

func main() {
	version.Version = Version
	version.BuildTime = BuildTime

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

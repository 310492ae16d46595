// Package version holds build information shared by the CLI and logs.
package version

// Version is the build version string, set by main at startup.
var Version = "v0.1.0-dev"

// BuildTime is the build timestamp, set by main at startup.
var BuildTime = "unknown"

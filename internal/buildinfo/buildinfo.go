// Package buildinfo exposes compile-time metadata of the loginbridge binary.
package buildinfo

// Overridden via ldflags during release builds.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

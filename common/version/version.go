// Package version carries build metadata stamped in at link time.
package version

var (
	// Version is the semantic version, overridden via ldflags.
	Version = "v0.0.0-dev"

	// GitCommit is the short commit hash, overridden via ldflags.
	GitCommit = "unknown"

	// BuildTime is the build timestamp, overridden via ldflags.
	BuildTime = "unknown"
)

// Info renders the version line printed at startup.
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}

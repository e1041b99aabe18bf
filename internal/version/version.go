// Package version carries build identification stamped in via -ldflags.
package version

var (
	// Version is the release tag, or "dev" for unstamped builds.
	Version = "dev"
	// GitSHA identifies the exact commit.
	GitSHA = "unknown"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

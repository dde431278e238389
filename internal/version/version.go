// Package version carries build identification stamped in via
// ldflags. The defaults mark a local, unstamped build.
package version

var (
	// Version is the release tag, or this fallback for go-run builds.
	Version = "v0.1.0-dev"

	// Commit is the git short hash of the build.
	Commit = "unknown"

	// Date is the build timestamp.
	Date = "unknown"
)

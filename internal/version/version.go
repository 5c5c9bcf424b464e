// Package version holds build metadata for the recall binary.
package version

// Injected via -ldflags "-X github.com/kailas-cloud/recall/internal/version.Version=..."
// at release build time; the zero values identify a local build.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

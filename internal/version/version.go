// Package version carries build metadata stamped in with -ldflags, e.g.
// -X github.com/banshee-data/racelogger/internal/version.Version=v0.3.0.
package version

import "fmt"

var (
	// Version is the current application version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build metadata for startup logs and the debug page.
func String() string {
	sha := GitSHA
	if len(sha) > 12 {
		sha = sha[:12]
	}
	return fmt.Sprintf("racelogger %s (%s, built %s)", Version, sha, BuildTime)
}

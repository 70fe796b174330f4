// Package version identifies the build that produced a fit run. The values
// are set with -ldflags "-X github.com/banshee-data/mcopt/internal/version.Version=...".
package version

import "fmt"

var (
	Version = "dev"
	GitSHA  = "unknown"
)

// String returns Version, followed by the short commit when it is known.
func String() string {
	if GitSHA == "" || GitSHA == "unknown" {
		return Version
	}
	sha := GitSHA
	if len(sha) > 7 {
		sha = sha[:7]
	}
	return fmt.Sprintf("%s+%s", Version, sha)
}

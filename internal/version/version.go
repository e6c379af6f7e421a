// Package version carries build metadata injected via ldflags, e.g.:
//
//	go build -ldflags "-X github.com/rvaughn/predfeed/internal/version.Version=0.3.0 \
//	                   -X github.com/rvaughn/predfeed/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

var (
	// Version is the release version, "dev" for local builds.
	Version = "dev"

	// Commit is the short git commit hash.
	Commit = "unknown"
)

// String renders the version for logs and the health endpoint.
func String() string {
	return Version + " (" + Commit + ")"
}

// Package version carries build identification, set via -ldflags at
// release time.
package version

var (
	// Version is the release version of the analyzer.
	Version = "dev"
	// GitSHA is the git commit the binary was built from.
	GitSHA = "unknown"
	// BuildTime is when the binary was built.
	BuildTime = "unknown"
)

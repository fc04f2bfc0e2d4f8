package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var Version string

// Commit is stamped at build time with -ldflags "-X .../pkg/version.Commit=<sha>"
var Commit string

// Get returns the release version, e.g. v0.1.0
func Get() string {
	return strings.TrimSpace(Version)
}

// Full returns the release version with the build commit when known
func Full() string {
	if Commit == "" {
		return Get()
	}
	return Get() + " (" + Commit + ")"
}

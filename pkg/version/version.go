// Package version holds the docscout version string.
package version

// Version is the current docscout version.
// Overridden at build time via -ldflags "-X github.com/docscout/docscout/pkg/version.Version=...".
var Version = "0.3.0"

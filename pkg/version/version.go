// Package version carries build information for tradingrag.
package version

import (
	"fmt"
	"runtime"
)

// Name is the binary name.
const Name = "tradingrag"

// Version is set via ldflags:
// -X github.com/russo2100/trading-analytics-rag/pkg/version.Version=$(VERSION)
var Version = "dev"

// Set via ldflags at build time.
var (
	Commit = "unknown"
	// Date is RFC3339.
	Date = "unknown"

	GoVersion = runtime.Version()
)

// BuildInfo is version information for JSON output.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// String returns the version line with build details.
func String() string {
	return fmt.Sprintf("%s %s (commit: %s, built: %s, go: %s)",
		Name, Version, Commit, Date, GoVersion)
}

// Short returns just the version.
func Short() string {
	return Version
}

// GetInfo returns structured version information.
func GetInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

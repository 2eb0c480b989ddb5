package contracts

import (
	"fmt"
	"runtime"
)

const (
	// APIVersion is the version of the local license API and its events
	APIVersion = "v1"

	// LicenseFormatVersion is the version tag of license strings
	LicenseFormatVersion = "CG1"
)

var (
	// Version is set during build using ldflags
	Version = "0.4.0-dev"

	// BuildTime is set during build using ldflags
	BuildTime = "unknown"

	// GitCommit is set during build using ldflags
	GitCommit = "unknown"
)

// VersionInfo contains detailed version information
type VersionInfo struct {
	Version       string `json:"version"`
	Edition       string `json:"edition"`
	BuildTime     string `json:"build_time"`
	GitCommit     string `json:"git_commit"`
	GoVersion     string `json:"go_version"`
	OS            string `json:"os"`
	Architecture  string `json:"architecture"`
	LicenseFormat string `json:"license_format"`
	APIVersion    string `json:"api_version"`
}

// GetVersionInfo returns detailed version information for the given
// edition ("premium" or "free").
func GetVersionInfo(edition string) VersionInfo {
	return VersionInfo{
		Version:       Version,
		Edition:       edition,
		BuildTime:     BuildTime,
		GitCommit:     GitCommit,
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Architecture:  runtime.GOARCH,
		LicenseFormat: LicenseFormatVersion,
		APIVersion:    APIVersion,
	}
}

// GetVersionString returns a formatted version string
func GetVersionString(edition string) string {
	return fmt.Sprintf("CicadaGallery v%s (%s)", Version, edition)
}

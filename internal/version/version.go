// Package version provides build-time version information for dsf and dsfd.
package version

import (
	"fmt"
	"runtime"
	"time"
)

// Build-time variables, set with ldflags:
//
//	go build -ldflags "-X dsf/internal/version.Version=1.0.0 \
//	                   -X dsf/internal/version.Commit=abc123 \
//	                   -X dsf/internal/version.BuildTime=2024-01-01T00:00:00Z"
var (
	// Version is the semantic version of the application.
	Version = "0.1.0-dev"

	// Commit is the git commit hash.
	Commit = "unknown"

	// BuildTime is the RFC3339 timestamp of when the binary was built.
	BuildTime = ""

	// DevMode is "false" in release builds:
	//   -X dsf/internal/version.DevMode=false
	DevMode = "true"
)

// Info contains version information.
type Info struct {
	Version   string    `json:"version" yaml:"version"`
	Commit    string    `json:"commit" yaml:"commit"`
	BuildTime time.Time `json:"build_time" yaml:"build_time"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	OS        string    `json:"os" yaml:"os"`
	Arch      string    `json:"arch" yaml:"arch"`
	DevMode   bool      `json:"dev_mode" yaml:"dev_mode"`
}

// IsDev reports whether this is a development build.
func IsDev() bool {
	return DevMode == "true"
}

// Get returns the version information.
func Get() Info {
	var buildTime time.Time
	if BuildTime != "" {
		if t, err := time.Parse(time.RFC3339, BuildTime); err == nil {
			buildTime = t
		}
	}

	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
		DevMode:   IsDev(),
	}
}

// String returns a short version string.
func (i Info) String() string {
	if i.Commit != "unknown" && len(i.Commit) > 7 {
		return fmt.Sprintf("%s (%s)", i.Version, i.Commit[:7])
	}
	return i.Version
}

// Full returns a detailed, multi-line version string.
func (i Info) Full() string {
	built := "unknown"
	if !i.BuildTime.IsZero() {
		built = i.BuildTime.Format(time.RFC3339)
	}
	return fmt.Sprintf("Version: %s\nCommit: %s\nBuild Time: %s\nGo Version: %s\nOS/Arch: %s/%s",
		i.Version, i.Commit, built, i.GoVersion, i.OS, i.Arch)
}

// Package version reports how the pulsed binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/teranos/pulsed/version.Version=..."
var (
	Version    = "dev"
	CommitHash = ""
	BuildTime  = ""
)

// Info describes the running binary
type Info struct {
	Version    string `json:"version"`
	CommitHash string `json:"commit_hash"`
	BuildTime  string `json:"build_time"`
	Modified   bool   `json:"modified,omitempty"` // built from a dirty tree
	GoVersion  string `json:"go_version"`
	Platform   string `json:"platform"`
}

// readBuildInfo is swapped out in tests
var readBuildInfo = debug.ReadBuildInfo

// Get returns the build information. Values missing from ldflags are taken
// from the VCS stamp go build embeds.
func Get() Info {
	info := Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := readBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.CommitHash == "" {
					info.CommitHash = s.Value
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	if info.CommitHash == "" {
		info.CommitHash = "unknown"
	}
	if info.BuildTime == "" {
		info.BuildTime = "unknown"
	}
	return info
}

// Short returns the first seven characters of the commit
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}

func (i Info) String() string {
	commit := i.Short()
	if i.Modified {
		commit += "+dirty"
	}
	return fmt.Sprintf("pulsed %s (commit %s, built %s)", i.Version, commit, i.BuildTime)
}

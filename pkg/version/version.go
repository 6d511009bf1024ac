// Package version reports the sf-flow build version.
package version

import "runtime/debug"

// Set at build time with -ldflags "-X github.com/sunyxi/salesforce-flow-cli/pkg/version.version=v1.2.3".
//
//nolint:gochecknoglobals // Build-time injected values.
var (
	version   = ""
	gitCommit = ""
)

const devVersion = "dev"

// GetVersion returns the injected version, the module version from build info, or "dev".
func GetVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return devVersion
}

// GetGitCommit returns the injected commit or the VCS revision from build info.
func GetGitCommit() string {
	if gitCommit != "" {
		return gitCommit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return ""
}

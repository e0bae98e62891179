// Package version reports the taskpilot build version.
package version

import (
	_ "embed"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var versionContent string

// Override is set at build time with -ldflags "-X .../version.Override=v1.2.3".
var Override string

// Get returns the current version, with whitespace trimmed.
func Get() string {
	if Override != "" {
		return Override
	}
	return strings.TrimSpace(versionContent)
}

// Commit returns the VCS revision recorded by the Go toolchain, if any.
func Commit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return ""
}

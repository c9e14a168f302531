// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags -X at build time.
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// Build is the build identity reported by the status action.
type Build struct {
	Version   string `cbor:"version"`
	Commit    string `cbor:"commit"`
	Dirty     bool   `cbor:"dirty"`
	BuildTime string `cbor:"build_time"`
	Go        string `cbor:"go"`
}

// Current returns the running binary's build identity. When the
// linker did not inject a commit, the VCS stamp recorded by the Go
// toolchain is used instead.
func Current() Build {
	build := Build{
		Version:   Version,
		Commit:    GitCommit,
		Dirty:     GitDirty == "true",
		BuildTime: BuildTime,
		Go:        runtime.Version(),
	}
	if build.Commit != "unknown" {
		return build
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return build
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			build.Commit = setting.Value
			if len(build.Commit) > 12 {
				build.Commit = build.Commit[:12]
			}
		case "vcs.modified":
			build.Dirty = setting.Value == "true"
		case "vcs.time":
			if build.BuildTime == "unknown" {
				build.BuildTime = setting.Value
			}
		}
	}
	return build
}

// Info returns the one-line form printed by --version.
func Info() string {
	build := Current()
	dirty := ""
	if build.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", build.Version, build.Commit, dirty, build.BuildTime)
}

// Full adds the Go version and platform to Info.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

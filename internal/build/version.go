// Package build carries build-time metadata and the logging
// infrastructure shared by the shousai binaries: version information
// injected by the linker, a fan-out log handler for dual console/file
// streams, and a rotating file writer.
package build

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Commit is the full git commit hash the binary was built from. It is
// set by the linker; when empty, CommitHash from the embedded build
// info is the fallback.
var Commit string

var (
	// CommitHash is the vcs revision recorded in the Go build info.
	CommitHash string

	// GoVersion is the Go toolchain the binary was built with.
	GoVersion string

	// RawTags is the comma separated list of build tags the binary was
	// built with.
	RawTags string
)

const (
	// appMajor defines the major version of this binary.
	appMajor uint = 0

	// appMinor defines the minor version of this binary.
	appMinor uint = 1

	// appPatch defines the application patch for this binary.
	appPatch uint = 0

	// appPreRelease must only contain characters from the semantic
	// version alphabet.
	appPreRelease = "beta"
)

func init() {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}

	GoVersion = info.GoVersion

	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			CommitHash = setting.Value
		case "-tags":
			RawTags = setting.Value
		}
	}
}

// Version returns the application version as a semantic version string.
func Version() string {
	version := fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)

	if appPreRelease != "" {
		version = fmt.Sprintf("%s-%s", version, appPreRelease)
	}

	return version
}

// Tags returns the build tags compiled into the binary.
func Tags() []string {
	if RawTags == "" {
		return nil
	}

	return strings.Split(RawTags, ",")
}

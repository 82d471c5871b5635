package buildinfo

import (
	"runtime"
	"runtime/debug"
)

// BinaryVersion is set at build time via -ldflags. Defaults to "dev".
var BinaryVersion = "dev"

// Commit and BuildDate are optionally set at build time via -ldflags.
var (
	Commit    = ""
	BuildDate = ""
)

// ModuleVersion returns the module version embedded by the Go toolchain (when available).
func ModuleVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return ""
}

// Info is the structured form printed by `draftfix version --as-json`.
type Info struct {
	Version       string `json:"version" yaml:"version"`
	ModuleVersion string `json:"module_version,omitempty" yaml:"module_version,omitempty"`
	Commit        string `json:"commit,omitempty" yaml:"commit,omitempty"`
	BuildDate     string `json:"build_date,omitempty" yaml:"build_date,omitempty"`
	GoVersion     string `json:"go_version" yaml:"go_version"`
	Platform      string `json:"platform" yaml:"platform"`
}

// Current collects the build metadata of the running binary.
func Current() Info {
	return Info{
		Version:       BinaryVersion,
		ModuleVersion: ModuleVersion(),
		Commit:        Commit,
		BuildDate:     BuildDate,
		GoVersion:     runtime.Version(),
		Platform:      runtime.GOOS + "/" + runtime.GOARCH,
	}
}

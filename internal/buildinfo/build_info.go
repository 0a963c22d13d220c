// Package buildinfo describes the build of the materialite binaries.
package buildinfo

import "fmt"

// BuildInfo is set at link time with -ldflags "-X main.version=...".
type BuildInfo struct {
	Program    string
	Version    string
	CommitHash string
	BuildDate  string
}

// String renders the build info in a single line.
func (i BuildInfo) String() string {
	program := i.Program
	if program == "" {
		program = "materialite"
	}
	return fmt.Sprintf("%s version %s (%s) built on %s", program, i.Version, i.CommitHash, i.BuildDate)
}

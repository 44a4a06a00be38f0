// Package version carries build metadata injected via -ldflags, e.g.
//
//	-X screencast/internal/version.BuildNumber=42 -X screencast/internal/version.GitCommit=abc123
package version

// Defaults are used for local builds.
var (
	BuildNumber = "dev"
	GitCommit   = ""
)

// Info is the build metadata as reported on the health endpoint.
type Info struct {
	Build  string `json:"build"`
	Commit string `json:"commit,omitempty"`
}

func Current() Info {
	commit := GitCommit
	if commit == "unknown" {
		commit = ""
	}
	return Info{Build: BuildNumber, Commit: commit}
}

// String returns a concise version string for logs and -version output.
func String() string {
	info := Current()
	if info.Commit == "" {
		return "screencast " + info.Build
	}
	return "screencast " + info.Build + " (" + info.Commit + ")"
}

package version

import "fmt"

// Version is the fwbuilder release, set at build time:
// go build -ldflags "-X git.home.luguber.info/inful/fwbuilder/internal/version.Version=v1.0.0".
var Version = "unknown"

// BuildInfo contains additional build metadata.
var (
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// String renders the version line printed by --version.
func String() string {
	return fmt.Sprintf("fwbuilder %s (commit %s, built %s)", Version, GitCommit, BuildTime)
}

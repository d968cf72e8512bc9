package version

import "fmt"

// Set at build time with -ldflags "-X github.com/memohai/jobrelay/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

func GetInfo() string {
	return fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildTime)
}

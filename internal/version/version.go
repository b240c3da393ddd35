package version

import "fmt"

// Overridden at build time with -ldflags "-X".
var (
	CLIName    = "kda"
	CLIVersion = "0.1.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

func Long() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", CLIVersion, Commit, BuildDate)
}

// UserAgent identifies the CLI to chainweb nodes and the indexer.
func UserAgent() string {
	return CLIName + "/" + CLIVersion
}

package main

import (
	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/SevenOfNine-ai/redditgw/internal/cmd"
	"github.com/SevenOfNine-ai/redditgw/internal/server/handlers"
)

// Set via -ldflags "-X main.version=... -X main.commit=... -X main.buildDate=..."
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		cmd.ExitWithCodeStderr(foundry.ExitFailure, "redditgw failed", err)
	}
}

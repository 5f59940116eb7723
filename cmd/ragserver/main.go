// Package main is the entry point for the ragserver CLI application.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"ragserver/internal/cli"
)

// Version information (set at build time via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Load API keys and overrides from a local .env file if present.
	_ = godotenv.Load()

	cli.SetVersionInfo(version, commit, date)

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

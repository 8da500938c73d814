// Package main provides the entry point for manual-align.
package main

import (
	"os"

	"manual-align/internal/cli"
	"manual-align/internal/version"
)

func main() {
	cli.SetVersion(version.Version, version.GitCommit, version.BuildTime)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

// Package main provides the entry point for the clauderonctl CLI.
package main

import (
	"os"

	"github.com/clauderon/clauderon-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

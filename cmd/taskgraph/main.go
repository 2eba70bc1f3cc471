// Package main implements the taskgraph CLI.
// It discovers task-annotated functions, queries a language server for their
// callers, and classifies how often each call relationship executes.
package main

import (
	"fmt"
	"os"

	"github.com/jeremyadavis/turbo/cmd/taskgraph/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.SetVersion(version, buildTime)
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Package main provides the entry point for the wagate gateway.
package main

import (
	"fmt"
	"os"

	"github.com/opencode-ai/wagate/cmd/wagate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

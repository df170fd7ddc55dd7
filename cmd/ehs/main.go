package main

import (
	"fmt"
	"os"

	"ehs/internal/cli"
)

// main only builds the command tree; wiring lives in internal/cli.
func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ehs:", err)
		os.Exit(1)
	}
}

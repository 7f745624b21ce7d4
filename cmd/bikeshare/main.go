// Package main is the entry point for the bikeshare CLI.
package main

import (
	"os"

	"github.com/runger/bikeshare/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

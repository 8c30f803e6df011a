// Package main provides the entry point for the moviesearch CLI.
package main

import (
	"os"

	"github.com/utafrali/moviesearch/cmd/moviesearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

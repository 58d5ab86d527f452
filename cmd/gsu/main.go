// Package main is the entry point for gsu, the gsutil wrapper harness.
package main

import (
	"os"

	"github.com/kumasuke/gsu/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

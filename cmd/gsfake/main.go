// Package main is the entry point for gsfake, a gsutil-compatible fake
// storage tool.
package main

import (
	"os"

	"github.com/kumasuke/gsu/internal/toolcli"
)

func main() {
	os.Exit(toolcli.Execute())
}

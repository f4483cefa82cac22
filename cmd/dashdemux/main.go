// Package main is the entry point for dashdemux.
package main

import (
	"os"

	"github.com/go-dash/dashdemux/cmd/dashdemux/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

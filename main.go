// Copyright (c) 2026 Joinguard Team
// Joinguard - out-of-band login confirmation for game servers
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for Joinguard.
//
// Usage:
//
//	go run . serve
//	./joinguard [command] [flags]
//
// See --help for the available commands.
package main

import (
	"os"

	log "github.com/charmbracelet/log"
	"github.com/toeirei/joinguard/ui/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Errorf("joinguard: %v", err)
		os.Exit(1)
	}
}

// Copyright (c) 2026 ToeiRei
// Warden - privileged account lifecycle manager for SSH fleets
// This source code is licensed under the MIT license found in the LICENSE file.

// Command-line entrypoint for Warden.
//
// Usage:
//
//	go run . [flags]
//	./warden [flags]
//
// This launches the Warden CLI. See --help for options.
package main

import (
	"log"
	"os"

	"github.com/toeirei/warden/ui/cli"
)

// main is the entrypoint for the Warden CLI.
func main() {
	if err := cli.Execute(); err != nil {
		log.Printf("Warden CLI error: %v", err)
		os.Exit(1)
	}
}

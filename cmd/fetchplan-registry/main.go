// Package main provides the CLI entrypoint for fetchplan-registry.
//
// fetchplan-registry loads fetch plan definitions for an entity model and:
//   - checks them for structural errors and duplicates
//   - prints resolved plans
//   - serves them over HTTP, reloading when definition files change
package main

import (
	"os"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

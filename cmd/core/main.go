// Package main is the taskin command line.
package main

import (
	"os"

	"github.com/kimhsiao/taskin/backend/internal/cli"
)

// Version is set at build time
var Version = "0.1.0"

func main() {
	if err := cli.Execute(Version); err != nil {
		os.Exit(1)
	}
}

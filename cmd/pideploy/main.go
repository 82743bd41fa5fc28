// Package main is the entry point for the pideploy command.
package main

import (
	"os"

	"github.com/pideploy/pideploy/internal/cli"
)

func main() {
	if code := cli.Execute(); code != 0 {
		os.Exit(code)
	}
}

// Package main provides the entry point for the corvidd daemon.
package main

import (
	"os"

	"github.com/corvidmem/corvid/cmd/corvidd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

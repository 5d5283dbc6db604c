// Package main provides the promptscore command line tool. It runs the
// analyzer and optimizer locally and prints JSON results.
package main

import (
	"fmt"
	"os"
)

const (
	Version = "1.0.0"
	appName = "promptscore"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

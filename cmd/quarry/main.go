// Package main provides the entry point for the quarry CLI.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/quarrysearch/quarry/cmd/quarry/cmd"
)

func main() {
	// QUARRY_* overrides can come from a local .env file.
	_ = godotenv.Load(".env")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

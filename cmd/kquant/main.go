package main

import (
	"os"

	"github.com/minjunpark/kquant/cmd/kquant/commands"
)

// main is the entry point for the kquant CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/kquant [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(int(commands.ExitCodeFor(err)))
	}
}

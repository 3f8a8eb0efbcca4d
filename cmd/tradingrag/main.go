// Package main provides the entry point for the tradingrag CLI.
package main

import (
	"os"

	"github.com/russo2100/trading-analytics-rag/cmd/tradingrag/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

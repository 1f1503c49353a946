// Package main is the entry point for the grantflow CLI.
package main

import (
	"os"

	"github.com/grantflow/grantflow/cmd/grantflow/app"
	"github.com/grantflow/grantflow/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

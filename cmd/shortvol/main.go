package main

import (
	"fmt"
	"os"

	"shortvol-trader/internal/cli"
	"shortvol-trader/internal/config"
	"shortvol-trader/internal/logging"
)

func main() {
	// The --config flag must be resolved before cobra runs because the
	// command tree is built from the loaded configuration.
	configDir := ""
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			configDir = os.Args[i+1]
		}
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger()

	rootCmd := cli.NewRootCmd(cfg, logger)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package main

import (
	"flag"
	"fmt"
	"os"

	"psbridge/internal/config"
	"psbridge/internal/daemon"
	"psbridge/internal/logging"
	"psbridge/internal/observability"
)

func main() {
	configPath := flag.String("config", "/etc/psbridge.toml", "path to the bridge configuration file")
	flag.Parse()

	logging.ConfigureRuntime()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "psbridged: %v\n", err)
		os.Exit(1)
	}

	logger := observability.InitLogger(cfg.DeviceName)

	svc, err := daemon.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "psbridged: %v\n", err)
		os.Exit(1)
	}
	if err := svc.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "psbridged: %v\n", err)
		os.Exit(1)
	}
}

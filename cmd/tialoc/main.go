package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/quantmind-br/tialoc/internal/cmd"
	"github.com/quantmind-br/tialoc/internal/config"
	"github.com/quantmind-br/tialoc/internal/core"
	"github.com/quantmind-br/tialoc/internal/logging"
	"github.com/quantmind-br/tialoc/internal/ui"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(core.ExitGeneral)
	}

	// Initialize logger
	log := logging.NewLogger(logging.Config{
		Level:   cfg.Logging.Level,
		LogFile: cfg.Paths.LogFile,
		NoColor: cfg.Logging.Color == "never",
	})

	ui.InitColors()
	if cfg.Logging.Color == "never" {
		ui.DisableColors()
	}

	// Execute root command
	rootCmd := cmd.NewRootCmd(cfg, log, version)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if ctx.Err() != nil {
			log.Warn().Msg("interrupted")
			os.Exit(core.ExitInterrupted)
		}
		log.Error().Err(err).Msg("command failed")
		os.Exit(cmd.ExitCode(err))
	}
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/muttd/internal/config"
	"github.com/marmos91/muttd/internal/daemon"
	"github.com/marmos91/muttd/internal/logger"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the ingestion daemon",
	Long: `Start the muttd ingestion daemon in the foreground.

Use --config to specify a custom configuration file, or it will use the
default location at config/mutt.yaml.

Examples:
  muttd start
  muttd start --config /etc/muttd/mutt.yaml
  MUTTD_LOGGING_DEBUG=true muttd start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	loggerCfg := logger.Config{Output: cfg.Logging.File}
	if cfg.Logging.Debug {
		loggerCfg.Level = "DEBUG"
	} else {
		loggerCfg.Level = "INFO"
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	d, err := daemon.New(cfg, logger.With("service", "muttd"))
	if err != nil {
		return fmt.Errorf("build daemon: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- d.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("muttd is running", "config", GetConfigFile())

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("shutdown signal received, initiating graceful shutdown")
		cancel()

		if err := <-runDone; err != nil {
			logger.Error("daemon shutdown error", "error", err)
			return err
		}
		logger.Info("daemon stopped gracefully")

	case err := <-runDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("daemon error", "error", err)
			return err
		}
		logger.Info("daemon stopped")
	}

	return nil
}

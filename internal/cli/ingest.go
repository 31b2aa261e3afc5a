package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/runnerr0/sitetime/internal/daemon"
	"github.com/runnerr0/sitetime/internal/logging"
)

// Execute implements the go-flags Commander interface for IngestCommand.
func (c *IngestCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Daemon.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if c.globals != nil && c.globals.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logCloser, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	tr, err := newTracker(store, cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	trackerDone := make(chan error, 1)
	go func() { trackerDone <- tr.Run(ctx) }()

	// Load state before the first request so a broken database fails fast.
	if _, err := tr.Snapshot(ctx); err != nil {
		stop()
		<-trackerDone
		return fmt.Errorf("load accounting state: %w", err)
	}

	srv := daemon.New(cfg, tr, store, logger, c.version)
	serveErr := srv.Run(ctx)
	stop()
	if err := <-trackerDone; err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

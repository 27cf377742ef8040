package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/kmu-usr/airqa/internal/app"
	"github.com/kmu-usr/airqa/internal/config"
	"github.com/kmu-usr/airqa/internal/log"
)

// runServe initializes the application and starts the HTTP API server.
func runServe(logger log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	addr, err := parseServeAddr()
	if err != nil {
		return fmt.Errorf("parsing address: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting airqa", "version", Version, "addr", addr)

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	return a.Server.Run(ctx, addr)
}

package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"lockstats/internal/config"
)

// Run assembles the container, starts it, waits for a signal or a fatal error and stops
func Run(cfg *config.Config) error {
	ctxBuild, cancelBuild := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelBuild()

	container, cleanup, err := Build(ctxBuild, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if err = container.Start(); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-sigCtx.Done():
		container.log.Info("Shutdown signal received")
	case runErr = <-container.app.Errors():
		container.log.Errorf("Stopping after fatal error: %v", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err = container.Stop(shutdownCtx); err != nil {
		return err
	}
	return runErr
}

package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gitlab.com/nevasik7/alerting/logger"
)

type HTTPServer interface {
	Start() (<-chan error, error)
	Shutdown(ctx context.Context) error
}

type EventConsumer interface {
	Run(ctx context.Context) error
}

// App runs the read API and the event consumer side by side
type App struct {
	log      logger.Logger
	httpSrv  HTTPServer
	consumer EventConsumer

	cancel context.CancelFunc
	wg     sync.WaitGroup
	errCh  chan error
}

func New(log logger.Logger, httpSrv HTTPServer, consumer EventConsumer) *App {
	return &App{
		log:      log,
		httpSrv:  httpSrv,
		consumer: consumer,
		errCh:    make(chan error, 2),
	}
}

func (a *App) Start() error {
	a.log.Debug("App started begin...")

	if a.httpSrv != nil {
		srvErr, err := a.httpSrv.Start()
		if err != nil {
			return fmt.Errorf("start HTTP server: %w", err)
		}
		go func() {
			if err, ok := <-srvErr; ok && err != nil {
				a.errCh <- fmt.Errorf("HTTP server: %w", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	if a.consumer != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := a.consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.errCh <- fmt.Errorf("event consumer: %w", err)
			}
		}()
	}

	a.log.Info("App started")
	return nil
}

// Errors reports a component that stopped on its own
func (a *App) Errors() <-chan error {
	return a.errCh
}

// Shutdown stops consuming first so no event is cut mid-pipeline, then the API
func (a *App) Shutdown(ctx context.Context) error {
	a.log.Debug("App stopped begin...")

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("consumer did not stop: %w", ctx.Err())
	}

	if a.httpSrv != nil {
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			return err
		}
	}

	a.log.Info("App stopped")
	return nil
}

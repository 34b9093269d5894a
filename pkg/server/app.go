package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	xhttp "PriceOpt/pkg/http"
	pkgkafka "PriceOpt/pkg/kafka"
	applogger "PriceOpt/pkg/logger"
)

// Option configures App.
type Option func(*App)

type background struct {
	name string
	run  func(ctx context.Context) error
}

type closer struct {
	name string
	c    io.Closer
}

// App encapsulates the application lifecycle: the HTTP server, the Kafka
// consumer, long-running background loops and the clients to close last.
type App struct {
	log             *applogger.Logger
	httpServer      *xhttp.Server
	consumer        *pkgkafka.Consumer
	loops           []background
	closers         []closer
	shutdownTimeout time.Duration
}

// New creates an App. consumer may be nil.
func New(l *applogger.Logger, httpServer *xhttp.Server, consumer *pkgkafka.Consumer, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{
		log:             l,
		httpServer:      httpServer,
		consumer:        consumer,
		shutdownTimeout: 15 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// WithBackground runs fn until the app stops. fn must return once ctx is done.
func WithBackground(name string, fn func(ctx context.Context) error) Option {
	return func(a *App) {
		if fn != nil {
			a.loops = append(a.loops, background{name: name, run: fn})
		}
	}
}

// WithCloser closes c after everything else has stopped. Closers run in
// reverse registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, closer{name: name, c: c})
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(a *App) {
		if d > 0 {
			a.shutdownTimeout = d
		}
	}
}

// Run starts every component and blocks until ctx is done or SIGINT/SIGTERM
// arrives, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	loopCtx, cancelLoops := context.WithCancel(context.Background())
	defer cancelLoops()
	var wg sync.WaitGroup
	for _, b := range a.loops {
		wg.Add(1)
		go func(b background) {
			defer wg.Done()
			if err := b.run(loopCtx); err != nil {
				a.log.Error("background loop failed", applogger.String("name", b.name), applogger.Error(err))
			}
		}(b)
		a.log.Info("background loop started", applogger.String("name", b.name))
	}

	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.log.Error("kafka consumer start error", applogger.Error(err))
			cancelLoops()
			wg.Wait()
			a.close()
			return err
		}
		a.log.Info("kafka consumer started")
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.log.Error("http server start error", applogger.Error(err))
			return errors.Join(err, a.shutdown(cancelLoops, &wg))
		}
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown(cancelLoops, &wg)
}

// shutdown stops intake first, then background loops, then closes clients.
func (a *App) shutdown(cancelLoops context.CancelFunc, wg *sync.WaitGroup) error {
	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.log.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	cancelLoops()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("background loops did not stop in time")
	}

	a.close()
	a.log.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("name", c.name), applogger.Error(err))
		}
	}
}

package server

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"FinSignal/pkg/config"
	xhttp "FinSignal/pkg/http"
	applogger "FinSignal/pkg/logger"
)

// Scheduler is the background signal loop run alongside the HTTP server.
type Scheduler interface {
	Start(ctx context.Context)
	Stop()
}

type namedCloser struct {
	name string
	c    io.Closer
}

// Option configures App.
type Option func(*App)

// WithCloser registers a resource closed on shutdown, in registration order.
func WithCloser(name string, c io.Closer) Option {
	return func(a *App) {
		if c != nil {
			a.closers = append(a.closers, namedCloser{name: name, c: c})
		}
	}
}

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	log        *applogger.Logger
	httpServer *xhttp.Server
	scheduler  Scheduler
	closers    []namedCloser
}

// New creates a new App instance with all dependencies.
func New(cfg *config.Config, l *applogger.Logger, srv *xhttp.Server, sched Scheduler, opts ...Option) *App {
	if l == nil {
		l = applogger.Nop()
	}
	a := &App{cfg: cfg, log: l, httpServer: srv, scheduler: sched}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.RunContext(ctx)
}

// RunContext starts the scheduler and HTTP server and blocks until ctx is done.
func (a *App) RunContext(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.scheduler != nil {
		a.scheduler.Start(runCtx)
		a.log.Info("signal scheduler started",
			applogger.Strings("symbols", a.cfg.Signals.Symbols),
			applogger.Duration("refresh", a.cfg.Signals.RefreshInterval),
			applogger.Duration("monitor", a.cfg.Signals.MonitorInterval),
		)
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start error", applogger.Error(err))
		cancel()
		a.shutdown()
		return err
	}

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	cancel()
	a.shutdown()
	return nil
}

// shutdown gracefully stops all services.
func (a *App) shutdown() {
	a.log.Info("shutting down...")

	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Error("http shutdown error", applogger.Error(err))
	}

	for _, nc := range a.closers {
		if err := nc.c.Close(); err != nil {
			a.log.Warn("close error", applogger.String("resource", nc.name), applogger.Error(err))
		}
	}

	a.log.Info("shutdown complete")
}

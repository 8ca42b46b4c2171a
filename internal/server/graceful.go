// Package server runs an HTTP server with coordinated shutdown of its
// dependent components.
package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Shutdownable is a component that participates in graceful shutdown
type Shutdownable interface {
	Name() string
	Shutdown(ctx context.Context) error
}

// ShutdownFunc adapts a function into a Shutdownable
type ShutdownFunc struct {
	name string
	fn   func(context.Context) error
}

func NewShutdownFunc(name string, fn func(context.Context) error) *ShutdownFunc {
	return &ShutdownFunc{name: name, fn: fn}
}

func (s *ShutdownFunc) Name() string                       { return s.name }
func (s *ShutdownFunc) Shutdown(ctx context.Context) error { return s.fn(ctx) }

// Config configures the shutdown coordinator
type Config struct {
	Server          *http.Server
	Logger          *zap.Logger
	Shutdownables   []Shutdownable
	ShutdownTimeout time.Duration
}

// GracefulShutdown drains the HTTP server on SIGINT/SIGTERM/SIGQUIT and
// then closes the registered components in order
type GracefulShutdown struct {
	server  *http.Server
	logger  *zap.Logger
	timeout time.Duration
	signals chan os.Signal

	mu         sync.Mutex
	components []Shutdownable
}

// New creates a shutdown coordinator. A zero ShutdownTimeout defaults to
// thirty seconds.
func New(cfg Config) *GracefulShutdown {
	timeout := cfg.ShutdownTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GracefulShutdown{
		server:     cfg.Server,
		logger:     logger,
		timeout:    timeout,
		signals:    make(chan os.Signal, 1),
		components: cfg.Shutdownables,
	}
}

// AddShutdownable appends a component to the shutdown list
func (g *GracefulShutdown) AddShutdownable(s Shutdownable) {
	g.mu.Lock()
	g.components = append(g.components, s)
	g.mu.Unlock()
}

// Start blocks until a termination signal arrives, then runs the shutdown
// sequence
func (g *GracefulShutdown) Start() {
	signal.Notify(g.signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-g.signals
	g.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	g.drain()
}

// StartWithContext is Start with an additional cancellation source
func (g *GracefulShutdown) StartWithContext(ctx context.Context) {
	signal.Notify(g.signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	select {
	case sig := <-g.signals:
		g.logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
		g.logger.Info("context cancelled, shutting down")
	}
	g.drain()
}

// ListenAndServe starts the HTTP server in the background and blocks in
// Start until shutdown completes
func (g *GracefulShutdown) ListenAndServe() error {
	go func() {
		g.logger.Info("server listening", zap.String("addr", g.server.Addr))
		if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("server error", zap.Error(err))
		}
	}()
	g.Start()
	return nil
}

// Shutdown triggers the shutdown sequence without an OS signal
func (g *GracefulShutdown) Shutdown() {
	select {
	case g.signals <- syscall.SIGTERM:
	default:
	}
}

func (g *GracefulShutdown) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	if g.server != nil {
		if err := g.server.Shutdown(ctx); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				g.logger.Warn("server drain timed out, closing")
				g.server.Close()
			} else {
				g.logger.Error("server shutdown failed", zap.Error(err))
			}
		}
	}

	g.mu.Lock()
	components := make([]Shutdownable, len(g.components))
	copy(components, g.components)
	g.mu.Unlock()

	// Components close sequentially in registration order so that producers
	// go before the stores they write to. A failure never blocks the rest.
	for _, c := range components {
		componentCtx, componentCancel := context.WithTimeout(ctx, 10*time.Second)
		err := c.Shutdown(componentCtx)
		componentCancel()
		if err != nil {
			g.logger.Error("component shutdown failed",
				zap.String("component", c.Name()), zap.Error(err))
			continue
		}
		g.logger.Info("component closed", zap.String("component", c.Name()))
	}

	g.logger.Info("shutdown complete")
}

// CloseDB wraps a database handle for the shutdown list
func CloseDB(db interface{ Close() error }) Shutdownable {
	return NewShutdownFunc("database", func(context.Context) error { return db.Close() })
}

// CloseRedis wraps a Redis client for the shutdown list
func CloseRedis(redis interface{ Close() error }) Shutdownable {
	return NewShutdownFunc("redis", func(context.Context) error { return redis.Close() })
}

// CancelContext wraps a context cancel for the shutdown list
func CancelContext(cancel context.CancelFunc) Shutdownable {
	return NewShutdownFunc("context", func(context.Context) error { cancel(); return nil })
}

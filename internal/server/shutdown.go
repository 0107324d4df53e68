package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// ShutdownManager manages graceful shutdown of the application
type ShutdownManager struct {
	server         *echo.Echo
	logger         *slog.Logger
	timeout        time.Duration
	hooks          []namedHook
	mu             sync.RWMutex
	isShuttingDown bool
}

// ShutdownHook represents a function to call during shutdown
type ShutdownHook func(ctx context.Context) error

type namedHook struct {
	name string
	hook ShutdownHook
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(server *echo.Echo, logger *slog.Logger) *ShutdownManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShutdownManager{
		server:  server,
		logger:  logger,
		timeout: 30 * time.Second,
	}
}

// SetTimeout sets the shutdown timeout
func (sm *ShutdownManager) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		sm.timeout = timeout
	}
}

// AddShutdownHook adds a hook that runs alongside the HTTP server shutdown
func (sm *ShutdownManager) AddShutdownHook(name string, hook ShutdownHook) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.hooks = append(sm.hooks, namedHook{name: name, hook: hook})
}

// IsShuttingDown returns true if the shutdown process has started
func (sm *ShutdownManager) IsShuttingDown() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.isShuttingDown
}

// WaitForShutdown blocks until ctx is done, typically on a signal, and then
// shuts down within the configured timeout
func (sm *ShutdownManager) WaitForShutdown(ctx context.Context) error {
	<-ctx.Done()
	sm.logger.Info("starting graceful shutdown", "timeout", sm.timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	if err := sm.Shutdown(shutdownCtx); err != nil {
		sm.logger.Error("graceful shutdown failed", "error", err)
		return err
	}

	sm.logger.Info("graceful shutdown completed")
	return nil
}

// Shutdown stops the HTTP server and runs every hook concurrently
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	sm.mu.Lock()
	sm.isShuttingDown = true
	hooks := make([]namedHook, len(sm.hooks))
	copy(hooks, sm.hooks)
	sm.mu.Unlock()

	errChan := make(chan error, len(hooks)+1)
	var wg sync.WaitGroup

	if sm.server != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sm.server.Shutdown(ctx); err != nil {
				sm.logger.Error("error shutting down HTTP server", "error", err)
				errChan <- fmt.Errorf("HTTP server shutdown: %w", err)
				return
			}
			sm.logger.Info("HTTP server shutdown completed")
		}()
	}

	for _, h := range hooks {
		wg.Add(1)
		go func(h namedHook) {
			defer wg.Done()
			if err := h.hook(ctx); err != nil {
				sm.logger.Error("shutdown hook failed", "hook", h.name, "error", err)
				errChan <- fmt.Errorf("%s: %w", h.name, err)
				return
			}
			sm.logger.Info("shutdown hook completed", "hook", h.name)
		}(h)
	}

	wg.Wait()
	close(errChan)

	var shutdownErrors []error
	for err := range errChan {
		shutdownErrors = append(shutdownErrors, err)
	}
	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown completed with errors: %w", errors.Join(shutdownErrors...))
	}
	return nil
}

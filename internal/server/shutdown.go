package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// Hook priorities. Lower runs first: stop taking requests, flush telemetry,
// then release backends.
const (
	PriorityHTTP    = 10
	PriorityTracing = 80
	PriorityIndex   = 90
)

// ShutdownHook is called once during shutdown.
type ShutdownHook struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context) error
}

// ShutdownConfig configures the shutdown handler.
type ShutdownConfig struct {
	// Timeout bounds the whole hook sequence (default: 30s).
	Timeout time.Duration
	// Signals that start shutdown (default: SIGTERM, SIGINT).
	Signals []os.Signal
	Logger  *slog.Logger
}

func DefaultShutdownConfig() *ShutdownConfig {
	return &ShutdownConfig{
		Timeout: 30 * time.Second,
		Signals: []os.Signal{syscall.SIGTERM, syscall.SIGINT},
	}
}

// ShutdownHandler runs registered hooks in priority order when a signal
// arrives or Shutdown is called.
type ShutdownHandler struct {
	mu       sync.Mutex
	hooks    []ShutdownHook
	timeout  time.Duration
	signals  []os.Signal
	logger   *slog.Logger
	started  bool
	stopping chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewShutdownHandler(config *ShutdownConfig) *ShutdownHandler {
	defaults := DefaultShutdownConfig()
	if config == nil {
		config = defaults
	}
	h := &ShutdownHandler{
		timeout:  config.Timeout,
		signals:  config.Signals,
		logger:   config.Logger,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
	if h.timeout <= 0 {
		h.timeout = defaults.Timeout
	}
	if len(h.signals) == 0 {
		h.signals = defaults.Signals
	}
	if h.logger == nil {
		h.logger = slog.Default().With("component", "shutdown")
	}
	return h
}

// RegisterHook adds a hook. Hooks with equal priority run in registration
// order.
func (h *ShutdownHandler) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	h.Add(ShutdownHook{Name: name, Priority: priority, Fn: fn})
}

func (h *ShutdownHandler) Add(hook ShutdownHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook)
	sort.SliceStable(h.hooks, func(i, j int) bool {
		return h.hooks[i].Priority < h.hooks[j].Priority
	})
}

// Start listens for the configured signals. Calling it twice is a no-op.
func (h *ShutdownHandler) Start() {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return
	}
	h.started = true
	h.mu.Unlock()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, h.signals...)

	go func() {
		select {
		case sig := <-sigCh:
			h.logger.Info("received signal", "signal", sig.String())
			h.trigger()
		case <-h.stopping:
		}
		signal.Stop(sigCh)
	}()
}

// Shutdown starts shutdown without a signal. It returns immediately; use
// Wait or Done to block until hooks finish. Calls before Start are ignored.
func (h *ShutdownHandler) Shutdown() {
	h.mu.Lock()
	started := h.started
	h.mu.Unlock()
	if !started {
		return
	}
	h.trigger()
}

func (h *ShutdownHandler) trigger() {
	h.stopOnce.Do(func() {
		close(h.stopping)
		go h.run()
	})
}

func (h *ShutdownHandler) Wait() { <-h.done }

// WaitWithTimeout reports whether shutdown finished within timeout.
func (h *ShutdownHandler) WaitWithTimeout(timeout time.Duration) bool {
	select {
	case <-h.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done closes when every hook has run.
func (h *ShutdownHandler) Done() <-chan struct{} { return h.done }

// Stopping closes when shutdown begins.
func (h *ShutdownHandler) Stopping() <-chan struct{} { return h.stopping }

func (h *ShutdownHandler) run() {
	defer close(h.done)

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]ShutdownHook, len(h.hooks))
	copy(hooks, h.hooks)
	h.mu.Unlock()

	// A failing hook does not stop the rest.
	for _, hook := range hooks {
		start := time.Now()
		if err := hook.Fn(ctx); err != nil {
			h.logger.Error("shutdown hook failed", "hook", hook.Name, "error", err)
			continue
		}
		h.logger.Debug("shutdown hook done", "hook", hook.Name, "duration", time.Since(start))
	}
}

// HTTPServerShutdownHook stops an http.Server via its Shutdown method.
func HTTPServerShutdownHook(name string, shutdownFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: name, Priority: PriorityHTTP, Fn: shutdownFn}
}

// TracingShutdownHook flushes pending spans.
func TracingShutdownHook(shutdownFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: "tracing", Priority: PriorityTracing, Fn: shutdownFn}
}

// IndexShutdownHook closes the vector index connection.
func IndexShutdownHook(closeFn func() error) ShutdownHook {
	return ShutdownHook{
		Name:     "vector-index",
		Priority: PriorityIndex,
		Fn:       func(context.Context) error { return closeFn() },
	}
}

package server

import (
	"context"
	"errors"
	"os"
	"sync"
	"syscall"
	"testing"
	"time"
)

func TestNewShutdownHandler_Defaults(t *testing.T) {
	h := NewShutdownHandler(nil)
	if h.timeout != 30*time.Second {
		t.Fatalf("expected default timeout, got %v", h.timeout)
	}
	if len(h.signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(h.signals))
	}

	h = NewShutdownHandler(&ShutdownConfig{Timeout: 10 * time.Second})
	if h.timeout != 10*time.Second || len(h.signals) != 2 {
		t.Fatalf("partial config should keep default signals: %v %v", h.timeout, h.signals)
	}
}

func TestShutdownHandler_HookOrder(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{Timeout: 5 * time.Second})

	var mu sync.Mutex
	var order []string
	record := func(name string) func() error {
		return func() error {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, name)
			return nil
		}
	}

	h.Add(IndexShutdownHook(record("index")))
	h.Add(HTTPServerShutdownHook("http", func(context.Context) error { return record("http")() }))
	h.Add(TracingShutdownHook(func(context.Context) error { return record("tracing")() }))
	h.RegisterHook("http-metrics", PriorityHTTP, func(context.Context) error { return record("http-metrics")() })

	h.Start()
	h.Shutdown()
	h.Wait()

	want := []string{"http", "http-metrics", "tracing", "index"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestShutdownHandler_HookErrorDoesNotStopOthers(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{Timeout: 5 * time.Second})

	called := false
	h.RegisterHook("failing", 10, func(context.Context) error { return errors.New("hook failed") })
	h.RegisterHook("after", 20, func(context.Context) error {
		called = true
		return nil
	})

	h.Start()
	h.Shutdown()
	h.Wait()

	if !called {
		t.Fatal("expected second hook to run despite first failing")
	}
}

func TestShutdownHandler_HooksShareDeadline(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{Timeout: 50 * time.Millisecond})

	var deadlineSet bool
	h.RegisterHook("check", 10, func(ctx context.Context) error {
		_, deadlineSet = ctx.Deadline()
		return nil
	})
	h.Start()
	h.Shutdown()
	h.Wait()

	if !deadlineSet {
		t.Fatal("hook context should carry the shutdown timeout")
	}
}

func TestShutdownHandler_WaitWithTimeout(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{Timeout: 5 * time.Second})
	release := make(chan struct{})
	h.RegisterHook("slow", 10, func(context.Context) error {
		<-release
		return nil
	})

	h.Start()
	h.Shutdown()

	if h.WaitWithTimeout(20 * time.Millisecond) {
		t.Fatal("expected timeout while hook blocks")
	}
	close(release)
	if !h.WaitWithTimeout(2 * time.Second) {
		t.Fatal("expected shutdown to finish")
	}
}

func TestShutdownHandler_ShutdownBeforeStartIgnored(t *testing.T) {
	h := NewShutdownHandler(nil)
	h.Shutdown()

	select {
	case <-h.Stopping():
		t.Fatal("shutdown before Start should be ignored")
	default:
	}
}

func TestShutdownHandler_DoubleStartAndShutdown(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{Timeout: time.Second})
	runs := 0
	h.RegisterHook("count", 10, func(context.Context) error {
		runs++
		return nil
	})

	h.Start()
	h.Start()
	h.Shutdown()
	h.Shutdown()
	h.Wait()

	if runs != 1 {
		t.Fatalf("expected hooks to run once, got %d", runs)
	}
}

func TestShutdownHandler_Signal(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{Timeout: time.Second, Signals: []os.Signal{syscall.SIGUSR1}})
	h.Start()

	if err := syscall.Kill(os.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("kill: %v", err)
	}
	if !h.WaitWithTimeout(2 * time.Second) {
		t.Fatal("signal should trigger shutdown")
	}
}

package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"
)

func quietShutdown() *ShutdownHandler {
	return NewShutdownHandler(&ShutdownConfig{
		Timeout: 5 * time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func waitDone(t *testing.T, h *ShutdownHandler) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown timed out")
	}
}

func TestDefaultShutdownConfig(t *testing.T) {
	cfg := DefaultShutdownConfig()
	if cfg.Timeout != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.Timeout)
	}
	if len(cfg.Signals) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(cfg.Signals))
	}
}

func TestNewShutdownHandler_ZeroTimeoutDefaults(t *testing.T) {
	h := NewShutdownHandler(&ShutdownConfig{})
	if h.timeout != 30*time.Second {
		t.Fatalf("expected default timeout, got %v", h.timeout)
	}
}

func TestShutdownHandler_HookPriority(t *testing.T) {
	h := quietShutdown()
	h.RegisterHook("low", 100, func(ctx context.Context) error { return nil })
	h.RegisterHook("high", 10, func(ctx context.Context) error { return nil })
	h.RegisterHook("mid-a", 50, func(ctx context.Context) error { return nil })
	h.RegisterHook("mid-b", 50, func(ctx context.Context) error { return nil })

	want := []string{"high", "mid-a", "mid-b", "low"}
	for i, name := range want {
		if h.hooks[i].Name != name {
			t.Fatalf("hook %d = %s, want %s", i, h.hooks[i].Name, name)
		}
	}
}

func TestShutdownHandler_RunsHooksInOrder(t *testing.T) {
	h := quietShutdown()
	var order []string
	record := func(name string) func(context.Context) error {
		return func(ctx context.Context) error {
			order = append(order, name)
			return nil
		}
	}
	h.RegisterHook("third", 30, record("third"))
	h.RegisterHook("first", 10, record("first"))
	h.RegisterHook("failing", 20, func(ctx context.Context) error {
		order = append(order, "failing")
		return errors.New("boom")
	})

	h.Start()
	h.Shutdown()
	waitDone(t, h)

	want := []string{"first", "failing", "third"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestShutdownHandler_ShutdownBeforeStart(t *testing.T) {
	h := quietShutdown()
	h.Shutdown()
	if h.WaitWithTimeout(50 * time.Millisecond) {
		t.Fatal("shutdown completed without Start")
	}
}

func TestShutdownHandler_DoubleStartAndShutdown(t *testing.T) {
	h := quietShutdown()
	h.Start()
	h.Start()
	h.Shutdown()
	h.Shutdown()
	waitDone(t, h)
}

func TestShutdownHandler_Context(t *testing.T) {
	h := quietShutdown()
	ctx, cancel := h.Context(context.Background())
	defer cancel()

	h.Start()
	h.Shutdown()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("context not cancelled on shutdown")
	}
}

func TestCommonHooks(t *testing.T) {
	var stopped, cancelled bool
	tests := []struct {
		hook     ShutdownHook
		name     string
		priority int
	}{
		{HTTPServerShutdownHook("api", func(context.Context) error { return nil }), "api", 10},
		{WatcherShutdownHook(func() { cancelled = true }), "watcher", 15},
		{TemporalWorkerShutdownHook(func() { stopped = true }), "temporal-worker", 20},
		{TracingShutdownHook(func(context.Context) error { return nil }), "tracing", 80},
		{BackendShutdownHook("neo4j", func(context.Context) error { return nil }), "neo4j", 90},
		{AuditLoggerShutdownHook(func() error { return nil }), "audit-logger", 95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.hook.Name != tt.name || tt.hook.Priority != tt.priority {
				t.Errorf("got %s/%d, want %s/%d", tt.hook.Name, tt.hook.Priority, tt.name, tt.priority)
			}
			if err := tt.hook.Fn(context.Background()); err != nil {
				t.Errorf("hook returned %v", err)
			}
		})
	}
	if !stopped || !cancelled {
		t.Error("stop and cancel callbacks were not invoked")
	}
}

func TestGracefulServer_ServeAndShutdown(t *testing.T) {
	health := NewHealthServer("test")
	g := NewGracefulServer(health, &ShutdownConfig{
		Timeout: 2 * time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- g.Serve("127.0.0.1:0", http.NotFoundHandler()) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		health.mu.RLock()
		ready := health.ready
		health.mu.RUnlock()
		if ready {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("server never became ready")
		}
		time.Sleep(10 * time.Millisecond)
	}

	g.Shutdown.Shutdown()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
	if health.ready {
		t.Error("still ready after shutdown")
	}
}

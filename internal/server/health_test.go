package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func serve(t *testing.T, s *HealthServer, path string) (*httptest.ResponseRecorder, HealthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	return w, resp
}

func TestNewHealthServer(t *testing.T) {
	s := NewHealthServer(nil)
	if s.ready {
		t.Fatal("expected not ready initially")
	}
	if !s.live {
		t.Fatal("expected live initially")
	}
	if s.checkTimeout != 5*time.Second {
		t.Fatalf("expected default check timeout, got %v", s.checkTimeout)
	}

	s = NewHealthServer(&HealthConfig{Version: "1.0.0", CheckTimeout: time.Second})
	if s.version != "1.0.0" || s.checkTimeout != time.Second {
		t.Fatalf("config not applied: %+v", s)
	}
}

func TestHealthServer_HandleHealth(t *testing.T) {
	s := NewHealthServer(&HealthConfig{Version: "1.0.0"})
	s.RegisterCheck("b", func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusHealthy, Message: "all good"}
	})
	s.RegisterCheck("a", func(ctx context.Context) HealthCheck {
		return HealthCheck{Status: HealthStatusHealthy}
	})

	w, resp := serve(t, s, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if resp.Status != HealthStatusHealthy || resp.Version != "1.0.0" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(resp.Checks) != 2 || resp.Checks[0].Name != "a" || resp.Checks[1].Name != "b" {
		t.Fatalf("expected checks sorted by name, got %+v", resp.Checks)
	}
}

func TestHealthServer_AggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []HealthStatus
		want     HealthStatus
		code     int
	}{
		{"degraded still 200", []HealthStatus{HealthStatusHealthy, HealthStatusDegraded}, HealthStatusDegraded, http.StatusOK},
		{"unhealthy wins", []HealthStatus{HealthStatusDegraded, HealthStatusUnhealthy}, HealthStatusUnhealthy, http.StatusServiceUnavailable},
		{"no checks", nil, HealthStatusHealthy, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewHealthServer(nil)
			for i, st := range tt.statuses {
				st := st
				s.RegisterCheck(string(rune('a'+i)), func(context.Context) HealthCheck {
					return HealthCheck{Status: st}
				})
			}
			w, resp := serve(t, s, "/healthz")
			if w.Code != tt.code || resp.Status != tt.want {
				t.Fatalf("got %d %s, want %d %s", w.Code, resp.Status, tt.code, tt.want)
			}
		})
	}
}

func TestHealthServer_Probes(t *testing.T) {
	s := NewHealthServer(nil)

	if w, _ := serve(t, s, "/ready"); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before ready, got %d", w.Code)
	}
	s.SetReady(true)
	if w, _ := serve(t, s, "/readyz"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 when ready, got %d", w.Code)
	}

	if w, _ := serve(t, s, "/live"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 when live, got %d", w.Code)
	}
	s.SetLive(false)
	if w, resp := serve(t, s, "/livez"); w.Code != http.StatusServiceUnavailable || resp.Status != HealthStatusUnhealthy {
		t.Fatalf("expected 503 when not live, got %d", w.Code)
	}
}

func TestHealthServer_ContentType(t *testing.T) {
	w, _ := serve(t, NewHealthServer(nil), "/health")
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %s", ct)
	}
}

func TestHealthServer_CheckHonoursTimeout(t *testing.T) {
	s := NewHealthServer(&HealthConfig{CheckTimeout: 10 * time.Millisecond})
	s.RegisterCheck("slow", IndexHealthChecker("qdrant", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	resp := s.Check(context.Background())
	if resp.Status != HealthStatusUnhealthy {
		t.Fatalf("expected timeout to make check unhealthy, got %s", resp.Status)
	}
}

func TestIndexHealthChecker(t *testing.T) {
	ctx := context.Background()

	if c := IndexHealthChecker("memory", nil)(ctx); c.Status != HealthStatusHealthy || c.Details["backend"] != "memory" {
		t.Fatalf("unexpected in-memory check %+v", c)
	}
	if c := IndexHealthChecker("qdrant", func(context.Context) error { return nil })(ctx); c.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy, got %+v", c)
	}
	c := IndexHealthChecker("qdrant", func(context.Context) error { return errors.New("connection refused") })(ctx)
	if c.Status != HealthStatusUnhealthy || c.Message != "vector index unreachable: connection refused" {
		t.Fatalf("unexpected failing check %+v", c)
	}
}

func TestVendorHealthChecker(t *testing.T) {
	ctx := context.Background()
	if c := VendorHealthChecker("jsearch", true)(ctx); c.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy, got %+v", c)
	}
	if c := VendorHealthChecker("jsearch", false)(ctx); c.Status != HealthStatusDegraded || c.Details["vendor"] != "jsearch" {
		t.Fatalf("expected degraded, got %+v", c)
	}
}

func TestEmbedderHealthChecker(t *testing.T) {
	ctx := context.Background()
	if c := EmbedderHealthChecker("ollama", nil)(ctx); c.Status != HealthStatusHealthy {
		t.Fatalf("expected healthy, got %+v", c)
	}
	c := EmbedderHealthChecker("ollama", func(context.Context) error { return errors.New("model not pulled") })(ctx)
	if c.Status != HealthStatusDegraded || c.Details["provider"] != "ollama" {
		t.Fatalf("expected degraded, got %+v", c)
	}
}

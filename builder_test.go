package loginbridge

import (
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type stubRegistry struct{}

func (stubRegistry) Identity(string) (IdentityService, bool) { return nil, false }

func TestBuildTwiceFails(t *testing.T) {
	b := New().WithIdentityService(DefaultBackendName, newFakeService())
	c, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	if _, err := b.Build(); !errors.Is(err, ErrBuilderUsed) {
		t.Fatalf("expected ErrBuilderUsed, got %v", err)
	}
}

func TestBuildWithoutRegistry(t *testing.T) {
	if _, err := New().Build(); !errors.Is(err, ErrNilRegistry) {
		t.Fatalf("expected ErrNilRegistry, got %v", err)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	_, err := New().
		WithIdentityService(DefaultBackendName, newFakeService()).
		WithAttemptTimeout(-time.Second).
		Build()
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}

func TestBuildRejectsHistogramsWithoutMetrics(t *testing.T) {
	_, err := New().
		WithIdentityService(DefaultBackendName, newFakeService()).
		WithMetricsEnabled(false).
		WithLatencyHistograms(true).
		Build()
	if err == nil {
		t.Fatal("expected build to fail")
	}
}

func TestWithIdentityServiceRequiresOwnRegistry(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for foreign registry")
		}
	}()
	New().WithRegistry(stubRegistry{}).WithIdentityService(DefaultBackendName, newFakeService())
}

func TestBuildLogsLintWarnings(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	c, err := New().
		WithIdentityService(DefaultBackendName, newFakeService()).
		WithLogger(zap.New(core)).
		WithAttemptTimeout(0).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()

	var codes []string
	for _, e := range logs.FilterMessage("config lint").All() {
		code, _ := e.ContextMap()["code"].(string)
		codes = append(codes, code)
		if e.LoggerName != "loginbridge" {
			t.Fatalf("expected loginbridge logger, got %q", e.LoggerName)
		}
	}
	if !containsCode(codes, "attempt_timeout_disabled") {
		t.Fatalf("expected attempt_timeout_disabled to be logged, got %v", codes)
	}
}

func TestBuildUsesBackendNameFromConfig(t *testing.T) {
	svc := newFakeService()
	cfg := DefaultConfig()
	cfg.Backend.Name = "portal"

	c, err := New().WithConfig(cfg).WithIdentityService("PORTAL", svc).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer c.Close()
	c.Initialize()
	f := NewFacade(c)
	c.AttachFacade(f)

	if err := f.Login(t.Context(), 0, MethodDefault); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if svc.callCount() != 1 {
		t.Fatalf("expected the portal backend to be called once, got %d", svc.callCount())
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	c, err := New().WithIdentityService(DefaultBackendName, newFakeService()).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	c.Initialize()
	c.Initialize()
	c.Close()
	c.Close()
	c.Initialize()

	if err := c.Login(t.Context(), 0, MethodDefault); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

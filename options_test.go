package qf

import (
	"testing"
	"time"
)

func TestResolveFrameworkOptionsDefaults(t *testing.T) {
	cfg, err := resolveFrameworkOptions(nil)
	if err != nil {
		t.Fatalf("resolveFrameworkOptions: %v", err)
	}
	if cfg.scheduler != SchedulerQK {
		t.Fatalf("expected default scheduler to be SchedulerQK")
	}
	if cfg.metricsEnabled {
		t.Fatalf("expected metrics to be disabled by default")
	}
	if cfg.rateLimitWindow != 100*time.Millisecond || cfg.rateLimitBurst != 1 {
		t.Fatalf("unexpected default rate limit: %v/%d", cfg.rateLimitWindow, cfg.rateLimitBurst)
	}
	if cfg.traceCapacity != 0 {
		t.Fatalf("expected tracing to be disabled by default")
	}
}

func TestWithScheduler(t *testing.T) {
	cfg, err := resolveFrameworkOptions([]Option{WithScheduler(SchedulerQV)})
	if err != nil {
		t.Fatalf("resolveFrameworkOptions: %v", err)
	}
	if cfg.scheduler != SchedulerQV {
		t.Fatalf("expected SchedulerQV to take effect")
	}
}

func TestWithMetricsAndTrace(t *testing.T) {
	ct := &captureTransport{}
	cfg, err := resolveFrameworkOptions([]Option{
		WithMetrics(true),
		WithTrace(1024, ct),
	})
	if err != nil {
		t.Fatalf("resolveFrameworkOptions: %v", err)
	}
	if !cfg.metricsEnabled {
		t.Fatalf("expected metrics to be enabled")
	}
	if cfg.traceCapacity != 1024 || cfg.traceTransport != ct {
		t.Fatalf("expected trace capacity/transport to be applied")
	}
}

func TestWithRecoverableLogRate(t *testing.T) {
	cfg, err := resolveFrameworkOptions([]Option{WithRecoverableLogRate(5 * time.Second, 20)})
	if err != nil {
		t.Fatalf("resolveFrameworkOptions: %v", err)
	}
	if cfg.rateLimitWindow != 5*time.Second || cfg.rateLimitBurst != 20 {
		t.Fatalf("unexpected rate limit: %v/%d", cfg.rateLimitWindow, cfg.rateLimitBurst)
	}
}

func TestResolvePoolOptionsDefaultsAndName(t *testing.T) {
	cfg := resolvePoolOptions(nil)
	if cfg.name != "" {
		t.Fatalf("expected an empty default pool name")
	}
	cfg = resolvePoolOptions([]PoolOption{WithPoolName("small")})
	if cfg.name != "small" {
		t.Fatalf("got %q, want small", cfg.name)
	}
}

func TestResolveAOOptionsDefaultsAndOverrides(t *testing.T) {
	cfg := resolveAOOptions(nil)
	if cfg.queueCapacity != 8 || cfg.deferredCapacity != 4 {
		t.Fatalf("unexpected AO option defaults: %+v", cfg)
	}

	cfg = resolveAOOptions([]AOOption{
		WithQueueCapacity(16),
		WithDeferredCapacity(2),
		WithAOName("blinker"),
	})
	if cfg.queueCapacity != 16 || cfg.deferredCapacity != 2 || cfg.name != "blinker" {
		t.Fatalf("unexpected AO option overrides: %+v", cfg)
	}
}

func TestNilOptionsAreSkipped(t *testing.T) {
	if _, err := resolveFrameworkOptions([]Option{nil, WithMetrics(true), nil}); err != nil {
		t.Fatalf("resolveFrameworkOptions: %v", err)
	}
	resolvePoolOptions([]PoolOption{nil}) // must not panic
	resolveAOOptions([]AOOption{nil})     // must not panic
}

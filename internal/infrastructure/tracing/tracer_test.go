package tracing

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Enabled {
		t.Error("expected tracing to be disabled by default")
	}

	if cfg.ExporterType != ExporterNone {
		t.Errorf("expected exporter type 'none', got %s", cfg.ExporterType)
	}

	if cfg.ServiceName != "wikisync" {
		t.Errorf("expected service name 'wikisync', got %s", cfg.ServiceName)
	}

	if cfg.SampleRate != 1.0 {
		t.Errorf("expected sample rate 1.0, got %f", cfg.SampleRate)
	}
}

func TestNew_Disabled(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		Enabled:      false,
		ExporterType: ExporterNone,
	}

	tracer, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tracer == nil {
		t.Fatal("expected non-nil tracer")
	}

	// Spans still work when disabled
	_, cs := tracer.StartCycleSpan(ctx, "cycle-0", "scheduled")
	if cs == nil {
		t.Fatal("expected non-nil cycle span")
	}
	cs.End()
}

func TestNew_StdoutExporter(t *testing.T) {
	ctx := context.Background()
	buf := &bytes.Buffer{}

	cfg := Config{
		Enabled:      true,
		ExporterType: ExporterStdout,
		ServiceName:  "test-service",
		Environment:  "test",
		SampleRate:   1.0,
		Output:       buf,
	}

	tracer, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer tracer.Shutdown(ctx)

	if tracer == nil {
		t.Fatal("expected non-nil tracer")
	}

	if tracer.provider == nil {
		t.Error("expected non-nil provider for enabled tracer")
	}
}

func newStdoutTracer(t *testing.T) (*Tracer, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	tracer, err := New(context.Background(), Config{
		Enabled:      true,
		ExporterType: ExporterStdout,
		ServiceName:  "test-service",
		SampleRate:   1.0,
		Output:       buf,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tracer, buf
}

func TestCycleSpan(t *testing.T) {
	ctx := context.Background()
	tracer, buf := newStdoutTracer(t)

	ctx, cs := tracer.StartCycleSpan(ctx, "cycle-1", "scheduled")
	cs.SetPlan(3, 2, 1)
	cs.SetOutcome(3, 2, 1, 0)
	cs.End()

	tracer.Shutdown(ctx)

	if !strings.Contains(buf.String(), "sync.cycle") {
		t.Error("expected cycle span in trace output")
	}
}

func TestCycleSpan_Error(t *testing.T) {
	ctx := context.Background()
	tracer, buf := newStdoutTracer(t)

	ctx, cs := tracer.StartCycleSpan(ctx, "cycle-2", "manual")
	cs.EndWithError(errors.New("remote unavailable"))

	tracer.Shutdown(ctx)

	if !strings.Contains(buf.String(), "remote unavailable") {
		t.Error("expected recorded error in trace output")
	}
}

func TestRemoteSpan(t *testing.T) {
	ctx := context.Background()
	tracer, buf := newStdoutTracer(t)

	_, ok := tracer.StartRemoteSpan(ctx, "memory", "read", "faq.md")
	ok.EndWithError(nil)
	_, failed := tracer.StartRemoteSpan(ctx, "memory", "write", "faq.md")
	failed.EndWithError(errors.New("stale revision"))

	tracer.Shutdown(ctx)

	out := buf.String()
	if !strings.Contains(out, "remote.read") || !strings.Contains(out, "remote.write") {
		t.Errorf("expected both remote spans, got %s", out)
	}
}

func TestResolveSpan(t *testing.T) {
	ctx := context.Background()
	tracer, buf := newStdoutTracer(t)

	_, rs := tracer.StartResolveSpan(ctx, "faq", "page", "merge")
	rs.End("merged")

	tracer.Shutdown(ctx)

	if !strings.Contains(buf.String(), "conflict.resolve") {
		t.Error("expected resolve span in trace output")
	}
}

func TestDefault(t *testing.T) {
	// Reset global for test
	global = nil

	tracer := Default()
	if tracer == nil {
		t.Error("expected non-nil default tracer")
	}

	// Should return a no-op tracer
	_, cs := tracer.StartCycleSpan(context.Background(), "cycle-0", "manual")
	cs.SetPlan(0, 0, 0)
	cs.End()
}

func TestSamplers(t *testing.T) {
	tests := []struct {
		name       string
		sampleRate float64
	}{
		{"always sample", 1.0},
		{"never sample", 0.0},
		{"ratio sample", 0.5},
		{"above max", 1.5},
		{"below min", -0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			buf := &bytes.Buffer{}

			cfg := Config{
				Enabled:      true,
				ExporterType: ExporterStdout,
				ServiceName:  "test-service",
				SampleRate:   tt.sampleRate,
				Output:       buf,
			}

			tracer, err := New(ctx, cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tracer.Shutdown(ctx)
		})
	}
}

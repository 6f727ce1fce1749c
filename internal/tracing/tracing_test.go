package tracing

import (
	"context"
	"strings"
	"testing"
)

func TestInitDisabled(t *testing.T) {
	p, err := Init(context.Background(), &Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if p.Enabled() {
		t.Error("disabled provider should not report Enabled")
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown of disabled provider failed: %v", err)
	}

	// The global no-op tracer must still be usable.
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{1.0, "AlwaysOnSampler"},
		{2.0, "AlwaysOnSampler"},
		{0, "AlwaysOffSampler"},
		{-1, "AlwaysOffSampler"},
		{0.25, "TraceIDRatioBased{0.25}"},
	}
	for _, tt := range tests {
		desc := samplerFor(tt.rate).Description()
		if !strings.HasPrefix(desc, "ParentBased{root:"+tt.want) {
			t.Errorf("rate %v: expected root sampler %q, got %q", tt.rate, tt.want, desc)
		}
	}
}

package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/kylegalloway/taskloop/internal/config"
)

func TestSetupDisabled(t *testing.T) {
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), config.TracingConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("disabled tracing should not replace the global provider")
	}
}

func TestSetupEnabled(t *testing.T) {
	t.Cleanup(func() { otel.SetTracerProvider(noop.NewTracerProvider()) })

	// The gRPC exporter connects lazily, so no collector is needed here.
	shutdown, err := Setup(context.Background(), config.TracingConfig{
		Enabled:     true,
		Endpoint:    "127.0.0.1:1",
		Insecure:    true,
		ServiceName: "taskloop-test",
	}, "test")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}

	_, span := otel.Tracer("test").Start(context.Background(), "check")
	if !span.SpanContext().IsValid() {
		t.Error("span from installed provider should have a valid context")
	}
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	shutdown(ctx) // export to the dead endpoint may fail; only the call matters
}

func TestSetupBadResourceEnv(t *testing.T) {
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "team")
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), config.TracingConfig{
		Enabled:     true,
		Endpoint:    "127.0.0.1:1",
		Insecure:    true,
		ServiceName: "taskloop-test",
	}, "test")
	if err == nil {
		t.Fatal("expected error for malformed OTEL_RESOURCE_ATTRIBUTES")
	}
	if !strings.Contains(err.Error(), "create resource") {
		t.Errorf("err = %v, want resource error", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown after failed setup: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("failed setup should not replace the global provider")
	}
}

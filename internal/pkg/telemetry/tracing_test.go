package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitTracer_InstallsProvider(t *testing.T) {
	before := otel.GetTracerProvider()

	// The gRPC exporter connects lazily, so no collector is needed here.
	shutdown, err := InitTracer(context.Background(), "patrolscan-test", "127.0.0.1:4317")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer shutdown()

	if otel.GetTracerProvider() == before {
		t.Error("expected a new global tracer provider")
	}

	_, span := otel.Tracer("test").Start(context.Background(), "probe")
	if !span.SpanContext().IsValid() {
		t.Error("expected a sampled span with a valid context")
	}
	span.End()
}

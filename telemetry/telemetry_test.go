package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInit_NoExporters(t *testing.T) {
	ctx := context.Background()
	prevTP, prevMP, prevProp := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
		otel.SetTextMapPropagator(prevProp)
	})

	p, err := Init(ctx, Config{ServiceName: "cartservice", TracesExporter: "none", MetricsExporter: "none"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Shutdown(ctx)

	if otel.GetTracerProvider() != p.Tracer {
		t.Fatal("tracer provider not installed globally")
	}
	fields := otel.GetTextMapPropagator().Fields()
	want := map[string]bool{"traceparent": false, "x-b3-traceid": false}
	for _, f := range fields {
		if _, ok := want[f]; ok {
			want[f] = true
		}
	}
	for f, seen := range want {
		if !seen {
			t.Errorf("propagator does not carry %s (fields %v)", f, fields)
		}
	}
}

func TestInit_StdoutTraces(t *testing.T) {
	ctx := context.Background()
	prevTP := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prevTP) })

	p, err := Init(ctx, Config{ServiceName: "cartservice", TracesExporter: "stdout", MetricsExporter: "none"})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	if _, err := Init(context.Background(), Config{TracesExporter: "zipkin"}); err == nil {
		t.Fatal("Init accepted an unknown traces exporter")
	}
	if _, err := Init(context.Background(), Config{TracesExporter: "none", MetricsExporter: "prometheus"}); err == nil {
		t.Fatal("Init accepted an unknown metrics exporter")
	}
}

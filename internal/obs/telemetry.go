package obs

import (
	"context"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Telemetry bundles the process-wide tracer/meter providers and their
// shutdown hooks, plus the Prometheus scrape handler C11 mounts at /metrics.
type Telemetry struct {
	MetricsHandler http.Handler
	shutdownFuncs  []func(context.Context) error
}

// InitTelemetry wires an OpenTelemetry TracerProvider (OTLP-over-HTTP when
// OTEL_EXPORTER_OTLP_ENDPOINT is set, otherwise a stdout exporter so spans
// are never silently dropped in local/dev runs) and a Prometheus-backed
// MeterProvider. Tracing and metrics are both additive observability —
// nothing in the orchestrator depends on either succeeding.
func InitTelemetry(ctx context.Context, log *Logger) (*Telemetry, error) {
	t := &Telemetry{}

	tracerProvider, err := buildTracerProvider(ctx)
	if err != nil {
		log.Warn("tracer provider init failed, continuing without tracing", "error", err)
	} else {
		otel.SetTracerProvider(tracerProvider)
		t.shutdownFuncs = append(t.shutdownFuncs, tracerProvider.Shutdown)
	}

	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("prometheus exporter init failed, /metrics will be empty", "error", err)
		return t, nil
	}
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(meterProvider)
	t.shutdownFuncs = append(t.shutdownFuncs, meterProvider.Shutdown)
	t.MetricsHandler = promhttp.Handler()

	return t, nil
}

func buildTracerProvider(ctx context.Context) (*sdktrace.TracerProvider, error) {
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		exp, err := otlptracehttp.New(ctx)
		if err != nil {
			return nil, err
		}
		return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)), nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)), nil
}

func (t *Telemetry) Shutdown(ctx context.Context) {
	for _, fn := range t.shutdownFuncs {
		_ = fn(ctx)
	}
}

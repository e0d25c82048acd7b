package observe

import (
	"context"
	"errors"

	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the global OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is reported as service.name in telemetry. Default: "vocepta".
	ServiceName string

	// ServiceVersion is reported as service.version in telemetry.
	ServiceVersion string

	// TraceExporter receives finished spans. When nil, spans are recorded
	// in-process but never exported, which suits tests and deployments
	// without a collector.
	TraceExporter sdktrace.SpanExporter

	// TraceSampleRatio is the fraction of new traces to sample when an
	// exporter is set, in (0, 1). Zero or one samples everything. Metrics
	// are never sampled, so per-call latency data survives any ratio.
	TraceSampleRatio float64
}

// InitProvider installs the global OTel meter and tracer providers. Metric
// instruments flow through a Prometheus reader so the ops listener can serve
// /metrics without a collector in between; spans go to cfg.TraceExporter when
// one is set. Call this before constructing the application so every
// subsystem binds its instruments to the bridged provider.
//
// The returned shutdown flushes both providers; defer it from main().
func InitProvider(ctx context.Context, cfg ProviderConfig) (func(context.Context) error, error) {
	res, err := newResource(cfg)
	if err != nil {
		return nil, err
	}

	bridge, err := promexporter.New()
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(bridge),
	)
	otel.SetMeterProvider(mp)

	tp := sdktrace.NewTracerProvider(traceOptions(cfg, res)...)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}, nil
}

func newResource(cfg ProviderConfig) (*resource.Resource, error) {
	name := cfg.ServiceName
	if name == "" {
		name = "vocepta"
	}
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(name),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
}

func traceOptions(cfg ProviderConfig, res *resource.Resource) []sdktrace.TracerProviderOption {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter == nil {
		return opts
	}
	opts = append(opts, sdktrace.WithBatcher(cfg.TraceExporter))
	if cfg.TraceSampleRatio > 0 && cfg.TraceSampleRatio < 1 {
		opts = append(opts, sdktrace.WithSampler(
			sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TraceSampleRatio)),
		))
	}
	return opts
}

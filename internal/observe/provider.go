package observe

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the OpenTelemetry SDK providers.
type ProviderConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "smarterp".
	ServiceName string

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string

	// TraceExporter is an optional span exporter. When nil, spans are
	// recorded but not exported.
	TraceExporter sdktrace.SpanExporter

	// Registry receives the Prometheus collectors. Nil means
	// [prometheus.DefaultRegisterer]; tests pass a fresh registry so repeated
	// initialisation does not collide.
	Registry *prometheus.Registry
}

// Telemetry is the result of [InitProvider].
type Telemetry struct {
	// Handler serves the Prometheus text exposition for /metrics.
	Handler http.Handler

	shutdownFuncs []func(context.Context) error
}

// Shutdown flushes and closes the exporters. Call it in a defer from main().
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdownFuncs {
		if e := fn(ctx); e != nil {
			errs = append(errs, e)
		}
	}
	return errors.Join(errs...)
}

// InitProvider initialises the OTel SDK. It sets up a
// [sdkmetric.MeterProvider] backed by a Prometheus exporter, and a
// [sdktrace.TracerProvider] with the configured exporter. Both are registered
// as the global providers.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Telemetry, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "smarterp"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	tel := &Telemetry{Handler: promhttp.Handler()}

	var expOpts []promexporter.Option
	if cfg.Registry != nil {
		expOpts = append(expOpts, promexporter.WithRegisterer(cfg.Registry))
		tel.Handler = promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})
	}
	promExp, err := promexporter.New(expOpts...)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExp),
	)
	otel.SetMeterProvider(mp)
	tel.shutdownFuncs = append(tel.shutdownFuncs, mp.Shutdown)

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
	}
	if cfg.TraceExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	tel.shutdownFuncs = append(tel.shutdownFuncs, tp.Shutdown)

	return tel, nil
}

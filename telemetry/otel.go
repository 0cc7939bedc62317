package telemetry

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/itsneelabh/gomind-agenttrace/attribution"
	"github.com/itsneelabh/gomind-agenttrace/core"
)

// OTelProvider owns the OpenTelemetry pipeline: tracer and meter providers,
// the span exporter, the attribution index and the Tracer built on them.
type OTelProvider struct {
	config         Config
	traceProvider  *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metricsHandler http.Handler
	instruments    *Instruments
	circuit        *CircuitBreaker
	tree           *TreeExporter
	index          attribution.Index
	tracer         *Tracer
	logger         core.Logger
}

// NewOTelProvider creates a new OpenTelemetry provider
func NewOTelProvider(ctx context.Context, config Config, logger core.Logger) (*OTelProvider, error) {
	config = config.withDefaults()
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("framework/telemetry")
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p := &OTelProvider{config: config, logger: logger}

	// Metrics first: the exporter reports its failures through them
	promRegistry := prometheus.NewRegistry()
	promExp, err := promexporter.New(promexporter.WithRegisterer(promRegistry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res), sdkmetric.WithReader(promExp)}
	if config.MetricsEndpoint != "" {
		pushExp, err := otlpmetrichttp.New(ctx, otlpMetricOptions(config)...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		meterOpts = append(meterOpts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(pushExp, sdkmetric.WithInterval(config.MetricsInterval))))
	}
	for _, r := range config.MetricReaders {
		meterOpts = append(meterOpts, sdkmetric.WithReader(r))
	}
	p.meterProvider = sdkmetric.NewMeterProvider(meterOpts...)
	p.metricsHandler = promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{})

	p.instruments, err = NewInstruments(p.meterProvider, NewCardinalityLimiter(config.CardinalityLimits))
	if err != nil {
		_ = p.meterProvider.Shutdown(ctx)
		return nil, err
	}

	traceOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(config.SamplingRate))),
	}

	exporter, batched, err := p.newSpanExporter(ctx)
	if err != nil {
		_ = p.meterProvider.Shutdown(ctx)
		return nil, err
	}
	if exporter != nil {
		p.circuit = NewCircuitBreaker(config.CircuitBreaker, logger)
		wrapped := newResilientExporter(exporter, config.Exporter, p.circuit, p.instruments, logger)
		if batched {
			traceOpts = append(traceOpts, sdktrace.WithBatcher(wrapped))
		} else {
			traceOpts = append(traceOpts, sdktrace.WithSyncer(wrapped))
		}
	}
	for _, sp := range config.SpanProcessors {
		traceOpts = append(traceOpts, sdktrace.WithSpanProcessor(sp))
	}
	p.traceProvider = sdktrace.NewTracerProvider(traceOpts...)

	p.index, err = newIndex(ctx, config, logger)
	if err != nil {
		_ = p.traceProvider.Shutdown(ctx)
		_ = p.meterProvider.Shutdown(ctx)
		return nil, err
	}

	p.tracer = NewTracer(p.traceProvider,
		WithResolver(attribution.NewResolver(p.index, logger)),
		WithInstruments(p.instruments),
		WithLogger(logger),
	)

	logger.Info("Telemetry pipeline ready", map[string]interface{}{
		"service_name":  config.ServiceName,
		"exporter":      config.Exporter,
		"sampling_rate": config.SamplingRate,
		"attribution":   config.AttributionBackend,
		"circuit_state": p.circuit.State(),
	})
	return p, nil
}

// newSpanExporter builds the configured exporter. Remote exporters are
// batched; local ones write synchronously.
func (o *OTelProvider) newSpanExporter(ctx context.Context) (sdktrace.SpanExporter, bool, error) {
	cfg := o.config
	switch cfg.Exporter {
	case ExporterOTLPHTTP:
		exp, err := otlptracehttp.New(ctx, otlpHTTPOptions(cfg)...)
		if err != nil {
			return nil, false, fmt.Errorf("failed to create OTLP/HTTP exporter: %w", err)
		}
		return exp, true, nil

	case ExporterOTLPGRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if h := authHeaders(cfg); h != nil {
			opts = append(opts, otlptracegrpc.WithHeaders(h))
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, false, fmt.Errorf("failed to create OTLP/gRPC exporter: %w", err)
		}
		return exp, true, nil

	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.Output), stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, false, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exp, false, nil

	case ExporterTree:
		o.tree = NewTreeExporter(cfg.Output)
		return o.tree, false, nil

	case ExporterNone:
		return nil, false, nil

	default:
		return nil, false, &core.FrameworkError{
			Op:      "telemetry.NewOTelProvider",
			Kind:    "config",
			Message: fmt.Sprintf("unknown exporter %q", cfg.Exporter),
			Err:     core.ErrInvalidConfiguration,
		}
	}
}

// otlpHTTPOptions targets Endpoint when set, otherwise the Langfuse OTLP
// route under Host
func otlpHTTPOptions(cfg Config) []otlptracehttp.Option {
	var opts []otlptracehttp.Option
	switch {
	case strings.Contains(cfg.Endpoint, "://"):
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	case cfg.Endpoint != "":
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	default:
		opts = append(opts, otlptracehttp.WithEndpointURL(strings.TrimRight(cfg.Host, "/")+LangfuseTracePath))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if h := authHeaders(cfg); h != nil {
		opts = append(opts, otlptracehttp.WithHeaders(h))
	}
	return opts
}

func otlpMetricOptions(cfg Config) []otlpmetrichttp.Option {
	var opts []otlpmetrichttp.Option
	if strings.Contains(cfg.MetricsEndpoint, "://") {
		opts = append(opts, otlpmetrichttp.WithEndpointURL(cfg.MetricsEndpoint))
	} else {
		opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.MetricsEndpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return opts
}

// authHeaders returns the basic auth header for a public/secret key pair
func authHeaders(cfg Config) map[string]string {
	if cfg.PublicKey == "" || cfg.SecretKey == "" {
		return nil
	}
	token := base64.StdEncoding.EncodeToString([]byte(cfg.PublicKey + ":" + cfg.SecretKey))
	return map[string]string{"Authorization": "Basic " + token}
}

func newIndex(ctx context.Context, cfg Config, logger core.Logger) (attribution.Index, error) {
	if cfg.Index != nil {
		return cfg.Index, nil
	}
	switch cfg.AttributionBackend {
	case BackendMemory:
		return attribution.NewMemoryIndex(attribution.WithTTL(cfg.AttributionTTL)), nil
	case BackendRedis:
		idx, err := attribution.NewRedisIndex(ctx, attribution.RedisIndexOptions{
			RedisURL: cfg.RedisURL,
			TTL:      cfg.AttributionTTL,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create attribution index: %w", err)
		}
		return idx, nil
	default:
		return nil, &core.FrameworkError{
			Op:      "telemetry.NewOTelProvider",
			Kind:    "config",
			Message: fmt.Sprintf("unknown attribution backend %q", cfg.AttributionBackend),
			Err:     core.ErrInvalidConfiguration,
		}
	}
}

// Tracer returns the tracer wired to this pipeline
func (o *OTelProvider) Tracer() *Tracer {
	return o.tracer
}

// TracerProvider returns the underlying SDK tracer provider
func (o *OTelProvider) TracerProvider() *sdktrace.TracerProvider {
	return o.traceProvider
}

// MeterProvider returns the underlying SDK meter provider
func (o *OTelProvider) MeterProvider() *sdkmetric.MeterProvider {
	return o.meterProvider
}

// MetricsHandler serves the Prometheus exposition of the call metrics
func (o *OTelProvider) MetricsHandler() http.Handler {
	return o.metricsHandler
}

// Tree returns the tree exporter, nil unless Exporter is "tree"
func (o *OTelProvider) Tree() *TreeExporter {
	return o.tree
}

// ForceFlush exports every finished span and pushes pending metrics. Spans
// still open are not exported.
func (o *OTelProvider) ForceFlush(ctx context.Context) error {
	err := o.traceProvider.ForceFlush(ctx)
	err = errors.Join(err, o.meterProvider.ForceFlush(ctx))
	if o.tree != nil {
		err = errors.Join(err, o.tree.Flush())
	}
	return err
}

// Shutdown flushes and stops the pipeline
func (o *OTelProvider) Shutdown(ctx context.Context) error {
	var errs []error
	if err := o.traceProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("trace provider: %w", err))
	}
	if err := o.meterProvider.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("meter provider: %w", err))
	}
	if c, ok := o.index.(interface{ Close() error }); ok && o.config.Index == nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("attribution index: %w", err))
		}
	}
	return errors.Join(errs...)
}

package telemetry

import (
	"io"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/itsneelabh/gomind-agenttrace/attribution"
	"github.com/itsneelabh/gomind-agenttrace/core"
)

// Span exporters
const (
	ExporterOTLPHTTP = "otlp-http"
	ExporterOTLPGRPC = "otlp-grpc"
	ExporterStdout   = "stdout"
	ExporterTree     = "tree"
	ExporterNone     = "none"
)

// Attribution index backends
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// LangfuseTracePath is appended to Host for OTLP/HTTP export with key auth
const LangfuseTracePath = "/api/public/otel/v1/traces"

// Config configures the telemetry system
type Config struct {
	// Basic settings
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Export
	Exporter  string
	Endpoint  string
	Host      string
	PublicKey string
	SecretKey string
	Insecure  bool

	// SamplingRate is the share of new traces kept. Zero keeps every trace;
	// set Enabled to false to turn tracing off.
	SamplingRate float64

	// MetricsEndpoint, when set, pushes metrics over OTLP/HTTP every
	// MetricsInterval in addition to the Prometheus handler
	MetricsEndpoint string
	MetricsInterval time.Duration

	// Output receives stdout and tree exporter output (default os.Stdout)
	Output io.Writer

	// Attribution index
	AttributionBackend string
	RedisURL           string
	AttributionTTL     time.Duration

	// Index replaces the index selected by AttributionBackend
	Index attribution.Index

	// Cardinality control
	CardinalityLimits map[string]int

	// Circuit breaker configuration
	CircuitBreaker CircuitConfig

	// SpanProcessors and MetricReaders are registered in addition to the
	// configured exporter (useful for testing)
	SpanProcessors []sdktrace.SpanProcessor
	MetricReaders  []sdkmetric.Reader
}

// ConfigFromCore maps the runtime configuration onto a telemetry Config
func ConfigFromCore(c *core.Config) Config {
	t := c.Telemetry
	return Config{
		Enabled:            t.Enabled,
		ServiceName:        c.ServiceName(),
		ServiceVersion:     "1.0.0",
		Exporter:           t.Exporter,
		Endpoint:           t.Endpoint,
		Host:               t.Host,
		PublicKey:          t.PublicKey,
		SecretKey:          t.SecretKey,
		Insecure:           t.Insecure,
		SamplingRate:       t.SamplingRate,
		MetricsEndpoint:    t.MetricsPush,
		AttributionBackend: c.Attribution.Backend,
		RedisURL:           c.Attribution.RedisURL,
		AttributionTTL:     c.Attribution.TTL,
		CircuitBreaker: CircuitConfig{
			Enabled:      t.CircuitBreaker.Enabled,
			MaxFailures:  t.CircuitBreaker.Threshold,
			RecoveryTime: t.CircuitBreaker.RecoveryTime,
		},
	}
}

// withDefaults fills unset fields
func (c Config) withDefaults() Config {
	if c.ServiceName == "" {
		c.ServiceName = "gomind-agent"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "1.0.0"
	}
	if c.Exporter == "" {
		c.Exporter = ExporterTree
	}
	if c.Host == "" {
		c.Host = "https://cloud.langfuse.com"
	}
	if c.SamplingRate <= 0 || c.SamplingRate > 1 {
		c.SamplingRate = 1.0
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = 30 * time.Second
	}
	if c.AttributionBackend == "" {
		c.AttributionBackend = BackendMemory
	}
	if c.CardinalityLimits == nil {
		c.CardinalityLimits = DefaultCardinalityLimits
	}
	return c
}

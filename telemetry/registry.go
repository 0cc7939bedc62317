package telemetry

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/itsneelabh/gomind-agenttrace/core"
)

var (
	// globalRegistry holds the active Registry. atomic.Value keeps the read
	// on every generation call lock-free; it is written only by Initialize
	// and Shutdown.
	globalRegistry atomic.Value // *Registry

	// initMu serializes Initialize and Shutdown
	initMu sync.Mutex

	// disabledTracer serves every call made while telemetry is not initialized
	disabledTracer = NewTracer(noop.NewTracerProvider())
)

// Registry is the process-wide telemetry state created by Initialize
type Registry struct {
	config    Config
	provider  *OTelProvider
	logger    core.Logger
	startTime time.Time
}

// Initialize activates telemetry with the given configuration. It must run
// before the first traced generation call; calls made earlier still succeed
// but are not traced.
//
// Only the first call takes effect until Shutdown. A disabled config
// registers a tracer that records nothing.
func Initialize(ctx context.Context, config Config, logger core.Logger) error {
	initMu.Lock()
	defer initMu.Unlock()

	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if GetRegistry() != nil {
		logger.Debug("Telemetry already initialized, ignoring", nil)
		return nil
	}

	r := &Registry{config: config, logger: logger, startTime: time.Now()}
	if !config.Enabled {
		logger.Info("Telemetry disabled, generation calls will not be traced", nil)
		globalRegistry.Store(r)
		return nil
	}

	provider, err := NewOTelProvider(ctx, config, logger)
	if err != nil {
		logger.Error("Telemetry initialization failed", map[string]interface{}{
			"error":    err.Error(),
			"exporter": config.Exporter,
			"impact":   "Generation calls will not be traced",
		})
		return err
	}
	r.provider = provider

	otel.SetTracerProvider(provider.TracerProvider())
	otel.SetMeterProvider(provider.MeterProvider())
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	globalRegistry.Store(r)
	return nil
}

// GetRegistry returns the active registry, nil before Initialize
func GetRegistry() *Registry {
	r, _ := globalRegistry.Load().(*Registry)
	return r
}

// Provider returns the pipeline, nil when telemetry is disabled
func (r *Registry) Provider() *OTelProvider {
	if r == nil {
		return nil
	}
	return r.provider
}

// GetTracer returns the active tracer. Before Initialize, after Shutdown or
// with telemetry disabled it returns a tracer whose spans go nowhere.
func GetTracer() *Tracer {
	if p := GetRegistry().Provider(); p != nil {
		return p.Tracer()
	}
	return disabledTracer
}

// MetricsHandler serves Prometheus metrics. Without an active pipeline it
// answers 404.
func MetricsHandler() http.Handler {
	if p := GetRegistry().Provider(); p != nil {
		return p.MetricsHandler()
	}
	return http.NotFoundHandler()
}

// ForceFlush exports every finished span without shutting down. Call it
// before the process exits, including on error paths.
func ForceFlush(ctx context.Context) error {
	p := GetRegistry().Provider()
	if p == nil {
		return nil
	}
	return p.ForceFlush(ctx)
}

// Shutdown flushes and stops telemetry. Afterwards Initialize may be called again.
func Shutdown(ctx context.Context) error {
	initMu.Lock()
	defer initMu.Unlock()

	r := GetRegistry()
	if r == nil {
		return nil
	}
	globalRegistry.Store((*Registry)(nil))

	if r.provider == nil {
		return nil
	}

	r.logger.Info("Shutting down telemetry", map[string]interface{}{
		"uptime_ms": time.Since(r.startTime).Milliseconds(),
	})
	if err := r.provider.Shutdown(ctx); err != nil {
		r.logger.Error("Error during telemetry shutdown", map[string]interface{}{
			"error":  err.Error(),
			"impact": "Some spans may not have been exported",
		})
		return err
	}
	return nil
}

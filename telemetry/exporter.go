package telemetry

import (
	"context"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/itsneelabh/gomind-agenttrace/core"
)

// resilientExporter keeps export failures away from callers. Failed or
// dropped batches are counted and logged at most once per interval, and a
// circuit breaker stops hammering a backend that keeps failing.
type resilientExporter struct {
	next         sdktrace.SpanExporter
	name         string
	circuit      *CircuitBreaker
	instruments  *Instruments
	logger       core.Logger
	errorLimiter *RateLimiter
}

func newResilientExporter(next sdktrace.SpanExporter, name string, circuit *CircuitBreaker, in *Instruments, logger core.Logger) *resilientExporter {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &resilientExporter{
		next:         next,
		name:         name,
		circuit:      circuit,
		instruments:  in,
		logger:       logger,
		errorLimiter: NewRateLimiter(time.Second),
	}
}

// ExportSpans never returns an error; a lost batch only costs observability
func (e *resilientExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if len(spans) == 0 {
		return nil
	}

	if !e.circuit.Allow() {
		e.instruments.RecordExportFailure(ctx, "circuit_open", len(spans))
		e.logFailure("Dropping spans while export circuit is open", len(spans), nil)
		return nil
	}

	if err := e.next.ExportSpans(ctx, spans); err != nil {
		e.circuit.RecordFailure()
		e.instruments.RecordExportFailure(ctx, "export_error", len(spans))
		e.logFailure("Failed to export spans", len(spans), err)
		return nil
	}

	e.circuit.RecordSuccess()
	return nil
}

func (e *resilientExporter) logFailure(msg string, spans int, err error) {
	ok, suppressed := e.errorLimiter.Allow()
	if !ok {
		return
	}
	fields := map[string]interface{}{
		"exporter":      e.name,
		"spans":         spans,
		"circuit_state": e.circuit.State(),
		"impact":        "Generation calls are unaffected, these spans are lost",
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if suppressed > 0 {
		fields["suppressed"] = suppressed
	}
	e.logger.Error(msg, fields)
}

func (e *resilientExporter) Shutdown(ctx context.Context) error {
	return e.next.Shutdown(ctx)
}

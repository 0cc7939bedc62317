package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricGenerations      = "agenttrace.generations"
	MetricToolCalls        = "agenttrace.tool_calls"
	MetricParentUnresolved = "agenttrace.parent_unresolved"
	MetricExportFailures   = "agenttrace.export_failures"
	MetricGenerationTime   = "agenttrace.generation.duration_ms"
)

// Instruments holds the metric instruments recorded by the tracer and the
// exporter. A nil *Instruments records nothing.
type Instruments struct {
	generations    metric.Int64Counter
	toolCalls      metric.Int64Counter
	unresolved     metric.Int64Counter
	exportFailures metric.Int64Counter
	duration       metric.Float64Histogram

	limiter *CardinalityLimiter
}

// NewInstruments registers the instruments on mp
func NewInstruments(mp metric.MeterProvider, limiter *CardinalityLimiter) (*Instruments, error) {
	meter := mp.Meter(instrumentationName)
	in := &Instruments{limiter: limiter}

	var err error
	if in.generations, err = meter.Int64Counter(MetricGenerations,
		metric.WithDescription("Traced generation calls by agent and outcome")); err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", MetricGenerations, err)
	}
	if in.toolCalls, err = meter.Int64Counter(MetricToolCalls,
		metric.WithDescription("Tool invocations by agent, tool and outcome")); err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", MetricToolCalls, err)
	}
	if in.unresolved, err = meter.Int64Counter(MetricParentUnresolved,
		metric.WithDescription("Calls naming a parent agent that could not be found")); err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", MetricParentUnresolved, err)
	}
	if in.exportFailures, err = meter.Int64Counter(MetricExportFailures,
		metric.WithDescription("Span batches that failed to export or were dropped")); err != nil {
		return nil, fmt.Errorf("failed to create counter %s: %w", MetricExportFailures, err)
	}
	if in.duration, err = meter.Float64Histogram(MetricGenerationTime,
		metric.WithUnit("ms"),
		metric.WithDescription("Generation call latency")); err != nil {
		return nil, fmt.Errorf("failed to create histogram %s: %w", MetricGenerationTime, err)
	}
	return in, nil
}

func outcome(failed bool) string {
	if failed {
		return "error"
	}
	return "success"
}

// RecordGeneration counts a finished generation and its latency
func (in *Instruments) RecordGeneration(ctx context.Context, agentID string, d time.Duration, failed bool) {
	if in == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("agent_id", in.limiter.Limit("agent_id", agentID)),
		attribute.String("outcome", outcome(failed)),
	)
	in.generations.Add(ctx, 1, attrs)
	in.duration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}

// RecordToolCall counts one tool invocation
func (in *Instruments) RecordToolCall(ctx context.Context, agentID, tool string, failed bool) {
	if in == nil {
		return
	}
	in.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent_id", in.limiter.Limit("agent_id", agentID)),
		attribute.String("tool", in.limiter.Limit("tool", tool)),
		attribute.String("outcome", outcome(failed)),
	))
}

// RecordParentUnresolved counts a call whose parent agent could not be found
func (in *Instruments) RecordParentUnresolved(ctx context.Context, parentAgentID, reason string) {
	if in == nil {
		return
	}
	in.unresolved.Add(ctx, 1, metric.WithAttributes(
		attribute.String("agent_id", in.limiter.Limit("agent_id", parentAgentID)),
		attribute.String("reason", reason),
	))
}

// RecordExportFailure counts spans lost by the exporter
func (in *Instruments) RecordExportFailure(ctx context.Context, reason string, spans int) {
	if in == nil {
		return
	}
	in.exportFailures.Add(ctx, int64(spans), metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

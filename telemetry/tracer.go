package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/itsneelabh/gomind-agenttrace/attribution"
	"github.com/itsneelabh/gomind-agenttrace/core"
)

const instrumentationName = "github.com/itsneelabh/gomind-agenttrace/telemetry"

// maxPayloadLen caps the input and output recorded on a span
const maxPayloadLen = 32 * 1024

// Tracer opens generation and tool spans and links agents into families.
// It is safe for concurrent use.
type Tracer struct {
	tracer      trace.Tracer
	resolver    *attribution.Resolver
	instruments *Instruments
	logger      core.Logger
	now         func() time.Time
}

// TracerOption configures a Tracer
type TracerOption func(*Tracer)

// WithResolver sets the parent resolver. Tracers sharing a resolver can
// attribute each other's spans.
func WithResolver(r *attribution.Resolver) TracerOption {
	return func(t *Tracer) { t.resolver = r }
}

// WithInstruments records call metrics on in
func WithInstruments(in *Instruments) TracerOption {
	return func(t *Tracer) { t.instruments = in }
}

// WithLogger sets the logger
func WithLogger(logger core.Logger) TracerOption {
	return func(t *Tracer) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// NewTracer creates a tracer on tp. Without WithResolver it keeps its own
// in-memory span index.
func NewTracer(tp trace.TracerProvider, opts ...TracerOption) *Tracer {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	t := &Tracer{
		tracer: tp.Tracer(instrumentationName),
		logger: &core.NoOpLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if cal, ok := t.logger.(core.ComponentAwareLogger); ok {
		t.logger = cal.WithComponent("framework/telemetry")
	}
	if t.resolver == nil {
		t.resolver = attribution.NewResolver(attribution.NewMemoryIndex(), t.logger)
	}
	return t
}

type generationKey struct{}

// GenerationFromContext returns the generation span started on ctx, if any
func GenerationFromContext(ctx context.Context) *GenerationSpan {
	g, _ := ctx.Value(generationKey{}).(*GenerationSpan)
	return g
}

// StartGeneration opens the span of one generation call. A disabled
// annotation yields an inert span and leaves ctx untouched.
//
// When the annotation names a parent agent, the span joins the trace of that
// agent's best matching span. If none is found the span starts a new trace
// and is marked with gen_ai.agent.parent_resolved=false.
func (t *Tracer) StartGeneration(ctx context.Context, name string, ann Annotation) (context.Context, *GenerationSpan) {
	if t == nil || !ann.Traced() {
		return ctx, &GenerationSpan{}
	}

	md := ann.Resolved()
	attrs := append(ann.Attributes(), AttrObservationType.String(ObservationGeneration))
	opts := []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindClient)}

	parentCtx := ctx
	if md.ParentAgentID != "" {
		res, err := t.resolver.Resolve(ctx, md.ParentAgentID, md.ConversationID)
		if err != nil {
			t.logger.Debug("Parent resolution degraded", map[string]interface{}{
				"agent_id": md.AgentID,
				"error":    err.Error(),
			})
		}
		sc, ok := spanContextFromEntry(res.Entry)
		if res.Resolved && ok {
			parentCtx = trace.ContextWithRemoteSpanContext(ctx, sc)
		} else {
			if res.Resolved {
				res.Reason = "invalid_entry"
			}
			opts = append(opts, trace.WithNewRoot())
			t.instruments.RecordParentUnresolved(ctx, md.ParentAgentID, res.Reason)
			t.logger.Info("Parent agent not found, tracing as root", map[string]interface{}{
				"agent_id":        md.AgentID,
				"parent_agent_id": md.ParentAgentID,
				"conversation_id": md.ConversationID,
				"reason":          res.Reason,
			})
		}
		attrs = append(attrs, AttrParentResolved.Bool(res.Resolved && ok))
	}
	opts = append(opts, trace.WithAttributes(attrs...))

	started := t.now()
	opts = append(opts, trace.WithTimestamp(started))
	spanCtx, span := t.tracer.Start(parentCtx, name, opts...)

	g := &GenerationSpan{
		tracer:    t,
		span:      span,
		metadata:  md,
		started:   started,
		recording: true,
		indexCtx:  context.WithoutCancel(ctx),
	}

	if sc := span.SpanContext(); sc.IsValid() {
		g.entry = attribution.Entry{
			AgentID:        md.AgentID,
			ConversationID: md.ConversationID,
			TraceID:        sc.TraceID().String(),
			SpanID:         sc.SpanID().String(),
			Sampled:        sc.IsSampled(),
			StartedAt:      started,
		}
		if err := t.resolver.Index().Observe(ctx, g.entry); err != nil {
			t.logger.Warn("Failed to index agent span", map[string]interface{}{
				"agent_id": md.AgentID,
				"span_id":  g.entry.SpanID,
				"error":    err.Error(),
			})
		}
	}

	return context.WithValue(spanCtx, generationKey{}, g), g
}

func spanContextFromEntry(e attribution.Entry) (trace.SpanContext, bool) {
	traceID, err := trace.TraceIDFromHex(e.TraceID)
	if err != nil {
		return trace.SpanContext{}, false
	}
	spanID, err := trace.SpanIDFromHex(e.SpanID)
	if err != nil {
		return trace.SpanContext{}, false
	}
	var flags trace.TraceFlags
	if e.Sampled {
		flags = trace.FlagsSampled
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: flags,
		Remote:     true,
	})
	return sc, sc.IsValid()
}

// GenerationSpan is the span of one generation call. Every method is a no-op
// on an untraced call.
type GenerationSpan struct {
	tracer    *Tracer
	span      trace.Span
	metadata  Metadata
	entry     attribution.Entry
	started   time.Time
	recording bool
	indexCtx  context.Context

	mu     sync.Mutex
	failed bool
	ended  bool
}

// Recording reports whether the call is traced
func (g *GenerationSpan) Recording() bool {
	return g != nil && g.recording
}

// SpanContext returns the span's context; invalid for untraced calls
func (g *GenerationSpan) SpanContext() trace.SpanContext {
	if !g.Recording() {
		return trace.SpanContext{}
	}
	return g.span.SpanContext()
}

// AgentID returns the resolved agent id, empty for untraced calls
func (g *GenerationSpan) AgentID() string {
	if !g.Recording() {
		return ""
	}
	return g.metadata.AgentID
}

// Metadata returns a copy of the call's resolved metadata
func (g *GenerationSpan) Metadata() (Metadata, bool) {
	if !g.Recording() {
		return Metadata{}, false
	}
	return g.metadata.Clone(), true
}

// SetInput records the prompt or messages sent to the model
func (g *GenerationSpan) SetInput(v interface{}) {
	if !g.Recording() {
		return
	}
	g.span.SetAttributes(AttrInput.String(payload(v)))
}

// SetOutput records the final model output
func (g *GenerationSpan) SetOutput(v interface{}) {
	if !g.Recording() {
		return
	}
	g.span.SetAttributes(AttrOutput.String(payload(v)))
}

// SetModel records the requested model and the provider serving it
func (g *GenerationSpan) SetModel(model, provider string) {
	if !g.Recording() {
		return
	}
	attrs := []attribute.KeyValue{AttrModel.String(model)}
	if provider != "" {
		attrs = append(attrs, AttrProvider.String(provider))
	}
	g.span.SetAttributes(attrs...)
}

// SetResponse records what the provider reported back
func (g *GenerationSpan) SetResponse(model, finishReason string, steps int) {
	if !g.Recording() {
		return
	}
	attrs := []attribute.KeyValue{AttrSteps.Int(steps)}
	if model != "" {
		attrs = append(attrs, AttrResponseModel.String(model))
	}
	if finishReason != "" {
		attrs = append(attrs, AttrFinishReason.StringSlice([]string{finishReason}))
	}
	g.span.SetAttributes(attrs...)
}

// SetUsage records token usage
func (g *GenerationSpan) SetUsage(usage core.TokenUsage) {
	if !g.Recording() {
		return
	}
	g.span.SetAttributes(
		AttrInputTokens.Int(usage.PromptTokens),
		AttrOutputTokens.Int(usage.CompletionTokens),
		AttrTotalTokens.Int(usage.TotalTokens),
	)
}

// RecordError marks the generation as failed
func (g *GenerationSpan) RecordError(err error) {
	if !g.Recording() || err == nil {
		return
	}
	g.mu.Lock()
	g.failed = true
	g.mu.Unlock()
	g.span.RecordError(err)
	g.span.SetStatus(codes.Error, err.Error())
}

// End closes the span and marks the agent's index entry finished. Calling
// End more than once has no further effect.
func (g *GenerationSpan) End() {
	if !g.Recording() {
		return
	}
	g.mu.Lock()
	if g.ended {
		g.mu.Unlock()
		return
	}
	g.ended = true
	failed := g.failed
	g.mu.Unlock()

	t := g.tracer
	end := t.now()
	g.span.End(trace.WithTimestamp(end))

	if g.entry.SpanID != "" {
		if err := t.resolver.Index().Finish(g.indexCtx, g.entry.AgentID, g.entry.SpanID); err != nil {
			t.logger.Warn("Failed to mark agent span finished", map[string]interface{}{
				"agent_id": g.entry.AgentID,
				"span_id":  g.entry.SpanID,
				"error":    err.Error(),
			})
		}
	}
	t.instruments.RecordGeneration(g.indexCtx, g.metadata.AgentID, end.Sub(g.started), failed)
}

// StartTool opens a tool span nested under the generation carried by ctx.
// Outside a traced generation the returned span is inert.
func (t *Tracer) StartTool(ctx context.Context, name string, input interface{}) (context.Context, *ToolSpan) {
	gen := GenerationFromContext(ctx)
	if t == nil || !gen.Recording() {
		return ctx, &ToolSpan{}
	}

	started := t.now()
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(started),
		trace.WithAttributes(
			AttrObservationType.String(ObservationTool),
			AttrToolName.String(name),
			AttrAgentID.String(gen.metadata.AgentID),
			AttrInput.String(payload(input)),
		),
	)
	return ctx, &ToolSpan{tracer: t, span: span, name: name, agentID: gen.metadata.AgentID, started: started}
}

// ToolSpan is the span of one tool invocation
type ToolSpan struct {
	tracer  *Tracer
	span    trace.Span
	name    string
	agentID string
	started time.Time
	once    sync.Once
}

// Recording reports whether the tool call is traced
func (s *ToolSpan) Recording() bool {
	return s != nil && s.span != nil
}

// SetCallID records the model-assigned id of the tool call
func (s *ToolSpan) SetCallID(id string) {
	if !s.Recording() || id == "" {
		return
	}
	s.span.SetAttributes(AttrToolCallID.String(id))
}

// End records the tool result or error and closes the span
func (s *ToolSpan) End(output interface{}, err error) {
	if !s.Recording() {
		return
	}
	s.once.Do(func() {
		t := s.tracer
		end := t.now()
		s.span.SetAttributes(AttrToolDurationMs.Int64(end.Sub(s.started).Milliseconds()))

		if err != nil {
			te := core.AsToolError(err)
			s.span.SetAttributes(
				AttrToolErrorCode.String(te.Code),
				AttrToolErrorCategory.String(string(te.Category)),
			)
			s.span.RecordError(err)
			s.span.SetStatus(codes.Error, te.Message)
		} else {
			s.span.SetAttributes(AttrOutput.String(payload(output)))
		}
		s.span.End(trace.WithTimestamp(end))
		t.instruments.RecordToolCall(context.Background(), s.agentID, s.name, err != nil)
	})
}

// payload renders a value for a span attribute: strings as is, everything
// else as JSON
func payload(v interface{}) string {
	var s string
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		s = val
	case []byte:
		s = string(val)
	case json.RawMessage:
		s = string(val)
	default:
		data, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprintf("%v", val)
		} else {
			s = string(data)
		}
	}
	if len(s) > maxPayloadLen {
		n := maxPayloadLen
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		s = s[:n] + "...(truncated)"
	}
	// exporters reject spans carrying invalid UTF-8
	return strings.ToValidUTF8(s, "\uFFFD")
}

/*
Package telemetry traces generation calls and links the calls of cooperating
agents into trace families.

Architecture Overview:

 1. Annotation Layer - per-call metadata (agent, parent agent, user,
    conversation, tags) built with NewAnnotation
 2. Tracer Layer - opens generation and tool spans, resolves parent agents
    through the attribution package and records call metrics
 3. Provider Layer - OpenTelemetry pipeline with the configured exporter
    ("otlp-http", "otlp-grpc", "stdout", "tree" or "none") and a Prometheus
    metrics endpoint

Lifecycle:

Initialize must run before the first traced call and ForceFlush (or
Shutdown) before the process exits, on error paths too. Spans still buffered
when the process dies are lost.

	if err := telemetry.Initialize(ctx, cfg, logger); err != nil {
	    return err
	}
	defer telemetry.Shutdown(context.Background())

	ann := telemetry.NewAnnotation(true,
	    telemetry.WithAgentID("execution-agent"),
	    telemetry.WithParentAgentID("planning-agent"),
	    telemetry.WithConversationID(conversationID),
	)

Parent Resolution:

A call naming a parent agent joins the trace of that agent's best matching
span: same conversation first, then unfinished spans, then the latest one.
When no span matches the call becomes a root span tagged
gen_ai.agent.parent_resolved=false. Resolution problems never fail the call.

Thread Safety:

All public functions and types are safe for concurrent use. The global
registry is read lock-free through atomic.Value.
*/
package telemetry

package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys. User, session and tag keys use the names the hosted
// trace backend maps onto its trace fields; the rest follow gen_ai semconv.
const (
	AttrAgentID           = attribute.Key("gen_ai.agent.id")
	AttrAgentDefault      = attribute.Key("gen_ai.agent.default")
	AttrParentAgentID     = attribute.Key("gen_ai.agent.parent_id")
	AttrParentResolved    = attribute.Key("gen_ai.agent.parent_resolved")
	AttrUserID            = attribute.Key("user.id")
	AttrConversationID    = attribute.Key("session.id")
	AttrTags              = attribute.Key("langfuse.trace.tags")
	AttrInstructions      = attribute.Key("gen_ai.agent.description")
	AttrObservationType   = attribute.Key("langfuse.observation.type")
	AttrInput             = attribute.Key("langfuse.observation.input")
	AttrOutput            = attribute.Key("langfuse.observation.output")
	AttrModel             = attribute.Key("gen_ai.request.model")
	AttrResponseModel     = attribute.Key("gen_ai.response.model")
	AttrProvider          = attribute.Key("gen_ai.provider.name")
	AttrFinishReason      = attribute.Key("gen_ai.response.finish_reasons")
	AttrInputTokens       = attribute.Key("gen_ai.usage.input_tokens")
	AttrOutputTokens      = attribute.Key("gen_ai.usage.output_tokens")
	AttrTotalTokens       = attribute.Key("gen_ai.usage.total_tokens")
	AttrToolName          = attribute.Key("gen_ai.tool.name")
	AttrToolCallID        = attribute.Key("gen_ai.tool.call.id")
	AttrToolErrorCode     = attribute.Key("gen_ai.tool.error.code")
	AttrToolErrorCategory = attribute.Key("gen_ai.tool.error.category")
	AttrToolDurationMs    = attribute.Key("gen_ai.tool.duration_ms")
	AttrSteps             = attribute.Key("gen_ai.agent.steps")
)

// Observation types understood by the trace backend
const (
	ObservationGeneration = "generation"
	ObservationTool       = "tool"
)

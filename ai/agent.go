package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itsneelabh/gomind-agenttrace/core"
	"github.com/itsneelabh/gomind-agenttrace/telemetry"
)

// Agent is a named participant that makes generation calls with a fixed
// identity. Every call it makes carries its agent id, parent agent and
// instructions, so its spans group and nest without per-call bookkeeping.
type Agent struct {
	id           string
	instructions string
	parent       string
	tags         []string
	tools        []core.Tool
	traced       bool
	generator    *Generator
	logger       core.Logger
}

// AgentOption configures an Agent
type AgentOption func(*Agent)

// WithInstructions sets the system prompt, also recorded as the agent description
func WithInstructions(text string) AgentOption {
	return func(a *Agent) { a.instructions = text }
}

// WithParentAgent nests every call of this agent under the latest call of parent
func WithParentAgent(parent string) AgentOption {
	return func(a *Agent) { a.parent = parent }
}

// WithAgentTags tags every call of the agent
func WithAgentTags(tags ...string) AgentOption {
	return func(a *Agent) { a.tags = append(a.tags, tags...) }
}

// WithAgentTools makes tools available to every call of the agent
func WithAgentTools(tools ...core.Tool) AgentOption {
	return func(a *Agent) { a.tools = append(a.tools, tools...) }
}

// WithTracing turns tracing of the agent's calls on or off. Agents are traced
// by default.
func WithTracing(enabled bool) AgentOption {
	return func(a *Agent) { a.traced = enabled }
}

// WithAgentLogger sets the logger
func WithAgentLogger(logger core.Logger) AgentOption {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAgent creates an agent that runs its calls on generator. An empty id
// leaves the call attributed to telemetry.DefaultAgentID.
func NewAgent(id string, generator *Generator, opts ...AgentOption) *Agent {
	a := &Agent{
		id:        id,
		traced:    true,
		generator: generator,
		logger:    &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if cal, ok := a.logger.(core.ComponentAwareLogger); ok {
		a.logger = cal.WithComponent("framework/ai")
	}
	return a
}

// ID returns the agent id
func (a *Agent) ID() string {
	return a.id
}

// Annotation builds the telemetry annotation for one call of this agent.
// extra options are applied after the agent's own, so they can override them.
func (a *Agent) Annotation(extra ...telemetry.MetadataOption) telemetry.Annotation {
	opts := make([]telemetry.MetadataOption, 0, len(extra)+4)
	if a.id != "" {
		opts = append(opts, telemetry.WithAgentID(a.id))
	}
	if a.parent != "" {
		opts = append(opts, telemetry.WithParentAgentID(a.parent))
	}
	if a.instructions != "" {
		opts = append(opts, telemetry.WithInstructions(a.instructions))
	}
	if len(a.tags) > 0 {
		opts = append(opts, telemetry.WithTags(a.tags...))
	}
	opts = append(opts, extra...)
	return telemetry.NewAnnotation(a.traced, opts...)
}

// Run sends prompt as the agent. md adds per-call metadata such as the user
// or conversation id.
func (a *Agent) Run(ctx context.Context, prompt string, md ...telemetry.MetadataOption) (*GenerateResult, error) {
	if a.generator == nil {
		return nil, &core.FrameworkError{
			Op:      "Agent.Run",
			Kind:    "config",
			ID:      a.id,
			Message: fmt.Sprintf("agent %q has no generator", a.id),
			Err:     core.ErrNotInitialized,
		}
	}

	a.logger.Debug("Agent run started", map[string]interface{}{
		"operation":       "ai_agent_run",
		"agent_id":        a.id,
		"parent_agent_id": a.parent,
		"prompt_length":   len(prompt),
		"tool_count":      len(a.tools),
	})

	return a.generator.Generate(ctx, GenerateRequest{
		System:    a.instructions,
		Prompt:    prompt,
		Tools:     a.tools,
		Telemetry: a.Annotation(md...),
	})
}

// agentToolArgs is the argument schema of an agent exposed as a tool
type agentToolArgs struct {
	Task string `json:"task"`
}

// AsTool exposes the agent as a tool another agent can call. The delegated
// call runs inside the caller's tool span, so it nests there unless the agent
// names an explicit parent.
func (a *Agent) AsTool(name, description string) core.Tool {
	return core.Tool{
		Name:        name,
		Description: description,
		Parameters:  json.RawMessage(`{"type":"object","properties":{"task":{"type":"string","description":"What the agent should do"}},"required":["task"]}`),
		Execute: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in agentToolArgs
			if err := json.Unmarshal(args, &in); err != nil || in.Task == "" {
				return nil, &core.ToolError{
					Code:     "INVALID_TASK",
					Message:  "a non-empty task is required",
					Category: core.CategoryInputError,
				}
			}
			result, err := a.Run(ctx, in.Task, inheritedMetadata(ctx)...)
			if err != nil {
				return nil, &core.ToolError{
					Code:     "AGENT_FAILED",
					Message:  err.Error(),
					Category: core.CategoryServiceError,
					Details:  map[string]string{"agent_id": a.id},
				}
			}
			return result.Text, nil
		},
	}
}

// inheritedMetadata carries the user and conversation of the calling
// generation over to a delegated call
func inheritedMetadata(ctx context.Context) []telemetry.MetadataOption {
	md, ok := telemetry.GenerationFromContext(ctx).Metadata()
	if !ok {
		return nil
	}
	var opts []telemetry.MetadataOption
	if md.UserID != "" {
		opts = append(opts, telemetry.WithUserID(md.UserID))
	}
	if md.ConversationID != "" {
		opts = append(opts, telemetry.WithConversationID(md.ConversationID))
	}
	return opts
}

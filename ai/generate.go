package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itsneelabh/gomind-agenttrace/core"
	"github.com/itsneelabh/gomind-agenttrace/telemetry"
)

// GenerationSpanName names the span of every generation call
const GenerationSpanName = "ai.generate"

// DefaultMaxToolRounds bounds how often the model may ask for tools in one call
const DefaultMaxToolRounds = 5

// GenerateRequest is one text generation call. Telemetry decides whether
// and how the call is traced.
type GenerateRequest struct {
	Model    string
	System   string
	Prompt   string
	Messages []core.Message
	Tools    []core.Tool

	Temperature float32
	MaxTokens   int

	Telemetry telemetry.Annotation
}

// GenerateResult is the outcome of a generation call
type GenerateResult struct {
	Text         string
	Model        string
	FinishReason string
	ToolCalls    []ToolCallRecord
	Steps        int
	Usage        core.TokenUsage
}

// ToolCallRecord describes one tool invocation made during a call
type ToolCallRecord struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Input    json.RawMessage `json:"input"`
	Output   interface{}     `json:"output,omitempty"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// Generator runs generation calls against a provider, executes the tools the
// model asks for and traces every call according to its annotation.
type Generator struct {
	client        core.ChatClient
	provider      string
	model         string
	maxToolRounds int
	tracer        *telemetry.Tracer
	logger        core.Logger
}

// GeneratorOption configures a Generator
type GeneratorOption func(*Generator)

// WithTracer pins the tracer. Without it the globally initialized tracer is
// looked up on every call.
func WithTracer(t *telemetry.Tracer) GeneratorOption {
	return func(g *Generator) { g.tracer = t }
}

// WithDefaultModel sets the model used when a request names none
func WithDefaultModel(model string) GeneratorOption {
	return func(g *Generator) { g.model = model }
}

// WithProviderName sets the provider name recorded on spans
func WithProviderName(name string) GeneratorOption {
	return func(g *Generator) { g.provider = name }
}

// WithMaxToolRounds sets how many tool rounds a call may take
func WithMaxToolRounds(n int) GeneratorOption {
	return func(g *Generator) {
		if n > 0 {
			g.maxToolRounds = n
		}
	}
}

// WithGeneratorLogger sets the logger
func WithGeneratorLogger(logger core.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGenerator creates a generator on client
func NewGenerator(client core.ChatClient, opts ...GeneratorOption) *Generator {
	g := &Generator{
		client:        client,
		maxToolRounds: DefaultMaxToolRounds,
		logger:        &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(g)
	}
	if cal, ok := g.logger.(core.ComponentAwareLogger); ok {
		g.logger = cal.WithComponent("framework/ai")
	}
	return g
}

func (g *Generator) tracerFor() *telemetry.Tracer {
	if g.tracer != nil {
		return g.tracer
	}
	return telemetry.GetTracer()
}

// Generate runs one generation call. Tracing problems never fail the call;
// provider and request errors are recorded on the span and returned.
func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	tracer := g.tracerFor()
	ctx, span := tracer.StartGeneration(ctx, GenerationSpanName, req.Telemetry)
	defer span.End()

	model := firstNonEmpty(req.Model, g.model)
	span.SetModel(model, g.provider)

	result, err := g.generate(ctx, tracer, span, req, model)
	if err != nil {
		span.RecordError(err)
		g.logger.Error("Generation failed", map[string]interface{}{
			"operation": "ai_generate",
			"agent_id":  span.AgentID(),
			"model":     model,
			"error":     err.Error(),
		})
		if result != nil {
			span.SetUsage(result.Usage)
		}
		return nil, err
	}

	span.SetResponse(result.Model, result.FinishReason, result.Steps)
	span.SetUsage(result.Usage)
	span.SetOutput(result.Text)
	return result, nil
}

func (g *Generator) generate(ctx context.Context, tracer *telemetry.Tracer, span *telemetry.GenerationSpan, req GenerateRequest, model string) (*GenerateResult, error) {
	if g.client == nil {
		return nil, &core.FrameworkError{Op: "Generator.Generate", Kind: "config", Message: "no AI client configured", Err: core.ErrNotInitialized}
	}

	messages := make([]core.Message, 0, len(req.Messages)+1)
	messages = append(messages, req.Messages...)
	if req.Prompt != "" {
		messages = append(messages, core.Message{Role: core.RoleUser, Content: req.Prompt})
	}
	if len(messages) == 0 {
		return nil, &core.FrameworkError{Op: "Generator.Generate", Kind: "request", Message: "prompt or messages required", Err: core.ErrInvalidConfiguration}
	}
	if req.Prompt != "" && len(req.Messages) == 0 {
		span.SetInput(req.Prompt)
	} else {
		span.SetInput(messages)
	}

	tools, err := core.NewToolSet(req.Tools...)
	if err != nil {
		return nil, err
	}
	defs := tools.Definitions(req.Tools)

	result := &GenerateResult{}
	rounds := 0
	for {
		if err := ctx.Err(); err != nil {
			return result, &core.FrameworkError{Op: "Generator.Generate", Kind: "request", Err: fmt.Errorf("%w: %v", core.ErrContextCanceled, err)}
		}

		resp, err := g.client.Chat(ctx, &core.ChatRequest{
			Model:       model,
			System:      req.System,
			Messages:    messages,
			Tools:       defs,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			return result, &core.FrameworkError{Op: "Generator.Generate", Kind: "provider", ID: g.provider, Err: err}
		}
		if resp == nil {
			return result, &core.FrameworkError{Op: "Generator.Generate", Kind: "provider", ID: g.provider, Err: core.ErrNoResponse}
		}

		result.Steps++
		result.Usage = result.Usage.Add(resp.Usage)
		result.Model = resp.Model
		result.FinishReason = resp.FinishReason

		if len(resp.ToolCalls) == 0 {
			result.Text = resp.Content
			return result, nil
		}
		if rounds >= g.maxToolRounds {
			return result, &core.FrameworkError{
				Op:      "Generator.Generate",
				Kind:    "tool",
				Message: fmt.Sprintf("model still requested tools after %d rounds", rounds),
				Err:     core.ErrMaxToolRounds,
			}
		}
		rounds++

		messages = append(messages, core.Message{
			Role:      core.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			record, content := g.runTool(ctx, tracer, tools, call)
			result.ToolCalls = append(result.ToolCalls, record)
			messages = append(messages, core.Message{
				Role:       core.RoleTool,
				ToolCallID: call.ID,
				Content:    content,
			})
		}
	}
}

// runTool executes one requested tool inside its own span and returns the
// record plus the message content fed back to the model. Tool failures,
// unknown tools included, are reported to the model instead of failing the call.
func (g *Generator) runTool(ctx context.Context, tracer *telemetry.Tracer, tools core.ToolSet, call core.ToolCall) (ToolCallRecord, string) {
	input := json.RawMessage(call.Arguments)
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	toolCtx, span := tracer.StartTool(ctx, call.Name, input)
	span.SetCallID(call.ID)
	started := time.Now()

	var (
		output interface{}
		err    error
	)
	tool, ok := tools[call.Name]
	switch {
	case !ok:
		err = &core.ToolError{
			Code:     "UNKNOWN_TOOL",
			Message:  fmt.Sprintf("tool %q is not available", call.Name),
			Category: core.CategoryUnknownTool,
		}
	case !json.Valid(input):
		err = &core.ToolError{
			Code:     "INVALID_ARGUMENTS",
			Message:  "tool arguments are not valid JSON",
			Category: core.CategoryInputError,
		}
	default:
		output, err = execute(toolCtx, tool, input)
	}
	span.End(output, err)

	record := ToolCallRecord{
		ID:       call.ID,
		Name:     call.Name,
		Input:    input,
		Output:   output,
		Duration: time.Since(started),
	}

	resp := core.ToolResponse{Success: err == nil, Data: output}
	if err != nil {
		te := core.AsToolError(err)
		record.Error = te.Error()
		resp.Error = te
		g.logger.Warn("Tool call failed", map[string]interface{}{
			"operation": "ai_tool_call",
			"tool":      call.Name,
			"code":      te.Code,
			"category":  string(te.Category),
		})
	}

	content, mErr := json.Marshal(resp)
	if mErr != nil {
		content, _ = json.Marshal(core.ToolResponse{Error: &core.ToolError{
			Code:     "UNSERIALIZABLE_OUTPUT",
			Message:  mErr.Error(),
			Category: core.CategoryServiceError,
		}})
	}
	return record, string(content)
}

// execute runs a tool, turning a panic into a tool error
func execute(ctx context.Context, tool core.Tool, input json.RawMessage) (out interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			err = &core.ToolError{
				Code:     "TOOL_PANIC",
				Message:  fmt.Sprintf("tool %q panicked: %v", tool.Name, r),
				Category: core.CategoryServiceError,
			}
		}
	}()
	return tool.Execute(ctx, input)
}

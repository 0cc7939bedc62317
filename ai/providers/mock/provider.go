// Package mock provides a scripted chat provider for tests and offline demos
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/itsneelabh/gomind-agenttrace/ai"
	"github.com/itsneelabh/gomind-agenttrace/core"
)

// DefaultModel is reported when neither the request nor the config names a model
const DefaultModel = "mock-model"

func init() {
	if err := ai.Register(&Factory{}); err != nil {
		panic(fmt.Sprintf("failed to register mock AI provider: %v", err))
	}
}

// Factory creates mock clients
type Factory struct{}

// Name returns the provider name
func (f *Factory) Name() string {
	return string(ai.ProviderMock)
}

// Description returns provider description
func (f *Factory) Description() string {
	return "Scripted provider for tests and offline demos"
}

// Create creates a new mock client
func (f *Factory) Create(config *ai.AIConfig) core.ChatClient {
	return NewClient(config)
}

// DetectEnvironment never reports the mock as available, so it is only used
// when requested by name
func (f *Factory) DetectEnvironment() (priority int, available bool) {
	return 0, false
}

// Response is one scripted provider reply
type Response struct {
	Content      string
	ToolCalls    []core.ToolCall
	FinishReason string
	Err          error
}

// Text scripts a plain text reply
func Text(content string) Response {
	return Response{Content: content, FinishReason: "stop"}
}

// CallTool scripts a reply asking for one tool. args is marshaled to JSON;
// a string or json.RawMessage is used as is.
func CallTool(name string, args interface{}) Response {
	return CallTools(ToolCall(name, args))
}

// CallTools scripts a reply asking for several tools at once
func CallTools(calls ...core.ToolCall) Response {
	return Response{ToolCalls: calls, FinishReason: "tool_calls"}
}

// ToolCall builds a tool call with a fresh id
func ToolCall(name string, args interface{}) core.ToolCall {
	var raw string
	switch v := args.(type) {
	case nil:
		raw = "{}"
	case string:
		raw = v
	case json.RawMessage:
		raw = string(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			panic(fmt.Sprintf("mock: cannot marshal tool arguments: %v", err))
		}
		raw = string(data)
	}
	return core.ToolCall{ID: "call_" + uuid.NewString(), Name: name, Arguments: raw}
}

// Fail scripts a provider error
func Fail(err error) Response {
	return Response{Err: err}
}

// Handler computes a reply from the request
type Handler func(req *core.ChatRequest) Response

// Client replays scripted responses. Once the script is used up the handler
// answers, and without a handler the client echoes the conversation.
// Safe for concurrent use.
type Client struct {
	mu        sync.Mutex
	config    *ai.AIConfig
	responses []Response
	index     int
	handler   Handler
	calls     []core.ChatRequest
}

// NewClient creates a mock client
func NewClient(config *ai.AIConfig) *Client {
	if config == nil {
		config = &ai.AIConfig{}
	}
	return &Client{config: config}
}

// Script replaces the scripted responses and rewinds
func (c *Client) Script(responses ...Response) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = responses
	c.index = 0
	return c
}

// SetHandler sets the fallback used after the script is exhausted
func (c *Client) SetHandler(h Handler) *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
	return c
}

// Chat returns the next scripted response
func (c *Client) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req == nil {
		req = &core.ChatRequest{}
	}

	c.mu.Lock()
	c.calls = append(c.calls, cloneRequest(req))
	var resp Response
	switch {
	case c.index < len(c.responses):
		resp = c.responses[c.index]
		c.index++
	case c.handler != nil:
		resp = c.handler(req)
	default:
		resp = Echo(req)
	}
	c.mu.Unlock()

	if resp.Err != nil {
		return nil, resp.Err
	}

	model := req.Model
	if model == "" {
		model = c.config.Model
	}
	if model == "" {
		model = DefaultModel
	}

	finish := resp.FinishReason
	if finish == "" {
		finish = "stop"
		if len(resp.ToolCalls) > 0 {
			finish = "tool_calls"
		}
	}

	prompt := promptLength(req)
	return &core.ChatResponse{
		Content:      resp.Content,
		Model:        model,
		Provider:     string(ai.ProviderMock),
		ToolCalls:    resp.ToolCalls,
		FinishReason: finish,
		Usage: core.TokenUsage{
			PromptTokens:     prompt / 4,
			CompletionTokens: len(resp.Content) / 4,
			TotalTokens:      (prompt + len(resp.Content)) / 4,
		},
	}, nil
}

// Calls returns copies of every request received so far
func (c *Client) Calls() []core.ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.ChatRequest, len(c.calls))
	copy(out, c.calls)
	return out
}

// CallCount returns how many requests were received
func (c *Client) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Reset forgets recorded calls and rewinds the script
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = nil
	c.index = 0
}

// Echo answers with the last message. A tool result is quoted back.
func Echo(req *core.ChatRequest) Response {
	if len(req.Messages) == 0 {
		return Text("Mock response")
	}
	last := req.Messages[len(req.Messages)-1]
	if last.Role == core.RoleTool {
		return Text("Tool result: " + last.Content)
	}
	return Text("Mock response to: " + last.Content)
}

func cloneRequest(req *core.ChatRequest) core.ChatRequest {
	out := *req
	out.Messages = append([]core.Message(nil), req.Messages...)
	out.Tools = append([]core.ToolDefinition(nil), req.Tools...)
	return out
}

func promptLength(req *core.ChatRequest) int {
	n := len(req.System)
	for _, m := range req.Messages {
		n += len(m.Content)
	}
	return n
}

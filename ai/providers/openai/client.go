package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/itsneelabh/gomind-agenttrace/ai"
	"github.com/itsneelabh/gomind-agenttrace/ai/providers"
	"github.com/itsneelabh/gomind-agenttrace/core"
)

// DefaultBaseURL is the public OpenAI endpoint
const DefaultBaseURL = "https://api.openai.com/v1"

// AIConfig.Extra keys understood by this provider
const (
	// ExtraReasoningMultiplier (int) scales the token limit sent to reasoning models
	ExtraReasoningMultiplier = "reasoning_token_multiplier"
	// ExtraRetryDelay (time.Duration) is the first backoff delay, one second by default
	ExtraRetryDelay = "retry_delay"
)

// Client talks to any OpenAI-compatible chat completions endpoint
type Client struct {
	api                 *openai.Client
	providerAlias       string
	baseURL             string
	defaults            providers.Defaults
	retry               providers.RetryPolicy
	reasoningMultiplier int
	logger              core.Logger
}

// NewClient builds a client from the AI configuration. Outgoing HTTP requests
// are instrumented with otelhttp, so they show up as children of the active
// generation span. Requests made outside a traced generation are not traced.
func NewClient(config *ai.AIConfig) *Client {
	if config == nil {
		config = &ai.AIConfig{}
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	var base http.RoundTripper = http.DefaultTransport
	if config.Transport != nil {
		base = config.Transport
	}
	if len(config.Headers) > 0 {
		base = &providers.HeaderTransport{Headers: config.Headers, Base: base}
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	apiConfig := openai.DefaultConfig(config.APIKey)
	apiConfig.BaseURL = baseURL
	apiConfig.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(base, otelhttp.WithFilter(withinTrace)),
	}

	multiplier := 0
	if v, ok := config.Extra[ExtraReasoningMultiplier].(int); ok {
		multiplier = v
	}

	retryDelay := time.Second
	if v, ok := config.Extra[ExtraRetryDelay].(time.Duration); ok && v > 0 {
		retryDelay = v
	}

	alias := config.ProviderAlias
	if alias == "" {
		alias = string(ai.ProviderOpenAI)
	}

	return &Client{
		api:           openai.NewClientWithConfig(apiConfig),
		providerAlias: alias,
		baseURL:       baseURL,
		defaults: providers.Defaults{
			Model:       config.Model,
			Temperature: config.Temperature,
			MaxTokens:   config.MaxTokens,
		},
		retry: providers.RetryPolicy{
			MaxRetries: config.MaxRetries,
			Delay:      retryDelay,
			Retryable:  isRetryable,
		},
		reasoningMultiplier: multiplier,
		logger:              providers.ComponentLogger(config.Logger, "openai"),
	}
}

// BaseURL returns the endpoint requests are sent to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat sends one chat completion request
func (c *Client) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	req = c.defaults.Apply(req)
	apiReq := c.buildRequest(req)

	c.logger.Debug("AI request initiated", map[string]interface{}{
		"operation":     "ai_request",
		"provider":      c.providerAlias,
		"model":         apiReq.Model,
		"message_count": len(apiReq.Messages),
		"tool_count":    len(apiReq.Tools),
	})

	start := time.Now()
	var resp openai.ChatCompletionResponse
	err := c.retry.Do(ctx, c.logger, c.providerAlias, func(ctx context.Context) error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, apiReq)
		return err
	})
	if err != nil {
		c.logger.Error("AI request failed", map[string]interface{}{
			"operation": "ai_request_error",
			"provider":  c.providerAlias,
			"model":     apiReq.Model,
			"error":     err.Error(),
		})
		return nil, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &core.FrameworkError{
			Op:      "openai.Chat",
			Kind:    "provider",
			ID:      c.providerAlias,
			Message: "openai returned no choices",
			Err:     core.ErrNoResponse,
		}
	}

	out := convertResponse(resp, c.providerAlias)
	c.logger.Info("AI response received", map[string]interface{}{
		"operation":         "ai_response",
		"provider":          c.providerAlias,
		"model":             out.Model,
		"finish_reason":     out.FinishReason,
		"tool_calls":        len(out.ToolCalls),
		"prompt_tokens":     out.Usage.PromptTokens,
		"completion_tokens": out.Usage.CompletionTokens,
		"duration_ms":       time.Since(start).Milliseconds(),
	})
	return out, nil
}

func (c *Client) buildRequest(req *core.ChatRequest) openai.ChatCompletionRequest {
	apiReq := openai.ChatCompletionRequest{
		Model: ResolveModel(c.providerAlias, req.Model),
	}
	applyLimits(&apiReq, req.MaxTokens, req.Temperature, c.reasoningMultiplier)

	if req.System != "" {
		apiReq.Messages = append(apiReq.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		apiReq.Messages = append(apiReq.Messages, convertMessage(m))
	}
	for _, def := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return apiReq
}

func convertMessage(m core.Message) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:       m.Role,
		Content:    m.Content,
		ToolCallID: m.ToolCallID,
	}
	for _, call := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Name,
				Arguments: call.Arguments,
			},
		})
	}
	return msg
}

func convertResponse(resp openai.ChatCompletionResponse, provider string) *core.ChatResponse {
	choice := resp.Choices[0]
	out := &core.ChatResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		Provider:     provider,
		FinishReason: string(choice.FinishReason),
		Usage: core.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, core.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return out
}

// statusCode extracts the HTTP status from go-openai errors, 0 if none
func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return providers.RetryableStatus(statusCode(err))
}

// wrapError classifies a failed request so callers can use errors.Is
func wrapError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("openai: %w: %w", core.ErrContextCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("openai: %w: %w", core.ErrTimeout, err)
	case isRetryable(err):
		return fmt.Errorf("openai: %w: %w", core.ErrRequestFailed, err)
	case statusCode(err) >= 400 && statusCode(err) < 500:
		return fmt.Errorf("openai: %w: %w", core.ErrRequestRejected, err)
	}
	return fmt.Errorf("openai: %w", err)
}

// withinTrace keeps HTTP spans to requests issued under a recording span, so
// an untraced generation never starts a trace of its own
func withinTrace(r *http.Request) bool {
	return trace.SpanFromContext(r.Context()).SpanContext().IsValid()
}

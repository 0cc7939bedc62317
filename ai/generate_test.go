package ai_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/itsneelabh/gomind-agenttrace/ai"
	"github.com/itsneelabh/gomind-agenttrace/ai/providers/mock"
	"github.com/itsneelabh/gomind-agenttrace/core"
	"github.com/itsneelabh/gomind-agenttrace/telemetry"
)

type weatherArgs struct {
	Location string `json:"location"`
}

func weatherTool() core.Tool {
	return core.Tool{
		Name:        "getWeather",
		Description: "Current weather for a location",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"location":{"type":"string"}},"required":["location"]}`),
		Execute: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in weatherArgs
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, err
			}
			if in.Location == "Atlantis" {
				return nil, &core.ToolError{Code: "LOCATION_NOT_FOUND", Message: "no such city", Category: core.CategoryNotFound}
			}
			return map[string]interface{}{"location": in.Location, "temperature": 21}, nil
		},
	}
}

func setupGenerator(t *testing.T, client core.ChatClient, opts ...ai.GeneratorOption) (*ai.Generator, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	opts = append([]ai.GeneratorOption{
		ai.WithTracer(telemetry.NewTracer(tp)),
		ai.WithProviderName("mock"),
	}, opts...)
	return ai.NewGenerator(client, opts...), sr
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	m := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		m[kv.Key] = kv.Value
	}
	return m
}

func spansNamed(spans []sdktrace.ReadOnlySpan, name string) []sdktrace.ReadOnlySpan {
	var out []sdktrace.ReadOnlySpan
	for _, s := range spans {
		if s.Name() == name {
			out = append(out, s)
		}
	}
	return out
}

func TestGenerate_WeatherToolCall(t *testing.T) {
	client := mock.NewClient(nil).Script(
		mock.CallTool("getWeather", weatherArgs{Location: "Paris"}),
		mock.Text("It is 21 degrees in Paris."),
	)
	gen, sr := setupGenerator(t, client)

	result, err := gen.Generate(context.Background(), ai.GenerateRequest{
		System: "You are a weather assistant.",
		Prompt: "What is the weather in Paris?",
		Tools:  []core.Tool{weatherTool()},
		Telemetry: telemetry.NewAnnotation(true,
			telemetry.WithAgentID("weather-assistant"),
			telemetry.WithUserID("user-1"),
			telemetry.WithConversationID("conv-1"),
			telemetry.WithTags("weather", "demo"),
		),
	})
	require.NoError(t, err)

	assert.Equal(t, "It is 21 degrees in Paris.", result.Text)
	assert.Equal(t, 2, result.Steps)
	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "getWeather", result.ToolCalls[0].Name)
	assert.JSONEq(t, `{"location":"Paris"}`, string(result.ToolCalls[0].Input))
	assert.Empty(t, result.ToolCalls[0].Error)

	// the second provider call sees the tool result
	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Len(t, calls[0].Tools, 1)
	last := calls[1].Messages[len(calls[1].Messages)-1]
	assert.Equal(t, core.RoleTool, last.Role)
	assert.Equal(t, result.ToolCalls[0].ID, last.ToolCallID)
	assert.Contains(t, last.Content, `"temperature":21`)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	root := spansNamed(spans, ai.GenerationSpanName)
	tool := spansNamed(spans, "getWeather")
	require.Len(t, root, 1)
	require.Len(t, tool, 1)

	assert.False(t, root[0].Parent().IsValid())
	assert.Equal(t, root[0].SpanContext().SpanID(), tool[0].Parent().SpanID())
	assert.Equal(t, root[0].SpanContext().TraceID(), tool[0].SpanContext().TraceID())

	ra := attrs(root[0])
	assert.Equal(t, "weather-assistant", ra[telemetry.AttrAgentID].AsString())
	assert.Equal(t, "user-1", ra[telemetry.AttrUserID].AsString())
	assert.Equal(t, "conv-1", ra[telemetry.AttrConversationID].AsString())
	assert.Equal(t, []string{"weather", "demo"}, ra[telemetry.AttrTags].AsStringSlice())
	assert.Equal(t, "What is the weather in Paris?", ra[telemetry.AttrInput].AsString())
	assert.Equal(t, "It is 21 degrees in Paris.", ra[telemetry.AttrOutput].AsString())
	assert.Equal(t, int64(2), ra[telemetry.AttrSteps].AsInt64())

	ta := attrs(tool[0])
	assert.JSONEq(t, `{"location":"Paris"}`, ta[telemetry.AttrInput].AsString())
	assert.JSONEq(t, `{"location":"Paris","temperature":21}`, ta[telemetry.AttrOutput].AsString())
	assert.Equal(t, result.ToolCalls[0].ID, ta[telemetry.AttrToolCallID].AsString())
}

func TestGenerate_MultiAgentNesting(t *testing.T) {
	client := mock.NewClient(nil)
	gen, sr := setupGenerator(t, client)
	ctx := context.Background()

	_, err := gen.Generate(ctx, ai.GenerateRequest{
		Prompt:    "Plan the research",
		Telemetry: telemetry.NewAnnotation(true, telemetry.WithAgentID("orchestrator"), telemetry.WithConversationID("c1")),
	})
	require.NoError(t, err)

	_, err = gen.Generate(ctx, ai.GenerateRequest{
		Prompt: "Research the topic",
		Telemetry: telemetry.NewAnnotation(true,
			telemetry.WithAgentID("researcher"),
			telemetry.WithParentAgentID("orchestrator"),
			telemetry.WithConversationID("c1"),
		),
	})
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)
	parent, child := spans[0], spans[1]
	assert.Equal(t, "orchestrator", attrs(parent)[telemetry.AttrAgentID].AsString())
	assert.Equal(t, "researcher", attrs(child)[telemetry.AttrAgentID].AsString())
	assert.Equal(t, parent.SpanContext().TraceID(), child.SpanContext().TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), child.Parent().SpanID())
	assert.True(t, attrs(child)[telemetry.AttrParentResolved].AsBool())
}

func TestGenerate_UnresolvedParentStartsNewTrace(t *testing.T) {
	gen, sr := setupGenerator(t, mock.NewClient(nil))

	_, err := gen.Generate(context.Background(), ai.GenerateRequest{
		Prompt:    "hello",
		Telemetry: telemetry.NewAnnotation(true, telemetry.WithAgentID("child"), telemetry.WithParentAgentID("ghost")),
	})
	require.NoError(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.False(t, spans[0].Parent().IsValid())
	assert.False(t, attrs(spans[0])[telemetry.AttrParentResolved].AsBool())
}

func TestGenerate_ToolFailuresAreReportedToModel(t *testing.T) {
	client := mock.NewClient(nil).Script(
		mock.CallTools(
			mock.ToolCall("getWeather", weatherArgs{Location: "Atlantis"}),
			mock.ToolCall("getStockPrice", map[string]string{"symbol": "ACME"}),
			mock.ToolCall("getWeather", "{not json"),
		),
		mock.Text("Sorry, I could not find that."),
	)
	gen, sr := setupGenerator(t, client)

	result, err := gen.Generate(context.Background(), ai.GenerateRequest{
		Prompt:    "Weather in Atlantis?",
		Tools:     []core.Tool{weatherTool()},
		Telemetry: telemetry.NewAnnotation(true),
	})
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 3)
	assert.Contains(t, result.ToolCalls[0].Error, "LOCATION_NOT_FOUND")
	assert.Contains(t, result.ToolCalls[1].Error, "UNKNOWN_TOOL")
	assert.Contains(t, result.ToolCalls[2].Error, "INVALID_ARGUMENTS")

	calls := client.Calls()
	require.Len(t, calls, 2)
	toolMsgs := calls[1].Messages[len(calls[1].Messages)-3:]
	for _, m := range toolMsgs {
		assert.Equal(t, core.RoleTool, m.Role)
		assert.Contains(t, m.Content, `"success":false`)
	}

	weather := spansNamed(sr.Ended(), "getWeather")
	require.Len(t, weather, 2)
	for _, s := range weather {
		assert.Equal(t, codes.Error, s.Status().Code)
	}
	assert.Equal(t, "NOT_FOUND", attrs(weather[0])[telemetry.AttrToolErrorCategory].AsString())

	unknown := spansNamed(sr.Ended(), "getStockPrice")
	require.Len(t, unknown, 1)
	assert.Equal(t, "UNKNOWN_TOOL", attrs(unknown[0])[telemetry.AttrToolErrorCode].AsString())

	root := spansNamed(sr.Ended(), ai.GenerationSpanName)
	require.Len(t, root, 1)
	assert.NotEqual(t, codes.Error, root[0].Status().Code, "tool failures do not fail the call")
}

func TestGenerate_ToolPanicIsRecovered(t *testing.T) {
	client := mock.NewClient(nil).Script(mock.CallTool("explode", nil), mock.Text("done"))
	gen, _ := setupGenerator(t, client)

	result, err := gen.Generate(context.Background(), ai.GenerateRequest{
		Prompt: "go",
		Tools: []core.Tool{{
			Name: "explode",
			Execute: func(context.Context, json.RawMessage) (interface{}, error) {
				panic("kaboom")
			},
		}},
		Telemetry: telemetry.NewAnnotation(true),
	})
	require.NoError(t, err)
	require.Len(t, result.ToolCalls, 1)
	assert.Contains(t, result.ToolCalls[0].Error, "TOOL_PANIC")
}

func TestGenerate_MaxToolRounds(t *testing.T) {
	client := mock.NewClient(nil).SetHandler(func(*core.ChatRequest) mock.Response {
		return mock.CallTool("getWeather", weatherArgs{Location: "Paris"})
	})
	gen, sr := setupGenerator(t, client, ai.WithMaxToolRounds(2))

	_, err := gen.Generate(context.Background(), ai.GenerateRequest{
		Prompt:    "loop forever",
		Tools:     []core.Tool{weatherTool()},
		Telemetry: telemetry.NewAnnotation(true),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMaxToolRounds)
	assert.Equal(t, 3, client.CallCount())

	root := spansNamed(sr.Ended(), ai.GenerationSpanName)
	require.Len(t, root, 1)
	assert.Equal(t, codes.Error, root[0].Status().Code)
	assert.Len(t, spansNamed(sr.Ended(), "getWeather"), 2)
}

func TestGenerate_ProviderError(t *testing.T) {
	boom := errors.New("rate limited")
	gen, sr := setupGenerator(t, mock.NewClient(nil).Script(mock.Fail(boom)))

	result, err := gen.Generate(context.Background(), ai.GenerateRequest{
		Prompt:    "hi",
		Telemetry: telemetry.NewAnnotation(true, telemetry.WithAgentID("a")),
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var fe *core.FrameworkError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "provider", fe.Kind)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
}

func TestGenerate_InvalidRequests(t *testing.T) {
	gen, _ := setupGenerator(t, mock.NewClient(nil))

	_, err := gen.Generate(context.Background(), ai.GenerateRequest{Telemetry: telemetry.NewAnnotation(true)})
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)

	_, err = gen.Generate(context.Background(), ai.GenerateRequest{
		Prompt: "hi",
		Tools:  []core.Tool{weatherTool(), weatherTool()},
	})
	assert.ErrorIs(t, err, core.ErrAlreadyRegistered)

	noClient, _ := setupGenerator(t, nil)
	_, err = noClient.Generate(context.Background(), ai.GenerateRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, core.ErrNotInitialized)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gen.Generate(ctx, ai.GenerateRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, core.ErrContextCanceled)
}

func TestGenerate_DisabledTelemetry(t *testing.T) {
	client := mock.NewClient(nil).Script(
		mock.CallTool("getWeather", weatherArgs{Location: "Paris"}),
		mock.Text("sunny"),
	)
	gen, sr := setupGenerator(t, client)

	result, err := gen.Generate(context.Background(), ai.GenerateRequest{
		Prompt:    "Weather?",
		Tools:     []core.Tool{weatherTool()},
		Telemetry: telemetry.Disabled(),
	})
	require.NoError(t, err)
	assert.Equal(t, "sunny", result.Text)
	assert.Len(t, result.ToolCalls, 1)
	assert.Empty(t, sr.Started())
}

func TestGenerate_MessagesInput(t *testing.T) {
	client := mock.NewClient(nil)
	gen, sr := setupGenerator(t, client, ai.WithDefaultModel("mock-large"))

	_, err := gen.Generate(context.Background(), ai.GenerateRequest{
		Messages: []core.Message{
			{Role: core.RoleUser, Content: "first"},
			{Role: core.RoleAssistant, Content: "reply"},
		},
		Prompt:    "second",
		Telemetry: telemetry.NewAnnotation(true),
	})
	require.NoError(t, err)

	calls := client.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "mock-large", calls[0].Model)
	require.Len(t, calls[0].Messages, 3)
	assert.Equal(t, "second", calls[0].Messages[2].Content)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Contains(t, attrs(spans[0])[telemetry.AttrInput].AsString(), `"first"`)
	assert.Equal(t, "mock-large", attrs(spans[0])[telemetry.AttrModel].AsString())
}

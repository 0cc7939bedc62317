package main

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/google/uuid"

	"github.com/itsneelabh/gomind-agenttrace/ai"
	"github.com/itsneelabh/gomind-agenttrace/ai/providers/mock"
	"github.com/itsneelabh/gomind-agenttrace/core"
	"github.com/itsneelabh/gomind-agenttrace/telemetry"
)

// scenario is one demo generation flow. Scenarios differ only in the
// annotation attached to their calls.
type scenario struct {
	Name        string
	Title       string
	Description string
	Run         func(ctx context.Context, a *app) error
}

var scenarios = []scenario{
	{
		Name:        "basic",
		Title:       "Basic tracing",
		Description: "Tracing enabled without metadata; attributed to the default agent",
		Run:         runBasic,
	},
	{
		Name:        "agent",
		Title:       "Agent metadata",
		Description: "A named agent with instructions",
		Run:         runAgent,
	},
	{
		Name:        "user",
		Title:       "User and conversation",
		Description: "Agent, user, conversation and tags",
		Run:         runUser,
	},
	{
		Name:        "weather",
		Title:       "Tool call",
		Description: "A weather assistant calling one tool",
		Run:         runWeather,
	},
	{
		Name:        "multi-agent",
		Title:       "Multi-agent",
		Description: "A planning agent and an execution agent nested beneath it",
		Run:         runMultiAgent,
	},
	{
		Name:        "disabled",
		Title:       "Tracing disabled",
		Description: "The same call with tracing turned off; nothing is exported",
		Run:         runDisabled,
	},
}

// scenarioAll runs every scenario in order
const scenarioAll = "all"

func findScenario(name string) (scenario, bool) {
	for _, s := range scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return scenario{}, false
}

func scenarioNames() []string {
	names := make([]string, 0, len(scenarios)+1)
	for _, s := range scenarios {
		names = append(names, s.Name)
	}
	return append(names, scenarioAll)
}

// runScenarios executes the named scenarios. "all" expands to every
// scenario. A failed scenario is reported and the rest still run; spans are
// flushed after each one.
func (a *app) runScenarios(ctx context.Context, names ...string) error {
	var selected []scenario
	for _, name := range names {
		if name == scenarioAll {
			selected = append(selected, scenarios...)
			continue
		}
		s, ok := findScenario(name)
		if !ok {
			return &core.FrameworkError{
				Op:      "runScenarios",
				Kind:    "input",
				ID:      name,
				Message: fmt.Sprintf("unknown scenario %q (available: %s)", name, strings.Join(scenarioNames(), ", ")),
				Err:     core.ErrInvalidConfiguration,
			}
		}
		selected = append(selected, s)
	}

	failed := 0
	for _, s := range selected {
		if err := a.runScenario(ctx, s); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(selected))
	}
	return nil
}

func (a *app) runScenario(ctx context.Context, s scenario) error {
	fmt.Fprintln(a.out, titleStyle.Render(s.Title)+" "+dimStyle.Render(s.Description))

	err := s.Run(ctx, a)
	if err != nil {
		a.logger.Error("Scenario failed", map[string]interface{}{
			"scenario": s.Name,
			"error":    err.Error(),
		})
		fmt.Fprintln(a.out, errorStyle.Render("✗ "+err.Error()))
	}

	if flushErr := a.flush(ctx); flushErr != nil {
		a.logger.Warn("Failed to flush spans", map[string]interface{}{
			"scenario": s.Name,
			"error":    flushErr.Error(),
		})
	}
	fmt.Fprintln(a.out)
	return err
}

func (a *app) generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResult, error) {
	result, err := a.generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	a.printResult(result)
	return result, nil
}

func (a *app) printResult(result *ai.GenerateResult) {
	for _, call := range result.ToolCalls {
		line := fmt.Sprintf("  tool %s(%s)", call.Name, string(call.Input))
		if call.Error != "" {
			line += " failed: " + call.Error
		}
		fmt.Fprintln(a.out, dimStyle.Render(line))
	}
	fmt.Fprintln(a.out, okStyle.Render("✓ ")+result.Text)
}

func runBasic(ctx context.Context, a *app) error {
	_, err := a.generate(ctx, ai.GenerateRequest{
		Prompt:    "Write a haiku about distributed tracing.",
		Telemetry: telemetry.NewAnnotation(true),
	})
	return err
}

func runAgent(ctx context.Context, a *app) error {
	_, err := a.generate(ctx, ai.GenerateRequest{
		System: "You are a concise assistant that explains technical concepts.",
		Prompt: "Explain what a span is in one sentence.",
		Telemetry: telemetry.NewAnnotation(true,
			telemetry.WithAgentID("assistant"),
			telemetry.WithInstructions("You are a concise assistant that explains technical concepts."),
		),
	})
	return err
}

func runUser(ctx context.Context, a *app) error {
	_, err := a.generate(ctx, ai.GenerateRequest{
		Prompt: "How do I reset my password?",
		Telemetry: telemetry.NewAnnotation(true,
			telemetry.WithAgentID("support-agent"),
			telemetry.WithUserID("demo-user"),
			telemetry.WithConversationID("support-chat"),
			telemetry.WithTags("support", "demo"),
		),
	})
	return err
}

func runWeather(ctx context.Context, a *app) error {
	_, err := a.generate(ctx, ai.GenerateRequest{
		System: "You are a weather assistant. Use the weather tool to answer.",
		Prompt: "What is the weather like in Tokyo?",
		Tools:  []core.Tool{weatherTool()},
		Telemetry: telemetry.NewAnnotation(true,
			telemetry.WithAgentID("weather-assistant"),
			telemetry.WithUserID("demo-user"),
			telemetry.WithConversationID("weather-chat"),
			telemetry.WithTags("weather", "demo"),
		),
	})
	return err
}

func runMultiAgent(ctx context.Context, a *app) error {
	conversation := uuid.NewString()

	planner := ai.NewAgent("planning-agent", a.generator,
		ai.WithInstructions("You break tasks into short numbered plans."),
		ai.WithAgentTags("multi-agent"),
		ai.WithAgentLogger(a.logger),
	)
	executor := ai.NewAgent("execution-agent", a.generator,
		ai.WithInstructions("You carry out plans step by step."),
		ai.WithParentAgent("planning-agent"),
		ai.WithAgentTags("multi-agent"),
		ai.WithAgentLogger(a.logger),
	)

	plan, err := planner.Run(ctx, "Plan a three step investigation of rising cloud costs.",
		telemetry.WithConversationID(conversation),
		telemetry.WithUserID("demo-user"),
	)
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}
	a.printResult(plan)

	result, err := executor.Run(ctx, "Execute this plan:\n"+plan.Text,
		telemetry.WithConversationID(conversation),
		telemetry.WithUserID("demo-user"),
	)
	if err != nil {
		return fmt.Errorf("execution: %w", err)
	}
	a.printResult(result)
	return nil
}

func runDisabled(ctx context.Context, a *app) error {
	_, err := a.generate(ctx, ai.GenerateRequest{
		Prompt:    "Write a haiku about distributed tracing.",
		Telemetry: telemetry.NewAnnotation(false, telemetry.WithAgentID("untraced-agent")),
	})
	return err
}

type weatherInput struct {
	Location string `json:"location"`
}

type forecast struct {
	Location    string `json:"location"`
	Condition   string `json:"condition"`
	Temperature int    `json:"temperature"`
	Unit        string `json:"unit"`
}

var conditions = []string{"sunny", "cloudy", "rainy", "windy", "snowy"}

// weatherTool returns a deterministic fake forecast for a location
func weatherTool() core.Tool {
	return core.Tool{
		Name:        "weather",
		Description: "Get the current weather for a location",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"location":{"type":"string","description":"City name"}},"required":["location"]}`),
		Execute: func(ctx context.Context, args json.RawMessage) (interface{}, error) {
			var in weatherInput
			if err := json.Unmarshal(args, &in); err != nil || strings.TrimSpace(in.Location) == "" {
				return nil, &core.ToolError{
					Code:     "MISSING_LOCATION",
					Message:  "location is required",
					Category: core.CategoryInputError,
				}
			}
			return fakeForecast(in.Location), nil
		},
	}
}

func fakeForecast(location string) forecast {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(location)))
	sum := h.Sum32()
	return forecast{
		Location:    location,
		Condition:   conditions[sum%uint32(len(conditions))],
		Temperature: int(sum%35) - 5,
		Unit:        "celsius",
	}
}

// demoResponder lets the mock provider play every scenario offline: it asks
// for the weather tool when offered, then summarizes the tool result.
func demoResponder(req *core.ChatRequest) mock.Response {
	if len(req.Messages) > 0 {
		last := req.Messages[len(req.Messages)-1]
		if last.Role == core.RoleTool {
			return mock.Text("Here is what I found: " + last.Content)
		}
	}
	for _, t := range req.Tools {
		if t.Name == "weather" {
			return mock.CallTool("weather", weatherInput{Location: "Tokyo"})
		}
	}
	return mock.Echo(req)
}

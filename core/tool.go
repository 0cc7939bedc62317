package core

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolExecutor runs a tool with the raw JSON arguments produced by the model
// and returns a JSON-serializable result.
type ToolExecutor func(ctx context.Context, args json.RawMessage) (interface{}, error)

// Tool is a callable sub-operation a model may request during a generation call.
//
// Parameters holds a JSON Schema object describing the arguments, e.g.
//
//	{"type":"object","properties":{"location":{"type":"string"}},"required":["location"]}
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
	Execute     ToolExecutor
}

// ToolDefinition is the provider-facing part of a Tool (no executor)
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Definition returns the declaration sent to the provider
func (t Tool) Definition() ToolDefinition {
	params := t.Parameters
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return ToolDefinition{
		Name:        t.Name,
		Description: t.Description,
		Parameters:  params,
	}
}

// Validate checks that a tool can be declared to a provider
func (t Tool) Validate() error {
	if t.Name == "" {
		return &FrameworkError{
			Op:      "Tool.Validate",
			Kind:    "tool",
			Message: "tool name is required",
			Err:     ErrInvalidConfiguration,
		}
	}
	if t.Execute == nil {
		return &FrameworkError{
			Op:      "Tool.Validate",
			Kind:    "tool",
			ID:      t.Name,
			Message: fmt.Sprintf("tool %q has no executor", t.Name),
			Err:     ErrInvalidConfiguration,
		}
	}
	if len(t.Parameters) > 0 && !json.Valid(t.Parameters) {
		return &FrameworkError{
			Op:      "Tool.Validate",
			Kind:    "tool",
			ID:      t.Name,
			Message: fmt.Sprintf("tool %q has an invalid parameter schema", t.Name),
			Err:     ErrInvalidConfiguration,
		}
	}
	return nil
}

// ToolSet indexes tools by name
type ToolSet map[string]Tool

// NewToolSet validates and indexes tools. Duplicate names are rejected.
func NewToolSet(tools ...Tool) (ToolSet, error) {
	set := make(ToolSet, len(tools))
	for _, t := range tools {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, exists := set[t.Name]; exists {
			return nil, &FrameworkError{
				Op:      "NewToolSet",
				Kind:    "tool",
				ID:      t.Name,
				Message: fmt.Sprintf("duplicate tool %q", t.Name),
				Err:     ErrAlreadyRegistered,
			}
		}
		set[t.Name] = t
	}
	return set, nil
}

// Definitions returns the provider declarations in a stable order
func (s ToolSet) Definitions(order []Tool) []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(order))
	for _, t := range order {
		if _, ok := s[t.Name]; ok {
			defs = append(defs, t.Definition())
		}
	}
	return defs
}

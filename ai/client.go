package ai

import (
	"fmt"
	"time"

	"github.com/itsneelabh/gomind-agenttrace/core"
)

// NewClient creates an AI client using registered providers
func NewClient(opts ...AIOption) (core.ChatClient, error) {
	// Default configuration
	config := &AIConfig{
		Provider:    string(ProviderAuto),
		MaxRetries:  2,
		Timeout:     60 * time.Second,
		Temperature: 0.7,
		MaxTokens:   1000,
	}

	// Apply options
	for _, opt := range opts {
		if opt != nil {
			opt(config)
		}
	}

	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if cal, ok := config.Logger.(core.ComponentAwareLogger); ok {
		config.Logger = cal.WithComponent("framework/ai")
	}
	config.Logger.Debug("Starting AI client creation", map[string]interface{}{
		"operation":        "ai_client_creation",
		"provider_setting": config.Provider,
		"auto_detect":      config.Provider == string(ProviderAuto),
	})

	if config.Provider == string(ProviderAuto) {
		provider, err := detectBestProvider(config.Logger)
		if err != nil {
			return nil, fmt.Errorf("no AI provider available: %w", err)
		}
		config.Provider = provider
	}

	factory, exists := GetProvider(config.Provider)
	if !exists {
		config.Logger.Error("AI provider not registered", map[string]interface{}{
			"operation":           "ai_provider_lookup",
			"requested_provider":  config.Provider,
			"available_providers": ListProviders(),
			"import_hint":         fmt.Sprintf("Import _ \"github.com/itsneelabh/gomind-agenttrace/ai/providers/%s\"", config.Provider),
		})
		return nil, &core.FrameworkError{
			Op:      "ai.NewClient",
			Kind:    "provider",
			ID:      config.Provider,
			Message: fmt.Sprintf("provider '%s' not registered", config.Provider),
			Err:     core.ErrProviderNotFound,
		}
	}

	client := factory.Create(config)
	config.Logger.Info("AI client created", map[string]interface{}{
		"operation": "ai_client_creation",
		"provider":  config.Provider,
		"model":     config.Model,
	})
	return client, nil
}

// MustNewClient creates a new AI client and panics on error
func MustNewClient(opts ...AIOption) core.ChatClient {
	client, err := NewClient(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create AI client: %v", err))
	}
	return client
}

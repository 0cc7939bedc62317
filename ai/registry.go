package ai

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/itsneelabh/gomind-agenttrace/core"
)

// ProviderFactory defines the interface for AI provider factories
type ProviderFactory interface {
	// Create creates a new AI client instance with the given configuration
	Create(config *AIConfig) core.ChatClient

	// DetectEnvironment checks if this provider can be used with current environment
	// Returns priority (higher = preferred) and availability
	DetectEnvironment() (priority int, available bool)

	// Name returns the provider's name
	Name() string

	// Description returns a human-readable description
	Description() string
}

// ProviderRegistry manages registered AI providers
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
}

// Global registry instance
var registry = &ProviderRegistry{
	providers: make(map[string]ProviderFactory),
}

// Register registers a new AI provider factory.
// This is typically called from init() functions in provider packages.
func Register(factory ProviderFactory) error {
	if factory == nil {
		return fmt.Errorf("factory cannot be nil: %w", core.ErrInvalidConfiguration)
	}

	name := factory.Name()
	if name == "" {
		return fmt.Errorf("factory.Name() cannot be empty: %w", core.ErrInvalidConfiguration)
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	if _, exists := registry.providers[name]; exists {
		return fmt.Errorf("provider '%s': %w", name, core.ErrAlreadyRegistered)
	}

	registry.providers[name] = factory
	return nil
}

// MustRegister registers a provider and panics on error
func MustRegister(factory ProviderFactory) {
	if err := Register(factory); err != nil {
		panic(fmt.Sprintf("failed to register provider: %v", err))
	}
}

// GetProvider retrieves a registered provider by name
func GetProvider(name string) (ProviderFactory, bool) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	factory, exists := registry.providers[name]
	return factory, exists
}

// ListProviders returns all registered provider names
func ListProviders() []string {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	names := make([]string, 0, len(registry.providers))
	for name := range registry.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProviderInfo contains information about a registered provider
type ProviderInfo struct {
	Name        string
	Description string
	Available   bool
	Priority    int
}

// GetProviderInfo returns information about all registered providers,
// highest priority first
func GetProviderInfo() []ProviderInfo {
	registry.mu.RLock()
	defer registry.mu.RUnlock()

	info := make([]ProviderInfo, 0, len(registry.providers))
	for name, factory := range registry.providers {
		priority, available := factory.DetectEnvironment()
		info = append(info, ProviderInfo{
			Name:        name,
			Description: factory.Description(),
			Available:   available,
			Priority:    priority,
		})
	}

	sort.Slice(info, func(i, j int) bool {
		if info[i].Priority != info[j].Priority {
			return info[i].Priority > info[j].Priority
		}
		return info[i].Name < info[j].Name
	})
	return info
}

// detectBestProvider picks the available provider with the highest priority
func detectBestProvider(logger core.Logger) (string, error) {
	startTime := time.Now()

	var available []ProviderInfo
	for _, p := range GetProviderInfo() {
		logger.Debug("Checking AI provider availability", map[string]interface{}{
			"operation": "ai_provider_check",
			"provider":  p.Name,
			"priority":  p.Priority,
			"available": p.Available,
		})
		if p.Available {
			available = append(available, p)
		}
	}

	if len(available) == 0 {
		logger.Error("No AI providers detected in environment", map[string]interface{}{
			"operation":         "ai_provider_detection",
			"checked_providers": len(ListProviders()),
			"suggestion":        "Set OPENAI_API_KEY or GOMIND_AI_PROVIDER",
		})
		return "", fmt.Errorf("no provider detected in environment: %w", core.ErrProviderNotFound)
	}

	alternatives := make([]string, 0, len(available)-1)
	for _, p := range available[1:] {
		alternatives = append(alternatives, p.Name)
	}
	logger.Info("AI provider selected", map[string]interface{}{
		"operation":             "ai_provider_selection",
		"selected_provider":     available[0].Name,
		"selection_priority":    available[0].Priority,
		"alternative_providers": alternatives,
		"detection_ms":          time.Since(startTime).Milliseconds(),
	})
	return available[0].Name, nil
}

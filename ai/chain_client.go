package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/itsneelabh/gomind-agenttrace/core"
)

// ChainClient fails over across several providers. It tries them in order
// and returns the first successful response.
type ChainClient struct {
	providers []chainMember
	logger    core.Logger
}

type chainMember struct {
	name   string
	client core.ChatClient
}

// ChainConfig holds configuration for chain client
type ChainConfig struct {
	PrimaryName     string
	Primary         core.ChatClient
	ProviderAliases []string
	Clients         []core.ChatClient
	Options         []AIOption
	Logger          core.Logger
}

// ChainOption configures a chain client
type ChainOption func(*ChainConfig)

// WithPrimaryClient puts a ready-made client ahead of every other provider
func WithPrimaryClient(name string, client core.ChatClient) ChainOption {
	return func(c *ChainConfig) {
		c.PrimaryName = name
		c.Primary = client
	}
}

// WithProviderChain sets the provider aliases to try in order, e.g.
// WithProviderChain("openai", "openai.groq", "openai.ollama")
func WithProviderChain(aliases ...string) ChainOption {
	return func(c *ChainConfig) {
		c.ProviderAliases = append(c.ProviderAliases, aliases...)
	}
}

// WithChainClients appends ready-made clients after the aliased ones
func WithChainClients(clients ...core.ChatClient) ChainOption {
	return func(c *ChainConfig) {
		c.Clients = append(c.Clients, clients...)
	}
}

// WithChainOptions applies opts to every aliased provider
func WithChainOptions(opts ...AIOption) ChainOption {
	return func(c *ChainConfig) {
		c.Options = append(c.Options, opts...)
	}
}

// WithChainLogger sets the logger for the chain client
func WithChainLogger(logger core.Logger) ChainOption {
	return func(c *ChainConfig) {
		c.Logger = logger
	}
}

// NewChainClient creates a failover client. Providers that cannot be created
// are skipped with a warning; a chain without any provider is an error.
func NewChainClient(opts ...ChainOption) (*ChainClient, error) {
	config := &ChainConfig{}
	for _, opt := range opts {
		opt(config)
	}

	if config.Primary == nil && len(config.ProviderAliases) == 0 && len(config.Clients) == 0 {
		return nil, &core.FrameworkError{
			Op:      "ai.NewChainClient",
			Kind:    "config",
			Message: "at least one provider required for chain",
			Err:     core.ErrMissingConfiguration,
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = &core.NoOpLogger{}
	} else if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("framework/ai")
	}

	client := &ChainClient{logger: logger}
	if config.Primary != nil {
		client.providers = append(client.providers, chainMember{name: config.PrimaryName, client: config.Primary})
	}
	skipped := 0
	for _, alias := range config.ProviderAliases {
		clientOpts := append([]AIOption{WithLogger(config.Logger)}, config.Options...)
		clientOpts = append(clientOpts, WithProviderAlias(alias))
		provider, err := NewClient(clientOpts...)
		if err != nil {
			logger.Warn("Provider not available (will skip in chain)", map[string]interface{}{
				"operation": "ai_chain_init",
				"alias":     alias,
				"error":     err.Error(),
			})
			skipped++
			continue
		}
		client.providers = append(client.providers, chainMember{name: alias, client: provider})
	}
	for i, c := range config.Clients {
		if c != nil {
			client.providers = append(client.providers, chainMember{name: fmt.Sprintf("client-%d", i), client: c})
		}
	}

	if len(client.providers) == 0 {
		return nil, &core.FrameworkError{
			Op:      "ai.NewChainClient",
			Kind:    "config",
			Message: "no providers could be initialized",
			Err:     core.ErrProviderNotFound,
		}
	}

	logger.Info("Chain client initialized", map[string]interface{}{
		"operation":           "ai_chain_init",
		"requested_providers": len(client.providers) + skipped,
		"available_providers": len(client.providers),
	})
	return client, nil
}

// Len returns how many providers are in the chain
func (c *ChainClient) Len() int {
	return len(c.providers)
}

// Chat tries each provider until one succeeds. Rejected requests and
// cancellation stop the chain, since another provider would fail the same way.
func (c *ChainClient) Chat(ctx context.Context, req *core.ChatRequest) (*core.ChatResponse, error) {
	var lastErr error
	for i, p := range c.providers {
		resp, err := p.client.Chat(ctx, req)
		if err == nil {
			if i > 0 {
				c.logger.Info("Failover succeeded", map[string]interface{}{
					"operation":       "ai_chain_failover",
					"failed_attempts": i,
					"provider":        p.name,
				})
			}
			return resp, nil
		}
		lastErr = err

		if stopsChain(ctx, err) {
			return nil, err
		}
		c.logger.Warn("Provider failed, trying next", map[string]interface{}{
			"operation": "ai_chain_failover",
			"provider":  p.name,
			"error":     err.Error(),
			"remaining": len(c.providers) - i - 1,
		})
	}

	c.logger.Error("All chain providers exhausted", map[string]interface{}{
		"operation":       "ai_chain_exhausted",
		"providers_tried": len(c.providers),
		"final_error":     lastErr.Error(),
	})
	return nil, fmt.Errorf("all %d providers failed: %w", len(c.providers), lastErr)
}

func stopsChain(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, core.ErrContextCanceled) ||
		errors.Is(err, core.ErrRequestRejected)
}

package ai

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/itsneelabh/gomind-agenttrace/core"
)

// Provider represents an AI provider type
type Provider string

// Standard provider constants
const (
	ProviderOpenAI Provider = "openai"
	ProviderMock   Provider = "mock"
	ProviderAuto   Provider = "auto" // Auto-detect from environment
)

// AIConfig holds configuration for AI client creation
type AIConfig struct {
	// Provider to use
	Provider string

	// ProviderAlias selects an OpenAI-compatible service, e.g. "openai.groq"
	ProviderAlias string

	// API credentials
	APIKey  string
	BaseURL string

	// Connection settings
	Timeout    time.Duration
	MaxRetries int

	// Transport replaces the HTTP transport used by network providers
	Transport http.RoundTripper

	// Model configuration
	Model       string
	Temperature float32
	MaxTokens   int

	Logger core.Logger

	// Advanced options
	Headers map[string]string
	Extra   map[string]interface{}
}

// AIOption configures an AI client
type AIOption func(*AIConfig)

// FromConfig turns the runtime AI configuration into client options
func FromConfig(c core.AIConfig) []AIOption {
	return []AIOption{
		WithProvider(c.Provider),
		WithAPIKey(c.APIKey),
		WithBaseURL(c.BaseURL),
		WithModel(c.Model),
		WithTemperature(c.Temperature),
		WithMaxTokens(c.MaxTokens),
		WithTimeout(c.Timeout),
		WithMaxRetries(c.MaxRetries),
	}
}

// WithProvider sets the AI provider
func WithProvider(provider string) AIOption {
	return func(c *AIConfig) {
		if provider != "" {
			c.Provider = provider
		}
	}
}

// WithAPIKey sets the API key
func WithAPIKey(key string) AIOption {
	return func(c *AIConfig) {
		c.APIKey = key
	}
}

// WithBaseURL sets the base URL for the API
func WithBaseURL(url string) AIOption {
	return func(c *AIConfig) {
		c.BaseURL = url
	}
}

// WithTimeout sets the request timeout
func WithTimeout(timeout time.Duration) AIOption {
	return func(c *AIConfig) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// WithMaxRetries sets the maximum number of retries
func WithMaxRetries(retries int) AIOption {
	return func(c *AIConfig) {
		c.MaxRetries = retries
	}
}

// WithTransport sets the HTTP transport (useful for testing)
func WithTransport(rt http.RoundTripper) AIOption {
	return func(c *AIConfig) {
		c.Transport = rt
	}
}

// WithModel sets the model to use
func WithModel(model string) AIOption {
	return func(c *AIConfig) {
		if model != "" {
			c.Model = model
		}
	}
}

// WithTemperature sets the temperature for generation
func WithTemperature(temp float32) AIOption {
	return func(c *AIConfig) {
		c.Temperature = temp
	}
}

// WithMaxTokens sets the maximum tokens for generation
func WithMaxTokens(tokens int) AIOption {
	return func(c *AIConfig) {
		if tokens > 0 {
			c.MaxTokens = tokens
		}
	}
}

// WithHeaders sets custom headers
func WithHeaders(headers map[string]string) AIOption {
	return func(c *AIConfig) {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		for k, v := range headers {
			c.Headers[k] = v
		}
	}
}

// WithExtra sets extra configuration options
func WithExtra(key string, value interface{}) AIOption {
	return func(c *AIConfig) {
		if c.Extra == nil {
			c.Extra = make(map[string]interface{})
		}
		c.Extra[key] = value
	}
}

// WithLogger sets the logger for AI operations
func WithLogger(logger core.Logger) AIOption {
	return func(c *AIConfig) {
		c.Logger = logger
	}
}

// WithProviderAlias targets an OpenAI-compatible service. "openai.groq"
// selects the openai provider and, unless APIKey or BaseURL were set
// explicitly, reads GROQ_API_KEY and GROQ_BASE_URL with a well-known default.
func WithProviderAlias(alias string) AIOption {
	return func(c *AIConfig) {
		c.ProviderAlias = alias

		base, sub, found := strings.Cut(alias, ".")
		c.Provider = base
		if !found || c.APIKey != "" || c.BaseURL != "" {
			return
		}

		switch sub {
		case "deepseek":
			c.APIKey = os.Getenv("DEEPSEEK_API_KEY")
			c.BaseURL = firstNonEmpty(os.Getenv("DEEPSEEK_BASE_URL"), "https://api.deepseek.com")
		case "groq":
			c.APIKey = os.Getenv("GROQ_API_KEY")
			c.BaseURL = firstNonEmpty(os.Getenv("GROQ_BASE_URL"), "https://api.groq.com/openai/v1")
		case "together":
			c.APIKey = os.Getenv("TOGETHER_API_KEY")
			c.BaseURL = firstNonEmpty(os.Getenv("TOGETHER_BASE_URL"), "https://api.together.xyz/v1")
		case "ollama":
			// Ollama doesn't need API key
			c.BaseURL = firstNonEmpty(os.Getenv("OLLAMA_BASE_URL"), "http://localhost:11434/v1")
		}
	}
}

// firstNonEmpty returns the first non-empty string from the provided values
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

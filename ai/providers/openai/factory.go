package openai

import (
	"os"

	"github.com/itsneelabh/gomind-agenttrace/ai"
	"github.com/itsneelabh/gomind-agenttrace/core"
)

// Factory implements ai.ProviderFactory for OpenAI-compatible services
type Factory struct{}

// Create builds a client. Empty credentials fall back to OPENAI_API_KEY and
// OPENAI_BASE_URL.
func (f *Factory) Create(config *ai.AIConfig) core.ChatClient {
	cfg := *config
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	return NewClient(&cfg)
}

// DetectEnvironment reports the provider as available when an API key is
// set. It never changes the environment.
func (f *Factory) DetectEnvironment() (priority int, available bool) {
	if os.Getenv("OPENAI_API_KEY") != "" {
		return 100, true
	}
	return 0, false
}

// Name returns the provider name
func (f *Factory) Name() string {
	return string(ai.ProviderOpenAI)
}

// Description returns a human-readable description
func (f *Factory) Description() string {
	return "OpenAI-compatible chat completions (OpenAI, Groq, DeepSeek, Together, Ollama)"
}

func init() {
	ai.MustRegister(&Factory{})
}

package openai

// DefaultModel is used when neither the request nor the client names one
const DefaultModel = "gpt-4o-mini"

// ModelAliases maps portable model names to what each OpenAI-compatible
// service calls them. The outer key is the provider alias.
//
//	client, _ := ai.NewClient(
//	    ai.WithProviderAlias("openai.deepseek"),
//	    ai.WithModel("smart"), // deepseek-reasoner
//	)
var ModelAliases = map[string]map[string]string{
	"openai": {
		"fast":    "gpt-4o-mini",
		"smart":   "gpt-4o",
		"default": DefaultModel,
	},
	"openai.deepseek": {
		"fast":    "deepseek-chat",
		"smart":   "deepseek-reasoner",
		"default": "deepseek-chat",
	},
	"openai.groq": {
		"fast":    "llama-3.1-8b-instant",
		"smart":   "llama-3.3-70b-versatile",
		"default": "llama-3.3-70b-versatile",
	},
	"openai.together": {
		"fast":    "meta-llama/Llama-3-8b-chat-hf",
		"smart":   "meta-llama/Llama-3-70b-chat-hf",
		"default": "meta-llama/Llama-3-70b-chat-hf",
	},
	"openai.ollama": {
		"fast":    "llama3.2",
		"smart":   "llama3.1",
		"default": "llama3.2",
	},
}

// ResolveModel maps an alias to the concrete model for providerAlias.
// Names that are not aliases pass through unchanged; an empty model resolves
// to the provider's default.
func ResolveModel(providerAlias, model string) string {
	if providerAlias == "" {
		providerAlias = "openai"
	}
	aliases, ok := ModelAliases[providerAlias]
	if !ok {
		if model == "" {
			return DefaultModel
		}
		return model
	}
	if model == "" {
		model = "default"
	}
	if actual, ok := aliases[model]; ok {
		return actual
	}
	return model
}

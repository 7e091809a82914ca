package providers

import (
	"fmt"
	"net/http"
)

// ModelInfo contains metadata for each supported model.
type ModelInfo struct {
	ID                string
	ProviderType      string // "anthropic" | "openai_compat" | "ollama"
	BaseURL           string
	MaxContext        int
	InputCostPerMTok  float64 // USD per million input tokens
	OutputCostPerMTok float64 // USD per million output tokens
	ExtraParams       map[string]any
}

// DefaultModel is the model used when neither the config nor the caller picks one.
const DefaultModel = "qwen2.5:7b"

// SupportedModels is the definitive list of models fincall can drive.
var SupportedModels = map[string]ModelInfo{
	"qwen2.5:7b": {
		ID:           "qwen2.5:7b",
		ProviderType: "ollama",
		MaxContext:   32768,
	},
	"llama3.1:8b": {
		ID:           "llama3.1:8b",
		ProviderType: "ollama",
		MaxContext:   131072,
	},
	"claude-opus-4-6": {
		ID:                "claude-opus-4-6",
		ProviderType:      "anthropic",
		BaseURL:           "https://api.anthropic.com",
		MaxContext:        200000,
		InputCostPerMTok:  5.0,
		OutputCostPerMTok: 25.0,
	},
	"gpt-5.2": {
		ID:                "gpt-5.2",
		ProviderType:      "openai_compat",
		BaseURL:           "https://api.openai.com/v1",
		MaxContext:        128000,
		InputCostPerMTok:  10.0,
		OutputCostPerMTok: 30.0,
	},
	"glm-5": {
		ID:                "glm-5",
		ProviderType:      "openai_compat",
		BaseURL:           "https://api.z.ai/api/paas/v4/",
		MaxContext:        128000,
		InputCostPerMTok:  0.50,
		OutputCostPerMTok: 2.0,
	},
	"kimi-k2.5": {
		ID:                "kimi-k2.5",
		ProviderType:      "openai_compat",
		BaseURL:           "https://api.moonshot.ai/v1",
		MaxContext:        256000,
		InputCostPerMTok:  0.60,
		OutputCostPerMTok: 3.0,
		ExtraParams: map[string]any{
			"thinking": map[string]string{"type": "disabled"},
		},
	},
}

// apiKeyMapping maps hosted model IDs to the key name used in the apiKeys map.
// Ollama models run locally and need no key.
var apiKeyMapping = map[string]string{
	"claude-opus-4-6": "anthropic",
	"gpt-5.2":         "openai",
	"glm-5":           "glm",
	"kimi-k2.5":       "kimi",
}

// Options carries what NewProvider needs beyond the model ID.
type Options struct {
	APIKeys    map[string]string
	OllamaHost string
	HTTPClient *http.Client // shared by all adapters; nil means each SDK default
}

// APIKeyName returns the key name a model requires, or "" when it needs none.
func APIKeyName(modelID string) string {
	return apiKeyMapping[modelID]
}

// NewProvider creates the correct Provider for the given model ID.
// Returns error if the model is not in SupportedModels or the required API key is missing.
func NewProvider(modelID string, opts Options) (Provider, error) {
	model, ok := SupportedModels[modelID]
	if !ok {
		return nil, fmt.Errorf("providers: unknown model %q", modelID)
	}

	if model.ProviderType == "ollama" {
		return NewOllamaProvider(modelID, opts.OllamaHost, opts.HTTPClient), nil
	}

	keyName, ok := apiKeyMapping[modelID]
	if !ok {
		return nil, fmt.Errorf("providers: no API key mapping for model %q", modelID)
	}

	apiKey := opts.APIKeys[keyName]
	if apiKey == "" {
		return nil, fmt.Errorf("providers: API key %q is required for model %q", keyName, modelID)
	}

	switch model.ProviderType {
	case "anthropic":
		return NewAnthropicProvider(apiKey, model.ID, anthropicClientOptions(opts.HTTPClient)...), nil
	case "openai_compat":
		return NewOpenAICompatProvider(apiKey, model.ID, model.BaseURL, model.ExtraParams, openAIClientOptions(opts.HTTPClient)...), nil
	default:
		return nil, fmt.Errorf("providers: unknown provider type %q for model %q", model.ProviderType, modelID)
	}
}

// ModelIDs returns all supported model IDs, local models first.
func ModelIDs() []string {
	return []string{
		"qwen2.5:7b",
		"llama3.1:8b",
		"claude-opus-4-6",
		"gpt-5.2",
		"glm-5",
		"kimi-k2.5",
	}
}

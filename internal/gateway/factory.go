package gateway

import (
	"os"
	"strings"

	"go.uber.org/zap"
)

// NewFromEnv builds a Client wrapping whichever backend is configured via
// environment variables, grounded on the teacher's llm.NewFromEnv (same
// LLM_PROVIDER / *_API_KEY / LLM_MODEL conventions), wrapped in an Adapter
// so fallback-tool injection and chunk-summarisation apply regardless of
// which backend ends up selected.
func NewFromEnv(log *zap.Logger) Client {
	return NewAdapter(backendFromEnv(), log)
}

func backendFromEnv() Backend {
	provider := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	switch provider {
	case "openai":
		if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
			return &OpenAIBackend{APIKey: key, Model: modelOrDefault("gpt-4o-mini"), BaseURL: os.Getenv("OPENAI_API_BASE")}
		}
	case "anthropic":
		if key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); key != "" {
			return &AnthropicBackend{APIKey: key, Model: modelOrDefault("claude-3-5-sonnet-latest")}
		}
	case "gemini":
		if key := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")); key != "" {
			return &GeminiBackend{APIKey: key, Model: modelOrDefault("gemini-1.5-flash")}
		}
	}

	if key := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); key != "" {
		return &OpenAIBackend{APIKey: key, Model: modelOrDefault("gpt-4o-mini"), BaseURL: os.Getenv("OPENAI_API_BASE")}
	}
	if key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); key != "" {
		return &AnthropicBackend{APIKey: key, Model: modelOrDefault("claude-3-5-sonnet-latest")}
	}
	if key := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")); key != "" {
		return &GeminiBackend{APIKey: key, Model: modelOrDefault("gemini-1.5-flash")}
	}
	return MockBackend{}
}

func modelOrDefault(def string) string {
	if v := strings.TrimSpace(os.Getenv("LLM_MODEL")); v != "" {
		return v
	}
	return def
}

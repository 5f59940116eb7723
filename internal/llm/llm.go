// Package llm provides language model services for answer generation.
package llm

import (
	"context"
	"fmt"
	"time"

	"ragserver/internal/config"
)

// Provider represents an LLM provider type.
type Provider string

const (
	ProviderOllama Provider = "ollama"
	ProviderOpenAI Provider = "openai"
)

// Generation is the result of a single completion call, including the
// wall-clock latency measured around it.
type Generation struct {
	Text    string        `json:"text"`
	Elapsed time.Duration `json:"elapsed"`
}

// StatusError reports a non-success HTTP status from an upstream provider.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("llm provider returned %s: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("llm provider returned %s", e.Status)
}

// Service defines the interface for LLM services.
type Service interface {
	// Generate produces a completion for the given prompt.
	Generate(ctx context.Context, prompt string) (*Generation, error)

	// Provider returns the provider name.
	Provider() Provider

	// ModelName returns the model name.
	ModelName() string
}

// NewService creates an LLM service based on the configuration.
// It is a pure selection function: constructors perform no I/O.
func NewService(cfg *config.Config) (Service, error) {
	switch cfg.LLM.Provider {
	case "ollama":
		return NewOllamaService(
			cfg.LLM.Ollama.URL,
			cfg.LLM.Ollama.Model,
		)
	case "openai":
		return NewOpenAIService(
			cfg.LLM.OpenAI.APIKey,
			cfg.LLM.OpenAI.Model,
			cfg.LLM.OpenAI.BaseURL,
		)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLM.Provider)
	}
}

// Package embeddings provides text embedding services for semantic retrieval.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"ragserver/internal/config"
)

// Provider represents an embedding provider type.
type Provider string

const (
	ProviderOllama   Provider = "ollama"
	ProviderOpenAI   Provider = "openai"
	ProviderDisabled Provider = "disabled"
)

// ErrDisabled is returned by the disabled provider: embedding happens
// server-side inside the vector store, so no local service is needed.
var ErrDisabled = errors.New("embedding service is disabled: the vector store embeds documents server-side")

// Service defines the interface for embedding services.
type Service interface {
	// Embed generates an embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensions for this model.
	Dimensions() int

	// Provider returns the provider name.
	Provider() Provider

	// ModelName returns the model name.
	ModelName() string
}

// Known model dimensions
var modelDimensions = map[string]int{
	// Ollama models
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,

	// OpenAI models
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// GetModelDimensions returns the known dimensions for a model, or 0 if unknown.
func GetModelDimensions(model string) int {
	return modelDimensions[model]
}

// NewService creates an embedding service based on the configuration.
// It is a pure selection function: constructors perform no I/O.
func NewService(cfg *config.Config) (Service, error) {
	switch cfg.Embeddings.Provider {
	case "ollama":
		return NewOllamaService(
			cfg.Embeddings.Ollama.URL,
			cfg.Embeddings.Ollama.Model,
		)
	case "openai":
		return NewOpenAIService(
			cfg.Embeddings.OpenAI.APIKey,
			cfg.Embeddings.OpenAI.Model,
			cfg.Embeddings.OpenAI.BaseURL,
			cfg.Embeddings.OpenAI.Dimensions,
		)
	case "disabled", "none":
		return NewDisabledService(), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embeddings.Provider)
	}
}

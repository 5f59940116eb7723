// Package rag wires the configured providers into the query pipeline:
// retrieval over the vector store, then answer generation with the LLM.
package rag

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"ragserver/internal/config"
	"ragserver/internal/embeddings"
	"ragserver/internal/llm"
	"ragserver/internal/store"
)

// Providers holds the initialized service handles the pipeline runs on.
type Providers struct {
	Store    store.VectorStore
	Embedder embeddings.Service
	LLM      llm.Service
}

var (
	providersMu sync.Mutex
	active      *Providers
)

// GetProviders returns the shared provider set, initializing it on first
// use. Initialization is all-or-nothing: if any provider fails to come up,
// everything built so far is discarded so the next call starts clean.
func GetProviders(ctx context.Context) (*Providers, error) {
	providersMu.Lock()
	defer providersMu.Unlock()

	if active != nil {
		return active, nil
	}

	p, err := buildProviders(ctx, config.Get())
	if err != nil {
		return nil, err
	}

	active = p
	return active, nil
}

// ResetProviders discards the shared provider set. The next GetProviders
// call rebuilds everything from the current configuration.
func ResetProviders() {
	providersMu.Lock()
	defer providersMu.Unlock()

	if active != nil && active.Store != nil {
		if err := active.Store.Close(); err != nil {
			log.Warn("Failed to close vector store", "error", err)
		}
	}
	active = nil
}

// buildProviders constructs and initializes all three services.
func buildProviders(ctx context.Context, cfg *config.Config) (*Providers, error) {
	vs, err := store.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	if err := vs.Init(ctx); err != nil {
		vs.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	embedder, err := embeddings.NewService(cfg)
	if err != nil {
		vs.Close()
		return nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	generator, err := llm.NewService(cfg)
	if err != nil {
		vs.Close()
		return nil, fmt.Errorf("failed to create LLM service: %w", err)
	}

	log.Debug("Providers initialized",
		"store", cfg.VectorStore.Provider,
		"embeddings", embedder.Provider(),
		"llm", generator.Provider())

	return &Providers{
		Store:    vs,
		Embedder: embedder,
		LLM:      generator,
	}, nil
}

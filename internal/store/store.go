package store

import (
	"context"
	"fmt"

	"ragserver/internal/config"
)

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// Init prepares the store for use (loads the backing file or verifies
	// the remote index).
	Init(ctx context.Context) error

	// AddDocuments upserts records by ID: an existing record sharing an ID
	// is replaced, never duplicated.
	AddDocuments(ctx context.Context, recs []VectorRecord) error

	// Query returns the top-k most similar records, descending.
	Query(ctx context.Context, q Query) (*SearchResult, error)

	// ExistingIDs returns the IDs already present in the store, used for
	// incremental ingestion.
	ExistingIDs(ctx context.Context) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// New creates a vector store based on the configuration.
// It is a pure selection function: constructors perform no I/O.
func New(cfg *config.Config) (VectorStore, error) {
	switch cfg.VectorStore.Provider {
	case "local":
		return NewLocalStore(cfg.VectorStore.Local.Path), nil
	case "pinecone":
		return NewPineconeStore(cfg.VectorStore.Pinecone)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", cfg.VectorStore.Provider)
	}
}

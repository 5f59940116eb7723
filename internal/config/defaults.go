package config

import (
	"os"
	"path/filepath"
)

// Default configuration values
const (
	// Vector store defaults
	DefaultVectorStoreProvider = "local"
	DefaultLocalStorePath      = "data/vectorstore.json"
	DefaultPineconeNamespace   = "default"

	// Embedding defaults
	DefaultEmbeddingProvider = "ollama"
	DefaultOllamaURL         = "http://localhost:11434"
	DefaultOllamaEmbedModel  = "nomic-embed-text"
	DefaultOpenAIEmbedModel  = "text-embedding-3-small"

	// LLM defaults
	DefaultLLMProvider    = "ollama"
	DefaultOllamaLLMModel = "llama3"
	DefaultOpenAILLMModel = "gpt-4o-mini"

	// Retrieval defaults
	DefaultTopK = 3

	// Records
	DefaultRecordsPath = "data/records.json"

	// Server
	DefaultServerAddr = ":8080"
)

// DefaultConfigDir returns the default configuration directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/ragserver"
	}
	return filepath.Join(home, ".config", "ragserver")
}

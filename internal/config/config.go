// Package config handles configuration loading and validation for ragserver.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/viper"
)

// Config represents the complete ragserver configuration.
type Config struct {
	VectorStore VectorStoreConfig `mapstructure:"vectorstore"`
	Embeddings  EmbeddingsConfig  `mapstructure:"embeddings"`
	LLM         LLMConfig         `mapstructure:"llm"`
	Retrieval   RetrievalConfig   `mapstructure:"retrieval"`
	Records     RecordsConfig     `mapstructure:"records"`
	Server      ServerConfig      `mapstructure:"server"`
}

// VectorStoreConfig configures the vector store backend.
type VectorStoreConfig struct {
	Provider string              `mapstructure:"provider"`
	Local    LocalStoreConfig    `mapstructure:"local"`
	Pinecone PineconeStoreConfig `mapstructure:"pinecone"`
}

// LocalStoreConfig configures the local file-backed store.
type LocalStoreConfig struct {
	Path string `mapstructure:"path"`
}

// PineconeStoreConfig configures the hosted vector index.
type PineconeStoreConfig struct {
	Host          string `mapstructure:"host"`
	APIKey        string `mapstructure:"api_key"`
	Namespace     string `mapstructure:"namespace"`
	KeywordFilter bool   `mapstructure:"keyword_filter"`
}

// EmbeddingsConfig configures the embedding service.
type EmbeddingsConfig struct {
	Provider string            `mapstructure:"provider"`
	Ollama   OllamaEmbedConfig `mapstructure:"ollama"`
	OpenAI   OpenAIEmbedConfig `mapstructure:"openai"`
}

// OllamaEmbedConfig configures Ollama embeddings.
type OllamaEmbedConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAIEmbedConfig configures OpenAI embeddings.
type OpenAIEmbedConfig struct {
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	Dimensions int    `mapstructure:"dimensions"`
}

// LLMConfig configures the language model service.
type LLMConfig struct {
	Provider string          `mapstructure:"provider"`
	Ollama   OllamaLLMConfig `mapstructure:"ollama"`
	OpenAI   OpenAILLMConfig `mapstructure:"openai"`
}

// OllamaLLMConfig configures the local Ollama daemon.
type OllamaLLMConfig struct {
	URL   string `mapstructure:"url"`
	Model string `mapstructure:"model"`
}

// OpenAILLMConfig configures the hosted OpenAI API.
type OpenAILLMConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

// RetrievalConfig configures the query pipeline.
type RetrievalConfig struct {
	TopK int `mapstructure:"top_k"`
}

// RecordsConfig configures the source record set.
type RecordsConfig struct {
	Path string `mapstructure:"path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Global configuration instance
var cfg *Config

// Get returns the current configuration.
func Get() *Config {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		VectorStore: VectorStoreConfig{
			Provider: DefaultVectorStoreProvider,
			Local: LocalStoreConfig{
				Path: DefaultLocalStorePath,
			},
			Pinecone: PineconeStoreConfig{
				Namespace: DefaultPineconeNamespace,
			},
		},
		Embeddings: EmbeddingsConfig{
			Provider: DefaultEmbeddingProvider,
			Ollama: OllamaEmbedConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaEmbedModel,
			},
			OpenAI: OpenAIEmbedConfig{
				Model: DefaultOpenAIEmbedModel,
			},
		},
		LLM: LLMConfig{
			Provider: DefaultLLMProvider,
			Ollama: OllamaLLMConfig{
				URL:   DefaultOllamaURL,
				Model: DefaultOllamaLLMModel,
			},
			OpenAI: OpenAILLMConfig{
				Model: DefaultOpenAILLMModel,
			},
		},
		Retrieval: RetrievalConfig{
			TopK: DefaultTopK,
		},
		Records: RecordsConfig{
			Path: DefaultRecordsPath,
		},
		Server: ServerConfig{
			Addr: DefaultServerAddr,
		},
	}
}

// Load reads configuration from file and environment variables.
func Load(configFile string) error {
	// Set defaults
	setDefaults()

	// Set config file if specified
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(DefaultConfigDir())
		viper.AddConfigPath(".")
	}

	// Environment variables
	viper.SetEnvPrefix("RAGSERVER")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug("No config file found, using defaults")
	} else {
		log.Debug("Loaded config from", "file", viper.ConfigFileUsed())
	}

	// Unmarshal into config struct
	cfg = &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	// Load API keys from environment if not in config
	loadAPIKeysFromEnv()

	return nil
}

// setDefaults sets default values in viper.
func setDefaults() {
	// Vector store
	viper.SetDefault("vectorstore.provider", DefaultVectorStoreProvider)
	viper.SetDefault("vectorstore.local.path", DefaultLocalStorePath)
	viper.SetDefault("vectorstore.pinecone.namespace", DefaultPineconeNamespace)
	viper.SetDefault("vectorstore.pinecone.keyword_filter", false)

	// Embeddings
	viper.SetDefault("embeddings.provider", DefaultEmbeddingProvider)
	viper.SetDefault("embeddings.ollama.url", DefaultOllamaURL)
	viper.SetDefault("embeddings.ollama.model", DefaultOllamaEmbedModel)
	viper.SetDefault("embeddings.openai.model", DefaultOpenAIEmbedModel)

	// LLM
	viper.SetDefault("llm.provider", DefaultLLMProvider)
	viper.SetDefault("llm.ollama.url", DefaultOllamaURL)
	viper.SetDefault("llm.ollama.model", DefaultOllamaLLMModel)
	viper.SetDefault("llm.openai.model", DefaultOpenAILLMModel)

	// Retrieval
	viper.SetDefault("retrieval.top_k", DefaultTopK)

	// Records
	viper.SetDefault("records.path", DefaultRecordsPath)

	// Server
	viper.SetDefault("server.addr", DefaultServerAddr)
}

// loadAPIKeysFromEnv loads API keys from environment variables if not already set.
func loadAPIKeysFromEnv() {
	// OpenAI API key
	if cfg.Embeddings.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Embeddings.OpenAI.APIKey = key
		}
	}
	if cfg.LLM.OpenAI.APIKey == "" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.LLM.OpenAI.APIKey = key
		}
	}

	// Pinecone API key
	if cfg.VectorStore.Pinecone.APIKey == "" {
		if key := os.Getenv("PINECONE_API_KEY"); key != "" {
			cfg.VectorStore.Pinecone.APIKey = key
		}
	}
}

// ConfigFilePath returns the path of the loaded config file, or empty string if none.
func ConfigFilePath() string {
	return viper.ConfigFileUsed()
}

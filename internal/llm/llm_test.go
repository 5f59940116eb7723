package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragserver/internal/config"
)

// mockOllamaServer simulates the Ollama generate API.
func mockOllamaServer(t *testing.T, response string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, "POST", r.Method)

		var req ollamaGenerateRequest
		err := json.NewDecoder(r.Body).Decode(&req)
		require.NoError(t, err)
		assert.False(t, req.Stream)
		assert.NotEmpty(t, req.Prompt)

		resp := ollamaGenerateResponse{
			Response: response,
			Done:     true,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

// TestNewOllamaService tests service creation defaults.
func TestNewOllamaService(t *testing.T) {
	svc, err := NewOllamaService("", "llama3")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:11434", svc.baseURL)
	assert.Equal(t, "llama3", svc.model)
	assert.Equal(t, ProviderOllama, svc.Provider())
	assert.Equal(t, "llama3", svc.ModelName())

	svc, err = NewOllamaService("http://custom:9999/", "llama3")
	require.NoError(t, err)
	assert.Equal(t, "http://custom:9999", svc.baseURL)
}

// TestOllamaGenerate tests completion generation and latency measurement.
func TestOllamaGenerate(t *testing.T) {
	server := mockOllamaServer(t, "Bananas are yellow.")
	defer server.Close()

	svc, err := NewOllamaService(server.URL, "llama3")
	require.NoError(t, err)

	gen, err := svc.Generate(context.Background(), "Question: What fruits are yellow?\nAnswer:")
	require.NoError(t, err)

	assert.Equal(t, "Bananas are yellow.", gen.Text)
	assert.Greater(t, gen.Elapsed.Nanoseconds(), int64(0))
}

// TestOllamaGenerateStatusError tests that upstream HTTP failures surface
// as typed errors carrying the status text.
func TestOllamaGenerateStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	svc, err := NewOllamaService(server.URL, "llama3")
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), "hello")
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Contains(t, statusErr.Status, "503")
	assert.Contains(t, statusErr.Body, "model not loaded")
	assert.Contains(t, statusErr.Error(), "503")
}

// TestNewOpenAIService tests OpenAI service creation.
func TestNewOpenAIService(t *testing.T) {
	t.Run("requires API key", func(t *testing.T) {
		_, err := NewOpenAIService("", "gpt-4o-mini", "")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "API key is required")
	})

	t.Run("with key", func(t *testing.T) {
		svc, err := NewOpenAIService("sk-test", "gpt-4o-mini", "")
		require.NoError(t, err)

		assert.Equal(t, ProviderOpenAI, svc.Provider())
		assert.Equal(t, "gpt-4o-mini", svc.ModelName())
	})
}

// TestNewService tests the provider selection factory.
func TestNewService(t *testing.T) {
	t.Run("ollama", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.LLM.Provider = "ollama"

		svc, err := NewService(cfg)
		require.NoError(t, err)
		assert.Equal(t, ProviderOllama, svc.Provider())
	})

	t.Run("openai", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.LLM.Provider = "openai"
		cfg.LLM.OpenAI.APIKey = "sk-test"

		svc, err := NewService(cfg)
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, svc.Provider())
	})

	t.Run("openai without key fails fast", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.LLM.Provider = "openai"
		cfg.LLM.OpenAI.APIKey = ""

		_, err := NewService(cfg)
		assert.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := config.DefaultConfig()
		cfg.LLM.Provider = "bogus"

		_, err := NewService(cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported LLM provider")
	})
}

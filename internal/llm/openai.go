package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIService implements the LLM service using the hosted OpenAI API.
type OpenAIService struct {
	client openai.Client
	model  string
}

// NewOpenAIService creates a new OpenAI LLM service.
func NewOpenAIService(apiKey, model, baseURL string) (*OpenAIService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)

	return &OpenAIService{
		client: client,
		model:  model,
	}, nil
}

// Generate produces a completion for the given prompt.
func (s *OpenAIService) Generate(ctx context.Context, prompt string) (*Generation, error) {
	log.Debug("Requesting completion from OpenAI", "model", s.model)

	start := time.Now()
	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			return nil, &StatusError{
				StatusCode: apierr.StatusCode,
				Status:     http.StatusText(apierr.StatusCode),
				Body:       apierr.Message,
			}
		}
		return nil, fmt.Errorf("failed to create completion: %w", err)
	}
	elapsed := time.Since(start)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no completion returned")
	}

	return &Generation{
		Text:    resp.Choices[0].Message.Content,
		Elapsed: elapsed,
	}, nil
}

// Provider returns the provider name.
func (s *OpenAIService) Provider() Provider {
	return ProviderOpenAI
}

// ModelName returns the model name.
func (s *OpenAIService) ModelName() string {
	return s.model
}

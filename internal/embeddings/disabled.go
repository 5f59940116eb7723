package embeddings

import "context"

// DisabledService is a stub used when the configured vector store performs
// embedding server-side. Every method fails fast with ErrDisabled so a
// misconfigured pipeline surfaces immediately instead of silently embedding
// twice.
type DisabledService struct{}

// NewDisabledService creates the disabled embedding stub.
func NewDisabledService() *DisabledService {
	return &DisabledService{}
}

func (s *DisabledService) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, ErrDisabled
}

func (s *DisabledService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ErrDisabled
}

func (s *DisabledService) Dimensions() int {
	return 0
}

func (s *DisabledService) Provider() Provider {
	return ProviderDisabled
}

func (s *DisabledService) ModelName() string {
	return ""
}

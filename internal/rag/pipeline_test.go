package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragserver/internal/embeddings"
	"ragserver/internal/llm"
	"ragserver/internal/records"
	"ragserver/internal/store"
)

// fakeStore is an in-memory VectorStore with canned query results.
type fakeStore struct {
	result   *store.SearchResult
	queryErr error
	ids      []string
	queries  int
}

func (f *fakeStore) Init(ctx context.Context) error { return nil }

func (f *fakeStore) AddDocuments(ctx context.Context, recs []store.VectorRecord) error {
	return nil
}

func (f *fakeStore) Query(ctx context.Context, q store.Query) (*store.SearchResult, error) {
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.result == nil {
		return &store.SearchResult{}, nil
	}
	return f.result, nil
}

func (f *fakeStore) ExistingIDs(ctx context.Context) ([]string, error) {
	return f.ids, nil
}

func (f *fakeStore) Close() error { return nil }

// fakeEmbedder returns a fixed vector for every input.
type fakeEmbedder struct {
	disabled bool
	calls    int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.disabled {
		return nil, embeddings.ErrDisabled
	}
	return []float32{1, 0, 0}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int               { return 3 }
func (f *fakeEmbedder) Provider() embeddings.Provider { return embeddings.ProviderOllama }
func (f *fakeEmbedder) ModelName() string             { return "fake-embed" }

// fakeLLM echoes a canned answer and records the prompt it was given.
type fakeLLM struct {
	answer     string
	err        error
	lastPrompt string
	calls      int
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (*llm.Generation, error) {
	f.calls++
	f.lastPrompt = prompt
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Generation{Text: f.answer, Elapsed: 5 * time.Millisecond}, nil
}

func (f *fakeLLM) Provider() llm.Provider { return llm.ProviderOllama }
func (f *fakeLLM) ModelName() string      { return "fake-llm" }

func newTestPipeline(s *fakeStore, e *fakeEmbedder, l *fakeLLM) *Pipeline {
	return NewPipeline(&Providers{Store: s, Embedder: e, LLM: l}, 3)
}

// TestRetrieve tests the search phase in isolation.
func TestRetrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("empty question rejected before any call", func(t *testing.T) {
		s := &fakeStore{}
		e := &fakeEmbedder{}
		p := newTestPipeline(s, e, &fakeLLM{})

		_, err := p.Retrieve(ctx, "   ")
		require.Error(t, err)
		assert.Zero(t, e.calls)
		assert.Zero(t, s.queries)
	})

	t.Run("zero results is an error", func(t *testing.T) {
		p := newTestPipeline(&fakeStore{}, &fakeEmbedder{}, &fakeLLM{})

		_, err := p.Retrieve(ctx, "anything?")
		assert.ErrorIs(t, err, ErrNoResults)
	})

	t.Run("similarities derived from distances", func(t *testing.T) {
		s := &fakeStore{result: &store.SearchResult{
			Documents: []string{"close", "far"},
			IDs:       []string{"a", "b"},
			Distances: []float64{0.1, 1.4},
		}}
		p := newTestPipeline(s, &fakeEmbedder{}, &fakeLLM{})

		details, err := p.Retrieve(ctx, "question?")
		require.NoError(t, err)

		assert.Equal(t, 2, details.ResultCount)
		assert.InDelta(t, 0.9, details.Similarities[0], 1e-9)
		// Distances beyond 1 clamp to zero similarity.
		assert.Equal(t, 0.0, details.Similarities[1])
		assert.Greater(t, details.ProcessingTime.Nanoseconds(), int64(0))
	})

	t.Run("disabled embedder falls back to text query", func(t *testing.T) {
		s := &fakeStore{result: &store.SearchResult{
			Documents: []string{"doc"},
			IDs:       []string{"a"},
			Distances: []float64{0.2},
		}}
		p := newTestPipeline(s, &fakeEmbedder{disabled: true}, &fakeLLM{})

		_, err := p.Retrieve(ctx, "question?")
		require.NoError(t, err)
		assert.Equal(t, 1, s.queries)
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		s := &fakeStore{queryErr: errors.New("index offline")}
		p := newTestPipeline(s, &fakeEmbedder{}, &fakeLLM{})

		_, err := p.Retrieve(ctx, "question?")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "index offline")
	})
}

// TestGenerate tests the generation phase in isolation.
func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("empty context refuses to generate", func(t *testing.T) {
		l := &fakeLLM{answer: "should not run"}
		p := newTestPipeline(&fakeStore{}, &fakeEmbedder{}, l)

		_, err := p.Generate(ctx, "question?", nil)
		assert.ErrorIs(t, err, ErrNoResults)
		assert.Zero(t, l.calls)
	})

	t.Run("empty question rejected", func(t *testing.T) {
		p := newTestPipeline(&fakeStore{}, &fakeEmbedder{}, &fakeLLM{})
		_, err := p.Generate(ctx, "", []string{"some context"})
		assert.Error(t, err)
	})

	t.Run("answer carries text and latency", func(t *testing.T) {
		l := &fakeLLM{answer: "Bananas."}
		p := newTestPipeline(&fakeStore{}, &fakeEmbedder{}, l)

		answer, err := p.Generate(ctx, "What fruits are yellow?", []string{"A banana is a yellow fruit."})
		require.NoError(t, err)
		assert.Equal(t, "Bananas.", answer.Text)
		assert.Greater(t, answer.Elapsed.Nanoseconds(), int64(0))
	})
}

// TestAskEndToEnd tests the combined flow and the exact prompt handed to
// the model.
func TestAskEndToEnd(t *testing.T) {
	s := &fakeStore{result: &store.SearchResult{
		Documents: []string{"A banana is a yellow fruit."},
		IDs:       []string{"b1"},
		Distances: []float64{0.1},
	}}
	l := &fakeLLM{answer: "Bananas are yellow."}
	p := newTestPipeline(s, &fakeEmbedder{}, l)

	details, answer, err := p.Ask(context.Background(), "What fruits are yellow?")
	require.NoError(t, err)

	assert.Equal(t, 1, details.ResultCount)
	assert.Equal(t, "Bananas are yellow.", answer.Text)
	assert.Contains(t, l.lastPrompt,
		"Context:\nA banana is a yellow fruit.\n\nQuestion: What fruits are yellow?\nAnswer:")
}

// TestAskPhases tests that phase notifications arrive in order.
func TestAskPhases(t *testing.T) {
	s := &fakeStore{result: &store.SearchResult{
		Documents: []string{"doc"},
		IDs:       []string{"a"},
		Distances: []float64{0.3},
	}}
	p := newTestPipeline(s, &fakeEmbedder{}, &fakeLLM{answer: "ok"})

	var seen []Phase
	p.OnPhase = func(ph Phase) { seen = append(seen, ph) }

	_, _, err := p.Ask(context.Background(), "question?")
	require.NoError(t, err)
	assert.Equal(t, []Phase{PhaseSearching, PhaseSearched, PhaseGenerating, PhaseDone}, seen)
}

// TestAskGenerationFailure tests that retrieval details are still returned
// when generation fails.
func TestAskGenerationFailure(t *testing.T) {
	s := &fakeStore{result: &store.SearchResult{
		Documents: []string{"doc"},
		IDs:       []string{"a"},
		Distances: []float64{0.3},
	}}
	l := &fakeLLM{err: errors.New("model down")}
	p := newTestPipeline(s, &fakeEmbedder{}, l)

	details, answer, err := p.Ask(context.Background(), "question?")
	require.Error(t, err)
	assert.Nil(t, answer)
	require.NotNil(t, details)
	assert.Equal(t, 1, details.ResultCount)
}

// TestBuildPrompt tests prompt assembly with multiple context documents.
func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("What fruits are yellow?", []string{
		"A banana is a yellow fruit.",
		"A lemon is a sour yellow citrus.",
	})

	assert.Contains(t, prompt, "Context:\nA banana is a yellow fruit.\nA lemon is a sour yellow citrus.")
	assert.Contains(t, prompt, "\n\nQuestion: What fruits are yellow?\nAnswer:")
	assert.True(t, len(prompt) > 0)
}

// TestStatus tests ingestion progress accounting.
func TestStatus(t *testing.T) {
	recs := []records.Record{
		{ID: "a", Text: "alpha"},
		{ID: "b", Text: "beta"},
		{ID: "c", Text: "gamma"},
		{ID: "d", Text: "delta"},
	}

	t.Run("partial progress", func(t *testing.T) {
		s := &fakeStore{ids: []string{"a", "c", "zzz"}}
		p := newTestPipeline(s, &fakeEmbedder{}, &fakeLLM{})

		st, err := p.Status(context.Background(), recs)
		require.NoError(t, err)

		assert.Equal(t, 4, st.TotalRecords)
		assert.Equal(t, 2, st.EmbeddedCount)
		assert.Equal(t, 2, st.RemainingCount)
		assert.InDelta(t, 50.0, st.Percentage, 1e-9)
	})

	t.Run("empty record set", func(t *testing.T) {
		p := newTestPipeline(&fakeStore{}, &fakeEmbedder{}, &fakeLLM{})

		st, err := p.Status(context.Background(), nil)
		require.NoError(t, err)
		assert.Zero(t, st.TotalRecords)
		assert.Zero(t, st.Percentage)
	})
}

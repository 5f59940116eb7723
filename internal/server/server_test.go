package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragserver/internal/embeddings"
	"ragserver/internal/llm"
	"ragserver/internal/rag"
	"ragserver/internal/records"
	"ragserver/internal/store"
)

// fakeStore serves canned results for the handler tests.
type fakeStore struct {
	result *store.SearchResult
	ids    []string
}

func (f *fakeStore) Init(ctx context.Context) error { return nil }

func (f *fakeStore) AddDocuments(ctx context.Context, recs []store.VectorRecord) error {
	return nil
}

func (f *fakeStore) Query(ctx context.Context, q store.Query) (*store.SearchResult, error) {
	if f.result == nil {
		return &store.SearchResult{}, nil
	}
	return f.result, nil
}

func (f *fakeStore) ExistingIDs(ctx context.Context) ([]string, error) {
	return f.ids, nil
}

func (f *fakeStore) Close() error { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (fakeEmbedder) Dimensions() int               { return 2 }
func (fakeEmbedder) Provider() embeddings.Provider { return embeddings.ProviderOllama }
func (fakeEmbedder) ModelName() string             { return "fake-embed" }

type fakeLLM struct {
	answer string
	err    error
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string) (*llm.Generation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Generation{Text: f.answer}, nil
}

func (f *fakeLLM) Provider() llm.Provider { return llm.ProviderOllama }
func (f *fakeLLM) ModelName() string      { return "fake-llm" }

func newTestServer(s *fakeStore, l *fakeLLM, recs []records.Record) *Server {
	pipeline := rag.NewPipeline(&rag.Providers{
		Store:    s,
		Embedder: fakeEmbedder{},
		LLM:      l,
	}, 3)
	return New(pipeline, recs, ":0")
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) (*httptest.ResponseRecorder, response) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	var envelope response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return w, envelope
}

func bananaStore() *fakeStore {
	return &fakeStore{result: &store.SearchResult{
		Documents: []string{"A banana is a yellow fruit."},
		IDs:       []string{"b1"},
		Distances: []float64{0.1},
	}}
}

// TestHealthz tests the liveness endpoint.
func TestHealthz(t *testing.T) {
	srv := newTestServer(&fakeStore{}, &fakeLLM{}, nil)

	w, envelope := doJSON(t, srv, "GET", "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, envelope.Success)
}

// TestQuestionEndpoint tests the combined ask flow over HTTP.
func TestQuestionEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := newTestServer(bananaStore(), &fakeLLM{answer: "Bananas are yellow."}, nil)

		w, envelope := doJSON(t, srv, "POST", "/api/v1/question",
			questionRequest{Question: "What fruits are yellow?"})

		assert.Equal(t, http.StatusOK, w.Code)
		require.True(t, envelope.Success)

		data, err := json.Marshal(envelope.Data)
		require.NoError(t, err)
		var qr questionResponse
		require.NoError(t, json.Unmarshal(data, &qr))
		assert.Equal(t, "Bananas are yellow.", qr.Answer)
		require.NotNil(t, qr.Details)
		assert.Equal(t, 1, qr.Details.ResultCount)
	})

	t.Run("empty question is a 400", func(t *testing.T) {
		srv := newTestServer(bananaStore(), &fakeLLM{}, nil)

		w, envelope := doJSON(t, srv, "POST", "/api/v1/question",
			questionRequest{Question: "  "})

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.False(t, envelope.Success)
		assert.NotEmpty(t, envelope.Error)
	})

	t.Run("no results is a 404", func(t *testing.T) {
		srv := newTestServer(&fakeStore{}, &fakeLLM{}, nil)

		w, envelope := doJSON(t, srv, "POST", "/api/v1/question",
			questionRequest{Question: "anything?"})

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.False(t, envelope.Success)
		assert.Contains(t, envelope.Error, "no relevant information found")
	})

	t.Run("generation failure is a 502 with envelope", func(t *testing.T) {
		srv := newTestServer(bananaStore(), &fakeLLM{err: errors.New("model down")}, nil)

		w, envelope := doJSON(t, srv, "POST", "/api/v1/question",
			questionRequest{Question: "What fruits are yellow?"})

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.False(t, envelope.Success)
		assert.Contains(t, envelope.Error, "model down")
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		srv := newTestServer(bananaStore(), &fakeLLM{}, nil)

		req := httptest.NewRequest("POST", "/api/v1/question", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		srv.Router().ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// TestSearchEndpoint tests retrieval-only requests.
func TestSearchEndpoint(t *testing.T) {
	srv := newTestServer(bananaStore(), &fakeLLM{}, nil)

	w, envelope := doJSON(t, srv, "POST", "/api/v1/search",
		questionRequest{Question: "What fruits are yellow?"})

	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, envelope.Success)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var details rag.Details
	require.NoError(t, json.Unmarshal(data, &details))
	assert.Equal(t, []string{"b1"}, details.IDs)
	assert.InDelta(t, 0.9, details.Similarities[0], 1e-9)
}

// TestAnswerEndpoint tests generation over caller-supplied context.
func TestAnswerEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := newTestServer(&fakeStore{}, &fakeLLM{answer: "Bananas."}, nil)

		w, envelope := doJSON(t, srv, "POST", "/api/v1/answer", answerRequest{
			Question: "What fruits are yellow?",
			Context:  []string{"A banana is a yellow fruit."},
		})

		assert.Equal(t, http.StatusOK, w.Code)
		require.True(t, envelope.Success)

		data, err := json.Marshal(envelope.Data)
		require.NoError(t, err)
		var answer rag.Answer
		require.NoError(t, json.Unmarshal(data, &answer))
		assert.Equal(t, "Bananas.", answer.Text)
	})

	t.Run("missing context is a 404", func(t *testing.T) {
		srv := newTestServer(&fakeStore{}, &fakeLLM{}, nil)

		w, envelope := doJSON(t, srv, "POST", "/api/v1/answer", answerRequest{
			Question: "What fruits are yellow?",
		})

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.False(t, envelope.Success)
	})
}

// TestStatusEndpoint tests ingestion progress reporting.
func TestStatusEndpoint(t *testing.T) {
	recs := []records.Record{
		{ID: "a", Text: "alpha"},
		{ID: "b", Text: "beta"},
	}
	srv := newTestServer(&fakeStore{ids: []string{"a"}}, &fakeLLM{}, recs)

	w, envelope := doJSON(t, srv, "GET", "/api/v1/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	require.True(t, envelope.Success)

	data, err := json.Marshal(envelope.Data)
	require.NoError(t, err)
	var status rag.Status
	require.NoError(t, json.Unmarshal(data, &status))
	assert.Equal(t, 2, status.TotalRecords)
	assert.Equal(t, 1, status.EmbeddedCount)
	assert.InDelta(t, 50.0, status.Percentage, 1e-9)
}

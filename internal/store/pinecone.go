package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/charmbracelet/log"
	"github.com/sethvargo/go-retry"

	"ragserver/internal/config"
)

const (
	// Up to 3 attempts per remote call, exponential backoff (1s, 2s).
	pineconeMaxRetries = 2

	// probeTopK is the request size for the broad probe query used to
	// approximate ExistingIDs.
	probeTopK = 1000

	pineconeAPIVersion = "2025-01"
)

// PineconeStore talks to a hosted Pinecone index with integrated
// (server-side) embedding over its REST API. Queries may carry either a
// raw vector or raw text; text is embedded by the service.
type PineconeStore struct {
	host      string
	apiKey    string
	namespace string
	dimension int
	client    *http.Client
	retryBase time.Duration

	// TextFilter is an optional relevance guard applied to free-text query
	// results: a hit is discarded when the filter returns false. It is a
	// soft policy, not a correctness requirement, and can be replaced or
	// left nil to disable filtering.
	TextFilter func(query, doc string) bool
}

// NewPineconeStore creates a hosted store adapter. Missing connection
// parameters fail fast with a descriptive error.
func NewPineconeStore(cfg config.PineconeStoreConfig) (*PineconeStore, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("pinecone index host is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone API key is required")
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "default"
	}

	s := &PineconeStore{
		host:      strings.TrimSuffix(cfg.Host, "/"),
		apiKey:    cfg.APIKey,
		namespace: namespace,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		retryBase: time.Second,
	}
	if cfg.KeywordFilter {
		s.TextFilter = AttributeFilter
	}
	return s, nil
}

// pineconeStatsResponse is the response from describe_index_stats.
type pineconeStatsResponse struct {
	Dimension        int `json:"dimension"`
	TotalVectorCount int `json:"totalVectorCount"`
}

// pineconeSearchRequest is the request body for the records search API.
type pineconeSearchRequest struct {
	Query  pineconeQuery `json:"query"`
	Fields []string      `json:"fields,omitempty"`
}

type pineconeQuery struct {
	TopK   int             `json:"top_k"`
	Inputs map[string]any  `json:"inputs,omitempty"`
	Vector *pineconeVector `json:"vector,omitempty"`
}

type pineconeVector struct {
	Values []float32 `json:"values"`
}

// pineconeSearchResponse is the response from the records search API.
type pineconeSearchResponse struct {
	Result struct {
		Hits []struct {
			ID     string         `json:"_id"`
			Score  float64        `json:"_score"`
			Fields map[string]any `json:"fields"`
		} `json:"hits"`
	} `json:"result"`
}

// Init verifies the remote index is reachable and learns its dimension.
func (s *PineconeStore) Init(ctx context.Context) error {
	var stats pineconeStatsResponse
	err := s.withRetry(ctx, "describe_index_stats", func(ctx context.Context) error {
		return s.postJSON(ctx, s.host+"/describe_index_stats", map[string]any{}, &stats)
	})
	if err != nil {
		return fmt.Errorf("failed to reach pinecone index: %w", err)
	}

	s.dimension = stats.Dimension
	log.Debug("Connected to pinecone index", "dimension", stats.Dimension, "vectors", stats.TotalVectorCount)
	return nil
}

// AddDocuments upserts records. Embedding is delegated to the service, so
// only the text and metadata are sent; upserting an existing ID replaces it.
func (s *PineconeStore) AddDocuments(ctx context.Context, recs []VectorRecord) error {
	if len(recs) == 0 {
		return nil
	}

	// The records upsert endpoint takes newline-delimited JSON.
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, rec := range recs {
		if rec.ID == "" {
			return fmt.Errorf("record is missing an id")
		}
		line := map[string]any{
			"_id":  rec.ID,
			"text": rec.Text,
		}
		for k, v := range rec.Metadata {
			line[k] = v
		}
		if err := enc.Encode(line); err != nil {
			return fmt.Errorf("failed to encode record %s: %w", rec.ID, err)
		}
	}

	url := fmt.Sprintf("%s/records/namespaces/%s/upsert", s.host, s.namespace)
	return s.withRetry(ctx, "upsert", func(ctx context.Context) error {
		return s.post(ctx, url, "application/x-ndjson", body.Bytes(), nil)
	})
}

// Query searches the index. When q.Text is set the service embeds the query
// server-side; the remote similarity score is converted to a distance as
// 1-score for uniformity with the local store.
func (s *PineconeStore) Query(ctx context.Context, q Query) (*SearchResult, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = 3
	}

	req := pineconeSearchRequest{
		Query:  pineconeQuery{TopK: topK},
		Fields: []string{"text"},
	}
	switch {
	case q.Text != "":
		req.Query.Inputs = map[string]any{"text": q.Text}
	case len(q.Vector) > 0:
		req.Query.Vector = &pineconeVector{Values: q.Vector}
	default:
		return nil, fmt.Errorf("query needs a vector or text")
	}

	var resp pineconeSearchResponse
	url := fmt.Sprintf("%s/records/namespaces/%s/search", s.host, s.namespace)
	err := s.withRetry(ctx, "search", func(ctx context.Context) error {
		return s.postJSON(ctx, url, req, &resp)
	})
	if err != nil {
		return nil, err
	}

	out := &SearchResult{}
	for _, hit := range resp.Result.Hits {
		text, _ := hit.Fields["text"].(string)

		// Soft relevance guard for free-text queries only.
		if q.Text != "" && s.TextFilter != nil && !s.TextFilter(q.Text, text) {
			log.Debug("Filtered result by keyword policy", "id", hit.ID)
			continue
		}

		meta := make(map[string]string)
		for k, v := range hit.Fields {
			if k == "text" {
				continue
			}
			if sv, ok := v.(string); ok {
				meta[k] = sv
			}
		}

		out.Documents = append(out.Documents, text)
		out.IDs = append(out.IDs, hit.ID)
		out.Distances = append(out.Distances, 1-hit.Score)
		out.Metadatas = append(out.Metadatas, meta)
	}
	return out, nil
}

// ExistingIDs approximates the set of stored IDs by issuing a broad probe
// query (a deterministic pseudo-random vector with a large top_k) and
// collecting the IDs observed. This is an approximation, not a guarantee of
// completeness: the remote service exposes no listing primitive.
func (s *PineconeStore) ExistingIDs(ctx context.Context) ([]string, error) {
	if s.dimension == 0 {
		if err := s.Init(ctx); err != nil {
			return nil, err
		}
	}
	if s.dimension == 0 {
		// Empty index reports no dimension; nothing stored yet.
		return nil, nil
	}

	probe := s.probeVector()
	res, err := s.Query(ctx, Query{Vector: probe, TopK: probeTopK})
	if err != nil {
		return nil, fmt.Errorf("probe query failed: %w", err)
	}
	return res.IDs, nil
}

// Close is a no-op for the hosted store.
func (s *PineconeStore) Close() error {
	return nil
}

// probeVector builds a deterministic pseudo-random vector of the index
// dimension, seeded from the namespace so repeated probes are comparable.
func (s *PineconeStore) probeVector() []float32 {
	seed := int64(xxhash.Sum64String(s.namespace))
	rng := rand.New(rand.NewSource(seed))

	v := make([]float32, s.dimension)
	for i := range v {
		v[i] = rng.Float32()
	}
	return v
}

// withRetry runs fn with exponential backoff, surfacing the last error once
// the attempts are exhausted.
func (s *PineconeStore) withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	b := retry.WithMaxRetries(pineconeMaxRetries, retry.NewExponential(s.retryBase))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if err := fn(ctx); err != nil {
			log.Warn("Remote call failed", "op", op, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// post issues a single POST request and decodes the JSON response into out
// when out is non-nil.
func (s *PineconeStore) post(ctx context.Context, url, contentType string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Api-Key", s.apiKey)
	req.Header.Set("X-Pinecone-API-Version", pineconeAPIVersion)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pinecone returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// postJSON marshals body as JSON and posts it.
func (s *PineconeStore) postJSON(ctx context.Context, url string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return s.post(ctx, url, "application/json", data, out)
}

// attributeWords are salient descriptive attributes checked by the default
// keyword filter: colors, tastes, and broad categories.
var attributeWords = []string{
	"red", "orange", "yellow", "green", "blue", "purple", "pink", "brown", "white", "black",
	"sweet", "sour", "bitter", "salty", "spicy", "tart",
	"fruit", "vegetable", "berry", "citrus", "grain", "herb",
}

// AttributeFilter is the default TextFilter: a candidate document is
// discarded when the query names a salient attribute the document text does
// not mention. Synonyms are not handled, so false negatives are possible.
func AttributeFilter(query, doc string) bool {
	q := strings.ToLower(query)
	d := strings.ToLower(doc)

	for _, w := range attributeWords {
		if queryMentions(q, w) && !strings.Contains(d, w) {
			return false
		}
	}
	return true
}

// queryMentions reports whether the query contains the word, matched on
// field boundaries to avoid substring hits like "red" in "hundred".
func queryMentions(query, word string) bool {
	for _, f := range strings.FieldsFunc(query, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if f == word {
			return true
		}
	}
	return false
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

// ErrTextQuery is returned when a text query reaches a store that cannot
// embed server-side.
var ErrTextQuery = errors.New("text queries require a store with server-side embedding")

// LocalStore is a brute-force cosine similarity store persisted as a single
// JSON file. The whole record set is rewritten after every mutation, which
// is O(n) per write and fine for the small demo datasets this serves.
type LocalStore struct {
	path string

	mu   sync.Mutex
	docs []VectorRecord
}

// localFile is the on-disk shape: {"documents": [...]}.
type localFile struct {
	Documents []VectorRecord `json:"documents"`
}

// NewLocalStore creates a local store backed by the given file path.
// The file is not touched until Init.
func NewLocalStore(path string) *LocalStore {
	return &LocalStore{path: path}
}

// Init loads the backing file if it exists. A missing file is an empty store.
func (s *LocalStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.docs = nil
			return nil
		}
		return fmt.Errorf("failed to read store file: %w", err)
	}

	var f localFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse store file: %w", err)
	}

	s.docs = f.Documents
	log.Debug("Loaded local vector store", "path", s.path, "documents", len(s.docs))
	return nil
}

// AddDocuments upserts records: any existing record sharing an ID is removed
// before the new one is appended, so re-ingestion produces no duplicates.
// The whole file is rewritten afterwards.
func (s *LocalStore) AddDocuments(ctx context.Context, recs []VectorRecord) error {
	if len(recs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		if rec.ID == "" {
			return fmt.Errorf("record is missing an id")
		}
		for i, existing := range s.docs {
			if existing.ID == rec.ID {
				s.docs = append(s.docs[:i], s.docs[i+1:]...)
				break
			}
		}
		s.docs = append(s.docs, rec)
	}

	return s.save()
}

// Query returns the k records with highest cosine similarity to the query
// vector, descending, ties broken by insertion order. If k exceeds the
// record count, all records are returned.
func (s *LocalStore) Query(ctx context.Context, q Query) (*SearchResult, error) {
	if len(q.Vector) == 0 {
		if q.Text != "" {
			return nil, ErrTextQuery
		}
		return nil, fmt.Errorf("query vector is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		rec   VectorRecord
		score float64
	}

	results := make([]scored, 0, len(s.docs))
	for _, doc := range s.docs {
		score, err := CosineSimilarity(q.Vector, doc.Embedding)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", doc.ID, err)
		}
		results = append(results, scored{rec: doc, score: score})
	}

	// Stable keeps insertion order for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	k := q.TopK
	if k <= 0 || k > len(results) {
		k = len(results)
	}
	results = results[:k]

	out := &SearchResult{
		Documents: make([]string, len(results)),
		IDs:       make([]string, len(results)),
		Distances: make([]float64, len(results)),
		Metadatas: make([]map[string]string, len(results)),
	}
	for i, r := range results {
		out.Documents[i] = r.rec.Text
		out.IDs[i] = r.rec.ID
		out.Distances[i] = 1 - r.score
		out.Metadatas[i] = r.rec.Metadata
	}
	return out, nil
}

// ExistingIDs returns all known IDs in insertion order.
func (s *LocalStore) ExistingIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(s.docs))
	for i, doc := range s.docs {
		ids[i] = doc.ID
	}
	return ids, nil
}

// Close is a no-op for the local store.
func (s *LocalStore) Close() error {
	return nil
}

// save rewrites the whole backing file. Caller must hold the mutex.
func (s *LocalStore) save() error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	data, err := json.Marshal(localFile{Documents: s.docs})
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return nil
}

// CosineSimilarity computes the cosine similarity of two equal-length
// vectors. It returns an error on a dimension mismatch and 0 when either
// vector has zero magnitude.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d != %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

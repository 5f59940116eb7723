// Package store provides vector storage and similarity search behind a
// uniform interface, backed either by a local JSON file or a hosted index.
package store

// VectorRecord is a stored document with its embedding. The embedding
// length is constant across a given store instance. Embedding may be empty
// for stores that embed server-side.
type VectorRecord struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Embedding []float32         `json:"embedding,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Query describes a similarity search. Either Vector or Text must be set;
// text queries are only supported by stores that embed server-side.
type Query struct {
	Vector []float32
	Text   string
	TopK   int
}

// SearchResult holds ranked search output. All slices are parallel arrays
// sharing length and index correspondence; rank order is descending
// similarity.
type SearchResult struct {
	Documents []string            `json:"documents"`
	IDs       []string            `json:"ids"`
	Distances []float64           `json:"distances,omitempty"`
	Metadatas []map[string]string `json:"metadatas,omitempty"`
}

// Len returns the number of results.
func (r *SearchResult) Len() int {
	return len(r.IDs)
}

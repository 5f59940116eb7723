// Package ingest embeds source records into the vector store in batches.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"ragserver/internal/embeddings"
	"ragserver/internal/records"
	"ragserver/internal/store"
)

// DefaultBatchSize is how many records are embedded per upstream call.
const DefaultBatchSize = 5

// Job runs the ingestion flow: find records missing from the store, embed
// them, and upsert the results.
type Job struct {
	Store    store.VectorStore
	Embedder embeddings.Service

	// BatchSize overrides DefaultBatchSize when positive.
	BatchSize int
}

// Summary is the ingestion outcome.
type Summary struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Processed int    `json:"processed"`
}

// Run ingests the record set. Unless force is set, records whose IDs are
// already present in the store are skipped; with nothing to do, it returns
// immediately without a single embedding call, reporting the prior total.
// A failed batch is retried record by record so only the bad records are
// skipped; the job keeps going and still reports success with the reduced
// count unless nothing at all could be processed.
func (j *Job) Run(ctx context.Context, recs []records.Record, force bool) (*Summary, error) {
	pending := recs
	if !force {
		var err error
		pending, err = j.missing(ctx, recs)
		if err != nil {
			return nil, err
		}
	}

	if len(pending) == 0 {
		// Nothing new: report the prior total, not zero.
		return &Summary{
			Success:   true,
			Message:   "all records already embedded, nothing to do",
			Processed: len(recs),
		}, nil
	}

	batchSize := j.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	log.Info("Starting ingestion", "records", len(pending), "batch_size", batchSize)

	processed := 0
	failures := 0
	for start := 0; start < len(pending); start += batchSize {
		end := start + batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]

		if err := j.ingestBatch(ctx, batch); err != nil {
			// Retry the batch one record at a time so a single bad
			// record only costs itself, not its whole batch.
			log.Warn("Batch failed, retrying records individually", "start", start, "size", len(batch), "error", err)
			for _, rec := range batch {
				if err := j.ingestBatch(ctx, []records.Record{rec}); err != nil {
					log.Warn("Skipping record", "id", rec.ID, "error", err)
					failures++
					continue
				}
				processed++
			}
			continue
		}
		processed += len(batch)
	}

	// Partial failure is still a successful job with a reduced count;
	// only a run that processed nothing reports failure.
	summary := &Summary{
		Success:   processed > 0 || failures == 0,
		Processed: processed,
	}
	if failures == 0 {
		summary.Message = fmt.Sprintf("embedded %d records", processed)
	} else {
		summary.Message = fmt.Sprintf("embedded %d records, %d failed", processed, failures)
	}
	return summary, nil
}

// missing returns the records whose IDs are not yet in the store.
func (j *Job) missing(ctx context.Context, recs []records.Record) ([]records.Record, error) {
	existing, err := j.Store.ExistingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored documents: %w", err)
	}

	known := make(map[string]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}

	var pending []records.Record
	for _, rec := range recs {
		if !known[rec.ID] {
			pending = append(pending, rec)
		}
	}
	return pending, nil
}

// ingestBatch embeds one batch and upserts it. When the embedder is
// disabled the raw text is sent through for server-side embedding.
func (j *Job) ingestBatch(ctx context.Context, batch []records.Record) error {
	texts := make([]string, len(batch))
	for i, rec := range batch {
		texts[i] = EnrichText(rec)
	}

	vectors, err := j.Embedder.EmbedBatch(ctx, texts)
	if err != nil && !errors.Is(err, embeddings.ErrDisabled) {
		return fmt.Errorf("embedding failed: %w", err)
	}

	docs := make([]store.VectorRecord, len(batch))
	for i, rec := range batch {
		doc := store.VectorRecord{
			ID:   rec.ID,
			Text: rec.Text,
		}
		if vectors != nil {
			doc.Embedding = vectors[i]
		}
		if rec.Region != "" || rec.Type != "" {
			doc.Metadata = make(map[string]string)
			if rec.Region != "" {
				doc.Metadata["region"] = rec.Region
			}
			if rec.Type != "" {
				doc.Metadata["type"] = rec.Type
			}
		}
		docs[i] = doc
	}

	if err := j.Store.AddDocuments(ctx, docs); err != nil {
		return fmt.Errorf("failed to store documents: %w", err)
	}

	log.Debug("Ingested batch", "size", len(batch))
	return nil
}

// EnrichText builds the text that gets embedded: the record text plus
// sentences derived from its attributes. The stored document text stays
// the original; only the vector reflects the enrichment.
func EnrichText(rec records.Record) string {
	text := rec.Text
	if rec.Region != "" {
		text += fmt.Sprintf(" This item comes from the %s region.", rec.Region)
	}
	if rec.Type != "" {
		text += fmt.Sprintf(" This item is categorized as a %s.", rec.Type)
	}
	return text
}

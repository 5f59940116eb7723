package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"ragserver/internal/embeddings"
	"ragserver/internal/records"
	"ragserver/internal/store"
)

// ErrNoResults is returned when retrieval finds nothing relevant. A query
// with zero context never proceeds to generation.
var ErrNoResults = errors.New("no relevant information found")

// Phase identifies where the pipeline currently is. Phases advance
// monotonically through a single Ask; Retrieve and Generate each cover
// their own slice of the sequence.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSearching  Phase = "searching"
	PhaseSearched   Phase = "searched"
	PhaseGenerating Phase = "generating"
	PhaseDone       Phase = "done"
)

// Details is the retrieval half of a query: the matched documents with
// their similarity scores and timing.
type Details struct {
	Documents      []string      `json:"documents"`
	IDs            []string      `json:"ids"`
	Similarities   []float64     `json:"similarities"`
	ProcessingTime time.Duration `json:"processing_time"`
	ResultCount    int           `json:"result_count"`
}

// Answer is the generation half: the model's text and how long it took.
type Answer struct {
	Text    string        `json:"text"`
	Elapsed time.Duration `json:"elapsed"`
}

// Status summarizes ingestion progress against a record set.
type Status struct {
	TotalRecords   int     `json:"total_records"`
	EmbeddedCount  int     `json:"embedded_count"`
	RemainingCount int     `json:"remaining_count"`
	Percentage     float64 `json:"percentage"`
}

// Pipeline runs the two-phase query flow over a provider set. The phases
// are independently callable: Retrieve alone, Generate with caller-supplied
// context, or Ask for the combined flow.
type Pipeline struct {
	providers *Providers
	topK      int

	// OnPhase, when set, is called at each phase transition. Used by the
	// CLI to show progress; nil is fine.
	OnPhase func(Phase)
}

// NewPipeline creates a pipeline over the given providers.
func NewPipeline(p *Providers, topK int) *Pipeline {
	if topK <= 0 {
		topK = 3
	}
	return &Pipeline{providers: p, topK: topK}
}

func (p *Pipeline) phase(ph Phase) {
	if p.OnPhase != nil {
		p.OnPhase(ph)
	}
}

// Retrieve embeds the question and returns the top matching documents.
// The question is validated before any network call is made.
func (p *Pipeline) Retrieve(ctx context.Context, question string) (*Details, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}

	p.phase(PhaseSearching)
	start := time.Now()

	q := store.Query{TopK: p.topK}
	vec, err := p.providers.Embedder.Embed(ctx, question)
	switch {
	case errors.Is(err, embeddings.ErrDisabled):
		// The store embeds server-side; pass the raw text through.
		q.Text = question
	case err != nil:
		return nil, fmt.Errorf("failed to embed question: %w", err)
	default:
		q.Vector = vec
	}

	res, err := p.providers.Store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if res.Len() == 0 {
		return nil, ErrNoResults
	}

	similarities := make([]float64, len(res.Distances))
	for i, d := range res.Distances {
		sim := 1 - d
		if sim < 0 {
			sim = 0
		}
		similarities[i] = sim
	}

	details := &Details{
		Documents:      res.Documents,
		IDs:            res.IDs,
		Similarities:   similarities,
		ProcessingTime: time.Since(start),
		ResultCount:    res.Len(),
	}

	log.Debug("Retrieved documents", "count", details.ResultCount, "elapsed", details.ProcessingTime)
	p.phase(PhaseSearched)
	return details, nil
}

// Generate produces an answer from the question and the given context
// documents. It does not retrieve; callers chain it after Retrieve or
// supply their own context.
func (p *Pipeline) Generate(ctx context.Context, question string, contexts []string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question cannot be empty")
	}
	if len(contexts) == 0 {
		return nil, ErrNoResults
	}

	p.phase(PhaseGenerating)

	prompt := BuildPrompt(question, contexts)
	gen, err := p.providers.LLM.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	log.Debug("Generated answer", "elapsed", gen.Elapsed)
	p.phase(PhaseDone)
	return &Answer{Text: gen.Text, Elapsed: gen.Elapsed}, nil
}

// Ask runs the combined flow: retrieval, then generation over the
// retrieved documents.
func (p *Pipeline) Ask(ctx context.Context, question string) (*Details, *Answer, error) {
	details, err := p.Retrieve(ctx, question)
	if err != nil {
		return nil, nil, err
	}

	answer, err := p.Generate(ctx, question, details.Documents)
	if err != nil {
		return details, nil, err
	}
	return details, answer, nil
}

// Status reports how much of the record set has been embedded into the
// vector store.
func (p *Pipeline) Status(ctx context.Context, recs []records.Record) (*Status, error) {
	existing, err := p.providers.Store.ExistingIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored documents: %w", err)
	}

	known := make(map[string]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}

	embedded := 0
	for _, rec := range recs {
		if known[rec.ID] {
			embedded++
		}
	}

	st := &Status{
		TotalRecords:   len(recs),
		EmbeddedCount:  embedded,
		RemainingCount: len(recs) - embedded,
	}
	if st.TotalRecords > 0 {
		st.Percentage = float64(st.EmbeddedCount) / float64(st.TotalRecords) * 100
	}
	return st, nil
}

// promptInstruction is the fixed preamble placed before the context block.
const promptInstruction = "Use the following context to answer the question. " +
	"If the context does not contain the answer, say that you don't know.\n\n"

// BuildPrompt assembles the generation prompt: instruction, then the
// newline-joined context documents, then the question.
func BuildPrompt(question string, contexts []string) string {
	var b strings.Builder
	b.WriteString(promptInstruction)
	b.WriteString("Context:\n")
	b.WriteString(strings.Join(contexts, "\n"))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

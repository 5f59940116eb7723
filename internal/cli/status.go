package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"ragserver/internal/config"
	"ragserver/internal/rag"
	"ragserver/internal/records"
	"ragserver/internal/ui"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ingestion progress and provider configuration",
	Long: `Display how much of the document set has been embedded into the
vector store, and which providers are configured.

Examples:
  ragserver status`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	recs, err := records.Load(cfg.Records.Path)
	if err != nil {
		log.Warn("Failed to load records", "error", err)
	}

	ctx := context.Background()
	providers, err := rag.GetProviders(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}
	defer rag.ResetProviders()

	pipeline := rag.NewPipeline(providers, cfg.Retrieval.TopK)
	st, err := pipeline.Status(ctx, recs)
	if err != nil {
		return err
	}

	fmt.Println(ui.Header.Render("Providers"))
	fmt.Printf("  Vector store: %s\n", cfg.VectorStore.Provider)
	fmt.Printf("  Embeddings:   %s (%s)\n", providers.Embedder.Provider(), providers.Embedder.ModelName())
	fmt.Printf("  LLM:          %s (%s)\n", providers.LLM.Provider(), providers.LLM.ModelName())
	fmt.Println()

	fmt.Println(ui.Header.Render("Ingestion"))
	fmt.Printf("  Records:   %d\n", st.TotalRecords)
	fmt.Printf("  Embedded:  %d\n", st.EmbeddedCount)
	fmt.Printf("  Remaining: %d\n", st.RemainingCount)

	progress := fmt.Sprintf("  Progress:  %.1f%%", st.Percentage)
	switch {
	case st.TotalRecords == 0:
		fmt.Println(ui.Dim.Render("  No records loaded."))
	case st.RemainingCount == 0:
		fmt.Println(ui.Success.Render(progress))
	default:
		fmt.Println(ui.Warning.Render(progress))
		fmt.Println()
		fmt.Println(ui.Dim.Render("Run 'ragserver ingest' to embed the remaining records."))
	}

	return nil
}

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"ragserver/internal/config"
	"ragserver/internal/ingest"
	"ragserver/internal/rag"
	"ragserver/internal/records"
	"ragserver/internal/ui"
)

var ingestForce bool

// ingestCmd represents the ingest command
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Embed the document set into the vector store",
	Long: `Load the source records, embed any that are not yet in the vector
store, and upsert the results. Records already present are skipped unless
--force is given.

Examples:
  # Embed new records only
  ragserver ingest

  # Re-embed everything
  ragserver ingest --force`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().BoolVarP(&ingestForce, "force", "f", false, "re-embed all records, even ones already stored")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	recs, err := records.Load(cfg.Records.Path)
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}
	if len(recs) == 0 {
		fmt.Println("No records to ingest.")
		return nil
	}

	log.Debug("Loaded records", "count", len(recs), "path", cfg.Records.Path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nInterrupted")
		cancel()
	}()

	providers, err := rag.GetProviders(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}
	defer rag.ResetProviders()

	job := &ingest.Job{
		Store:    providers.Store,
		Embedder: providers.Embedder,
	}

	start := time.Now()
	summary, err := job.Run(ctx, recs, ingestForce)
	if err != nil {
		return err
	}

	if summary.Success {
		fmt.Println(ui.Success.Render(summary.Message))
	} else {
		fmt.Println(ui.Warning.Render(summary.Message))
	}
	if summary.Processed > 0 {
		fmt.Println(ui.Dim.Render(fmt.Sprintf("Completed in %s", time.Since(start).Round(time.Millisecond))))
	}

	return nil
}

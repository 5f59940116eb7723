package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"ragserver/internal/config"
	"ragserver/internal/rag"
	"ragserver/internal/records"
	"ragserver/internal/server"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Start the HTTP server exposing question answering, retrieval-only
search, and ingestion status endpoints.

Examples:
  # Serve on the configured address
  ragserver serve

  # Serve on a specific address
  ragserver serve --addr :9090`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Get()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Server.Addr
	}

	// The record set is optional at serve time; status reporting degrades
	// to zero totals without it.
	recs, err := records.Load(cfg.Records.Path)
	if err != nil {
		log.Warn("Failed to load records, status endpoint will report an empty set", "error", err)
	}

	providers, err := rag.GetProviders(context.Background())
	if err != nil {
		return fmt.Errorf("failed to initialize providers: %w", err)
	}
	defer rag.ResetProviders()

	pipeline := rag.NewPipeline(providers, cfg.Retrieval.TopK)
	return server.New(pipeline, recs, addr).Run()
}

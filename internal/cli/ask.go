package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"ragserver/internal/config"
	"ragserver/internal/rag"
	"ragserver/internal/ui"
)

var (
	askTopK       int
	askSearchOnly bool
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question over the ingested documents",
	Long: `Ask a natural-language question. The most relevant documents are
retrieved first and shown immediately; the generated answer follows once
the language model has responded.

Examples:
  # Ask a question
  ragserver ask "what fruits are yellow?"

  # Retrieval only, no answer generation
  ragserver ask "what fruits are yellow?" --search-only

  # Widen the retrieval window
  ragserver ask "what grows in the tropics?" -k 5`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().IntVarP(&askTopK, "top-k", "k", 0, "number of documents to retrieve (default from config)")
	askCmd.Flags().BoolVar(&askSearchOnly, "search-only", false, "show retrieved documents without generating an answer")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := args[0]

	cfg := config.Get()
	topK := askTopK
	if topK <= 0 {
		topK = cfg.Retrieval.TopK
	}

	log.Debug("Asking question", "question", question, "top_k", topK)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals
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

	pipeline := rag.NewPipeline(providers, topK)

	// Phase one: retrieval. Results are shown before generation starts so
	// the user sees what the answer will be grounded on.
	details, err := pipeline.Retrieve(ctx, question)
	if err != nil {
		return err
	}

	displayRetrieved(details)

	if askSearchOnly {
		return nil
	}

	// Phase two: generation.
	stopSpinner := make(chan struct{})
	spinnerDone := make(chan struct{})
	go showSpinner("Generating answer...", stopSpinner, spinnerDone)

	answer, err := pipeline.Generate(ctx, question, details.Documents)

	close(stopSpinner)
	<-spinnerDone

	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	fmt.Println(ui.Header.Render("Answer"))
	fmt.Println()

	rendered, rerr := renderMarkdown(answer.Text)
	if rerr != nil {
		// Fallback to raw output if rendering fails
		fmt.Println(answer.Text)
	} else {
		fmt.Print(rendered)
	}

	fmt.Println(ui.Dim.Render(fmt.Sprintf("Generated in %s by %s (%s)",
		answer.Elapsed.Round(time.Millisecond),
		providers.LLM.ModelName(),
		providers.LLM.Provider())))

	return nil
}

// displayRetrieved formats and displays the retrieval results.
func displayRetrieved(details *rag.Details) {
	fmt.Printf("Found %d relevant documents (%s):\n\n",
		details.ResultCount, details.ProcessingTime.Round(time.Millisecond))

	for i, doc := range details.Documents {
		fmt.Printf("%s %s %s\n",
			ui.Highlight.Render(fmt.Sprintf("[%d]", i+1)),
			ui.ResultHeader.Render(details.IDs[i]),
			ui.FormatScore(details.Similarities[i]),
		)
		fmt.Println(ui.ResultContent.Render(doc))
		fmt.Println()
	}
}

// showSpinner displays an animated spinner until stopCh is closed.
func showSpinner(message string, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(doneCh)

	i := 0
	for {
		select {
		case <-stopCh:
			// Clear spinner line
			fmt.Print("\r\033[2K")
			return
		case <-ticker.C:
			fmt.Printf("\r%s %s", ui.Highlight.Render(frames[i]), message)
			i = (i + 1) % len(frames)
		}
	}
}

// renderMarkdown renders markdown content using glamour.
func renderMarkdown(content string) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}

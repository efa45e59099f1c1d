package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/loreguard/internal/pipeline"
	"github.com/ppiankov/loreguard/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <manifest.yaml>",
	Short: "Analyze many story/backstory pairs in parallel",
	Long: `Batch runs every pair listed in a YAML manifest:
- Entries name a story and a backstory (paths or URLs)
- Relative paths resolve against the manifest's directory
- Pairs run in parallel with a configurable worker count
- Each pair gets its own JSON and Markdown report

Manifest:
  track: A
  jobs:
    - story: stories/castle.txt
      backstory: backstories/arin.txt
    - story: https://example.com/novel.html
      backstory: backstories/mara.txt
      story_id: novel
      track: B

Example:
  loreguard batch manifest.yaml
  loreguard batch manifest.yaml --concurrency 4 --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 2, "number of concurrent workers")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./loreguard-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the reply cache")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	batchCmd.Flags().StringVar(&llmProvider, "provider", "openai", "LLM provider (openai, anthropic, gemini, ollama)")
	batchCmd.Flags().StringVar(&llmModel, "model", "gpt-4o-mini", "LLM model name")
}

func runBatch(cmd *cobra.Command, args []string) error {
	keys := map[string]string{"concurrency": "concurrency.workers"}
	for name, key := range llmFlagKeys {
		keys[name] = key
	}
	cfg, err := commandConfig(cmd, keys)
	if err != nil {
		return err
	}
	applyOutputFlags(cmd, cfg)

	file := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Loreguard Batch Processing\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Manifest:     %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	printer := &progressPrinter{w: os.Stderr, prefixed: true, verbose: cfg.Output.Verbose}
	a, err := newApp(cfg, pipeline.WithJobObserver(printer))
	if err != nil {
		return err
	}
	defer closeQuietly(a, "job archive")

	processor := worker.NewBatchProcessor(a.pipeline, a.loader, cfg.Concurrency.Workers)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process manifest: %w", err)
	}

	renderer := pipeline.NewRenderer(cfg.Output)
	var successCount, failureCount int
	fmt.Fprintf(os.Stderr, "\n")

	for _, result := range results {
		if result.Report != nil {
			base := filepath.Join(outputDir, reportBaseName(result.Index, result.Report.Job.StoryID))
			if werr := renderer.RenderJSON(result.Report, base+".json"); werr != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", result.Entry.Story, werr)
			}
			if werr := renderer.RenderMarkdown(result.Report, base+".md"); werr != nil {
				fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", result.Entry.Story, werr)
			}
		}

		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s + %s: %v\n", result.Entry.Story, result.Entry.Backstory, result.Error)
			continue
		}

		successCount++
		job := result.Report.Job
		fmt.Fprintf(os.Stderr, "✓ %s (%s, confidence %.0f%%)\n", job.StoryID, job.Result.Verdict(), job.Result.OverallConfidence*100)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d pairs\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	if failureCount > 0 {
		return fmt.Errorf("%d of %d analyses failed", failureCount, len(results))
	}
	return nil
}

// reportBaseName numbers reports in manifest order so that two entries with
// the same story ID do not overwrite each other
func reportBaseName(index int, storyID string) string {
	return fmt.Sprintf("%03d-%s", index+1, sanitizeFilename(storyID))
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "-",
)

// sanitizeFilename sanitizes a string for use as a filename
func sanitizeFilename(s string) string {
	s = filenameReplacer.Replace(strings.TrimSpace(s))
	s = strings.Trim(s, ".")
	if s == "" {
		return "story"
	}
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

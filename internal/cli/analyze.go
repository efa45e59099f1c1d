package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/loreguard/internal/model"
	"github.com/ppiankov/loreguard/internal/pipeline"
)

var (
	outJSON        string
	outMD          string
	track          string
	storyID        string
	noCache        bool
	noFooter       bool
	llmProvider    string
	llmModel       string
	analyzeTimeout time.Duration
	termWidth      int
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze <story> <backstory>",
	Short: "Check one backstory against one story",
	Long: `Analyze runs one consistency analysis:
- Load the story and backstory (file paths or http(s) URLs)
- Walk the job through chunking, embedding and reasoning
- Ask the configured model for a verdict over five constraint types
- Normalize the reply and render the report

Example:
  loreguard analyze novel.txt backstory.txt
  loreguard analyze novel.txt backstory.txt --track B --story-id castle
  loreguard analyze https://example.com/novel.html arin.txt --json report.json --md report.md
  loreguard analyze novel.txt backstory.txt --provider anthropic --model claude-sonnet-4-5`,
	Args: cobra.ExactArgs(2),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&outJSON, "json", "", "write the JSON report to this path")
	analyzeCmd.Flags().StringVar(&outMD, "md", "", "write the Markdown report to this path")
	analyzeCmd.Flags().IntVar(&termWidth, "width", 100, "terminal report width")
	analyzeCmd.Flags().StringVar(&track, "track", "A", "analysis track (A or B)")
	analyzeCmd.Flags().StringVar(&storyID, "story-id", "", "story identifier (default: derived from the story file name)")
	analyzeCmd.Flags().DurationVar(&analyzeTimeout, "timeout", 10*time.Minute, "overall timeout")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the reply cache")
	analyzeCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	analyzeCmd.Flags().StringVar(&llmProvider, "provider", "openai", "LLM provider (openai, anthropic, gemini, ollama)")
	analyzeCmd.Flags().StringVar(&llmModel, "model", "gpt-4o-mini", "LLM model name")
}

// llmFlagKeys maps the flags shared by analyze and batch to config keys
var llmFlagKeys = map[string]string{
	"provider": "llm.provider",
	"model":    "llm.model",
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := commandConfig(cmd, llmFlagKeys)
	if err != nil {
		return err
	}
	applyOutputFlags(cmd, cfg)

	if _, err := model.ParseTrack(track); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), analyzeTimeout)
	defer cancel()

	printer := &progressPrinter{w: os.Stderr, verbose: cfg.Output.Verbose}
	a, err := newApp(cfg, pipeline.WithJobObserver(printer))
	if err != nil {
		return err
	}
	defer closeQuietly(a, "job archive")

	storySource, backstorySource := args[0], args[1]
	fmt.Fprintf(os.Stderr, "⚙ Loading %s\n", storySource)
	story, err := a.loader.Load(ctx, storySource)
	if err != nil {
		return fmt.Errorf("load story: %w", err)
	}
	fmt.Fprintf(os.Stderr, "⚙ Loading %s\n", backstorySource)
	backstory, err := a.loader.Load(ctx, backstorySource)
	if err != nil {
		return fmt.Errorf("load backstory: %w", err)
	}

	report, err := a.pipeline.Run(ctx, model.AnalysisInput{
		StoryName:        storySource,
		StoryContent:     story,
		BackstoryName:    backstorySource,
		BackstoryContent: backstory,
		StoryID:          storyID,
		Track:            track,
	})
	if report == nil {
		return err
	}

	renderer := pipeline.NewRenderer(cfg.Output)
	if outJSON != "" {
		if werr := renderer.RenderJSON(report, outJSON); werr != nil {
			return fmt.Errorf("write JSON report: %w", werr)
		}
		fmt.Fprintf(os.Stderr, "✓ JSON report: %s\n", outJSON)
	}
	if outMD != "" {
		if werr := renderer.RenderMarkdown(report, outMD); werr != nil {
			return fmt.Errorf("write Markdown report: %w", werr)
		}
		fmt.Fprintf(os.Stderr, "✓ Markdown report: %s\n", outMD)
	}

	fmt.Fprintln(os.Stderr)
	if outJSON == "" && outMD == "" {
		if werr := renderer.RenderTerminal(cmd.OutOrStdout(), report, termWidth); werr != nil {
			return werr
		}
	} else {
		renderer.RenderSummary(cmd.OutOrStdout(), report)
	}

	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	return nil
}

// applyOutputFlags applies the flags that only exist on the command line
func applyOutputFlags(cmd *cobra.Command, cfg *model.Config) {
	if cmd.Flags().Changed("no-cache") && noCache {
		cfg.Cache.Enabled = false
	}
	if cmd.Flags().Changed("no-footer") && noFooter {
		cfg.Output.IncludeFooter = false
	}
}

package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/renameio/v2"

	"github.com/ppiankov/loreguard/internal/model"
)

var (
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7c3aed"))
	consistentStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#16a34a"))
	inconsistentStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#dc2626"))
	failedStyle       = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f59e0b"))
	dimStyle          = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
)

// Renderer writes job reports as JSON, Markdown and terminal summaries
type Renderer struct {
	includeFooter bool
	includeLogs   bool
}

// NewRenderer creates a renderer from the output settings
func NewRenderer(cfg model.OutputConfig) *Renderer {
	return &Renderer{
		includeFooter: cfg.IncludeFooter,
		includeLogs:   cfg.IncludeLogs,
	}
}

// RenderJSON writes the report as indented JSON, atomically
func (r *Renderer) RenderJSON(report *model.JobReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return renameio.WriteFile(path, append(data, '\n'), 0o644)
}

// RenderMarkdown writes the Markdown report, atomically
func (r *Renderer) RenderMarkdown(report *model.JobReport, path string) error {
	return renameio.WriteFile(path, []byte(r.Markdown(report)), 0o644)
}

// Markdown formats the report as a Markdown document
func (r *Renderer) Markdown(report *model.JobReport) string {
	job := report.Job
	var b strings.Builder

	fmt.Fprintf(&b, "# Consistency Report: %s\n\n", job.StoryID)
	fmt.Fprintf(&b, "- **Job:** `%s`\n", job.ID)
	fmt.Fprintf(&b, "- **Story:** %s\n", orDash(job.StoryFileName))
	fmt.Fprintf(&b, "- **Backstory:** %s\n", orDash(job.BackstoryFileName))
	fmt.Fprintf(&b, "- **Track:** %s\n", job.Track)
	fmt.Fprintf(&b, "- **Status:** %s (%d%%)\n\n", job.Status, job.Progress)

	if job.Status == model.StatusFailed {
		fmt.Fprintf(&b, "## Failure\n\n%s\n\n", job.Error)
	}

	if res := job.Result; res != nil {
		fmt.Fprintf(&b, "## Verdict: %s\n\n", res.Verdict())
		fmt.Fprintf(&b, "Confidence: **%.0f%%**\n\n", res.OverallConfidence*100)
		if res.Rationale != "" {
			fmt.Fprintf(&b, "> %s\n\n", res.Rationale)
		}
		if res.Explanation != "" {
			fmt.Fprintf(&b, "%s\n\n", res.Explanation)
		}

		b.WriteString("## Claims\n\n")
		if len(res.Claims) == 0 {
			b.WriteString("No claims were extracted.\n\n")
		}
		for _, c := range res.Claims {
			fmt.Fprintf(&b, "### %s: %s\n\n", c.ID, c.Text)
			fmt.Fprintf(&b, "Status: **%s** (confidence %.0f%%)\n\n", c.Status, c.Confidence*100)
			for _, e := range c.Evidence {
				fmt.Fprintf(&b, "> %s\n>\n> %s, relevance %.2f\n\n", e.Quote, orDash(e.ChapterRef), e.RelevanceScore)
				if e.AnalysisNote != "" {
					fmt.Fprintf(&b, "%s\n\n", e.AnalysisNote)
				}
			}
		}

		b.WriteString("## Constraints\n\n")
		b.WriteString("| Constraint | Status | Description | Related claims |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, ca := range res.ConstraintAnalysis {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
				ca.ConstraintType, ca.Status, escapeCell(ca.Description), orDash(strings.Join(ca.RelatedClaims, ", ")))
		}
		b.WriteString("\n")
	}

	if m := report.Metrics; m != nil {
		b.WriteString("## Metrics (illustrative)\n\n")
		fmt.Fprintf(&b, "| Accuracy | Precision | Recall | F1 |\n|---|---|---|---|\n| %.3f | %.3f | %.3f | %.3f |\n\n",
			m.Accuracy, m.Precision, m.Recall, m.F1Score)
		cm := m.ConfusionMatrix
		fmt.Fprintf(&b, "TP %d, TN %d, FP %d, FN %d\n\n", cm.TruePositive, cm.TrueNegative, cm.FalsePositive, cm.FalseNegative)
	}

	if r.includeLogs && len(job.Logs) > 0 {
		b.WriteString("## Processing Log\n\n")
		for _, l := range job.Logs {
			fmt.Fprintf(&b, "- `%s` [%s/%s] %s\n", l.Timestamp.Format("15:04:05.000"), l.Phase, l.Level, l.Message)
		}
		b.WriteString("\n")
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString("*Generated by loreguard. The verdict comes from an external model; metrics are placeholders, not measured accuracy.*\n")
	}

	return b.String()
}

// RenderSummary prints a short styled verdict
func (r *Renderer) RenderSummary(w io.Writer, report *model.JobReport) {
	job := report.Job

	fmt.Fprintln(w, titleStyle.Render("Consistency analysis: "+job.StoryID))
	switch {
	case job.Status == model.StatusFailed:
		fmt.Fprintln(w, failedStyle.Render("FAILED")+" "+job.Error)
	case job.Result != nil:
		style := inconsistentStyle
		if job.Result.Consistent() {
			style = consistentStyle
		}
		fmt.Fprintf(w, "%s  confidence %.0f%%\n", style.Render(job.Result.Verdict()), job.Result.OverallConfidence*100)
		if job.Result.Rationale != "" {
			fmt.Fprintln(w, job.Result.Rationale)
		}

		var counts [3]int
		for _, c := range job.Result.Claims {
			switch c.Status {
			case model.ClaimSupported:
				counts[0]++
			case model.ClaimContradicted:
				counts[1]++
			default:
				counts[2]++
			}
		}
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("claims: %d supported, %d contradicted, %d unverified", counts[0], counts[1], counts[2])))
	default:
		fmt.Fprintf(w, "%s (%d%%)\n", job.Status, job.Progress)
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("job %s, %s", job.ID, job.Duration().Round(time.Millisecond))))
}

// RenderTerminal renders the Markdown report for a terminal of the given width
func (r *Renderer) RenderTerminal(w io.Writer, report *model.JobReport, width int) error {
	if width <= 0 {
		width = 100
	}
	term, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("create terminal renderer: %w", err)
	}
	out, err := term.Render(r.Markdown(report))
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

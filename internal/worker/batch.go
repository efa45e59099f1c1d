package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/loreguard/internal/model"
)

// Runner runs one analysis to completion. A failed analysis is reported
// through the returned job's status, while err covers failures that left
// no job behind (e.g. invalid input).
type Runner interface {
	RunJob(ctx context.Context, input model.AnalysisInput) (*model.JobReport, error)
}

// DocumentLoader resolves a file path or URL to its text content
type DocumentLoader interface {
	Load(ctx context.Context, source string) (string, error)
}

// Manifest lists the analyses of one batch run
type Manifest struct {
	Track string          `yaml:"track"` // Default track for entries without one
	Jobs  []ManifestEntry `yaml:"jobs"`
}

// ManifestEntry is one story/backstory pair
type ManifestEntry struct {
	Story     string `yaml:"story"`
	Backstory string `yaml:"backstory"`
	StoryID   string `yaml:"story_id,omitempty"`
	Track     string `yaml:"track,omitempty"`
}

// AnalysisJob is the pool job for one manifest entry
type AnalysisJob struct {
	Index  int
	Entry  ManifestEntry
	Runner Runner
	Loader DocumentLoader
}

// Execute loads both documents and runs the analysis
func (j *AnalysisJob) Execute(ctx context.Context) *BatchResult {
	result := &BatchResult{Index: j.Index, Entry: j.Entry}

	story, err := j.Loader.Load(ctx, j.Entry.Story)
	if err != nil {
		result.Error = fmt.Errorf("load story %s: %w", j.Entry.Story, err)
		return result
	}
	backstory, err := j.Loader.Load(ctx, j.Entry.Backstory)
	if err != nil {
		result.Error = fmt.Errorf("load backstory %s: %w", j.Entry.Backstory, err)
		return result
	}

	report, err := j.Runner.RunJob(ctx, model.AnalysisInput{
		StoryName:        j.Entry.Story,
		StoryContent:     story,
		BackstoryName:    j.Entry.Backstory,
		BackstoryContent: backstory,
		StoryID:          j.Entry.StoryID,
		Track:            j.Entry.Track,
	})
	if err != nil {
		result.Error = err
		return result
	}

	result.Report = report
	if report.Job.Status == model.StatusFailed {
		result.Error = fmt.Errorf("analysis failed: %s", report.Job.Error)
	}
	return result
}

// BatchResult is the outcome of one manifest entry
type BatchResult struct {
	Index  int
	Entry  ManifestEntry
	Report *model.JobReport
	Error  error
}

// BatchProcessor runs manifest entries concurrently
type BatchProcessor struct {
	runner      Runner
	loader      DocumentLoader
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(runner Runner, loader DocumentLoader, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		runner:      runner,
		loader:      loader,
		concurrency: concurrency,
	}
}

// Process runs every entry and returns the results in manifest order.
// Entries that never ran because ctx ended carry ctx's error.
func (b *BatchProcessor) Process(ctx context.Context, entries []ManifestEntry) []*BatchResult {
	if len(entries) == 0 {
		return []*BatchResult{}
	}

	jobs := make([]*AnalysisJob, len(entries))
	for i, entry := range entries {
		jobs[i] = &AnalysisJob{Index: i, Entry: entry, Runner: b.runner, Loader: b.loader}
	}

	ordered := NewPool(b.concurrency).Run(ctx, jobs)
	for i := range ordered {
		if ordered[i] == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			ordered[i] = &BatchResult{Index: i, Entry: entries[i], Error: err}
		}
	}

	return ordered
}

// ProcessFile reads a YAML manifest and processes its entries. Relative
// document paths resolve against the manifest's directory.
func (b *BatchProcessor) ProcessFile(ctx context.Context, manifestPath string) ([]*BatchResult, error) {
	manifest, err := ReadManifest(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	return b.Process(ctx, manifest.Jobs), nil
}

// ReadManifest parses a batch manifest, applying the default track and
// dropping duplicate pairs
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}

	base := filepath.Dir(path)
	seen := make(map[string]bool)
	jobs := manifest.Jobs[:0]

	for i, entry := range manifest.Jobs {
		entry.Story = strings.TrimSpace(entry.Story)
		entry.Backstory = strings.TrimSpace(entry.Backstory)
		if entry.Story == "" || entry.Backstory == "" {
			return nil, fmt.Errorf("job %d: story and backstory are required", i+1)
		}
		if entry.Track == "" {
			entry.Track = manifest.Track
		}
		entry.Story = resolvePath(base, entry.Story)
		entry.Backstory = resolvePath(base, entry.Backstory)

		key := entry.Story + "\x00" + entry.Backstory + "\x00" + entry.Track
		if seen[key] {
			continue
		}
		seen[key] = true
		jobs = append(jobs, entry)
	}
	manifest.Jobs = jobs

	return &manifest, nil
}

// resolvePath anchors relative file paths at base; URLs and absolute paths pass through
func resolvePath(base, source string) string {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") || filepath.IsAbs(source) {
		return source
	}
	return filepath.Join(base, source)
}

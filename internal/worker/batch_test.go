package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/loreguard/internal/model"
)

// mockRunner implements Runner
type mockRunner struct {
	fail    bool
	calls   int32
	delay   time.Duration
	invalid bool
}

func (m *mockRunner) RunJob(ctx context.Context, input model.AnalysisInput) (*model.JobReport, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.invalid {
		return nil, model.ErrValidation("story content is empty")
	}

	job := model.AnalysisJob{
		ID:                "job-" + input.StoryName,
		Status:            model.StatusComplete,
		Progress:          100,
		StoryFileName:     input.StoryName,
		BackstoryFileName: input.BackstoryName,
		StoryID:           input.ResolveStoryID(),
	}
	if m.fail {
		job.Status = model.StatusFailed
		job.Error = "Rate limit exceeded. Please try again in a moment."
	}
	return &model.JobReport{Job: job}, nil
}

// mapLoader implements DocumentLoader over an in-memory map
type mapLoader map[string]string

func (m mapLoader) Load(ctx context.Context, source string) (string, error) {
	content, ok := m[source]
	if !ok {
		return "", errors.New("not found")
	}
	return content, nil
}

func testEntries(n int) ([]ManifestEntry, mapLoader) {
	loader := mapLoader{}
	var entries []ManifestEntry
	for i := 0; i < n; i++ {
		story := filepath.Join("stories", string(rune('a'+i))+".txt")
		backstory := filepath.Join("backstories", string(rune('a'+i))+".txt")
		loader[story] = "Once upon a time."
		loader[backstory] = "She was born at sea."
		entries = append(entries, ManifestEntry{Story: story, Backstory: backstory})
	}
	return entries, loader
}

func TestBatchProcessor_Process(t *testing.T) {
	entries, loader := testEntries(9)
	runner := &mockRunner{delay: 5 * time.Millisecond}
	processor := NewBatchProcessor(runner, loader, 2)

	results := processor.Process(context.Background(), entries)

	if len(results) != len(entries) {
		t.Fatalf("expected %d results, got %d", len(entries), len(results))
	}
	for i, res := range results {
		if res.Index != i {
			t.Errorf("result %d has index %d; expected manifest order", i, res.Index)
		}
		if res.Error != nil {
			t.Errorf("unexpected error for %s: %v", res.Entry.Story, res.Error)
		}
		if res.Report == nil || res.Report.Job.StoryFileName != entries[i].Story {
			t.Errorf("result %d does not match its entry", i)
		}
	}
	if atomic.LoadInt32(&runner.calls) != int32(len(entries)) {
		t.Errorf("expected %d runs, got %d", len(entries), runner.calls)
	}
}

func TestBatchProcessor_FailedJobIsAnError(t *testing.T) {
	entries, loader := testEntries(1)
	processor := NewBatchProcessor(&mockRunner{fail: true}, loader, 2)

	results := processor.Process(context.Background(), entries)

	if results[0].Error == nil {
		t.Fatal("expected error for failed job")
	}
	if !strings.Contains(results[0].Error.Error(), "Rate limit exceeded") {
		t.Errorf("expected job error in result, got %v", results[0].Error)
	}
	if results[0].Report == nil {
		t.Error("expected the failed job to be reported")
	}
}

func TestBatchProcessor_RunnerError(t *testing.T) {
	entries, loader := testEntries(1)
	processor := NewBatchProcessor(&mockRunner{invalid: true}, loader, 1)

	results := processor.Process(context.Background(), entries)

	if !errors.Is(results[0].Error, model.ErrInvalidInput) {
		t.Errorf("expected validation error, got %v", results[0].Error)
	}
	if results[0].Report != nil {
		t.Error("expected nil report on runner error")
	}
}

func TestBatchProcessor_LoadError(t *testing.T) {
	processor := NewBatchProcessor(&mockRunner{}, mapLoader{}, 2)

	results := processor.Process(context.Background(), []ManifestEntry{{Story: "missing.txt", Backstory: "b.txt"}})

	if results[0].Error == nil || !strings.Contains(results[0].Error.Error(), "load story") {
		t.Errorf("expected load error, got %v", results[0].Error)
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockRunner{}, mapLoader{}, 2)

	if results := processor.Process(context.Background(), nil); len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestBatchProcessor_Cancelled(t *testing.T) {
	entries, loader := testEntries(6)
	processor := NewBatchProcessor(&mockRunner{delay: time.Second}, loader, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	results := processor.Process(ctx, entries)

	if len(results) != len(entries) {
		t.Fatalf("expected a result per entry, got %d", len(results))
	}
	for _, res := range results {
		if res.Error == nil {
			t.Errorf("expected entry %d to report cancellation", res.Index)
		}
	}
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "batch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadManifest(t *testing.T) {
	path := writeManifest(t, `track: B
jobs:
  - story: stories/castle.txt
    backstory: backstories/arin.txt
  - story: https://example.com/novel.html
    backstory: /abs/backstory.txt
    story_id: novel
    track: A
  - story: stories/castle.txt
    backstory: backstories/arin.txt
`)

	manifest, err := ReadManifest(path)
	if err != nil {
		t.Fatalf("ReadManifest failed: %v", err)
	}

	if len(manifest.Jobs) != 2 {
		t.Fatalf("expected 2 jobs after deduplication, got %d", len(manifest.Jobs))
	}

	first := manifest.Jobs[0]
	if first.Track != "B" {
		t.Errorf("expected default track B, got %q", first.Track)
	}
	if first.Story != filepath.Join(filepath.Dir(path), "stories/castle.txt") {
		t.Errorf("expected story resolved against manifest dir, got %s", first.Story)
	}

	second := manifest.Jobs[1]
	if second.Story != "https://example.com/novel.html" || second.Backstory != "/abs/backstory.txt" {
		t.Errorf("expected URL and absolute path untouched, got %+v", second)
	}
	if second.Track != "A" || second.StoryID != "novel" {
		t.Errorf("unexpected second entry %+v", second)
	}
}

func TestReadManifest_MissingDocument(t *testing.T) {
	path := writeManifest(t, "jobs:\n  - story: a.txt\n")

	if _, err := ReadManifest(path); err == nil {
		t.Error("expected error for entry without backstory")
	}
}

func TestReadManifest_NonExistent(t *testing.T) {
	if _, err := ReadManifest("no_such_manifest.yaml"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}

func TestBatchProcessor_ProcessFile(t *testing.T) {
	path := writeManifest(t, "jobs:\n  - story: s.txt\n    backstory: b.txt\n")
	dir := filepath.Dir(path)
	loader := mapLoader{
		filepath.Join(dir, "s.txt"): "story",
		filepath.Join(dir, "b.txt"): "backstory",
	}

	results, err := NewBatchProcessor(&mockRunner{}, loader, 2).ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(results) != 1 || results[0].Error != nil {
		t.Fatalf("unexpected results: %+v", results)
	}
}

package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/loreguard/internal/model"
)

func validInput() model.AnalysisInput {
	return model.AnalysisInput{
		StoryName:        "novels/the_keep.txt",
		StoryContent:     "The keep fell in winter. Nobody escaped.",
		BackstoryName:    "arin.txt",
		BackstoryContent: "Arin escaped the keep as a child.",
	}
}

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	var n int
	return func() time.Time {
		n++
		return t0.Add(time.Duration(n) * time.Millisecond)
	}
}

func startTestJob(t *testing.T, opts ...JobOption) *Job {
	t.Helper()
	job, err := StartJob(validInput(), append([]JobOption{WithClock(fixedClock())}, opts...)...)
	require.NoError(t, err)
	return job
}

func sampleResult(label int) *model.AnalysisResult {
	return &model.AnalysisResult{
		ID:                "result-1",
		StoryID:           "the_keep",
		ConsistencyLabel:  label,
		OverallConfidence: 0.8,
		Claims: []model.Claim{{
			ID:         "claim_1",
			Text:       "Arin escaped the keep as a child.",
			Status:     model.ClaimContradicted,
			Confidence: 0.9,
			Evidence:   []model.Evidence{{ID: "claim_1_evidence_1", Quote: "Nobody escaped.", RelevanceScore: 0.9}},
		}},
		ConstraintAnalysis: []model.ConstraintAnalysis{{
			ID: "constraint_temporal", ConstraintType: model.ConstraintTemporal,
			Status: model.ConstraintViolated, RelatedClaims: []string{"claim_1"},
		}},
	}
}

func TestStartJob(t *testing.T) {
	job := startTestJob(t, WithJobID("job-1"))
	snap := job.Snapshot()

	assert.Equal(t, "job-1", snap.ID)
	assert.Equal(t, model.StatusPending, snap.Status)
	assert.Equal(t, 0, snap.Progress)
	assert.Equal(t, "the_keep", snap.StoryID)
	assert.Equal(t, model.TrackA, snap.Track)
	assert.Equal(t, "novels/the_keep.txt", snap.StoryFileName)
	assert.Nil(t, snap.EndTime)
	assert.False(t, snap.StartTime.IsZero())

	require.Len(t, snap.Logs, 1)
	assert.Equal(t, model.PhaseInit, snap.Logs[0].Phase)
	assert.Equal(t, model.LevelSuccess, snap.Logs[0].Level)
	assert.Equal(t, "Analysis job initialized", snap.Logs[0].Message)
	assert.NotEmpty(t, snap.Logs[0].ID)
}

func TestStartJob_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input model.AnalysisInput
	}{
		{"empty story", model.AnalysisInput{BackstoryContent: "b"}},
		{"whitespace backstory", model.AnalysisInput{StoryContent: "s", BackstoryContent: " \n\t"}},
		{"unknown track", model.AnalysisInput{StoryContent: "s", BackstoryContent: "b", Track: "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job, err := StartJob(tt.input)
			assert.Nil(t, job)
			assert.ErrorIs(t, err, model.ErrInvalidInput)
		})
	}
}

func TestStartJob_ExplicitStoryIDAndTrack(t *testing.T) {
	input := validInput()
	input.StoryID = "keep-42"
	input.Track = "b"

	job, err := StartJob(input)
	require.NoError(t, err)

	snap := job.Snapshot()
	assert.Equal(t, "keep-42", snap.StoryID)
	assert.Equal(t, model.TrackB, snap.Track)
}

func TestAdvance_ProgressNeverRegresses(t *testing.T) {
	job := startTestJob(t)

	require.NoError(t, job.Advance(model.StatusChunking, 30))
	require.NoError(t, job.Advance(model.StatusEmbedding, 10))
	assert.Equal(t, model.StatusEmbedding, job.Status())
	assert.Equal(t, 30, job.Progress())

	require.NoError(t, job.Advance(model.StatusEmbedding, 150))
	assert.Equal(t, 100, job.Progress())

	require.NoError(t, job.Advance(model.StatusReasoning, -5))
	assert.Equal(t, 100, job.Progress())
}

func TestAdvance_InvalidTransitions(t *testing.T) {
	job := startTestJob(t)
	require.NoError(t, job.Advance(model.StatusReasoning, 55))

	for _, target := range []model.JobStatus{model.StatusChunking, model.StatusComplete, model.StatusFailed, "bogus"} {
		err := job.Advance(target, 60)
		assert.ErrorIs(t, err, ErrInvalidTransition, "target %s", target)
	}
	assert.Equal(t, model.StatusReasoning, job.Status())
	assert.Equal(t, 55, job.Progress())
}

func TestFail(t *testing.T) {
	job := startTestJob(t)
	require.NoError(t, job.Advance(model.StatusReasoning, 55))
	job.AppendLog(model.LevelInfo, model.PhaseReasoning, "Performing constraint analysis")

	cause := model.ErrRateLimit("Rate limit exceeded. Please try again in a moment.")
	assert.True(t, job.Fail(cause))

	snap := job.Snapshot()
	assert.Equal(t, model.StatusFailed, snap.Status)
	assert.Equal(t, cause.Error(), snap.Error)
	assert.Equal(t, 55, snap.Progress)
	require.NotNil(t, snap.EndTime)
	last := snap.Logs[len(snap.Logs)-1]
	assert.Equal(t, model.PhaseFailed, last.Phase)
	assert.Equal(t, model.LevelError, last.Level)
	assert.Contains(t, last.Message, "Rate limit exceeded")
}

func TestFail_NilError(t *testing.T) {
	job := startTestJob(t)
	job.Fail(nil)
	assert.NotEmpty(t, job.Snapshot().Error)
}

func TestTerminalStatesAbsorb(t *testing.T) {
	failed := startTestJob(t)
	failed.Fail(errors.New("transport down"))

	complete := startTestJob(t)
	require.NoError(t, complete.Advance(model.StatusReasoning, 55))
	require.NoError(t, complete.AttachResult(sampleResult(1)))

	for name, job := range map[string]*Job{"failed": failed, "complete": complete} {
		t.Run(name, func(t *testing.T) {
			before := job.Snapshot()

			assert.NoError(t, job.Advance(model.StatusEmbedding, 99))
			assert.False(t, job.AppendLog(model.LevelInfo, model.PhaseReasoning, "late"))
			assert.False(t, job.Fail(errors.New("late failure")))
			assert.ErrorIs(t, job.AttachResult(sampleResult(0)), ErrInvalidTransition)

			after := job.Snapshot()
			assert.Equal(t, before.Status, after.Status)
			assert.Equal(t, before.Progress, after.Progress)
			assert.Equal(t, before.Error, after.Error)
			assert.Equal(t, before.Logs, after.Logs)
			assert.Equal(t, before.Result, after.Result)
		})
	}
}

func TestAttachResult(t *testing.T) {
	job := startTestJob(t)
	require.NoError(t, job.Advance(model.StatusReasoning, 90))

	require.NoError(t, job.AttachResult(sampleResult(0)))

	snap := job.Snapshot()
	assert.Equal(t, model.StatusComplete, snap.Status)
	assert.Equal(t, 100, snap.Progress)
	require.NotNil(t, snap.EndTime)
	require.NotNil(t, snap.Result)
	assert.Equal(t, 0, snap.Result.ConsistencyLabel)

	last := snap.Logs[len(snap.Logs)-1]
	assert.Equal(t, model.PhaseComplete, last.Phase)
	assert.Equal(t, model.LevelSuccess, last.Level)
	assert.Equal(t, "Analysis complete: INCONSISTENT", last.Message)
}

func TestAttachResult_OnlyFromReasoning(t *testing.T) {
	job := startTestJob(t)
	require.NoError(t, job.Advance(model.StatusEmbedding, 25))

	assert.ErrorIs(t, job.AttachResult(sampleResult(1)), ErrInvalidTransition)
	assert.Equal(t, model.StatusEmbedding, job.Status())

	require.NoError(t, job.Advance(model.StatusReasoning, 55))
	assert.ErrorIs(t, job.AttachResult(nil), ErrInvalidTransition)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	job := startTestJob(t)
	require.NoError(t, job.Advance(model.StatusReasoning, 55))
	result := sampleResult(1)
	require.NoError(t, job.AttachResult(result))

	result.Claims[0].Text = "mutated by caller"
	snap := job.Snapshot()
	snap.Logs[0].Message = "mutated"
	snap.Result.Claims[0].Evidence[0].Quote = "mutated"
	snap.Result.ConstraintAnalysis[0].RelatedClaims[0] = "mutated"

	fresh := job.Snapshot()
	assert.Equal(t, "Analysis job initialized", fresh.Logs[0].Message)
	assert.Equal(t, "Arin escaped the keep as a child.", fresh.Result.Claims[0].Text)
	assert.Equal(t, "Nobody escaped.", fresh.Result.Claims[0].Evidence[0].Quote)
	assert.Equal(t, "claim_1", fresh.Result.ConstraintAnalysis[0].RelatedClaims[0])
}

// recordingObserver collects job events
type recordingObserver struct {
	mu       sync.Mutex
	messages []string
	progress []int
}

func (o *recordingObserver) OnLog(jobID string, entry model.ProcessingLog) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.messages = append(o.messages, entry.Message)
}

func (o *recordingObserver) OnProgress(jobID string, status model.JobStatus, progress int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = append(o.progress, progress)
}

func TestObserver(t *testing.T) {
	obs := &recordingObserver{}
	job := startTestJob(t, WithObserver(obs))

	require.NoError(t, job.Advance(model.StatusChunking, 5))
	job.AppendLog(model.LevelInfo, model.PhaseChunking, "Chunking complete")
	job.Fail(errors.New("boom"))
	job.AppendLog(model.LevelInfo, model.PhaseChunking, "ignored")

	assert.Equal(t, []string{"Analysis job initialized", "Chunking complete", "Analysis failed: boom"}, obs.messages)
	assert.Equal(t, []int{5, 5}, obs.progress)
}

func TestJob_ConcurrentReadersSeeMonotonicProgress(t *testing.T) {
	job := startTestJob(t)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	stop := make(chan struct{})
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last, lastLogs := 0, 0
			for {
				snap := job.Snapshot()
				if snap.Progress < last || len(snap.Logs) < lastLogs {
					errs <- fmt.Errorf("progress %d after %d, logs %d after %d", snap.Progress, last, len(snap.Logs), lastLogs)
					return
				}
				last, lastLogs = snap.Progress, len(snap.Logs)
				select {
				case <-stop:
					return
				default:
				}
			}
		}()
	}

	phases := []model.JobStatus{model.StatusChunking, model.StatusEmbedding, model.StatusReasoning}
	for i := 1; i <= 90; i++ {
		_ = job.Advance(phases[min(i/30, 2)], i)
		job.AppendLog(model.LevelInfo, model.PhaseReasoning, "step")
	}
	require.NoError(t, job.AttachResult(sampleResult(1)))
	close(stop)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestLogSequence(t *testing.T) {
	var seq LogSequence
	seq.Append(model.ProcessingLog{ID: "1", Message: "first"})
	seq.Append(model.ProcessingLog{ID: "2", Message: "second"})

	entries := seq.Entries()
	require.Len(t, entries, 2)
	entries[0].Message = "changed"

	assert.Equal(t, 2, seq.Len())
	assert.Equal(t, "first", seq.Entries()[0].Message)
	assert.Equal(t, "second", seq.Entries()[1].Message)
}

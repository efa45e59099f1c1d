package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/loreguard/internal/model"
)

// ErrInvalidTransition is returned when a job is asked to move to a phase
// that is not reachable from its current one
var ErrInvalidTransition = errors.New("invalid job transition")

// Observer is notified of every change to a job, in order, from the job's
// writer goroutine
type Observer interface {
	OnLog(jobID string, entry model.ProcessingLog)
	OnProgress(jobID string, status model.JobStatus, progress int)
}

// Job owns the state of one analysis run: phase, progress, the log sequence
// and the terminal result or error. A job has a single writer; Snapshot may
// be called from any goroutine.
type Job struct {
	mu sync.RWMutex

	id                string
	status            model.JobStatus
	progress          int
	storyFileName     string
	backstoryFileName string
	storyID           string
	track             model.Track
	logs              LogSequence
	result            *model.AnalysisResult
	startTime         time.Time
	endTime           *time.Time
	errMessage        string

	now      func() time.Time
	newID    func() string
	observer Observer
}

// JobOption configures a Job
type JobOption func(*Job)

// WithJobID fixes the job id instead of generating one
func WithJobID(id string) JobOption {
	return func(j *Job) {
		j.id = id
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) JobOption {
	return func(j *Job) {
		j.now = now
	}
}

// WithLogIDs overrides how log entry ids are generated
func WithLogIDs(fn func() string) JobOption {
	return func(j *Job) {
		j.newID = fn
	}
}

// WithObserver registers an observer for log and progress events
func WithObserver(o Observer) JobOption {
	return func(j *Job) {
		j.observer = o
	}
}

// StartJob validates the input and creates a pending job with its
// initialization log
func StartJob(input model.AnalysisInput, opts ...JobOption) (*Job, error) {
	if strings.TrimSpace(input.StoryContent) == "" || strings.TrimSpace(input.BackstoryContent) == "" {
		return nil, model.ErrValidation("Both story and backstory content are required")
	}
	track, err := model.ParseTrack(input.Track)
	if err != nil {
		return nil, err
	}

	j := &Job{
		status:            model.StatusPending,
		storyFileName:     input.StoryName,
		backstoryFileName: input.BackstoryName,
		storyID:           input.ResolveStoryID(),
		track:             track,
		now:               time.Now,
		newID:             uuid.NewString,
	}
	for _, opt := range opts {
		opt(j)
	}
	if j.id == "" {
		j.id = uuid.NewString()
	}
	j.startTime = j.now()

	j.mu.Lock()
	entry := j.appendLocked(model.LevelSuccess, model.PhaseInit, "Analysis job initialized")
	j.mu.Unlock()
	j.notifyLog(entry)

	return j, nil
}

// ID returns the job id
func (j *Job) ID() string {
	return j.id
}

// Status returns the current phase
func (j *Job) Status() model.JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.status
}

// Progress returns the current progress percentage
func (j *Job) Progress() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.progress
}

// StartTime returns when the job was created
func (j *Job) StartTime() time.Time {
	return j.startTime
}

// Advance moves the job to a non-terminal phase. Progress is clamped to
// [current, 100]. Advancing a terminal job is a no-op; moving backwards or
// into a terminal phase returns ErrInvalidTransition.
func (j *Job) Advance(status model.JobStatus, progress int) error {
	j.mu.Lock()
	if j.status.IsTerminal() {
		j.mu.Unlock()
		return nil
	}
	if !status.Valid() || status.IsTerminal() || status.Order() < j.status.Order() {
		from := j.status
		j.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}

	j.status = status
	j.progress = min(max(progress, j.progress), 100)
	current := j.progress
	j.mu.Unlock()

	j.notifyProgress(status, current)
	return nil
}

// AppendLog adds a log entry. It reports false, appending nothing, once the
// job is terminal.
func (j *Job) AppendLog(level model.LogLevel, phase model.Phase, message string) bool {
	j.mu.Lock()
	if j.status.IsTerminal() {
		j.mu.Unlock()
		return false
	}
	entry := j.appendLocked(level, phase, message)
	j.mu.Unlock()

	j.notifyLog(entry)
	return true
}

// Fail moves the job to failed, recording err verbatim. Progress keeps its
// last value. It reports false if the job was already terminal.
func (j *Job) Fail(err error) bool {
	message := "unknown error"
	if err != nil && err.Error() != "" {
		message = err.Error()
	}

	j.mu.Lock()
	if j.status.IsTerminal() {
		j.mu.Unlock()
		return false
	}
	entry := j.appendLocked(model.LevelError, model.PhaseFailed, "Analysis failed: "+message)
	j.status = model.StatusFailed
	j.errMessage = message
	end := j.now()
	j.endTime = &end
	progress := j.progress
	j.mu.Unlock()

	j.notifyLog(entry)
	j.notifyProgress(model.StatusFailed, progress)
	return true
}

// AttachResult completes a job that is in the reasoning phase
func (j *Job) AttachResult(result *model.AnalysisResult) error {
	if result == nil {
		return fmt.Errorf("%w: nil result", ErrInvalidTransition)
	}

	j.mu.Lock()
	if j.status != model.StatusReasoning {
		from := j.status
		j.mu.Unlock()
		return fmt.Errorf("%w: cannot attach a result in phase %s", ErrInvalidTransition, from)
	}
	entry := j.appendLocked(model.LevelSuccess, model.PhaseComplete, "Analysis complete: "+result.Verdict())
	j.status = model.StatusComplete
	j.progress = 100
	j.result = result.Clone()
	end := j.now()
	j.endTime = &end
	j.mu.Unlock()

	j.notifyLog(entry)
	j.notifyProgress(model.StatusComplete, 100)
	return nil
}

// Snapshot returns a deep copy of the job's current state
func (j *Job) Snapshot() model.AnalysisJob {
	j.mu.RLock()
	defer j.mu.RUnlock()

	snap := model.AnalysisJob{
		ID:                j.id,
		Status:            j.status,
		Progress:          j.progress,
		StoryFileName:     j.storyFileName,
		BackstoryFileName: j.backstoryFileName,
		StoryID:           j.storyID,
		Logs:              j.logs.Entries(),
		Result:            j.result.Clone(),
		StartTime:         j.startTime,
		Track:             j.track,
		Error:             j.errMessage,
	}
	if j.endTime != nil {
		end := *j.endTime
		snap.EndTime = &end
	}
	return snap
}

func (j *Job) appendLocked(level model.LogLevel, phase model.Phase, message string) model.ProcessingLog {
	entry := model.ProcessingLog{
		ID:        j.newID(),
		Timestamp: j.now(),
		Level:     level,
		Phase:     phase,
		Message:   message,
	}
	j.logs.Append(entry)
	return entry
}

func (j *Job) notifyLog(entry model.ProcessingLog) {
	if j.observer != nil {
		j.observer.OnLog(j.id, entry)
	}
}

func (j *Job) notifyProgress(status model.JobStatus, progress int) {
	if j.observer != nil {
		j.observer.OnProgress(j.id, status, progress)
	}
}

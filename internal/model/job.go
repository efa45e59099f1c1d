package model

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// DefaultStoryID is used when neither the caller nor the story file name supplies one
const DefaultStoryID = "story_1"

// JobStatus is the phase of an analysis job
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusChunking  JobStatus = "chunking"
	StatusEmbedding JobStatus = "embedding"
	StatusReasoning JobStatus = "reasoning"
	StatusComplete  JobStatus = "complete"
	StatusFailed    JobStatus = "failed"
)

// Valid reports whether s is a known job status
func (s JobStatus) Valid() bool {
	return s.Order() >= 0
}

// IsTerminal reports whether s is an absorbing state
func (s JobStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Order returns the position of s in the phase sequence, or -1 if unknown.
// Both terminal states share the last position.
func (s JobStatus) Order() int {
	switch s {
	case StatusPending:
		return 0
	case StatusChunking:
		return 1
	case StatusEmbedding:
		return 2
	case StatusReasoning:
		return 3
	case StatusComplete, StatusFailed:
		return 4
	}
	return -1
}

// Track is the caller-selected analysis mode passed through to the model
type Track string

const (
	TrackA Track = "A"
	TrackB Track = "B"
)

// ParseTrack parses a track selector. Empty input selects TrackA.
func ParseTrack(s string) (Track, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "A":
		return TrackA, nil
	case "B":
		return TrackB, nil
	}
	return "", ErrValidation(fmt.Sprintf("unknown track %q (expected A or B)", s))
}

// AnalysisInput is what a caller submits for one job
type AnalysisInput struct {
	StoryName        string
	StoryContent     string
	BackstoryName    string
	BackstoryContent string
	StoryID          string // Optional; derived from StoryName when empty
	Track            string // Optional; "A" when empty
}

// ResolveStoryID returns the caller-supplied story id or one derived from the story name
func (in AnalysisInput) ResolveStoryID() string {
	if id := strings.TrimSpace(in.StoryID); id != "" {
		return id
	}
	return DeriveStoryID(in.StoryName)
}

// DeriveStoryID builds a story id from a file name or URL by dropping
// the directory and extension
func DeriveStoryID(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultStoryID
	}
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.TrimSpace(strings.TrimSuffix(base, path.Ext(base)))
	if base == "" || base == "." || base == "/" {
		return DefaultStoryID
	}
	return base
}

// AnalysisJob is a point-in-time view of one analysis run
type AnalysisJob struct {
	ID                string          `json:"id"`
	Status            JobStatus       `json:"status"`
	Progress          int             `json:"progress"` // 0 - 100
	StoryFileName     string          `json:"storyFileName"`
	BackstoryFileName string          `json:"backstoryFileName"`
	StoryID           string          `json:"storyId"`
	Logs              []ProcessingLog `json:"logs"`
	Result            *AnalysisResult `json:"result,omitempty"`
	StartTime         time.Time       `json:"startTime"`
	EndTime           *time.Time      `json:"endTime,omitempty"`
	Track             Track           `json:"track"`
	Error             string          `json:"error,omitempty"`
}

// Duration returns the elapsed run time, up to now for unfinished jobs
func (j *AnalysisJob) Duration() time.Duration {
	if j.EndTime != nil {
		return j.EndTime.Sub(j.StartTime)
	}
	return time.Since(j.StartTime)
}

// JobReport bundles a finished job with its placeholder metrics. It is the
// unit written to report files, archived and returned by the HTTP API.
type JobReport struct {
	Job     AnalysisJob `json:"job"`
	Metrics *Metrics    `json:"metrics,omitempty"`
}

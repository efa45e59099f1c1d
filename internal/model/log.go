package model

import "time"

// ProcessingLog is one entry in a job's log sequence
type ProcessingLog struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	Phase     Phase     `json:"phase"`
	Message   string    `json:"message"`
}

// LogLevel classifies a processing log entry
type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// Valid reports whether l is a known log level
func (l LogLevel) Valid() bool {
	switch l {
	case LevelInfo, LevelSuccess, LevelWarning, LevelError:
		return true
	}
	return false
}

// Phase tags the pipeline step that emitted a log entry
type Phase string

const (
	PhaseInit      Phase = "init"
	PhaseChunking  Phase = "chunking"
	PhaseEmbedding Phase = "embedding"
	PhaseReasoning Phase = "reasoning"
	PhaseComplete  Phase = "complete"
	PhaseFailed    Phase = "failed"
)

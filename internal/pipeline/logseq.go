package pipeline

import "github.com/ppiankov/loreguard/internal/model"

// LogSequence is the append-only, time-ordered log of one job.
// It is not safe for concurrent use; Job guards it.
type LogSequence struct {
	entries []model.ProcessingLog
}

// Append adds an entry at the end of the sequence
func (s *LogSequence) Append(entry model.ProcessingLog) {
	s.entries = append(s.entries, entry)
}

// Len returns the number of entries
func (s *LogSequence) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the entries in insertion order
func (s *LogSequence) Entries() []model.ProcessingLog {
	out := make([]model.ProcessingLog, len(s.entries))
	copy(out, s.entries)
	return out
}

package model

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobStatus_Order(t *testing.T) {
	sequence := []JobStatus{StatusPending, StatusChunking, StatusEmbedding, StatusReasoning, StatusComplete}
	for i := 1; i < len(sequence); i++ {
		assert.Less(t, sequence[i-1].Order(), sequence[i].Order(), "%s before %s", sequence[i-1], sequence[i])
	}
	assert.Equal(t, StatusComplete.Order(), StatusFailed.Order())

	assert.False(t, JobStatus("paused").Valid())
	assert.Equal(t, -1, JobStatus("paused").Order())

	assert.True(t, StatusComplete.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusReasoning.IsTerminal())
}

func TestParseTrack(t *testing.T) {
	for _, in := range []string{"", "A", "a", " A "} {
		got, err := ParseTrack(in)
		require.NoError(t, err)
		assert.Equal(t, TrackA, got, "input %q", in)
	}

	got, err := ParseTrack("b")
	require.NoError(t, err)
	assert.Equal(t, TrackB, got)

	_, err = ParseTrack("C")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestDeriveStoryID(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"", DefaultStoryID},
		{"   ", DefaultStoryID},
		{"castle.txt", "castle"},
		{"stories/the_count.md", "the_count"},
		{`C:\novels\moby.txt`, "moby"},
		{"https://example.com/books/novel.html", "novel"},
		{"archive.tar.gz", "archive.tar"},
		{".txt", DefaultStoryID},
		{"/", DefaultStoryID},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DeriveStoryID(tt.name), "DeriveStoryID(%q)", tt.name)
	}
}

func TestAnalysisInput_ResolveStoryID(t *testing.T) {
	assert.Equal(t, "custom", AnalysisInput{StoryID: " custom ", StoryName: "castle.txt"}.ResolveStoryID())
	assert.Equal(t, "castle", AnalysisInput{StoryName: "castle.txt"}.ResolveStoryID())
	assert.Equal(t, DefaultStoryID, AnalysisInput{}.ResolveStoryID())
}

func TestAnalysisJob_Duration(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	end := start.Add(1500 * time.Millisecond)
	job := AnalysisJob{StartTime: start, EndTime: &end}
	assert.Equal(t, 1500*time.Millisecond, job.Duration())

	running := AnalysisJob{StartTime: time.Now().Add(-time.Second)}
	assert.GreaterOrEqual(t, running.Duration(), time.Second)
}

func TestAnalysisResult_Verdict(t *testing.T) {
	assert.Equal(t, "CONSISTENT", (&AnalysisResult{ConsistencyLabel: 1}).Verdict())
	assert.Equal(t, "INCONSISTENT", (&AnalysisResult{ConsistencyLabel: 0}).Verdict())
}

func TestAnalysisResult_Clone(t *testing.T) {
	original := &AnalysisResult{
		ID:               "r1",
		ConsistencyLabel: 1,
		Claims: []Claim{{
			ID:       "c1",
			Text:     "Born at sea",
			Evidence: []Evidence{{ID: "e1", Quote: "the ship rocked"}},
		}},
		ConstraintAnalysis: []ConstraintAnalysis{{
			ID:             "k1",
			ConstraintType: ConstraintTemporal,
			RelatedClaims:  []string{"c1"},
		}},
	}

	clone := original.Clone()
	require.Equal(t, original, clone)

	clone.Claims[0].Text = "changed"
	clone.Claims[0].Evidence[0].Quote = "changed"
	clone.ConstraintAnalysis[0].RelatedClaims[0] = "changed"

	assert.Equal(t, "Born at sea", original.Claims[0].Text)
	assert.Equal(t, "the ship rocked", original.Claims[0].Evidence[0].Quote)
	assert.Equal(t, "c1", original.ConstraintAnalysis[0].RelatedClaims[0])

	var nilResult *AnalysisResult
	assert.Nil(t, nilResult.Clone())
}

func TestParseStatuses(t *testing.T) {
	assert.Equal(t, ClaimSupported, ParseClaimStatus(" Supported "))
	assert.Equal(t, ClaimContradicted, ParseClaimStatus("CONTRADICTED"))
	assert.Equal(t, ClaimUnverified, ParseClaimStatus("maybe"))

	assert.Equal(t, ConstraintViolated, ParseConstraintStatus("Violated"))
	assert.Equal(t, ConstraintUncertain, ParseConstraintStatus(""))

	assert.Len(t, ConstraintTypes(), 5)
	assert.True(t, ConstraintFactual.Valid())
	assert.False(t, ConstraintType("emotional").Valid())
}

func TestAnalysisError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := ErrTransport("Analysis failed").WithCause(cause).WithStatus(503)

	assert.EqualError(t, err, "Analysis failed: dial tcp: refused")
	assert.ErrorIs(t, err, ErrTransportFailure)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, 503, err.StatusCode)

	wrapped := fmt.Errorf("run job: %w", ErrRateLimit("slow down"))
	assert.Equal(t, ErrKindRateLimit, KindOf(wrapped))
	assert.True(t, IsRetryable(wrapped))
	assert.False(t, IsRetryable(ErrQuota("out of credits")))

	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestConfusionMatrix_Total(t *testing.T) {
	assert.Equal(t, 195, ConfusionMatrix{TruePositive: 89, TrueNegative: 76, FalsePositive: 12, FalseNegative: 18}.Total())
}

func TestCredentialEnv(t *testing.T) {
	assert.Equal(t, "OPENAI_API_KEY", LLMConfig{Provider: "openai"}.CredentialEnv())
	assert.Equal(t, "ANTHROPIC_API_KEY", LLMConfig{Provider: "Claude"}.CredentialEnv())
	assert.Equal(t, "GEMINI_API_KEY", LLMConfig{Provider: "gemini"}.CredentialEnv())
	assert.Empty(t, LLMConfig{Provider: "ollama"}.CredentialEnv())
	assert.Equal(t, "MY_KEY", LLMConfig{Provider: "openai", APIKeyEnv: "MY_KEY"}.CredentialEnv())
}

func TestDefaultConfig_PerturbsMetrics(t *testing.T) {
	cfg := DefaultConfig()
	assert.InDelta(t, 0.02, cfg.Analysis.MetricsNoise, 1e-9)
}

package model

import (
	"slices"
	"strings"
	"time"
)

// AnalysisResult is the normalized outcome of one consistency analysis.
// ConstraintAnalysis always holds exactly one entry per ConstraintType,
// in ConstraintTypes() order.
type AnalysisResult struct {
	ID                 string               `json:"id"`
	StoryID            string               `json:"storyId"`
	ConsistencyLabel   int                  `json:"consistencyLabel"`  // 1 = consistent, 0 = contradicted
	OverallConfidence  float64              `json:"overallConfidence"` // 0.0 - 1.0
	Rationale          string               `json:"rationale"`
	Explanation        string               `json:"explanation"`
	Claims             []Claim              `json:"claims"`
	ConstraintAnalysis []ConstraintAnalysis `json:"constraintAnalysis"`
	ProcessingTime     int64                `json:"processingTime"` // milliseconds
	Timestamp          time.Time            `json:"timestamp"`
	Track              Track                `json:"track"`
}

// Consistent reports whether the backstory was judged consistent
func (r *AnalysisResult) Consistent() bool {
	return r.ConsistencyLabel == 1
}

// Verdict returns the upper-case verdict used in logs and summaries
func (r *AnalysisResult) Verdict() string {
	if r.Consistent() {
		return "CONSISTENT"
	}
	return "INCONSISTENT"
}

// ConstraintAnalysis is the evaluation of one fixed consistency dimension
type ConstraintAnalysis struct {
	ID             string           `json:"id"`
	ConstraintType ConstraintType   `json:"constraintType"`
	Description    string           `json:"description"`
	Status         ConstraintStatus `json:"status"`
	RelatedClaims  []string         `json:"relatedClaims"` // Claim IDs (weak references)
}

// ConstraintType is one of the five consistency dimensions evaluated for every job
type ConstraintType string

const (
	ConstraintTemporal  ConstraintType = "temporal"  // Timeline consistency
	ConstraintSpatial   ConstraintType = "spatial"   // Location/setting consistency
	ConstraintCausal    ConstraintType = "causal"    // Cause-effect logic
	ConstraintCharacter ConstraintType = "character" // Personality/motivation consistency
	ConstraintFactual   ConstraintType = "factual"   // World-building rules
)

// ConstraintTypes returns every constraint type in the fixed report order
func ConstraintTypes() []ConstraintType {
	return []ConstraintType{
		ConstraintTemporal,
		ConstraintSpatial,
		ConstraintCausal,
		ConstraintCharacter,
		ConstraintFactual,
	}
}

// Valid reports whether t is one of the five constraint types
func (t ConstraintType) Valid() bool {
	for _, known := range ConstraintTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ConstraintStatus is the outcome of a constraint check
type ConstraintStatus string

const (
	ConstraintSatisfied ConstraintStatus = "satisfied"
	ConstraintViolated  ConstraintStatus = "violated"
	ConstraintUncertain ConstraintStatus = "uncertain"
)

// Valid reports whether s is a known constraint status
func (s ConstraintStatus) Valid() bool {
	switch s {
	case ConstraintSatisfied, ConstraintViolated, ConstraintUncertain:
		return true
	}
	return false
}

// ParseConstraintStatus maps free text to a constraint status.
// Anything unrecognized becomes ConstraintUncertain.
func ParseConstraintStatus(s string) ConstraintStatus {
	status := ConstraintStatus(strings.ToLower(strings.TrimSpace(s)))
	if status.Valid() {
		return status
	}
	return ConstraintUncertain
}

// Clone returns a deep copy of r
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.Claims != nil {
		out.Claims = make([]Claim, len(r.Claims))
		for i, c := range r.Claims {
			c.Evidence = slices.Clone(c.Evidence)
			out.Claims[i] = c
		}
	}
	if r.ConstraintAnalysis != nil {
		out.ConstraintAnalysis = make([]ConstraintAnalysis, len(r.ConstraintAnalysis))
		for i, ca := range r.ConstraintAnalysis {
			ca.RelatedClaims = slices.Clone(ca.RelatedClaims)
			out.ConstraintAnalysis[i] = ca
		}
	}
	return &out
}

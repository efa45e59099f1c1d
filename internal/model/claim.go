package model

import "strings"

// Claim is an assertion extracted from the backstory and checked against the narrative
type Claim struct {
	ID         string      `json:"id"`
	Text       string      `json:"text"`
	Status     ClaimStatus `json:"status"`
	Confidence float64     `json:"confidence"` // 0.0 - 1.0
	Evidence   []Evidence  `json:"evidence"`
}

// ClaimStatus is the verification outcome of a single claim
type ClaimStatus string

const (
	ClaimSupported    ClaimStatus = "supported"    // Narrative backs the claim
	ClaimContradicted ClaimStatus = "contradicted" // Narrative conflicts with the claim
	ClaimUnverified   ClaimStatus = "unverified"   // Not enough evidence either way
)

// Valid reports whether s is one of the known claim statuses
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimSupported, ClaimContradicted, ClaimUnverified:
		return true
	}
	return false
}

// ParseClaimStatus maps free text to a claim status.
// Anything unrecognized becomes ClaimUnverified.
func ParseClaimStatus(s string) ClaimStatus {
	status := ClaimStatus(strings.ToLower(strings.TrimSpace(s)))
	if status.Valid() {
		return status
	}
	return ClaimUnverified
}

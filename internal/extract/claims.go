package extract

import (
	"strings"
)

// Bounds for a sentence to count as a backstory claim candidate
const (
	minClaimChars = 8
	maxClaimChars = 600
)

// ClaimCandidate is a backstory sentence that the model is expected to verify
type ClaimCandidate struct {
	Text     string `json:"text"`
	Sentence int    `json:"sentence"` // Sentence index in the backstory (0-based)
}

// CandidateClaims splits a backstory into deduplicated claim-sized sentences.
// The count is reported during the reasoning phase; the model still decides
// which assertions it actually checks.
func CandidateClaims(backstory string) []ClaimCandidate {
	var claims []ClaimCandidate
	for i, sentence := range SplitSentences(backstory) {
		if len(sentence) < minClaimChars || len(sentence) > maxClaimChars {
			continue
		}
		claims = append(claims, ClaimCandidate{
			Text:     sentence,
			Sentence: i,
		})
	}
	return dedupeClaims(claims)
}

// SplitSentences splits text into sentences on terminal punctuation followed
// by whitespace. Newlines are treated as spaces.
func SplitSentences(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")

	var sentences []string
	var current strings.Builder

	flush := func() {
		if sentence := strings.TrimSpace(current.String()); sentence != "" {
			sentences = append(sentences, sentence)
		}
		current.Reset()
	}

	for i, r := range text {
		current.WriteRune(r)

		if r == '.' || r == '!' || r == '?' {
			// Only split when whitespace follows, so "3.5" and "e.g." stay intact
			if i+1 < len(text) && (text[i+1] == ' ' || text[i+1] == '\t') {
				flush()
			}
		}
	}
	flush()

	return sentences
}

// dedupeClaims removes case-insensitive duplicates, keeping the first occurrence
func dedupeClaims(claims []ClaimCandidate) []ClaimCandidate {
	seen := make(map[string]bool)
	var unique []ClaimCandidate

	for _, claim := range claims {
		key := strings.ToLower(strings.TrimSpace(claim.Text))
		if !seen[key] {
			seen[key] = true
			unique = append(unique, claim)
		}
	}

	return unique
}

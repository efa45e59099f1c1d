package llm

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// PromptVersion identifies the prompt wording; it is part of the cache key
const PromptVersion = "v1"

// SystemPrompt describes the analysis procedure and the reply shape
const SystemPrompt = `You are an expert narrative consistency analyzer. Your task is to determine whether a hypothetical backstory is consistent with a given narrative (story).

## Your Analysis Process:

1. **Extract Claims**: Identify specific claims made in the backstory about the character's early life, formative experiences, beliefs, fears, ambitions, and assumptions.

2. **Find Evidence**: Search the narrative for passages that either support, contradict, or provide context for each claim.

3. **Analyze Constraints**: Check for:
   - Temporal constraints: Timeline consistency
   - Spatial constraints: Location/setting consistency
   - Causal constraints: Cause-effect logic
   - Character constraints: Personality/motivation consistency
   - Factual constraints: World-building rules

4. **Make Judgment**: Determine if the backstory is CONSISTENT with or CONTRADICTS the narrative.

## Response Format (JSON only, no prose around it):

{
  "prediction": "consistent" or "contradicted",
  "confidence": 0.0-1.0,
  "rationale": "One-line summary of conclusion",
  "explanation": "Detailed multi-paragraph explanation",
  "claims": [
    {
      "id": "claim_1",
      "text": "The claim from backstory",
      "status": "supported" or "contradicted" or "unverified",
      "confidence": 0.0-1.0,
      "evidence": [
        {
          "id": "evidence_1",
          "quote": "Verbatim passage from narrative",
          "chapterRef": "Chapter or location of the passage",
          "relevanceScore": 0.0-1.0,
          "analysisNote": "How this passage relates to the claim"
        }
      ]
    }
  ],
  "constraints": {
    "temporal": { "status": "satisfied" or "violated" or "uncertain", "note": "explanation", "relatedClaims": ["claim_1"] },
    "spatial": { "status": "satisfied" or "violated" or "uncertain", "note": "explanation", "relatedClaims": [] },
    "causal": { "status": "satisfied" or "violated" or "uncertain", "note": "explanation", "relatedClaims": [] },
    "character": { "status": "satisfied" or "violated" or "uncertain", "note": "explanation", "relatedClaims": [] },
    "factual": { "status": "satisfied" or "violated" or "uncertain", "note": "explanation", "relatedClaims": [] }
  }
}

Be thorough but concise. Focus on the most significant evidence. If the texts are very long, prioritize the most relevant passages.`

// BuildUserPrompt lays out the (already shaped) documents and the task
func BuildUserPrompt(req AnalysisRequest) string {
	var b strings.Builder

	b.WriteString("## NARRATIVE (Story):\n")
	b.WriteString(req.StoryContent)
	b.WriteString("\n\n## HYPOTHETICAL BACKSTORY:\n")
	b.WriteString(req.BackstoryContent)
	b.WriteString("\n\n## TASK:\n")
	fmt.Fprintf(&b, "Analyze whether this backstory is consistent with the narrative (story id %s, track %s). ", req.StoryID, req.Track)
	b.WriteString("Provide your analysis in the JSON format specified.")

	return b.String()
}

// TruncateStory keeps the first limit characters of story and appends marker
// when anything was cut. Characters are counted as runes so multi-byte text
// is never split mid-character. A non-positive limit disables truncation.
func TruncateStory(story string, limit int, marker string) (string, bool) {
	if limit <= 0 || utf8.RuneCountInString(story) <= limit {
		return story, false
	}

	cut := 0
	for i := range story {
		if cut == limit {
			return story[:i] + marker, true
		}
		cut++
	}
	return story, false
}

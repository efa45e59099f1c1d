package model

// Evidence is a verbatim excerpt from the narrative cited for or against a claim
type Evidence struct {
	ID             string  `json:"id"`
	Quote          string  `json:"quote"`                  // Verbatim narrative passage
	ChapterRef     string  `json:"chapterRef"`             // Free-text locator, e.g. "Chapter 3"
	RelevanceScore float64 `json:"relevanceScore"`         // 0.0 - 1.0
	AnalysisNote   string  `json:"analysisNote,omitempty"` // How the passage relates to the claim
}

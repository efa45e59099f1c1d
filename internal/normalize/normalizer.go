// Package normalize converts loosely-typed model replies into strict,
// always well-formed analysis results.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/loreguard/internal/extract"
	"github.com/ppiankov/loreguard/internal/model"
)

// Fallback texts used when the reply cannot be parsed
const (
	FallbackRationale = "Analysis completed but response parsing failed"
	FallbackNote      = "Could not parse structured analysis"
)

var errNotObject = errors.New("reply is not a JSON object")

// Diagnostics describes what the normalizer had to repair
type Diagnostics struct {
	Fenced                    bool                   // Payload was wrapped in a code fence
	Fallback                  bool                   // Reply was unparseable; a synthetic result was produced
	Cause                     error                  // Malformed-response error behind a fallback
	UnrecognizedClaimStatuses int                    // Claim statuses mapped to unverified
	DefaultedConfidences      int                    // Claims that received the default confidence
	MissingConstraints        []model.ConstraintType // Constraint types synthesized as uncertain
}

// Normalizer maps model replies onto model.AnalysisResult
type Normalizer struct {
	cfg    model.NormalizerConfig
	newID  func() string
	logger *zap.Logger
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithIDGenerator overrides the generator used for result ids
func WithIDGenerator(fn func() string) Option {
	return func(n *Normalizer) {
		n.newID = fn
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(n *Normalizer) {
		n.logger = logger
	}
}

// New creates a Normalizer with the given heuristics
func New(cfg model.NormalizerConfig, opts ...Option) *Normalizer {
	n := &Normalizer{
		cfg:    cfg,
		newID:  uuid.NewString,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize always returns a valid result. An unparseable reply yields the
// low-confidence fallback with the raw text as explanation; the malformed
// response is reported through Diagnostics and never returned as an error.
func (n *Normalizer) Normalize(raw string, storyID string, track model.Track) (*model.AnalysisResult, Diagnostics) {
	payload, fenced := extractPayload(raw)
	diag := Diagnostics{Fenced: fenced}

	obj, err := decodeObject(payload)
	if err != nil {
		diag.Fallback = true
		diag.Cause = model.ErrMalformed("model reply could not be parsed").WithCause(err)
		diag.MissingConstraints = model.ConstraintTypes()
		n.logger.Debug("Falling back to synthetic result",
			zap.String("story_id", storyID),
			zap.Error(err))
		return n.fallback(raw, storyID, track), diag
	}

	result := &model.AnalysisResult{
		ID:                n.newID(),
		StoryID:           storyID,
		ConsistencyLabel:  consistencyLabel(obj),
		OverallConfidence: n.cfg.FallbackConfidence,
		Explanation:       stringField(obj, "explanation", "analysis"),
		Track:             track,
	}
	if conf, ok := floatField(obj, "confidence", "overallConfidence", "overall_confidence"); ok {
		result.OverallConfidence = unitInterval(conf)
	}

	result.Claims = n.claims(listField(obj, "claims"), &diag)
	result.ConstraintAnalysis = n.constraints(obj, result.Claims, &diag)
	result.Rationale = rationale(stringField(obj, "rationale", "summary"), result)

	return result, diag
}

// decodeObject parses payload into a JSON object, retrying once after
// removing comments and trailing commas
func decodeObject(payload string) (map[string]any, error) {
	var v any
	err := json.Unmarshal([]byte(payload), &v)
	if err != nil {
		if retryErr := json.Unmarshal([]byte(cleanJSON(payload)), &v); retryErr != nil {
			return nil, err
		}
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errNotObject
	}
	return obj, nil
}

// consistencyLabel maps "consistent" to 1 and anything else to 0
func consistencyLabel(obj map[string]any) int {
	if prediction, ok := lookup(obj, "prediction", "verdict"); ok {
		if s, isString := prediction.(string); isString && strings.EqualFold(strings.TrimSpace(s), "consistent") {
			return 1
		}
		return 0
	}
	if label, ok := floatField(obj, "consistencyLabel", "consistency_label", "label"); ok && label == 1 {
		return 1
	}
	return 0
}

func (n *Normalizer) claims(items []any, diag *Diagnostics) []model.Claim {
	claims := make([]model.Claim, 0, len(items))
	seen := make(map[string]bool)

	for _, item := range items {
		var entry map[string]any
		switch t := item.(type) {
		case map[string]any:
			entry = t
		case string:
			entry = map[string]any{"text": t}
		default:
			continue
		}

		id := uniqueID(strings.TrimSpace(stringField(entry, "id")), fmt.Sprintf("claim_%d", len(claims)+1), seen)

		rawStatus := stringField(entry, "status")
		status := model.ParseClaimStatus(rawStatus)
		if status == model.ClaimUnverified && !strings.EqualFold(strings.TrimSpace(rawStatus), string(model.ClaimUnverified)) {
			diag.UnrecognizedClaimStatuses++
		}

		evidence, firstScored := n.evidence(id, listField(entry, "evidence"))

		claims = append(claims, model.Claim{
			ID:         id,
			Text:       stringField(entry, "text", "claim", "statement"),
			Status:     status,
			Confidence: n.claimConfidence(entry, evidence, firstScored, diag),
			Evidence:   evidence,
		})
	}

	return claims
}

// claimConfidence picks, in order: an explicit claim confidence, the first
// evidence item's relevance score when the reply gave one, the configured default
func (n *Normalizer) claimConfidence(entry map[string]any, evidence []model.Evidence, firstScored bool, diag *Diagnostics) float64 {
	if n.cfg.PreferExplicitConfidence {
		if conf, ok := floatField(entry, "confidence"); ok {
			return unitInterval(conf)
		}
	}
	if n.cfg.ConfidenceFromEvidence && len(evidence) > 0 && firstScored {
		return evidence[0].RelevanceScore
	}
	diag.DefaultedConfidences++
	return unitInterval(n.cfg.DefaultClaimConfidence)
}

// evidence converts the evidence list of one claim. The second return
// reports whether the first item carried a relevance score.
func (n *Normalizer) evidence(claimID string, items []any) ([]model.Evidence, bool) {
	evidence := make([]model.Evidence, 0, len(items))
	seen := make(map[string]bool)
	firstScored := false

	for _, item := range items {
		var entry map[string]any
		switch t := item.(type) {
		case map[string]any:
			entry = t
		case string:
			entry = map[string]any{"quote": t}
		default:
			continue
		}

		fallbackID := fmt.Sprintf("%s_evidence_%d", claimID, len(evidence)+1)
		relevance, scored := floatField(entry, "relevanceScore", "relevance_score", "relevance")
		if len(evidence) == 0 {
			firstScored = scored
		}

		evidence = append(evidence, model.Evidence{
			ID:             uniqueID(strings.TrimSpace(stringField(entry, "id")), fallbackID, seen),
			Quote:          stringField(entry, "quote", "excerpt", "text"),
			ChapterRef:     stringField(entry, "chapterRef", "chapter_ref", "chapter", "location"),
			RelevanceScore: unitInterval(relevance),
			AnalysisNote:   stringField(entry, "analysisNote", "analysis_note", "note"),
		})
	}

	return evidence, firstScored
}

func (n *Normalizer) constraints(obj map[string]any, claims []model.Claim, diag *Diagnostics) []model.ConstraintAnalysis {
	known := make(map[string]bool, len(claims))
	for _, c := range claims {
		known[c.ID] = true
	}

	types := model.ConstraintTypes()
	out := make([]model.ConstraintAnalysis, 0, len(types))

	for _, ctype := range types {
		entry, found := lookupConstraint(obj, ctype)
		if !found {
			diag.MissingConstraints = append(diag.MissingConstraints, ctype)
			out = append(out, model.ConstraintAnalysis{
				ID:             constraintID(ctype),
				ConstraintType: ctype,
				Description:    fmt.Sprintf("No %s analysis was returned", ctype),
				Status:         model.ConstraintUncertain,
				RelatedClaims:  n.fallbackRelated(claims),
			})
			continue
		}

		description := stringField(entry, "note", "description", "explanation")
		if description == "" {
			description = defaultDescriptions[ctype]
		}

		var related []string
		for _, id := range stringList(listField(entry, "relatedClaims", "related_claims")) {
			if known[id] {
				related = append(related, id)
			}
		}
		if len(related) == 0 {
			related = n.fallbackRelated(claims)
		}

		out = append(out, model.ConstraintAnalysis{
			ID:             constraintID(ctype),
			ConstraintType: ctype,
			Description:    description,
			Status:         model.ParseConstraintStatus(stringField(entry, "status")),
			RelatedClaims:  related,
		})
	}

	return out
}

// lookupConstraint finds the entry for ctype in either a map keyed by type
// or a list of objects carrying a "type" field. A bare string value is
// taken as the status.
func lookupConstraint(obj map[string]any, ctype model.ConstraintType) (map[string]any, bool) {
	raw, ok := lookup(obj, "constraints", "constraintAnalysis", "constraint_analysis")
	if !ok {
		return nil, false
	}

	switch t := raw.(type) {
	case map[string]any:
		v, found := lookup(t, string(ctype))
		if !found {
			return nil, false
		}
		switch entry := v.(type) {
		case map[string]any:
			return entry, true
		case string:
			return map[string]any{"status": entry}, true
		}
	case []any:
		for _, item := range t {
			entry, isObject := item.(map[string]any)
			if !isObject {
				continue
			}
			if strings.EqualFold(stringField(entry, "type", "constraintType", "constraint_type"), string(ctype)) {
				return entry, true
			}
		}
	}
	return nil, false
}

// fallbackRelated links a constraint to the first claims positionally when
// the reply supplies no linkage
func (n *Normalizer) fallbackRelated(claims []model.Claim) []string {
	limit := n.cfg.RelatedClaimsFallback
	if limit > len(claims) {
		limit = len(claims)
	}
	if limit < 0 {
		limit = 0
	}
	related := make([]string, 0, limit)
	for _, c := range claims[:limit] {
		related = append(related, c.ID)
	}
	return related
}

func (n *Normalizer) fallback(raw string, storyID string, track model.Track) *model.AnalysisResult {
	constraints := make([]model.ConstraintAnalysis, 0, len(model.ConstraintTypes()))
	for _, ctype := range model.ConstraintTypes() {
		constraints = append(constraints, model.ConstraintAnalysis{
			ID:             constraintID(ctype),
			ConstraintType: ctype,
			Description:    FallbackNote,
			Status:         model.ConstraintUncertain,
			RelatedClaims:  []string{},
		})
	}

	return &model.AnalysisResult{
		ID:                 n.newID(),
		StoryID:            storyID,
		ConsistencyLabel:   0,
		OverallConfidence:  n.cfg.FallbackConfidence,
		Rationale:          FallbackRationale,
		Explanation:        raw,
		Claims:             []model.Claim{},
		ConstraintAnalysis: constraints,
		Track:              track,
	}
}

var defaultDescriptions = map[model.ConstraintType]string{
	model.ConstraintTemporal:  "Timeline of the backstory against narrative events",
	model.ConstraintSpatial:   "Locations and settings of the backstory against the narrative",
	model.ConstraintCausal:    "Cause and effect between backstory experiences and narrative events",
	model.ConstraintCharacter: "Personality and motivation consistency",
	model.ConstraintFactual:   "World-building rules and established facts",
}

func constraintID(ctype model.ConstraintType) string {
	return "constraint_" + string(ctype)
}

// uniqueID returns preferred when it is non-empty and unused, otherwise a
// variant of fallback that is unused
func uniqueID(preferred, fallback string, seen map[string]bool) string {
	id := preferred
	if id == "" || seen[id] {
		id = fallback
	}
	for suffix := 2; seen[id]; suffix++ {
		id = fmt.Sprintf("%s_%d", fallback, suffix)
	}
	seen[id] = true
	return id
}

// rationale returns the supplied rationale, or the first sentence of the
// explanation, or a verdict sentence
func rationale(supplied string, result *model.AnalysisResult) string {
	if s := strings.TrimSpace(supplied); s != "" {
		return s
	}
	if sentences := extract.SplitSentences(result.Explanation); len(sentences) > 0 {
		return sentences[0]
	}
	if result.Consistent() {
		return "The backstory is consistent with the narrative"
	}
	return "The backstory contradicts the narrative"
}

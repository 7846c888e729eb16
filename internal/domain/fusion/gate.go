package fusion

import (
	"strings"

	"github.com/parcelview/geofusion/internal/domain/feature"
)

// DefaultRelevanceThreshold is the minimum 0-100 relevance score a layer must
// carry to count toward the multi-layer decision.
const DefaultRelevanceThreshold = 20.0

// comparisonKeywords are query terms implying comparison or correlation
// semantics; their presence forces multi-layer analysis even when fewer than
// two layers clear the relevance threshold.
var comparisonKeywords = []string{
	"both", "and", "correlation", "relationship",
	"combined", "together", "versus", "vs",
}

// GateDecision is the outcome of the relevance gate.
type GateDecision struct {
	// MultiLayer reports whether the query warrants fusion across layers.
	MultiLayer bool

	// RelevantLayers is the narrowed layer set: exactly the candidates that
	// cleared the threshold, in their original order.  The narrowing is part
	// of the contract, not just a side effect of the boolean; callers must
	// use this slice, not their original candidate list, when MultiLayer is
	// true.
	RelevantLayers []feature.LayerConfig
}

// EvaluateGate decides whether a query needs fusion across two or more
// layers.  True when at least two candidates score at or above threshold;
// otherwise true when the free-text query contains a comparison keyword.
// A threshold <= 0 selects DefaultRelevanceThreshold.
//
// Pure predicate: no state, no mutation of the candidates slice.
func EvaluateGate(candidates []feature.LayerConfig, queryTerms string, threshold float64) GateDecision {
	if threshold <= 0 {
		threshold = DefaultRelevanceThreshold
	}

	relevant := make([]feature.LayerConfig, 0, len(candidates))
	for _, c := range candidates {
		if c.Relevance >= threshold {
			relevant = append(relevant, c)
		}
	}

	decision := GateDecision{RelevantLayers: relevant}
	if len(relevant) >= 2 {
		decision.MultiLayer = true
		return decision
	}
	if containsComparisonKeyword(queryTerms) {
		decision.MultiLayer = true
		return decision
	}
	return decision
}

// containsComparisonKeyword tokenizes the query on whitespace and punctuation
// and checks each token against the keyword set.  Token-level comparison
// keeps short keywords like "and" or "vs" from firing inside larger words.
func containsComparisonKeyword(query string) bool {
	if query == "" {
		return false
	}
	tokens := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	for _, tok := range tokens {
		for _, kw := range comparisonKeywords {
			if tok == kw {
				return true
			}
		}
	}
	return false
}

package fusion

import (
	"strings"

	"github.com/parcelview/geofusion/internal/domain/feature"
	"github.com/parcelview/geofusion/pkg/types/geo"
)

// nameField is the identifier treated as a human-entered name rather than a
// code, and therefore matched with discounted confidence.
const nameField = "NAME"

// Matcher finds the best candidate for a primary feature across a prioritized
// list of join keys.  It is stateless and safe for concurrent use.
type Matcher struct{}

// NewMatcher constructs a Matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// Match searches candidates for the best match on any of joinKeys, in
// priority order.  Both sides are compared as lowercased, trimmed strings.
//
// Confidence tiers:
//   - exact match on a non-NAME key:      1.0
//   - exact match on the NAME key:        0.9
//   - substring containment on NAME:      0.7 (either direction)
//   - anything else:                      0
//
// The single highest-confidence candidate across all keys and candidates
// wins; ties keep the first found, which makes the 0.7 substring tier
// deterministic in candidate-declaration order.  An empty joinKeys slice
// defaults to ["ID"].
func (m *Matcher) Match(primary *feature.GeoFeature, candidates []feature.GeoFeature, joinKeys []string) MatchResult {
	if len(joinKeys) == 0 {
		joinKeys = []string{"ID"}
	}

	var best MatchResult
	for _, key := range joinKeys {
		primaryVal, ok := normalizedAttribute(primary, key)
		if !ok {
			// The primary side offers nothing under this key; move on.
			continue
		}
		isName := strings.EqualFold(key, nameField)

		for i := range candidates {
			candVal, ok := normalizedAttribute(&candidates[i], key)
			if !ok {
				continue
			}
			confidence := scoreMatch(primaryVal, candVal, isName)
			if confidence > best.Confidence {
				best = MatchResult{
					Matched:    &candidates[i],
					MatchedKey: key,
					Confidence: confidence,
				}
				if best.Confidence == ConfidenceExact {
					// Nothing can beat an exact code match on the highest
					// priority key still in play; later keys only tie.
					break
				}
			}
		}
		if best.Confidence == ConfidenceExact {
			break
		}
	}
	return best
}

// scoreMatch computes the confidence tier for one normalized value pair.
func scoreMatch(primary, candidate string, isName bool) float64 {
	if primary == candidate {
		if isName {
			return ConfidenceExactName
		}
		return ConfidenceExact
	}
	if isName && (strings.Contains(primary, candidate) || strings.Contains(candidate, primary)) {
		return ConfidenceNameContains
	}
	return 0
}

// normalizedAttribute reads a feature's value for key as a lowercased,
// trimmed string.  Null, empty, and non-coercible values report false.
func normalizedAttribute(f *feature.GeoFeature, key string) (string, bool) {
	v, ok := f.Attribute(key)
	if !ok || geo.IsNull(v) {
		return "", false
	}
	s, ok := geo.AsString(v)
	if !ok {
		return "", false
	}
	s = feature.NormalizeKey(s)
	if s == "" {
		return "", false
	}
	return s, true
}

// Package fusion implements the multi-layer geographic data fusion engine:
// deciding whether a query needs cross-layer analysis, matching records
// across independently sourced layers, merging their attributes into a single
// namespaced record set, backfilling required fields, and producing
// comparable normalized metric scores.
//
// The engine is a pure in-process library: it operates on already-fetched
// in-memory layers, performs no I/O, and never fails a run for data-quality
// conditions (unmatched records, empty layers, degenerate ranges).
package fusion

import (
	"encoding/json"
	"time"

	"github.com/parcelview/geofusion/internal/domain/feature"
	"github.com/parcelview/geofusion/pkg/types/geo"
)

// Reserved output field names and prefixes.
const (
	// PrimaryLayerField tags every merged record with the id of the layer
	// that defined the output shape.
	PrimaryLayerField = "_primaryLayerId"

	// MatchMetadataPrefix prefixes the per-layer match metadata field:
	// "_match_<layerId>".
	MatchMetadataPrefix = "_match_"

	// NormalizedSuffix suffixes per-metric normalized fields:
	// "<metric>_normalized".
	NormalizedSuffix = "_normalized"

	// CombinedScoreField holds the mean of a record's available normalized
	// metrics when at least two are present.
	CombinedScoreField = "combined_score"
)

// Match confidence tiers.  Exact code identifiers are trusted fully; names
// are human-entered and noisy, so name-based matches are discounted.
const (
	ConfidenceExact        = 1.0
	ConfidenceExactName    = 0.9
	ConfidenceNameContains = 0.7
)

// MatchResult is the outcome of matching one primary feature against the
// candidates of one secondary layer.  It is never persisted beyond the
// fusion pass.
type MatchResult struct {
	// Matched points at the winning candidate, or nil when nothing scored
	// above zero.
	Matched *feature.GeoFeature

	// MatchedKey is the identifier field that produced the match.
	MatchedKey string

	// Confidence is in [0, 1]; zero means no match.
	Confidence float64
}

// Found reports whether the result carries a usable match.
func (r MatchResult) Found() bool {
	return r.Matched != nil && r.Confidence > 0
}

// MatchMetadata is stamped on a merged record under "_match_<layerId>" for
// every secondary layer that matched.
type MatchMetadata struct {
	Confidence float64   `json:"confidence"`
	MatchedKey string    `json:"matched_key"`
	Timestamp  time.Time `json:"timestamp"`
}

// MergedFeature is a merged output record: a copy of a primary-layer feature
// whose attribute map additionally carries the namespaced metric value (or
// explicit null) for every secondary layer, plus match metadata and the
// primary-layer tag.
type MergedFeature struct {
	feature.GeoFeature
}

// MarshalJSON renders the record as a standard GeoJSON Feature so merged
// output is directly consumable by mapping clients.
func (m MergedFeature) MarshalJSON() ([]byte, error) {
	return json.Marshal(geo.Feature{
		Type:       "Feature",
		Geometry:   m.Geometry,
		Properties: m.Attributes,
	})
}

// UnmarshalJSON accepts the same GeoJSON Feature shape MarshalJSON emits,
// so merged records survive a cache round trip.
func (m *MergedFeature) UnmarshalJSON(data []byte) error {
	var f geo.Feature
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	m.Geometry = f.Geometry
	m.Attributes = f.Properties
	return nil
}

// MatchMetadataFor returns the match metadata stamped for layerID, if any.
func (m *MergedFeature) MatchMetadataFor(layerID string) (MatchMetadata, bool) {
	v, ok := m.Attribute(MatchMetadataPrefix + layerID)
	if !ok {
		return MatchMetadata{}, false
	}
	md, ok := v.(MatchMetadata)
	return md, ok
}

// FieldMap maps layer id to the globally unique namespaced field name that
// carries the layer's metric on merged records.  It is an explicit return
// value threaded through the pipeline, never package state, so fusion runs
// are independently reproducible.
type FieldMap map[string]string

// LayerStats summarises one secondary layer's contribution to a run.
type LayerStats struct {
	LayerID    string `json:"layer_id"`
	Field      string `json:"field"`
	Matched    int    `json:"matched"`
	Unmatched  int    `json:"unmatched"`
	Candidates int    `json:"candidates"`
	Skipped    bool   `json:"skipped"`
}

// Stats summarises a whole fusion run.
type Stats struct {
	PrimaryLayerID  string       `json:"primary_layer_id"`
	PrimaryFeatures int          `json:"primary_features"`
	Layers          []LayerStats `json:"layers"`
}

// Package analysis is the application service behind the fusion API: it
// resolves catalog entries, loads and caches layer feature sets, runs the
// fusion pipeline, and records run metrics.
package analysis

import (
	"github.com/parcelview/geofusion/internal/domain/fusion"
	"github.com/parcelview/geofusion/pkg/errors"
)

// AnalysisRequest identifies the layers to fuse.  The first layer id is the
// primary layer whose feature set defines the output shape.
type AnalysisRequest struct {
	LayerIDs           []string `json:"layer_ids"`
	QueryTerms         string   `json:"query_terms,omitempty"`
	RelevanceThreshold float64  `json:"relevance_threshold,omitempty"`
	RequiredFields     []string `json:"required_fields,omitempty"`
	Metrics            []string `json:"metrics,omitempty"`
}

// Validate checks the structural requirements of the request.
func (r *AnalysisRequest) Validate() error {
	if len(r.LayerIDs) == 0 {
		return errors.New(errors.ErrCodeFusionNoPrimaryLayer, "at least one layer id is required")
	}
	seen := make(map[string]struct{}, len(r.LayerIDs))
	for _, id := range r.LayerIDs {
		if id == "" {
			return errors.New(errors.ErrCodeValidation, "layer ids must not be empty")
		}
		if _, dup := seen[id]; dup {
			return errors.Newf(errors.ErrCodeValidation, "duplicate layer id %q", id)
		}
		seen[id] = struct{}{}
	}
	if r.RelevanceThreshold < 0 {
		return errors.New(errors.ErrCodeValidation, "relevance threshold must be >= 0")
	}
	return nil
}

// AnalysisResult is the outcome of one fusion run.
type AnalysisResult struct {
	// Features is empty when MultiLayer is false: the gate decided the
	// query does not need cross-layer analysis.
	Features   []fusion.MergedFeature `json:"features"`
	FieldMap   fusion.FieldMap        `json:"field_map"`
	MultiLayer bool                   `json:"multi_layer"`
	Stats      *fusion.Stats          `json:"stats,omitempty"`
}

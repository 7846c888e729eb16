package feature

import (
	"fmt"

	"github.com/parcelview/geofusion/pkg/types/geo"
)

// ThematicValueField is the last-resort metric field name used when a layer
// config declares neither a metric field nor a renderer field.
const ThematicValueField = "thematic_value"

// LayerConfig is the per-layer configuration the fusion engine reads.  It is
// resolved from the layer catalog before a run; a requested layer id without
// a config is a caller programming error, not a data-quality condition.
type LayerConfig struct {
	// LayerID uniquely identifies the layer within a fusion run and suffixes
	// every namespaced output field.
	LayerID string `json:"layer_id"`

	// Title is the human-readable layer name, used only in logs and the API.
	Title string `json:"title,omitempty"`

	// MetricField names the attribute carrying the layer's thematic metric.
	MetricField string `json:"metric_field"`

	// RendererField is the fallback metric field when MetricField is unset or
	// absent on a record.
	RendererField string `json:"renderer_field,omitempty"`

	// JoinKeys is the prioritized identifier list used for matching.  Empty
	// means the default (ID, OBJECTID, FID, NAME).
	JoinKeys []string `json:"join_keys,omitempty"`

	// Relevance is the upstream-assigned 0-100 relevance score for the query
	// at hand.  The fusion engine only compares it to the gate threshold.
	Relevance float64 `json:"relevance,omitempty"`
}

// Validate checks the structural requirements of a layer config.
func (c *LayerConfig) Validate() error {
	if c.LayerID == "" {
		return fmt.Errorf("layer config: layer_id is required")
	}
	if c.MetricField == "" && c.RendererField == "" {
		// Permitted: the namespacer falls back to thematic_value.  Flagged
		// here only when something else is structurally wrong.
		return nil
	}
	return nil
}

// MetricChain returns the ordered candidate field names for this layer's
// metric value: metric field, then renderer field, then thematic_value.
func (c *LayerConfig) MetricChain() FieldChain {
	return FieldChain{c.MetricField, c.RendererField, ThematicValueField}
}

// EffectiveJoinKeys returns the configured join keys or the default
// identifier priority order.
func (c *LayerConfig) EffectiveJoinKeys() []string {
	if len(c.JoinKeys) > 0 {
		return c.JoinKeys
	}
	return IdentifierFields
}

// GeoLayer is an ordered collection of features plus its config.  Layer 0 of
// a fusion run is the primary layer whose feature set defines the output
// shape; every other layer only contributes attribute values.
type GeoLayer struct {
	Config   LayerConfig
	Features []GeoFeature
}

// FromGeoJSON builds a GeoLayer from a decoded GeoJSON feature collection.
// Property maps are referenced, not copied: the layer borrows the collection.
func FromGeoJSON(cfg LayerConfig, fc *geo.FeatureCollection) GeoLayer {
	layer := GeoLayer{Config: cfg}
	if fc == nil {
		return layer
	}
	layer.Features = make([]GeoFeature, 0, len(fc.Features))
	for _, f := range fc.Features {
		props := f.Properties
		if props == nil {
			props = geo.Attributes{}
		}
		layer.Features = append(layer.Features, GeoFeature{
			Geometry:   f.Geometry,
			Attributes: props,
		})
	}
	return layer
}

// ValidFeatures returns the subset of features eligible as match candidates
// under the layer's join keys.
func (l *GeoLayer) ValidFeatures() []GeoFeature {
	keys := l.Config.EffectiveJoinKeys()
	out := make([]GeoFeature, 0, len(l.Features))
	for _, f := range l.Features {
		if f.Valid(keys) {
			out = append(out, f)
		}
	}
	return out
}

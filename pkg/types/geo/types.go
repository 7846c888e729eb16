// Package geo defines the wire-level GeoJSON types and loose attribute value
// helpers shared by the layer sources, the fusion engine, and the HTTP API.
//
// Geometry is deliberately opaque: the fusion engine treats it as a borrowed
// handle that is carried through unchanged, so it is kept as raw JSON and
// never decoded into coordinates.
package geo

import "encoding/json"

// Attributes is the loosely-typed property bag of a geographic feature.
// Values are string, float64, bool, nil, or nested JSON values as produced by
// encoding/json.
type Attributes map[string]interface{}

// FeatureCollection is a standard GeoJSON FeatureCollection document.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a single GeoJSON feature.  Geometry is retained as raw JSON so
// that geometry of any type (Point, Polygon, MultiPolygon, ...) passes through
// the service byte-identical to what the source supplied.
type Feature struct {
	Type       string          `json:"type"`
	ID         interface{}     `json:"id,omitempty"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties Attributes      `json:"properties"`
}

// HasGeometry reports whether the feature carries a non-empty, non-null
// geometry member.
func (f *Feature) HasGeometry() bool {
	if len(f.Geometry) == 0 {
		return false
	}
	// A literal JSON null is an explicit "no geometry".
	return string(f.Geometry) != "null"
}

// NewFeatureCollection wraps features in a FeatureCollection envelope.
func NewFeatureCollection(features []Feature) *FeatureCollection {
	if features == nil {
		features = []Feature{}
	}
	return &FeatureCollection{Type: "FeatureCollection", Features: features}
}

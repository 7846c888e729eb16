// Package feature defines the geographic domain model shared by the layer
// sources and the fusion engine: features, layers, and the ordered
// candidate-field chains used to read loosely-typed attributes.
package feature

import (
	"encoding/json"
	"strings"

	"github.com/parcelview/geofusion/pkg/types/geo"
)

// IdentifierFields is the default identifier priority order.  Independently
// sourced datasets rarely agree on an id scheme, so matching walks this list
// until one side offers a value.
var IdentifierFields = []string{"ID", "OBJECTID", "FID", "NAME"}

// GeoFeature is one geographic record: an opaque geometry handle borrowed
// from the source layer (never mutated) and a loosely-typed attribute map.
type GeoFeature struct {
	// Geometry is raw GeoJSON geometry, carried through fusion unchanged.
	Geometry json.RawMessage

	// Attributes maps field name to value (string | float64 | nil | ...).
	Attributes geo.Attributes
}

// Attribute returns the value for name and whether the key is present.
// A present key with a nil value returns (nil, true).
func (f *GeoFeature) Attribute(name string) (interface{}, bool) {
	if f.Attributes == nil {
		return nil, false
	}
	v, ok := f.Attributes[name]
	return v, ok
}

// HasGeometry reports whether the feature carries a usable geometry handle.
func (f *GeoFeature) HasGeometry() bool {
	return len(f.Geometry) > 0 && string(f.Geometry) != "null"
}

// HasIdentifier reports whether at least one of the given identifier fields
// carries a non-null value.  An empty fields slice falls back to the default
// IdentifierFields order.
func (f *GeoFeature) HasIdentifier(fields []string) bool {
	if len(fields) == 0 {
		fields = IdentifierFields
	}
	for _, name := range fields {
		if v, ok := f.Attribute(name); ok && !geo.IsNull(v) {
			return true
		}
	}
	return false
}

// Valid reports whether the feature may participate in matching: it must
// carry a geometry and at least one identifier.  Invalid features are not an
// error; they are simply excluded from candidacy.
func (f *GeoFeature) Valid(identifierFields []string) bool {
	return f.HasGeometry() && f.HasIdentifier(identifierFields)
}

// Clone returns a copy of the feature with a freshly allocated attribute map.
// The geometry handle is shared: it is borrowed, immutable data.
func (f *GeoFeature) Clone() GeoFeature {
	attrs := make(geo.Attributes, len(f.Attributes)+4)
	for k, v := range f.Attributes {
		attrs[k] = v
	}
	return GeoFeature{Geometry: f.Geometry, Attributes: attrs}
}

// NormalizeKey lowercases and trims an identifier value for comparison.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// FieldChain is an explicit ordered list of candidate field names for one
// concept (e.g. a layer's metric).  Resolution tries each name in priority
// order, which keeps the fallback behaviour auditable instead of scattering
// ad hoc per-record probing through the engine.
type FieldChain []string

// Resolve returns the first non-null value found along the chain together
// with the field name that supplied it.
func (c FieldChain) Resolve(f *GeoFeature) (interface{}, string, bool) {
	for _, name := range c {
		if name == "" {
			continue
		}
		if v, ok := f.Attribute(name); ok && !geo.IsNull(v) {
			return v, name, true
		}
	}
	return nil, "", false
}

// First returns the first non-empty name in the chain, or fallback when the
// chain is entirely empty.  Used to derive output field names.
func (c FieldChain) First(fallback string) string {
	for _, name := range c {
		if name != "" {
			return name
		}
	}
	return fallback
}

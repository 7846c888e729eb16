package feature

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelview/geofusion/pkg/types/geo"
)

var pointGeom = json.RawMessage(`{"type":"Point","coordinates":[-84.5,42.7]}`)

func TestFeatureValid(t *testing.T) {
	tests := []struct {
		name string
		f    GeoFeature
		want bool
	}{
		{
			"geometry and ID",
			GeoFeature{Geometry: pointGeom, Attributes: geo.Attributes{"ID": "1"}},
			true,
		},
		{
			"geometry and NAME only",
			GeoFeature{Geometry: pointGeom, Attributes: geo.Attributes{"NAME": "Alpha"}},
			true,
		},
		{
			"no geometry",
			GeoFeature{Attributes: geo.Attributes{"ID": "1"}},
			false,
		},
		{
			"null geometry",
			GeoFeature{Geometry: json.RawMessage(`null`), Attributes: geo.Attributes{"ID": "1"}},
			false,
		},
		{
			"no identifier fields at all",
			GeoFeature{Geometry: pointGeom, Attributes: geo.Attributes{"RATE": 0.5}},
			false,
		},
		{
			"identifier present but null",
			GeoFeature{Geometry: pointGeom, Attributes: geo.Attributes{"ID": nil}},
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.f.Valid(nil))
		})
	}
}

func TestCloneIsolatesAttributes(t *testing.T) {
	orig := GeoFeature{Geometry: pointGeom, Attributes: geo.Attributes{"ID": "1"}}
	clone := orig.Clone()
	clone.Attributes["extra"] = 42.0

	_, ok := orig.Attribute("extra")
	assert.False(t, ok, "clone must not alias the original attribute map")
	assert.Equal(t, string(orig.Geometry), string(clone.Geometry))
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "a-100", NormalizeKey("  A-100 "))
	assert.Equal(t, "alpha", NormalizeKey("ALPHA"))
}

func TestFieldChainResolve(t *testing.T) {
	f := GeoFeature{Attributes: geo.Attributes{
		"RENT":  nil,
		"VALUE": 1200.0,
	}}

	v, name, ok := FieldChain{"RENT", "VALUE"}.Resolve(&f)
	require.True(t, ok)
	assert.Equal(t, "VALUE", name, "null first candidate falls through")
	assert.Equal(t, 1200.0, v)

	_, _, ok = FieldChain{"MISSING"}.Resolve(&f)
	assert.False(t, ok)
}

func TestFieldChainFirst(t *testing.T) {
	assert.Equal(t, "RATE", FieldChain{"", "RATE"}.First("thematic_value"))
	assert.Equal(t, "thematic_value", FieldChain{"", ""}.First("thematic_value"))
}

func TestMetricChain(t *testing.T) {
	cfg := LayerConfig{LayerID: "L2", RendererField: "RATE"}
	assert.Equal(t, FieldChain{"", "RATE", "thematic_value"}, cfg.MetricChain())
	assert.Equal(t, "RATE", cfg.MetricChain().First(ThematicValueField))
}

func TestEffectiveJoinKeys(t *testing.T) {
	cfg := LayerConfig{LayerID: "L1"}
	assert.Equal(t, IdentifierFields, cfg.EffectiveJoinKeys())

	cfg.JoinKeys = []string{"GEOID"}
	assert.Equal(t, []string{"GEOID"}, cfg.EffectiveJoinKeys())
}

func TestFromGeoJSON(t *testing.T) {
	fc := &geo.FeatureCollection{
		Type: "FeatureCollection",
		Features: []geo.Feature{
			{Geometry: pointGeom, Properties: geo.Attributes{"ID": "1"}},
			{Geometry: pointGeom, Properties: nil},
		},
	}
	layer := FromGeoJSON(LayerConfig{LayerID: "L1"}, fc)

	require.Len(t, layer.Features, 2)
	assert.NotNil(t, layer.Features[1].Attributes, "nil properties become an empty map")
}

func TestValidFeaturesFilters(t *testing.T) {
	layer := GeoLayer{
		Config: LayerConfig{LayerID: "L1"},
		Features: []GeoFeature{
			{Geometry: pointGeom, Attributes: geo.Attributes{"ID": "1"}},
			{Attributes: geo.Attributes{"ID": "2"}},                      // no geometry
			{Geometry: pointGeom, Attributes: geo.Attributes{"X": 1.0}},  // no identifier
			{Geometry: pointGeom, Attributes: geo.Attributes{"FID": 7.0}},
		},
	}
	valid := layer.ValidFeatures()
	require.Len(t, valid, 2)
}

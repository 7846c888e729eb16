package geo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
		ok   bool
	}{
		{"string", "Lansing", "Lansing", true},
		{"float whole", 100.0, "100", true},
		{"float fractional", 0.5, "0.5", true},
		{"int", 42, "42", true},
		{"bool", true, "true", true},
		{"nil", nil, "", false},
		{"unsupported", []string{"x"}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AsString(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAsFloat(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want float64
		ok   bool
	}{
		{"float", 0.9, 0.9, true},
		{"int", 7, 7.0, true},
		{"numeric string", " 12.5 ", 12.5, true},
		{"non-numeric string", "n/a", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AsFloat(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestIsNull(t *testing.T) {
	assert.True(t, IsNull(nil))
	assert.True(t, IsNull("   "))
	assert.False(t, IsNull(0.0))
	assert.False(t, IsNull("0"))
}

func TestFeatureHasGeometry(t *testing.T) {
	var fc FeatureCollection
	doc := `{
		"type": "FeatureCollection",
		"features": [
			{"type": "Feature", "geometry": {"type": "Point", "coordinates": [-84.55, 42.73]}, "properties": {"ID": "1"}},
			{"type": "Feature", "geometry": null, "properties": {"ID": "2"}}
		]
	}`
	require.NoError(t, json.Unmarshal([]byte(doc), &fc))
	require.Len(t, fc.Features, 2)

	assert.True(t, fc.Features[0].HasGeometry())
	assert.False(t, fc.Features[1].HasGeometry())
}

func TestGeometryRoundTripsByteIdentical(t *testing.T) {
	raw := json.RawMessage(`{"type":"Point","coordinates":[-84.55,42.73]}`)
	f := Feature{Type: "Feature", Geometry: raw, Properties: Attributes{"ID": "1"}}

	out, err := json.Marshal(f)
	require.NoError(t, err)
	assert.Contains(t, string(out), `{"type":"Point","coordinates":[-84.55,42.73]}`)
}

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelview/geofusion/pkg/errors"
)

const tractsDoc = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]},
		 "properties": {"ID": "1", "NAME": "Downtown"}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [1, 1]},
		 "properties": {"ID": "2", "NAME": "Riverside"}}
	]
}`

const crimeDoc = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]},
		 "properties": {"ID": "1", "RATE": 0.5}}
	]
}`

func writeTempGeoJSON(t *testing.T, name, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

// runCLI executes the root command with args, capturing stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFuseCommand(t *testing.T) {
	tracts := writeTempGeoJSON(t, "tracts.geojson", tractsDoc)
	crime := writeTempGeoJSON(t, "crime.geojson", crimeDoc)

	out, err := runCLI(t, "fuse",
		"--layer", "id=tracts,path="+tracts+",relevance=95",
		"--layer", "id=crime,path="+crime+",metric=RATE,relevance=80",
		"--query", "crime and safety by tract",
	)
	require.NoError(t, err)

	var result struct {
		Features   []map[string]interface{} `json:"features"`
		FieldMap   map[string]string        `json:"field_map"`
		MultiLayer bool                     `json:"multi_layer"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))

	assert.True(t, result.MultiLayer)
	require.Len(t, result.Features, 2)
	assert.Equal(t, "RATE_crime", result.FieldMap["crime"])

	props := result.Features[0]["properties"].(map[string]interface{})
	assert.Equal(t, 0.5, props["RATE_crime"])
	assert.Equal(t, "tracts", props["_primaryLayerId"])
}

func TestFuseCommandWritesFile(t *testing.T) {
	tracts := writeTempGeoJSON(t, "tracts.geojson", tractsDoc)
	crime := writeTempGeoJSON(t, "crime.geojson", crimeDoc)
	outFile := filepath.Join(t.TempDir(), "merged.json")

	_, err := runCLI(t, "fuse",
		"--layer", "path="+tracts+",relevance=95",
		"--layer", "path="+crime+",metric=RATE,relevance=80",
		"--query", "crime and safety by tract",
		"--out", outFile,
	)
	require.NoError(t, err)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "RATE_crime")
}

func TestFuseCommandRequiresTwoLayers(t *testing.T) {
	tracts := writeTempGeoJSON(t, "tracts.geojson", tractsDoc)

	_, err := runCLI(t, "fuse", "--layer", "path="+tracts)

	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestFuseCommandMissingFile(t *testing.T) {
	tracts := writeTempGeoJSON(t, "tracts.geojson", tractsDoc)

	_, err := runCLI(t, "fuse",
		"--layer", "path="+tracts,
		"--layer", "path=/does/not/exist.geojson",
	)

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatasetNotFound))
}

func TestLoadLayerSpec(t *testing.T) {
	crime := writeTempGeoJSON(t, "crime.geojson", crimeDoc)

	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "full spec", spec: "id=crime,path=" + crime + ",metric=RATE,relevance=80"},
		{name: "id from path", spec: "path=" + crime},
		{name: "custom keys", spec: "path=" + crime + ",keys=GEOID|NAME"},
		{name: "missing path", spec: "id=crime", wantErr: true},
		{name: "bad entry", spec: "path", wantErr: true},
		{name: "unknown key", spec: "path=" + crime + ",color=red", wantErr: true},
		{name: "bad relevance", spec: "path=" + crime + ",relevance=high", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			layer, err := loadLayerSpec(tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "crime", layer.Config.LayerID)
			assert.Len(t, layer.Features, 1)
		})
	}
}

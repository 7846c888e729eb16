package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parcelview/geofusion/internal/domain/feature"
)

func layerConfigs(relevances ...float64) []feature.LayerConfig {
	configs := make([]feature.LayerConfig, len(relevances))
	for i, r := range relevances {
		configs[i] = feature.LayerConfig{
			LayerID:     string(rune('a' + i)),
			MetricField: "VALUE",
			Relevance:   r,
		}
	}
	return configs
}

func TestEvaluateGate(t *testing.T) {
	tests := []struct {
		name           string
		relevances     []float64
		query          string
		wantMultiLayer bool
		wantRelevant   int
	}{
		{
			name:           "two layers above threshold",
			relevances:     []float64{85, 40, 5},
			query:          "crime in seattle",
			wantMultiLayer: true,
			wantRelevant:   2,
		},
		{
			name:           "one layer above threshold, no keyword",
			relevances:     []float64{85, 10},
			query:          "crime in seattle",
			wantMultiLayer: false,
			wantRelevant:   1,
		},
		{
			name:           "one layer above threshold, comparison keyword",
			relevances:     []float64{85, 10},
			query:          "crime and income",
			wantMultiLayer: true,
			wantRelevant:   1,
		},
		{
			name:           "correlation keyword with no relevant layers",
			relevances:     []float64{5, 5},
			query:          "correlation between schools",
			wantMultiLayer: true,
			wantRelevant:   0,
		},
		{
			name:           "keyword embedded in a larger word does not fire",
			relevances:     []float64{85, 10},
			query:          "brand recognition standards",
			wantMultiLayer: false,
			wantRelevant:   1,
		},
		{
			name:           "vs token fires",
			relevances:     []float64{85},
			query:          "downtown vs suburbs",
			wantMultiLayer: true,
			wantRelevant:   1,
		},
		{
			name:           "boundary relevance counts as relevant",
			relevances:     []float64{20, 20},
			query:          "",
			wantMultiLayer: true,
			wantRelevant:   2,
		},
		{
			name:           "empty everything",
			relevances:     nil,
			query:          "",
			wantMultiLayer: false,
			wantRelevant:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := EvaluateGate(layerConfigs(tt.relevances...), tt.query, 0)
			assert.Equal(t, tt.wantMultiLayer, decision.MultiLayer)
			assert.Len(t, decision.RelevantLayers, tt.wantRelevant)
		})
	}
}

func TestEvaluateGateNarrowsToThresholdSurvivors(t *testing.T) {
	configs := layerConfigs(90, 50, 10, 3)
	decision := EvaluateGate(configs, "", 0)

	assert.True(t, decision.MultiLayer)
	if assert.Len(t, decision.RelevantLayers, 2) {
		assert.Equal(t, configs[0].LayerID, decision.RelevantLayers[0].LayerID)
		assert.Equal(t, configs[1].LayerID, decision.RelevantLayers[1].LayerID)
	}
}

func TestEvaluateGateCustomThreshold(t *testing.T) {
	configs := layerConfigs(60, 45)

	assert.True(t, EvaluateGate(configs, "", 40).MultiLayer)
	assert.False(t, EvaluateGate(configs, "", 50).MultiLayer)
}

func TestEvaluateGateDoesNotMutateCandidates(t *testing.T) {
	configs := layerConfigs(90, 5, 80)
	before := make([]feature.LayerConfig, len(configs))
	copy(before, configs)

	EvaluateGate(configs, "both", 0)

	assert.Equal(t, before, configs)
}

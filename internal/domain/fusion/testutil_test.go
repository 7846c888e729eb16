package fusion

import (
	"encoding/json"

	"github.com/parcelview/geofusion/internal/domain/feature"
	"github.com/parcelview/geofusion/pkg/types/geo"
)

var pointGeometry = json.RawMessage(`{"type":"Point","coordinates":[-122.33,47.61]}`)

func validFeature(attrs geo.Attributes) feature.GeoFeature {
	return feature.GeoFeature{
		Geometry:   pointGeometry,
		Attributes: attrs,
	}
}

func testLayer(id, metricField string, relevance float64, features ...feature.GeoFeature) feature.GeoLayer {
	return feature.GeoLayer{
		Config: feature.LayerConfig{
			LayerID:     id,
			MetricField: metricField,
			Relevance:   relevance,
		},
		Features: features,
	}
}

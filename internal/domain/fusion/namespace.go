package fusion

import (
	"fmt"

	"github.com/parcelview/geofusion/internal/domain/feature"
	"github.com/parcelview/geofusion/pkg/errors"
)

// BuildFieldMap derives a globally unique output field name for every layer:
// "<metricField|rendererField|thematic_value>_<layerId>".  Suffixing with the
// layer id guarantees collision freedom even when two layers configure
// textually identical metric fields.
//
// Pure and deterministic: the same configs always produce the same map, so
// repeated runs over a layer set yield stable field names.  A duplicate layer
// id is a structural misconfiguration and the one way this function fails.
func BuildFieldMap(configs []feature.LayerConfig) (FieldMap, error) {
	fm := make(FieldMap, len(configs))
	for _, cfg := range configs {
		if cfg.LayerID == "" {
			return nil, errors.New(errors.ErrCodeLayerConfigInvalid, "layer config has empty layer_id")
		}
		if _, exists := fm[cfg.LayerID]; exists {
			return nil, errors.Newf(errors.ErrCodeLayerConfigInvalid,
				"duplicate layer id %q in fusion input", cfg.LayerID)
		}
		base := cfg.MetricChain().First(feature.ThematicValueField)
		fm[cfg.LayerID] = fmt.Sprintf("%s_%s", base, cfg.LayerID)
	}
	return fm, nil
}

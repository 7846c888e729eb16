package fusion

// Backfill guarantees every record explicitly carries every required field,
// substituting an explicit null for fields no layer populated.  Downstream
// consumers can then read any required field without an existence check.
//
// Copy-on-write: the input records are never mutated.  Each output record is
// a fresh clone, so a caller that retained a reference to the pre-backfill
// set observes no aliasing.
func Backfill(features []MergedFeature, requiredFields []string) []MergedFeature {
	out := make([]MergedFeature, len(features))
	for i := range features {
		clone := features[i].Clone()
		for _, field := range requiredFields {
			if _, ok := clone.Attributes[field]; !ok {
				clone.Attributes[field] = nil
			}
		}
		out[i] = MergedFeature{GeoFeature: clone}
	}
	return out
}

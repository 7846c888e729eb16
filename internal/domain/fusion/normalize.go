package fusion

import (
	"github.com/parcelview/geofusion/pkg/types/geo"
)

// NormalizationRange is the observed value span of one metric across a merged
// set, computed once per fusion run.
type NormalizationRange struct {
	Min float64
	Max float64
}

// Degenerate reports whether all observed values were identical (or a single
// value was observed), in which case normalization is defined as 1.0 instead
// of dividing by zero.
func (r NormalizationRange) Degenerate() bool {
	return r.Max == r.Min
}

// Normalize rescales each requested metric to the unit interval across the
// whole merged set and computes a combined mean score per record.
//
// Per metric, all non-null numeric values contribute to a min/max range; each
// record holding such a value gets "<metric>_normalized" in [0, 1], with a
// degenerate range mapping to exactly 1.0.  Records with a null or missing
// metric value get NO normalized key at all, which distinguishes "no data"
// from "normalized to zero".
//
// A record with normalized values for at least two of the requested metrics
// additionally gets "combined_score", the arithmetic mean over the metrics
// actually present, not a fixed-denominator average.
//
// Copy-on-write like Backfill: input records are never mutated.
func Normalize(features []MergedFeature, metrics []string) []MergedFeature {
	out := make([]MergedFeature, len(features))
	for i := range features {
		out[i] = MergedFeature{GeoFeature: features[i].Clone()}
	}

	for _, metric := range metrics {
		rng, any := metricRange(out, metric)
		if !any {
			continue
		}
		normalizedField := metric + NormalizedSuffix
		for i := range out {
			v, ok := numericValue(&out[i], metric)
			if !ok {
				continue
			}
			if rng.Degenerate() {
				out[i].Attributes[normalizedField] = 1.0
				continue
			}
			out[i].Attributes[normalizedField] = (v - rng.Min) / (rng.Max - rng.Min)
		}
	}

	for i := range out {
		var sum float64
		var n int
		for _, metric := range metrics {
			v, ok := out[i].Attributes[metric+NormalizedSuffix]
			if !ok {
				continue
			}
			if f, ok := v.(float64); ok {
				sum += f
				n++
			}
		}
		if n >= 2 {
			out[i].Attributes[CombinedScoreField] = sum / float64(n)
		}
	}

	return out
}

// metricRange scans the set for metric's non-null numeric values and reports
// their span.  The boolean is false when no record carried a usable value.
func metricRange(features []MergedFeature, metric string) (NormalizationRange, bool) {
	var rng NormalizationRange
	any := false
	for i := range features {
		v, ok := numericValue(&features[i], metric)
		if !ok {
			continue
		}
		if !any {
			rng.Min, rng.Max = v, v
			any = true
			continue
		}
		if v < rng.Min {
			rng.Min = v
		}
		if v > rng.Max {
			rng.Max = v
		}
	}
	return rng, any
}

// numericValue reads a record's metric as float64, coercing numeric strings
// and rejecting null, absent, and non-numeric values.
func numericValue(f *MergedFeature, metric string) (float64, bool) {
	v, ok := f.Attributes[metric]
	if !ok || geo.IsNull(v) {
		return 0, false
	}
	return geo.AsFloat(v)
}

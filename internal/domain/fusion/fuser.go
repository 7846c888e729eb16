package fusion

import (
	"context"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/parcelview/geofusion/internal/domain/feature"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/pkg/errors"
)

// Fuser merges secondary-layer attribute values into the primary layer's
// record set.  The primary layer defines the output shape: fusion never
// drops or adds records relative to it.
type Fuser struct {
	matcher *Matcher
	logger  logging.Logger

	// parallelism bounds the number of concurrent per-record match workers.
	// Each worker owns a disjoint output slot (sharded by primary-feature
	// index), so no locks are needed.
	parallelism int

	// now supplies match-metadata timestamps; replaceable in tests so runs
	// compare byte-identical.
	now func() time.Time
}

// FuserOption configures a Fuser.
type FuserOption func(*Fuser)

// WithParallelism sets the per-layer match worker count.  Values below 1
// fall back to GOMAXPROCS.
func WithParallelism(n int) FuserOption {
	return func(f *Fuser) { f.parallelism = n }
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) FuserOption {
	return func(f *Fuser) { f.now = now }
}

// NewFuser constructs a Fuser.
func NewFuser(log logging.Logger, opts ...FuserOption) *Fuser {
	f := &Fuser{
		matcher:     NewMatcher(),
		logger:      log,
		parallelism: runtime.GOMAXPROCS(0),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.parallelism < 1 {
		f.parallelism = 1
	}
	return f
}

// Fuse merges every secondary layer's metric values into copies of the
// primary layer's features.
//
// Invalid features (missing geometry or all identifiers) are excluded from
// being match candidates, but invalid primary features still pass through to
// the output with nulls for every secondary field.  A secondary layer with
// zero valid features is skipped entirely and logged; fusion continues with
// the remaining layers.  The output length always equals the primary layer's
// feature count.
//
// The only error condition is structural: a secondary layer id missing from
// fieldMap, which indicates a misconfigured call chain rather than bad data.
func (f *Fuser) Fuse(ctx context.Context, primary feature.GeoLayer, secondaries []feature.GeoLayer, fieldMap FieldMap) ([]MergedFeature, *Stats, error) {
	stats := &Stats{
		PrimaryLayerID:  primary.Config.LayerID,
		PrimaryFeatures: len(primary.Features),
	}

	// The output set starts as shallow copies of all primary features,
	// valid or not, tagged with the primary layer id.
	merged := make([]MergedFeature, len(primary.Features))
	for i := range primary.Features {
		clone := primary.Features[i].Clone()
		clone.Attributes[PrimaryLayerField] = primary.Config.LayerID
		merged[i] = MergedFeature{GeoFeature: clone}
	}

	stamp := f.now().UTC()
	joinKeys := primary.Config.EffectiveJoinKeys()

	// Secondary layers are applied strictly in declaration order so that
	// namespaced fields and metadata stay stable across runs even though
	// record matching within a layer fans out across workers.
	for _, secondary := range secondaries {
		outField, ok := fieldMap[secondary.Config.LayerID]
		if !ok {
			return nil, nil, errors.Newf(errors.ErrCodeLayerConfigInvalid,
				"layer %q has no namespaced field mapping", secondary.Config.LayerID)
		}

		candidates := secondary.ValidFeatures()
		layerStats := LayerStats{
			LayerID:    secondary.Config.LayerID,
			Field:      outField,
			Candidates: len(candidates),
		}

		if len(candidates) == 0 {
			layerStats.Skipped = true
			stats.Layers = append(stats.Layers, layerStats)
			f.logger.Warn("skipping secondary layer with no valid features",
				logging.String("layer_id", secondary.Config.LayerID),
				logging.Int("raw_features", len(secondary.Features)),
			)
			continue
		}

		results := f.matchLayer(ctx, merged, candidates, joinKeys)
		metricChain := secondary.Config.MetricChain()

		for i := range merged {
			res := results[i]
			if !res.Found() {
				// Explicit null, never an absent key: downstream consumers
				// read every namespaced field without existence checks.
				merged[i].Attributes[outField] = nil
				layerStats.Unmatched++
				continue
			}

			value, _, ok := metricChain.Resolve(res.Matched)
			if !ok {
				value = nil
			}
			merged[i].Attributes[outField] = value
			merged[i].Attributes[MatchMetadataPrefix+secondary.Config.LayerID] = MatchMetadata{
				Confidence: res.Confidence,
				MatchedKey: res.MatchedKey,
				Timestamp:  stamp,
			}
			layerStats.Matched++
		}

		stats.Layers = append(stats.Layers, layerStats)
		f.logger.Debug("merged secondary layer",
			logging.String("layer_id", secondary.Config.LayerID),
			logging.String("field", outField),
			logging.Int("matched", layerStats.Matched),
			logging.Int("unmatched", layerStats.Unmatched),
		)
	}

	return merged, stats, nil
}

// matchLayer runs the matcher for every output record against one secondary
// layer's candidates.  Workers shard by record index, each writing only its
// own result slot.
func (f *Fuser) matchLayer(ctx context.Context, merged []MergedFeature, candidates []feature.GeoFeature, joinKeys []string) []MatchResult {
	results := make([]MatchResult, len(merged))

	if f.parallelism <= 1 || len(merged) < 2 {
		for i := range merged {
			if !merged[i].Valid(joinKeys) {
				// Invalid primary features pass through unmerged.
				continue
			}
			results[i] = f.matcher.Match(&merged[i].GeoFeature, candidates, joinKeys)
		}
		return results
	}

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(f.parallelism)
	for i := range merged {
		if !merged[i].Valid(joinKeys) {
			continue
		}
		i := i
		g.Go(func() error {
			results[i] = f.matcher.Match(&merged[i].GeoFeature, candidates, joinKeys)
			return nil
		})
	}
	// Workers never return errors; Wait only synchronises.
	_ = g.Wait()
	return results
}

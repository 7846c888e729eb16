package fusion

import (
	"context"
	"strings"

	"github.com/parcelview/geofusion/internal/domain/feature"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
)

// Request is one fusion run over already-fetched, in-memory layers.  Layer 0
// is the primary layer whose feature set defines the output shape.
type Request struct {
	Layers []feature.GeoLayer

	// QueryTerms is the free-text query, consulted by the relevance gate
	// only.
	QueryTerms string

	// RelevanceThreshold overrides DefaultRelevanceThreshold when positive.
	RelevanceThreshold float64

	// RequiredFields are field names every output record must carry, null
	// when no layer supplied them.  A name may be pinned to one layer with
	// an "_<layerId>" suffix; unpinned names resolve to the first layer
	// offering the field.
	RequiredFields []string

	// Metrics are the namespaced field names to normalize.  When empty,
	// every layer's namespaced metric field is normalized.
	Metrics []string
}

// Result is the output of one fusion run.
type Result struct {
	// Features is the merged record set; its length equals the primary
	// layer's feature count, or zero when the gate rejected fusion or the
	// input was empty.
	Features []MergedFeature `json:"features"`

	// FieldMap maps each fused layer id to its namespaced metric field.
	FieldMap FieldMap `json:"field_map"`

	// MultiLayer reports the gate's decision.  When false, Features is
	// empty and the caller should fall back to single-layer handling.
	MultiLayer bool `json:"multi_layer"`

	Stats *Stats `json:"stats,omitempty"`
}

// Pipeline runs the full fusion pass: relevance gate, field namespacing,
// record fusing, backfill, normalization.  It is a pure in-process engine:
// no I/O, and no data-quality condition fails a run.
type Pipeline struct {
	fuser  *Fuser
	logger logging.Logger
}

// NewPipeline constructs a Pipeline.  Options are forwarded to the Fuser.
func NewPipeline(log logging.Logger, opts ...FuserOption) *Pipeline {
	return &Pipeline{
		fuser:  NewFuser(log, opts...),
		logger: log,
	}
}

// Run executes one fusion pass.
//
// Empty input (no layers) yields an empty result, not an error: callers must
// treat it as "nothing to analyze".  When the relevance gate decides the
// query is single-layer, Run likewise returns early with MultiLayer false.
// The only errors are structural misconfigurations surfaced by the
// namespacer or fuser.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.Layers) == 0 {
		p.logger.Debug("fusion invoked with no layers")
		return &Result{Features: []MergedFeature{}, FieldMap: FieldMap{}}, nil
	}

	configs := make([]feature.LayerConfig, len(req.Layers))
	for i, l := range req.Layers {
		configs[i] = l.Config
	}

	decision := EvaluateGate(configs, req.QueryTerms, req.RelevanceThreshold)
	if !decision.MultiLayer {
		p.logger.Info("relevance gate rejected multi-layer fusion",
			logging.Int("candidates", len(configs)),
		)
		return &Result{Features: []MergedFeature{}, FieldMap: FieldMap{}}, nil
	}

	layers := narrowLayers(req.Layers, decision.RelevantLayers)
	if len(layers) == 0 {
		return &Result{Features: []MergedFeature{}, FieldMap: FieldMap{}, MultiLayer: true}, nil
	}

	fieldMap, err := BuildFieldMap(configsOf(layers))
	if err != nil {
		return nil, err
	}

	primary := layers[0]
	secondaries := layers[1:]

	merged, stats, err := p.fuser.Fuse(ctx, primary, secondaries, fieldMap)
	if err != nil {
		return nil, err
	}

	required := resolveRequiredFields(req.RequiredFields, layers, fieldMap)
	merged = Backfill(merged, required)

	metrics := req.Metrics
	if len(metrics) == 0 {
		metrics = defaultMetrics(layers, fieldMap)
	}
	merged = Normalize(merged, metrics)

	p.logger.Info("fusion run complete",
		logging.String("primary_layer", primary.Config.LayerID),
		logging.Int("records", len(merged)),
		logging.Int("layers", len(layers)),
	)

	return &Result{
		Features:   merged,
		FieldMap:   fieldMap,
		MultiLayer: true,
		Stats:      stats,
	}, nil
}

// narrowLayers keeps exactly the layers the gate found relevant, preserving
// input order.  The primary layer stays first whenever it survived narrowing.
// A keyword-forced gate can leave fewer than two survivors; the narrowed set
// still wins and the degenerate result falls out of the fuser naturally.
func narrowLayers(layers []feature.GeoLayer, relevant []feature.LayerConfig) []feature.GeoLayer {
	keep := make(map[string]struct{}, len(relevant))
	for _, c := range relevant {
		keep[c.LayerID] = struct{}{}
	}
	out := make([]feature.GeoLayer, 0, len(relevant))
	for _, l := range layers {
		if _, ok := keep[l.Config.LayerID]; ok {
			out = append(out, l)
		}
	}
	return out
}

func configsOf(layers []feature.GeoLayer) []feature.LayerConfig {
	configs := make([]feature.LayerConfig, len(layers))
	for i, l := range layers {
		configs[i] = l.Config
	}
	return configs
}

// resolveRequiredFields maps caller-declared field names to concrete output
// fields.  A name already suffixed with a known layer id is taken as pinned;
// any other name resolves to the first layer whose features carry the field.
// Primary-layer attributes pass through merged records unnamespaced, so a
// name the primary offers keeps its bare form; secondary offerings resolve
// to the namespaced field.  Names no layer offers stay as-is so backfill
// still materialises them as nulls.
func resolveRequiredFields(declared []string, layers []feature.GeoLayer, fieldMap FieldMap) []string {
	resolved := make([]string, 0, len(declared))
	for _, name := range declared {
		if pinnedToLayer(name, layers) {
			resolved = append(resolved, name)
			continue
		}
		found := false
		for i, l := range layers {
			if !layerOffersField(l, name) {
				continue
			}
			if i == 0 {
				resolved = append(resolved, name)
			} else {
				resolved = append(resolved, name+"_"+l.Config.LayerID)
			}
			found = true
			break
		}
		if !found {
			resolved = append(resolved, name)
		}
	}
	return resolved
}

// pinnedToLayer reports whether name ends in "_<layerId>" for one of the
// supplied layers.
func pinnedToLayer(name string, layers []feature.GeoLayer) bool {
	for _, l := range layers {
		if strings.HasSuffix(name, "_"+l.Config.LayerID) {
			return true
		}
	}
	return false
}

// layerOffersField reports whether any feature of the layer carries the
// field.
func layerOffersField(l feature.GeoLayer, name string) bool {
	for i := range l.Features {
		if _, ok := l.Features[i].Attribute(name); ok {
			return true
		}
	}
	return false
}

// defaultMetrics is the namespaced metric field of every secondary layer, in
// layer order.  The primary layer contributes no namespaced value, so it is
// excluded.
func defaultMetrics(layers []feature.GeoLayer, fieldMap FieldMap) []string {
	if len(layers) < 2 {
		return nil
	}
	metrics := make([]string, 0, len(layers)-1)
	for _, l := range layers[1:] {
		if f, ok := fieldMap[l.Config.LayerID]; ok {
			metrics = append(metrics, f)
		}
	}
	return metrics
}

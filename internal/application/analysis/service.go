package analysis

import (
	"context"
	"time"

	"github.com/parcelview/geofusion/internal/config"
	"github.com/parcelview/geofusion/internal/domain/catalog"
	"github.com/parcelview/geofusion/internal/domain/feature"
	"github.com/parcelview/geofusion/internal/domain/fusion"
	rediscache "github.com/parcelview/geofusion/internal/infrastructure/database/redis"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/prometheus"
	"github.com/parcelview/geofusion/internal/infrastructure/storage"
	"github.com/parcelview/geofusion/pkg/errors"
	"github.com/parcelview/geofusion/pkg/types/geo"
)

const layerCachePrefix = "layer:"

// Service orchestrates one fusion run end to end: catalog lookup, cached
// dataset loading, pipeline execution, metrics.
type Service struct {
	repo     catalog.Repository
	store    storage.DatasetStore
	cache    rediscache.Cache
	pipeline *fusion.Pipeline
	metrics  *prometheus.AppMetrics
	logger   logging.Logger

	cacheTTL  time.Duration
	threshold float64
}

// NewService wires a Service from its dependencies.  cache may be nil, in
// which case every run loads layers straight from the dataset store.
func NewService(
	repo catalog.Repository,
	store storage.DatasetStore,
	cache rediscache.Cache,
	metrics *prometheus.AppMetrics,
	cfg config.FusionConfig,
	log logging.Logger,
) *Service {
	return &Service{
		repo:      repo,
		store:     store,
		cache:     cache,
		pipeline:  fusion.NewPipeline(log, fusion.WithParallelism(cfg.Parallelism)),
		metrics:   metrics,
		logger:    log,
		cacheTTL:  cfg.CacheTTL,
		threshold: cfg.RelevanceThreshold,
	}
}

// Run executes one analysis request synchronously.
func (s *Service) Run(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	layers := make([]feature.GeoLayer, 0, len(req.LayerIDs))
	for _, id := range req.LayerIDs {
		layer, err := s.loadLayer(ctx, id)
		if err != nil {
			prometheus.RecordError(s.metrics, "analysis", errors.GetCode(err).String())
			return nil, err
		}
		layers = append(layers, layer)
	}

	threshold := req.RelevanceThreshold
	if threshold <= 0 {
		threshold = s.threshold
	}

	start := time.Now()
	result, err := s.pipeline.Run(ctx, fusion.Request{
		Layers:             layers,
		QueryTerms:         req.QueryTerms,
		RelevanceThreshold: threshold,
		RequiredFields:     req.RequiredFields,
		Metrics:            req.Metrics,
	})

	primaryID := req.LayerIDs[0]
	prometheus.RecordFusionRun(s.metrics, primaryID, err == nil, time.Since(start))
	if err != nil {
		prometheus.RecordError(s.metrics, "fusion", errors.GetCode(err).String())
		return nil, err
	}

	prometheus.RecordGateDecision(s.metrics, result.MultiLayer)
	if result.Stats != nil {
		for _, ls := range result.Stats.Layers {
			prometheus.RecordLayerMerge(s.metrics, ls.LayerID, ls.Matched, ls.Unmatched, ls.Skipped)
		}
	}

	s.logger.Info("analysis run complete",
		logging.String("primary_layer", primaryID),
		logging.Int("layers", len(layers)),
		logging.Int("features", len(result.Features)),
		logging.Bool("multi_layer", result.MultiLayer),
	)

	return &AnalysisResult{
		Features:   result.Features,
		FieldMap:   result.FieldMap,
		MultiLayer: result.MultiLayer,
		Stats:      result.Stats,
	}, nil
}

// loadLayer resolves a catalog entry and materializes its feature set, going
// through the cache when one is configured.
func (s *Service) loadLayer(ctx context.Context, layerID string) (feature.GeoLayer, error) {
	entry, err := s.repo.GetByLayerID(ctx, layerID)
	if err != nil {
		return feature.GeoLayer{}, err
	}

	start := time.Now()
	fc, hit, err := s.fetchCollection(ctx, entry)
	prometheus.RecordLayerLoad(s.metrics, layerID, loadSource(hit), time.Since(start), err)
	if err != nil {
		return feature.GeoLayer{}, err
	}
	if s.cache != nil {
		prometheus.RecordCacheAccess(s.metrics, "layers", hit)
	}

	return feature.FromGeoJSON(entry.Config(), fc), nil
}

func (s *Service) fetchCollection(ctx context.Context, entry *catalog.Layer) (*geo.FeatureCollection, bool, error) {
	if s.cache == nil {
		fc, err := s.store.Fetch(ctx, entry.DatasetKey)
		return fc, false, err
	}

	loaded := false
	var fc geo.FeatureCollection
	err := s.cache.GetOrSet(ctx, layerCachePrefix+entry.DatasetKey, &fc, s.cacheTTL,
		func(ctx context.Context) (interface{}, error) {
			loaded = true
			return s.store.Fetch(ctx, entry.DatasetKey)
		})
	if err != nil {
		return nil, false, err
	}
	return &fc, !loaded, nil
}

func loadSource(hit bool) string {
	if hit {
		return "cache"
	}
	return "store"
}

// InvalidateLayer drops the cached feature set for a dataset key.  Wired to
// catalog updates and the local store's file watcher.
func (s *Service) InvalidateLayer(ctx context.Context, datasetKey string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, layerCachePrefix+datasetKey)
}

package analysis

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parcelview/geofusion/internal/config"
	"github.com/parcelview/geofusion/internal/domain/catalog"
	rediscache "github.com/parcelview/geofusion/internal/infrastructure/database/redis"
	"github.com/parcelview/geofusion/internal/infrastructure/messaging/kafka"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/prometheus"
	"github.com/parcelview/geofusion/internal/infrastructure/storage"
	"github.com/parcelview/geofusion/pkg/errors"
	"github.com/parcelview/geofusion/pkg/types/geo"
)

// fakeRepo is an in-memory catalog.Repository.
type fakeRepo struct {
	layers map[string]*catalog.Layer
}

func (r *fakeRepo) Create(_ context.Context, l *catalog.Layer) error {
	r.layers[l.LayerID] = l
	return nil
}

func (r *fakeRepo) Update(_ context.Context, l *catalog.Layer) error {
	r.layers[l.LayerID] = l
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, layerID string) error {
	delete(r.layers, layerID)
	return nil
}

func (r *fakeRepo) GetByLayerID(_ context.Context, layerID string) (*catalog.Layer, error) {
	l, ok := r.layers[layerID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeLayerNotFound, "layer %q not found", layerID)
	}
	return l, nil
}

func (r *fakeRepo) List(_ context.Context) ([]*catalog.Layer, error) {
	out := make([]*catalog.Layer, 0, len(r.layers))
	for _, l := range r.layers {
		out = append(out, l)
	}
	return out, nil
}

// fakeStore is an in-memory storage.DatasetStore that counts fetches.
type fakeStore struct {
	mu       sync.Mutex
	datasets map[string][]byte
	fetches  int
	fetchErr error
}

func (s *fakeStore) Fetch(_ context.Context, key string) (*geo.FeatureCollection, error) {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	data, ok := s.datasets[key]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeDatasetNotFound, "dataset %q not found", key)
	}
	return storage.DecodeFeatureCollection(key, data)
}

func (s *fakeStore) Put(_ context.Context, key string, data []byte) error {
	s.datasets[key] = data
	return nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	delete(s.datasets, key)
	return nil
}

func (s *fakeStore) List(_ context.Context) ([]string, error) {
	keys := make([]string, 0, len(s.datasets))
	for k := range s.datasets {
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *fakeStore) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// memCache is an in-memory rediscache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}}
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	b, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return rediscache.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.data[key] = b
	c.mu.Unlock()
	return nil
}

func (c *memCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, k := range keys {
		delete(c.data, k)
	}
	c.mu.Unlock()
	return nil
}

func (c *memCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	_, ok := c.data[key]
	c.mu.Unlock()
	return ok, nil
}

func (c *memCache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error {
	if err := c.Get(ctx, key, dest); err == nil {
		return nil
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	if err := c.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	return c.Get(ctx, key, dest)
}

func (c *memCache) Ping(context.Context) error { return nil }

// fakePublisher records published envelopes.
type fakePublisher struct {
	mu        sync.Mutex
	published []publishedEvent
	err       error
}

type publishedEvent struct {
	topic string
	env   *kafka.EventEnvelope
}

func (p *fakePublisher) Publish(_ context.Context, topic string, env *kafka.EventEnvelope) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	p.published = append(p.published, publishedEvent{topic: topic, env: env})
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) events() []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedEvent(nil), p.published...)
}

func newTestMetrics(t *testing.T) *prometheus.AppMetrics {
	t.Helper()
	collector, err := prometheus.NewMetricsCollector(
		prometheus.CollectorConfig{Namespace: "geofusion_test"},
		logging.NewNopLogger(),
	)
	require.NoError(t, err)
	return prometheus.NewAppMetrics(collector)
}

const tractsGeoJSON = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]},
		 "properties": {"ID": "1", "NAME": "Downtown"}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [1, 1]},
		 "properties": {"ID": "2", "NAME": "Riverside"}}
	]
}`

const crimeGeoJSON = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]},
		 "properties": {"ID": "1", "RATE": 0.5}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [1, 1]},
		 "properties": {"ID": "2", "RATE": 0.9}}
	]
}`

const incomeGeoJSON = `{
	"type": "FeatureCollection",
	"features": [
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [0, 0]},
		 "properties": {"ID": "1", "MEDIAN": 52000}},
		{"type": "Feature", "geometry": {"type": "Point", "coordinates": [1, 1]},
		 "properties": {"ID": "2", "MEDIAN": 67000}}
	]
}`

// newFixture wires a Service over three catalogued layers with in-memory
// dependencies.
func newFixture(t *testing.T, cache rediscache.Cache) (*Service, *fakeRepo, *fakeStore) {
	t.Helper()

	repo := &fakeRepo{layers: map[string]*catalog.Layer{
		"tracts": {LayerID: "tracts", Relevance: 95, DatasetKey: "tracts.geojson"},
		"crime":  {LayerID: "crime", MetricField: "RATE", Relevance: 80, DatasetKey: "crime.geojson"},
		"income": {LayerID: "income", MetricField: "MEDIAN", Relevance: 70, DatasetKey: "income.geojson"},
	}}

	store := &fakeStore{datasets: map[string][]byte{
		"tracts.geojson": []byte(tractsGeoJSON),
		"crime.geojson":  []byte(crimeGeoJSON),
		"income.geojson": []byte(incomeGeoJSON),
	}}

	svc := NewService(repo, store, cache, newTestMetrics(t),
		config.FusionConfig{Parallelism: 1, CacheTTL: time.Minute},
		logging.NewNopLogger(),
	)
	return svc, repo, store
}

func fuseRequest() AnalysisRequest {
	return AnalysisRequest{
		LayerIDs:   []string{"tracts", "crime", "income"},
		QueryTerms: "crime and income by tract",
	}
}

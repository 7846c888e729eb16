package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/parcelview/geofusion/internal/application/analysis"
	"github.com/parcelview/geofusion/internal/domain/catalog"
	"github.com/parcelview/geofusion/internal/infrastructure/storage"
	"github.com/parcelview/geofusion/pkg/errors"
	"github.com/parcelview/geofusion/pkg/types/geo"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubRunner scripts the synchronous analysis surface.
type stubRunner struct {
	result *analysis.AnalysisResult
	err    error
	lastReq analysis.AnalysisRequest
}

func (s *stubRunner) Run(_ context.Context, req analysis.AnalysisRequest) (*analysis.AnalysisResult, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

// stubJobs scripts the async surface.
type stubJobs struct {
	jobID     string
	submitErr error
	result    *analysis.AnalysisResult
	resultErr error
}

func (s *stubJobs) Submit(context.Context, analysis.AnalysisRequest) (string, error) {
	return s.jobID, s.submitErr
}

func (s *stubJobs) Result(context.Context, string) (*analysis.AnalysisResult, error) {
	if s.resultErr != nil {
		return nil, s.resultErr
	}
	return s.result, nil
}

// stubRepo is an in-memory catalog.Repository.
type stubRepo struct {
	layers map[string]*catalog.Layer
	err    error
}

func (r *stubRepo) Create(_ context.Context, l *catalog.Layer) error {
	if r.err != nil {
		return r.err
	}
	if _, dup := r.layers[l.LayerID]; dup {
		return errors.Newf(errors.ErrCodeLayerAlreadyExists, "layer %q already exists", l.LayerID)
	}
	r.layers[l.LayerID] = l
	return nil
}

func (r *stubRepo) Update(_ context.Context, l *catalog.Layer) error {
	if _, ok := r.layers[l.LayerID]; !ok {
		return errors.Newf(errors.ErrCodeLayerNotFound, "layer %q not found", l.LayerID)
	}
	r.layers[l.LayerID] = l
	return nil
}

func (r *stubRepo) Delete(_ context.Context, layerID string) error {
	if _, ok := r.layers[layerID]; !ok {
		return errors.Newf(errors.ErrCodeLayerNotFound, "layer %q not found", layerID)
	}
	delete(r.layers, layerID)
	return nil
}

func (r *stubRepo) GetByLayerID(_ context.Context, layerID string) (*catalog.Layer, error) {
	l, ok := r.layers[layerID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeLayerNotFound, "layer %q not found", layerID)
	}
	return l, nil
}

func (r *stubRepo) List(context.Context) ([]*catalog.Layer, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]*catalog.Layer, 0, len(r.layers))
	for _, l := range r.layers {
		out = append(out, l)
	}
	return out, nil
}

// stubStore is an in-memory storage.DatasetStore.
type stubStore struct {
	objects map[string][]byte
	putErr  error
}

func (s *stubStore) Fetch(_ context.Context, key string) (*geo.FeatureCollection, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeDatasetNotFound, "dataset %q not found", key)
	}
	return storage.DecodeFeatureCollection(key, data)
}

func (s *stubStore) Put(_ context.Context, key string, data []byte) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.objects[key] = data
	return nil
}

func (s *stubStore) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

func (s *stubStore) List(context.Context) ([]string, error) {
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	return keys, nil
}

// doJSON performs one request against the handler and decodes the response.
func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func doRaw(t *testing.T, router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelview/geofusion/internal/domain/catalog"
)

const validDataset = `{"type": "FeatureCollection", "features": []}`

func layerRouter(repo *stubRepo, store *stubStore, invalidated *[]string) *gin.Engine {
	invalidate := func(key string) {
		if invalidated != nil {
			*invalidated = append(*invalidated, key)
		}
	}
	h := NewLayerHandler(repo, store, invalidate)
	router := gin.New()
	router.GET("/api/v1/layers", h.List)
	router.POST("/api/v1/layers", h.Create)
	router.GET("/api/v1/layers/:id", h.Get)
	router.PUT("/api/v1/layers/:id", h.Update)
	router.DELETE("/api/v1/layers/:id", h.Delete)
	router.PUT("/api/v1/layers/:id/dataset", h.UploadDataset)
	return router
}

func catalogFixture() *stubRepo {
	return &stubRepo{layers: map[string]*catalog.Layer{
		"crime": {LayerID: "crime", Title: "Crime incidents", MetricField: "RATE", Relevance: 80, DatasetKey: "crime.geojson"},
	}}
}

func TestLayerList(t *testing.T) {
	router := layerRouter(catalogFixture(), &stubStore{objects: map[string][]byte{}}, nil)

	rec, body := doJSON(t, router, http.MethodGet, "/api/v1/layers", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["total"])
}

func TestLayerGet(t *testing.T) {
	router := layerRouter(catalogFixture(), &stubStore{objects: map[string][]byte{}}, nil)

	rec, body := doJSON(t, router, http.MethodGet, "/api/v1/layers/crime", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "crime", body["layer_id"])

	rec, _ = doJSON(t, router, http.MethodGet, "/api/v1/layers/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLayerCreate(t *testing.T) {
	repo := catalogFixture()
	router := layerRouter(repo, &stubStore{objects: map[string][]byte{}}, nil)

	rec, body := doJSON(t, router, http.MethodPost, "/api/v1/layers", catalog.Layer{
		LayerID:     "income",
		MetricField: "MEDIAN",
		Relevance:   70,
		DatasetKey:  "income.geojson",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "income", body["layer_id"])
	assert.Contains(t, repo.layers, "income")
}

func TestLayerCreateDuplicate(t *testing.T) {
	router := layerRouter(catalogFixture(), &stubStore{objects: map[string][]byte{}}, nil)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/layers", catalog.Layer{
		LayerID:    "crime",
		DatasetKey: "crime.geojson",
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLayerUpdateInvalidates(t *testing.T) {
	var invalidated []string
	router := layerRouter(catalogFixture(), &stubStore{objects: map[string][]byte{}}, &invalidated)

	rec, _ := doJSON(t, router, http.MethodPut, "/api/v1/layers/crime", catalog.Layer{
		Title:      "Crime incidents 2026",
		Relevance:  85,
		DatasetKey: "crime.geojson",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"crime.geojson"}, invalidated)
}

func TestLayerDelete(t *testing.T) {
	repo := catalogFixture()
	var invalidated []string
	router := layerRouter(repo, &stubStore{objects: map[string][]byte{}}, &invalidated)

	rec, _ := doJSON(t, router, http.MethodDelete, "/api/v1/layers/crime", nil)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.NotContains(t, repo.layers, "crime")
	assert.Equal(t, []string{"crime.geojson"}, invalidated)
}

func TestUploadDataset(t *testing.T) {
	store := &stubStore{objects: map[string][]byte{}}
	var invalidated []string
	router := layerRouter(catalogFixture(), store, &invalidated)

	rec := doRaw(t, router, http.MethodPut, "/api/v1/layers/crime/dataset", []byte(validDataset))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []byte(validDataset), store.objects["crime.geojson"])
	assert.Equal(t, []string{"crime.geojson"}, invalidated)
}

func TestUploadDatasetRejectsInvalidGeoJSON(t *testing.T) {
	store := &stubStore{objects: map[string][]byte{}}
	router := layerRouter(catalogFixture(), store, nil)

	rec := doRaw(t, router, http.MethodPut, "/api/v1/layers/crime/dataset", []byte("not geojson"))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, store.objects)
}

func TestUploadDatasetUnknownLayer(t *testing.T) {
	router := layerRouter(catalogFixture(), &stubStore{objects: map[string][]byte{}}, nil)

	rec := doRaw(t, router, http.MethodPut, "/api/v1/layers/ghost/dataset", []byte(validDataset))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

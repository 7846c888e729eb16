package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parcelview/geofusion/internal/domain/catalog"
	"github.com/parcelview/geofusion/internal/infrastructure/storage"
	"github.com/parcelview/geofusion/pkg/errors"
)

// maxDatasetBytes caps uploaded GeoJSON documents at 64 MiB.
const maxDatasetBytes = 64 << 20

// LayerHandler serves the layer catalog CRUD plus dataset upload.
type LayerHandler struct {
	repo       catalog.Repository
	store      storage.DatasetStore
	invalidate func(datasetKey string)
}

// NewLayerHandler wires a LayerHandler.  invalidate may be nil.
func NewLayerHandler(repo catalog.Repository, store storage.DatasetStore, invalidate func(datasetKey string)) *LayerHandler {
	if invalidate == nil {
		invalidate = func(string) {}
	}
	return &LayerHandler{repo: repo, store: store, invalidate: invalidate}
}

// List handles GET /api/v1/layers.
func (h *LayerHandler) List(c *gin.Context) {
	layers, err := h.repo.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if layers == nil {
		layers = []*catalog.Layer{}
	}
	c.JSON(http.StatusOK, gin.H{"layers": layers, "total": len(layers)})
}

// Get handles GET /api/v1/layers/:id.
func (h *LayerHandler) Get(c *gin.Context) {
	layer, err := h.repo.GetByLayerID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, layer)
}

// Create handles POST /api/v1/layers.
func (h *LayerHandler) Create(c *gin.Context) {
	var layer catalog.Layer
	if !bindJSON(c, &layer) {
		return
	}
	if err := h.repo.Create(c.Request.Context(), &layer); err != nil {
		respondError(c, err)
		return
	}
	respondCreated(c, layer)
}

// Update handles PUT /api/v1/layers/:id.  The path id wins over any id in
// the body.
func (h *LayerHandler) Update(c *gin.Context) {
	var layer catalog.Layer
	if !bindJSON(c, &layer) {
		return
	}
	layer.LayerID = c.Param("id")

	if err := h.repo.Update(c.Request.Context(), &layer); err != nil {
		respondError(c, err)
		return
	}
	h.invalidate(layer.DatasetKey)
	c.JSON(http.StatusOK, layer)
}

// Delete handles DELETE /api/v1/layers/:id.  The catalog entry goes away;
// the stored dataset stays so other layers can share it.
func (h *LayerHandler) Delete(c *gin.Context) {
	layerID := c.Param("id")
	layer, err := h.repo.GetByLayerID(c.Request.Context(), layerID)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.repo.Delete(c.Request.Context(), layerID); err != nil {
		respondError(c, err)
		return
	}
	h.invalidate(layer.DatasetKey)
	c.Status(http.StatusNoContent)
}

// UploadDataset handles PUT /api/v1/layers/:id/dataset.  The body is the
// layer's full GeoJSON document; it is validated before it replaces the
// stored one.
func (h *LayerHandler) UploadDataset(c *gin.Context) {
	layer, err := h.repo.GetByLayerID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDatasetBytes+1))
	if err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read request body"))
		return
	}
	if len(data) > maxDatasetBytes {
		respondError(c, errors.New(errors.ErrCodeValidation, "dataset exceeds the size limit"))
		return
	}
	if _, err := storage.DecodeFeatureCollection(layer.DatasetKey, data); err != nil {
		respondError(c, errors.Wrap(err, errors.ErrCodeValidation, "body is not a GeoJSON feature collection"))
		return
	}

	if err := h.store.Put(c.Request.Context(), layer.DatasetKey, data); err != nil {
		respondError(c, err)
		return
	}
	h.invalidate(layer.DatasetKey)
	c.JSON(http.StatusOK, gin.H{"dataset_key": layer.DatasetKey, "bytes": len(data)})
}

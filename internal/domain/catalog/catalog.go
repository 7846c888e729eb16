// Package catalog defines the persistent registry of known geographic
// layers: their identity, fusion configuration, and where the backing
// GeoJSON dataset lives.
package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/parcelview/geofusion/internal/domain/feature"
	"github.com/parcelview/geofusion/pkg/errors"
)

// Layer is one catalog entry.  LayerID is the stable, human-assigned key
// referenced by analysis requests; ID is the surrogate row identity.
type Layer struct {
	ID            uuid.UUID `json:"id"`
	LayerID       string    `json:"layer_id"`
	Title         string    `json:"title"`
	MetricField   string    `json:"metric_field"`
	RendererField string    `json:"renderer_field"`
	JoinKeys      []string  `json:"join_keys"`
	Relevance     float64   `json:"relevance"`

	// DatasetKey locates the layer's GeoJSON in the dataset store: an
	// object key for the minio backend, a file name for the local one.
	DatasetKey string `json:"dataset_key"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Config projects the catalog entry into the fusion engine's layer config.
func (l *Layer) Config() feature.LayerConfig {
	return feature.LayerConfig{
		LayerID:       l.LayerID,
		Title:         l.Title,
		MetricField:   l.MetricField,
		RendererField: l.RendererField,
		JoinKeys:      l.JoinKeys,
		Relevance:     l.Relevance,
	}
}

// Validate checks the entry before persistence.
func (l *Layer) Validate() error {
	if l.LayerID == "" {
		return errors.New(errors.ErrCodeValidation, "layer_id is required")
	}
	if l.DatasetKey == "" {
		return errors.New(errors.ErrCodeValidation, "dataset_key is required")
	}
	if l.Relevance < 0 || l.Relevance > 100 {
		return errors.Newf(errors.ErrCodeValidation, "relevance %v is out of range [0, 100]", l.Relevance)
	}
	cfg := l.Config()
	return cfg.Validate()
}

// Repository is the persistence port for the layer catalog.
type Repository interface {
	Create(ctx context.Context, layer *Layer) error
	Update(ctx context.Context, layer *Layer) error
	Delete(ctx context.Context, layerID string) error
	GetByLayerID(ctx context.Context, layerID string) (*Layer, error)
	List(ctx context.Context) ([]*Layer, error)
}

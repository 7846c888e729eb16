// Package storage defines the dataset store port: where layer GeoJSON
// documents live.  Implementations back it with MinIO object storage or a
// watched local directory.
package storage

import (
	"context"
	"encoding/json"

	"github.com/parcelview/geofusion/pkg/errors"
	"github.com/parcelview/geofusion/pkg/types/geo"
)

// DatasetStore fetches and stores layer GeoJSON documents by key.
type DatasetStore interface {
	// Fetch reads the GeoJSON document stored under key.
	Fetch(ctx context.Context, key string) (*geo.FeatureCollection, error)

	// Put stores a GeoJSON document under key, replacing any existing one.
	Put(ctx context.Context, key string, data []byte) error

	// Delete removes the document under key.  Deleting a missing key is
	// not an error.
	Delete(ctx context.Context, key string) error

	// List enumerates the keys of all stored documents.
	List(ctx context.Context) ([]string, error)
}

// DecodeFeatureCollection parses raw GeoJSON bytes into a feature
// collection, mapping malformed documents to ErrCodeDatasetParseFailed.
func DecodeFeatureCollection(key string, data []byte) (*geo.FeatureCollection, error) {
	var fc geo.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatasetParseFailed,
			"dataset "+key+" is not valid GeoJSON")
	}
	return &fc, nil
}

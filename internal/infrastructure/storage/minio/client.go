// Package minio implements the dataset store on MinIO / S3-compatible
// object storage.
package minio

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/parcelview/geofusion/internal/config"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/internal/infrastructure/storage"
	"github.com/parcelview/geofusion/pkg/errors"
	"github.com/parcelview/geofusion/pkg/types/geo"
)

const geojsonContentType = "application/geo+json"

// objectAPI is the subset of the minio client the store uses; narrowed for
// testability.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	GetObject(ctx context.Context, bucket, object string, opts minio.GetObjectOptions) (*minio.Object, error)
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// Store is a DatasetStore backed by one MinIO bucket.
type Store struct {
	api    objectAPI
	bucket string
	logger logging.Logger
}

var _ storage.DatasetStore = (*Store)(nil)

// NewStore connects to MinIO and ensures the configured bucket exists.
func NewStore(cfg config.MinIOConfig, log logging.Logger) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create minio client")
	}

	s := &Store{api: client, bucket: cfg.Bucket, logger: log}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	log.Info("minio dataset store ready",
		logging.String("endpoint", cfg.Endpoint),
		logging.String("bucket", cfg.Bucket),
	)
	return s, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceUnavailable, "failed to reach minio")
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceUnavailable, "failed to create bucket")
	}
	s.logger.Info("created dataset bucket", logging.String("bucket", s.bucket))
	return nil
}

// Fetch reads and decodes the GeoJSON object under key.
func (s *Store) Fetch(ctx context.Context, key string) (*geo.FeatureCollection, error) {
	obj, err := s.api.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceUnavailable, "failed to open dataset object")
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, errors.Newf(errors.ErrCodeDatasetNotFound, "dataset %q not found", key)
		}
		return nil, errors.Wrap(err, errors.ErrCodeSourceUnavailable, "failed to read dataset object")
	}
	return storage.DecodeFeatureCollection(key, data)
}

// Put stores data as a GeoJSON object under key.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.api.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: geojsonContentType})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceUnavailable, "failed to store dataset object")
	}
	return nil
}

// Delete removes the object under key; missing keys are ignored.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.api.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceUnavailable, "failed to remove dataset object")
	}
	return nil
}

// List enumerates all object keys in the bucket.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var keys []string
	for info := range s.api.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if info.Err != nil {
			return nil, errors.Wrap(info.Err, errors.ErrCodeSourceUnavailable, "failed to list dataset objects")
		}
		keys = append(keys, info.Key)
	}
	return keys, nil
}

// isNoSuchKey detects minio's missing-object error.  minio surfaces it on
// first read, not on GetObject.
func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" {
		return true
	}
	return strings.Contains(err.Error(), "does not exist")
}

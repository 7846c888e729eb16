// Package localfs implements the dataset store on a local directory of
// GeoJSON files, with optional fsnotify-based change notification.  It is
// the development backend; production deployments use object storage.
package localfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/internal/infrastructure/storage"
	"github.com/parcelview/geofusion/pkg/errors"
	"github.com/parcelview/geofusion/pkg/types/geo"
)

const geojsonExt = ".geojson"

// Store is a DatasetStore over a flat directory of .geojson files.  Keys are
// file names relative to the directory.
type Store struct {
	dir    string
	logger logging.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	onChange func(key string)
	done     chan struct{}
}

var _ storage.DatasetStore = (*Store)(nil)

// NewStore opens dir as a dataset store, creating it if needed.
func NewStore(dir string, log logging.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceUnavailable, "failed to create dataset directory")
	}
	return &Store{dir: dir, logger: log}, nil
}

// keyPath validates key and resolves it inside the store directory.
func (s *Store) keyPath(key string) (string, error) {
	if key == "" || strings.Contains(key, "..") || filepath.IsAbs(key) {
		return "", errors.Newf(errors.ErrCodeValidation, "invalid dataset key %q", key)
	}
	return filepath.Join(s.dir, key), nil
}

// Fetch reads and decodes the GeoJSON file under key.
func (s *Store) Fetch(ctx context.Context, key string) (*geo.FeatureCollection, error) {
	path, err := s.keyPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, errors.Newf(errors.ErrCodeDatasetNotFound, "dataset %q not found", key)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceUnavailable, "failed to read dataset file")
	}
	return storage.DecodeFeatureCollection(key, data)
}

// Put writes data to the file under key, creating parent directories as
// needed.
func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceUnavailable, "failed to create dataset directory")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.ErrCodeSourceUnavailable, "failed to write dataset file")
	}
	return nil
}

// Delete removes the file under key; a missing file is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrCodeSourceUnavailable, "failed to remove dataset file")
	}
	return nil
}

// List enumerates the keys of all .geojson files under the directory.
func (s *Store) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), geojsonExt) {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSourceUnavailable, "failed to list dataset files")
	}
	return keys, nil
}

// Watch starts watching the directory and invokes onChange with the key of
// every created, modified, or removed .geojson file.  Intended for cache
// invalidation during development.  Calling Watch twice replaces the
// callback but not the watcher.
func (s *Store) Watch(onChange func(key string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onChange = onChange
	if s.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create file watcher")
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return errors.Wrap(err, errors.ErrCodeSourceUnavailable, "failed to watch dataset directory")
	}

	s.watcher = watcher
	s.done = make(chan struct{})
	go s.watchLoop(watcher, s.done)

	s.logger.Info("watching dataset directory", logging.String("dir", s.dir))
	return nil
}

func (s *Store) watchLoop(watcher *fsnotify.Watcher, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, geojsonExt) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, err := filepath.Rel(s.dir, event.Name)
			if err != nil {
				continue
			}
			key := filepath.ToSlash(rel)
			s.logger.Debug("dataset file changed",
				logging.String("key", key),
				logging.String("op", event.Op.String()),
			)
			s.mu.Lock()
			cb := s.onChange
			s.mu.Unlock()
			if cb != nil {
				cb(key)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("dataset watcher error", logging.Err(err))
		}
	}
}

// Close stops the watcher, if running.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	err := s.watcher.Close()
	s.watcher = nil
	return err
}

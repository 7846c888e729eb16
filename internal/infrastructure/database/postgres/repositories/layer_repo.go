// Package repositories provides PostgreSQL-backed implementations of the
// domain repository interfaces.
package repositories

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parcelview/geofusion/internal/domain/catalog"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/pkg/errors"
)

// uniqueViolation is the postgres error code for duplicate keys.
const uniqueViolation = "23505"

// LayerRepository persists catalog.Layer entries in the layers table.
type LayerRepository struct {
	pool   *pgxpool.Pool
	logger logging.Logger
	now    func() time.Time
}

var _ catalog.Repository = (*LayerRepository)(nil)

// NewLayerRepository constructs a ready-to-use LayerRepository.
func NewLayerRepository(pool *pgxpool.Pool, log logging.Logger) *LayerRepository {
	return &LayerRepository{pool: pool, logger: log, now: time.Now}
}

const layerColumns = `id, layer_id, title, metric_field, renderer_field, join_keys, relevance, dataset_key, created_at, updated_at`

// Create inserts a new catalog entry.  A duplicate layer_id maps to
// ErrCodeLayerAlreadyExists.
func (r *LayerRepository) Create(ctx context.Context, layer *catalog.Layer) error {
	if err := layer.Validate(); err != nil {
		return err
	}
	if layer.ID == uuid.Nil {
		layer.ID = uuid.New()
	}
	now := r.now().UTC()
	layer.CreatedAt = now
	layer.UpdatedAt = now

	_, err := r.pool.Exec(ctx, `
		INSERT INTO layers (`+layerColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		layer.ID, layer.LayerID, layer.Title, layer.MetricField, layer.RendererField,
		layer.JoinKeys, layer.Relevance, layer.DatasetKey, layer.CreatedAt, layer.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Newf(errors.ErrCodeLayerAlreadyExists, "layer %q already exists", layer.LayerID)
		}
		r.logger.Error("layer insert failed", logging.String("layer_id", layer.LayerID), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert layer")
	}
	return nil
}

// Update rewrites an existing entry identified by layer_id.
func (r *LayerRepository) Update(ctx context.Context, layer *catalog.Layer) error {
	if err := layer.Validate(); err != nil {
		return err
	}
	layer.UpdatedAt = r.now().UTC()

	tag, err := r.pool.Exec(ctx, `
		UPDATE layers
		SET title = $2, metric_field = $3, renderer_field = $4, join_keys = $5,
		    relevance = $6, dataset_key = $7, updated_at = $8
		WHERE layer_id = $1`,
		layer.LayerID, layer.Title, layer.MetricField, layer.RendererField,
		layer.JoinKeys, layer.Relevance, layer.DatasetKey, layer.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("layer update failed", logging.String("layer_id", layer.LayerID), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update layer")
	}
	if tag.RowsAffected() == 0 {
		return errors.Newf(errors.ErrCodeLayerNotFound, "layer %q not found", layer.LayerID)
	}
	return nil
}

// Delete removes an entry by layer_id.
func (r *LayerRepository) Delete(ctx context.Context, layerID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM layers WHERE layer_id = $1`, layerID)
	if err != nil {
		r.logger.Error("layer delete failed", logging.String("layer_id", layerID), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete layer")
	}
	if tag.RowsAffected() == 0 {
		return errors.Newf(errors.ErrCodeLayerNotFound, "layer %q not found", layerID)
	}
	return nil
}

// GetByLayerID fetches one entry by its stable key.
func (r *LayerRepository) GetByLayerID(ctx context.Context, layerID string) (*catalog.Layer, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+layerColumns+`
		FROM layers WHERE layer_id = $1`, layerID)

	layer, err := scanLayer(row)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Newf(errors.ErrCodeLayerNotFound, "layer %q not found", layerID)
	}
	if err != nil {
		r.logger.Error("layer query failed", logging.String("layer_id", layerID), logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query layer")
	}
	return layer, nil
}

// List returns all entries ordered by descending relevance, then layer_id
// for a stable order among equals.
func (r *LayerRepository) List(ctx context.Context) ([]*catalog.Layer, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+layerColumns+`
		FROM layers ORDER BY relevance DESC, layer_id`)
	if err != nil {
		r.logger.Error("layer list failed", logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list layers")
	}
	defer rows.Close()

	var layers []*catalog.Layer
	for rows.Next() {
		layer, err := scanLayer(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan layer row")
		}
		layers = append(layers, layer)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate layer rows")
	}
	return layers, nil
}

func scanLayer(row pgx.Row) (*catalog.Layer, error) {
	var l catalog.Layer
	err := row.Scan(
		&l.ID, &l.LayerID, &l.Title, &l.MetricField, &l.RendererField,
		&l.JoinKeys, &l.Relevance, &l.DatasetKey, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

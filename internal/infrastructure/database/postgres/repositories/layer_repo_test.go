package repositories

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelview/geofusion/internal/domain/catalog"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/pkg/errors"
)

// testPool connects to the database named by TEST_DATABASE_URL and applies
// the layers schema.  Tests are skipped when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS layers (
			id             UUID PRIMARY KEY,
			layer_id       TEXT NOT NULL UNIQUE,
			title          TEXT NOT NULL DEFAULT '',
			metric_field   TEXT NOT NULL DEFAULT '',
			renderer_field TEXT NOT NULL DEFAULT '',
			join_keys      TEXT[] NOT NULL DEFAULT '{}',
			relevance      DOUBLE PRECISION NOT NULL DEFAULT 0,
			dataset_key    TEXT NOT NULL,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	require.NoError(t, err)

	_, err = pool.Exec(context.Background(), `TRUNCATE layers`)
	require.NoError(t, err)

	return pool
}

func sampleLayer(layerID string) *catalog.Layer {
	return &catalog.Layer{
		LayerID:     layerID,
		Title:       "Sample layer",
		MetricField: "RATE",
		JoinKeys:    []string{"ID", "NAME"},
		Relevance:   75,
		DatasetKey:  "layers/" + layerID + ".geojson",
	}
}

func TestLayerRepositoryCRUD(t *testing.T) {
	pool := testPool(t)
	repo := NewLayerRepository(pool, logging.NewNopLogger())
	ctx := context.Background()

	layer := sampleLayer("crime")
	require.NoError(t, repo.Create(ctx, layer))
	assert.NotZero(t, layer.ID)

	got, err := repo.GetByLayerID(ctx, "crime")
	require.NoError(t, err)
	assert.Equal(t, layer.LayerID, got.LayerID)
	assert.Equal(t, layer.JoinKeys, got.JoinKeys)
	assert.Equal(t, layer.Relevance, got.Relevance)

	got.Title = "Crime incidents"
	got.Relevance = 90
	require.NoError(t, repo.Update(ctx, got))

	updated, err := repo.GetByLayerID(ctx, "crime")
	require.NoError(t, err)
	assert.Equal(t, "Crime incidents", updated.Title)
	assert.Equal(t, 90.0, updated.Relevance)

	require.NoError(t, repo.Delete(ctx, "crime"))
	_, err = repo.GetByLayerID(ctx, "crime")
	assert.True(t, errors.IsCode(err, errors.ErrCodeLayerNotFound))
}

func TestLayerRepositoryDuplicateCreate(t *testing.T) {
	pool := testPool(t)
	repo := NewLayerRepository(pool, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleLayer("income")))
	err := repo.Create(ctx, sampleLayer("income"))

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeLayerAlreadyExists))
}

func TestLayerRepositoryListOrdering(t *testing.T) {
	pool := testPool(t)
	repo := NewLayerRepository(pool, logging.NewNopLogger())
	ctx := context.Background()

	low := sampleLayer("low")
	low.Relevance = 10
	high := sampleLayer("high")
	high.Relevance = 95
	require.NoError(t, repo.Create(ctx, low))
	require.NoError(t, repo.Create(ctx, high))

	layers, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, "high", layers[0].LayerID)
	assert.Equal(t, "low", layers[1].LayerID)
}

func TestLayerRepositoryUpdateMissing(t *testing.T) {
	pool := testPool(t)
	repo := NewLayerRepository(pool, logging.NewNopLogger())

	err := repo.Update(context.Background(), sampleLayer("ghost"))

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeLayerNotFound))
}

func TestLayerRepositoryCreateInvalid(t *testing.T) {
	pool := testPool(t)
	repo := NewLayerRepository(pool, logging.NewNopLogger())

	bad := sampleLayer("bad")
	bad.DatasetKey = ""
	err := repo.Create(context.Background(), bad)

	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

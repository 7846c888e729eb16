package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelview/geofusion/internal/infrastructure/messaging/kafka"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/pkg/errors"
)

func newJobFixture(t *testing.T) (*JobService, *fakePublisher, *fakeStore, *fakeRepo) {
	t.Helper()
	cache := newMemCache()
	svc, repo, store := newFixture(t, cache)
	producer := &fakePublisher{}
	jobs := NewJobService(svc, producer, cache, newTestMetrics(t), time.Hour, logging.NewNopLogger())
	return jobs, producer, store, repo
}

func submittedJob(t *testing.T, jobID string) *kafka.EventEnvelope {
	t.Helper()
	env, err := kafka.NewEventEnvelope(kafka.EventJobSubmitted, "test", kafka.JobSubmittedPayload{
		JobID:      jobID,
		LayerIDs:   []string{"tracts", "crime", "income"},
		QueryTerms: []string{"crime", "and", "income", "by", "tract"},
	})
	require.NoError(t, err)
	return env
}

func TestJobSubmit(t *testing.T) {
	jobs, producer, _, _ := newJobFixture(t)

	jobID, err := jobs.Submit(context.Background(), fuseRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	events := producer.events()
	require.Len(t, events, 1)
	assert.Equal(t, kafka.TopicAnalysisJobs, events[0].topic)
	assert.Equal(t, kafka.EventJobSubmitted, events[0].env.EventType)

	var payload kafka.JobSubmittedPayload
	require.NoError(t, events[0].env.DecodePayload(&payload))
	assert.Equal(t, jobID, payload.JobID)
	assert.Equal(t, []string{"tracts", "crime", "income"}, payload.LayerIDs)
	assert.Equal(t, []string{"crime", "and", "income", "by", "tract"}, payload.QueryTerms)
}

func TestJobSubmitInvalidRequest(t *testing.T) {
	jobs, producer, _, _ := newJobFixture(t)

	_, err := jobs.Submit(context.Background(), AnalysisRequest{})

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFusionNoPrimaryLayer))
	assert.Empty(t, producer.events())
}

func TestJobHandleCompletes(t *testing.T) {
	jobs, producer, _, _ := newJobFixture(t)
	ctx := context.Background()

	require.NoError(t, jobs.HandleJob(ctx, submittedJob(t, "job-42")))

	events := producer.events()
	require.Len(t, events, 1)
	assert.Equal(t, kafka.TopicAnalysisResults, events[0].topic)
	assert.Equal(t, kafka.EventJobCompleted, events[0].env.EventType)

	var payload kafka.JobCompletedPayload
	require.NoError(t, events[0].env.DecodePayload(&payload))
	assert.Equal(t, "job-42", payload.JobID)
	assert.Equal(t, 2, payload.Features)
	assert.Equal(t, 4, payload.Merged)

	result, err := jobs.Result(ctx, "job-42")
	require.NoError(t, err)
	assert.True(t, result.MultiLayer)
	require.Len(t, result.Features, 2)
	assert.Equal(t, 0.5, result.Features[0].Attributes["RATE_crime"])
}

func TestJobHandleClientErrorIsTerminal(t *testing.T) {
	jobs, producer, _, repo := newJobFixture(t)
	delete(repo.layers, "crime")

	err := jobs.HandleJob(context.Background(), submittedJob(t, "job-bad"))
	require.NoError(t, err, "client-side failures must not trigger a retry")

	events := producer.events()
	require.Len(t, events, 1)
	assert.Equal(t, kafka.EventJobFailed, events[0].env.EventType)

	var payload kafka.JobFailedPayload
	require.NoError(t, events[0].env.DecodePayload(&payload))
	assert.Equal(t, "job-bad", payload.JobID)
	assert.Equal(t, errors.ErrCodeLayerNotFound.String(), payload.ErrorCode)
}

func TestJobHandleInfraErrorPropagates(t *testing.T) {
	jobs, _, store, _ := newJobFixture(t)
	store.fetchErr = errors.New(errors.ErrCodeSourceUnavailable, "store down")

	err := jobs.HandleJob(context.Background(), submittedJob(t, "job-infra"))

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeSourceUnavailable))
}

func TestJobHandleMissingJobID(t *testing.T) {
	jobs, _, _, _ := newJobFixture(t)

	err := jobs.HandleJob(context.Background(), submittedJob(t, ""))

	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeFusionJobInvalid))
}

func TestJobResultMissing(t *testing.T) {
	jobs, _, _, _ := newJobFixture(t)

	_, err := jobs.Result(context.Background(), "never-ran")

	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

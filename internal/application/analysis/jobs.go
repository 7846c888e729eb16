package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	rediscache "github.com/parcelview/geofusion/internal/infrastructure/database/redis"
	"github.com/parcelview/geofusion/internal/infrastructure/messaging/kafka"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/prometheus"
	"github.com/parcelview/geofusion/pkg/errors"
)

const (
	resultCachePrefix = "result:"
	jobSource         = "geofusion"
)

// publisher is the slice of kafka.Producer the job service needs.
type publisher interface {
	Publish(ctx context.Context, topic string, env *kafka.EventEnvelope) error
}

// JobService runs analysis requests asynchronously: Submit publishes a job,
// HandleJob is the worker-side processor, Result reads a finished run back
// out of the cache.
type JobService struct {
	service  *Service
	producer publisher
	cache    rediscache.Cache
	metrics  *prometheus.AppMetrics
	logger   logging.Logger

	resultTTL time.Duration
	now       func() time.Time
}

// NewJobService wires a JobService.
func NewJobService(
	service *Service,
	producer publisher,
	cache rediscache.Cache,
	metrics *prometheus.AppMetrics,
	resultTTL time.Duration,
	log logging.Logger,
) *JobService {
	if resultTTL <= 0 {
		resultTTL = time.Hour
	}
	return &JobService{
		service:   service,
		producer:  producer,
		cache:     cache,
		metrics:   metrics,
		logger:    log,
		resultTTL: resultTTL,
		now:       time.Now,
	}
}

// Submit validates the request and queues it, returning the job id the
// caller polls with.
func (j *JobService) Submit(ctx context.Context, req AnalysisRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	jobID := uuid.New().String()
	env, err := kafka.NewEventEnvelope(kafka.EventJobSubmitted, jobSource, kafka.JobSubmittedPayload{
		JobID:          jobID,
		LayerIDs:       req.LayerIDs,
		QueryTerms:     splitTerms(req.QueryTerms),
		RequiredFields: req.RequiredFields,
		Metrics:        req.Metrics,
		SubmittedAt:    j.now().UTC(),
	})
	if err != nil {
		return "", err
	}
	if err := j.producer.Publish(ctx, kafka.TopicAnalysisJobs, env); err != nil {
		return "", err
	}

	j.logger.Info("analysis job submitted",
		logging.String("job_id", jobID),
		logging.Int("layers", len(req.LayerIDs)),
	)
	return jobID, nil
}

// HandleJob is the worker-side consumer handler for the jobs topic.
//
// Requests that fail for a client-side reason (unknown layer, invalid
// request) are terminal: a failure event is published and nil is returned so
// the consumer does not retry them.  Infrastructure failures propagate and
// go through the consumer's retry and dead letter path.
func (j *JobService) HandleJob(ctx context.Context, env *kafka.EventEnvelope) error {
	var payload kafka.JobSubmittedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.JobID == "" {
		return errors.New(errors.ErrCodeFusionJobInvalid, "job id is required")
	}

	req := AnalysisRequest{
		LayerIDs:       payload.LayerIDs,
		QueryTerms:     joinTerms(payload.QueryTerms),
		RequiredFields: payload.RequiredFields,
		Metrics:        payload.Metrics,
	}

	start := j.now()
	result, err := j.service.Run(ctx, req)
	prometheus.RecordJob(j.metrics, kafka.TopicAnalysisJobs, err == nil, time.Since(start))
	if err != nil {
		if errors.IsClientError(errors.GetCode(err)) {
			j.publishFailed(ctx, payload.JobID, err)
			return nil
		}
		return err
	}

	resultKey := resultCachePrefix + payload.JobID
	if j.cache != nil {
		if err := j.cache.Set(ctx, resultKey, result, j.resultTTL); err != nil {
			return err
		}
	}

	j.publishCompleted(ctx, payload.JobID, resultKey, result)
	return nil
}

// Result fetches a finished run by job id.  A missing key means the job is
// still pending or has expired.
func (j *JobService) Result(ctx context.Context, jobID string) (*AnalysisResult, error) {
	if j.cache == nil {
		return nil, errors.New(errors.ErrCodeServiceUnavailable, "job results require a cache")
	}
	var result AnalysisResult
	if err := j.cache.Get(ctx, resultCachePrefix+jobID, &result); err != nil {
		if errors.IsNotFound(err) {
			return nil, errors.Newf(errors.ErrCodeNotFound, "no result for job %q", jobID)
		}
		return nil, err
	}
	return &result, nil
}

func splitTerms(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

func joinTerms(terms []string) string {
	return strings.Join(terms, " ")
}

func (j *JobService) publishCompleted(ctx context.Context, jobID, resultKey string, result *AnalysisResult) {
	matched, unmatched := 0, 0
	if result.Stats != nil {
		for _, ls := range result.Stats.Layers {
			matched += ls.Matched
			unmatched += ls.Unmatched
		}
	}
	env, err := kafka.NewEventEnvelope(kafka.EventJobCompleted, jobSource, kafka.JobCompletedPayload{
		JobID:       jobID,
		ResultKey:   resultKey,
		Features:    len(result.Features),
		Merged:      matched,
		Unmatched:   unmatched,
		CompletedAt: j.now().UTC(),
	})
	if err == nil {
		err = j.producer.Publish(ctx, kafka.TopicAnalysisResults, env)
	}
	if err != nil {
		// The result is already cached; losing the event only delays
		// observers until they poll.
		j.logger.Warn("completion event not published",
			logging.String("job_id", jobID),
			logging.Err(err),
		)
	}
}

func (j *JobService) publishFailed(ctx context.Context, jobID string, cause error) {
	env, err := kafka.NewEventEnvelope(kafka.EventJobFailed, jobSource, kafka.JobFailedPayload{
		JobID:     jobID,
		ErrorCode: errors.GetCode(cause).String(),
		Message:   cause.Error(),
		FailedAt:  j.now().UTC(),
	})
	if err == nil {
		err = j.producer.Publish(ctx, kafka.TopicAnalysisResults, env)
	}
	if err != nil {
		j.logger.Error("failure event not published",
			logging.String("job_id", jobID),
			logging.Err(err),
		)
	}
}

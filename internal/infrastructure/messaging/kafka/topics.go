// Package kafka carries fusion analysis jobs between the API server and the
// worker pool.
package kafka

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/parcelview/geofusion/pkg/errors"
)

// Topics.
const (
	TopicAnalysisJobs    = "geofusion.analysis.jobs"
	TopicAnalysisResults = "geofusion.analysis.results"
	TopicDeadLetter      = "geofusion.analysis.deadletter"
)

// Event types carried on the topics above.
const (
	EventJobSubmitted = "analysis.job.submitted"
	EventJobCompleted = "analysis.job.completed"
	EventJobFailed    = "analysis.job.failed"
)

// EventEnvelope is the wire format shared by all topics.
type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	SchemaVersion string          `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// JobSubmittedPayload describes a fusion run requested through the async API.
type JobSubmittedPayload struct {
	JobID          string    `json:"job_id"`
	LayerIDs       []string  `json:"layer_ids"`
	QueryTerms     []string  `json:"query_terms,omitempty"`
	RequiredFields []string  `json:"required_fields,omitempty"`
	Metrics        []string  `json:"metrics,omitempty"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// JobCompletedPayload summarizes a finished run.  The merged features
// themselves stay in the cache under ResultKey.
type JobCompletedPayload struct {
	JobID       string    `json:"job_id"`
	ResultKey   string    `json:"result_key"`
	Features    int       `json:"features"`
	Merged      int       `json:"merged"`
	Unmatched   int       `json:"unmatched"`
	CompletedAt time.Time `json:"completed_at"`
}

// JobFailedPayload records why a run could not complete.
type JobFailedPayload struct {
	JobID     string    `json:"job_id"`
	ErrorCode string    `json:"error_code"`
	Message   string    `json:"message"`
	FailedAt  time.Time `json:"failed_at"`
}

// NewEventEnvelope wraps payload in a v1 envelope with a fresh event id.
func NewEventEnvelope(eventType, source string, payload interface{}) (*EventEnvelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal payload")
	}
	return &EventEnvelope{
		EventID:       uuid.New().String(),
		EventType:     eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		SchemaVersion: "v1",
		Payload:       data,
	}, nil
}

// DecodePayload unmarshals the envelope payload into target.
func (e *EventEnvelope) DecodePayload(target interface{}) error {
	if len(e.Payload) == 0 {
		return errors.New(errors.ErrCodeValidation, "envelope has no payload")
	}
	if err := json.Unmarshal(e.Payload, target); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal payload")
	}
	return nil
}

// DecodeEnvelope parses a raw message value into an envelope.
func DecodeEnvelope(value []byte) (*EventEnvelope, error) {
	if len(value) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "empty message value")
	}
	var env EventEnvelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to unmarshal envelope")
	}
	return &env, nil
}

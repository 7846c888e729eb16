package kafka

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/parcelview/geofusion/internal/config"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/pkg/errors"
)

var ErrProducerClosed = errors.New(errors.ErrCodeInternal, "producer closed")

// writerAPI abstracts kafka.Writer for testing.
type writerAPI interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Producer publishes event envelopes to analysis topics.  Messages are keyed
// by event id so retries of the same job land on the same partition.
type Producer struct {
	writer writerAPI
	logger logging.Logger
	closed atomic.Bool

	sent   atomic.Int64
	failed atomic.Int64
}

// NewProducer builds a Producer from the messaging section of the config.
func NewProducer(cfg config.KafkaConfig, log logging.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}

	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = time.Second
	}
	retries := cfg.ProducerRetries
	if retries <= 0 {
		retries = 3
	}

	writer := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Balancer:     &kafkago.Hash{},
		MaxAttempts:  retries + 1,
		BatchTimeout: batchTimeout,
		RequiredAcks: kafkago.RequireAll,
	}

	return &Producer{writer: writer, logger: log}, nil
}

// newProducerWithWriter is the test seam.
func newProducerWithWriter(w writerAPI, log logging.Logger) *Producer {
	return &Producer{writer: w, logger: log}
}

// Publish writes one envelope to topic.
func (p *Producer) Publish(ctx context.Context, topic string, env *EventEnvelope) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if topic == "" {
		return errors.New(errors.ErrCodeValidation, "topic required")
	}

	value, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal envelope")
	}

	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(env.EventID),
		Value: value,
		Time:  env.Timestamp,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "schema_version", Value: []byte(env.SchemaVersion)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.failed.Add(1)
		p.logger.Error("publish failed",
			logging.String("topic", topic),
			logging.String("event_type", env.EventType),
			logging.Err(err),
		)
		return errors.Wrap(err, errors.ErrCodeServiceUnavailable, "failed to publish message")
	}

	p.sent.Add(1)
	p.logger.Debug("message published",
		logging.String("topic", topic),
		logging.String("event_type", env.EventType),
		logging.String("event_id", env.EventID),
	)
	return nil
}

// Sent returns the number of successfully published messages.
func (p *Producer) Sent() int64 { return p.sent.Load() }

// Failed returns the number of failed publishes.
func (p *Producer) Failed() int64 { return p.failed.Load() }

// Close flushes and closes the underlying writer.  Safe to call twice.
func (p *Producer) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := p.writer.Close()
	p.logger.Info("kafka producer closed", logging.Int64("sent", p.sent.Load()))
	return err
}

package kafka

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/parcelview/geofusion/internal/config"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/pkg/errors"
)

var ErrAlreadyRunning = errors.New(errors.ErrCodeConflict, "consumer already running")

// EnvelopeHandler processes one decoded event envelope.  Returning an error
// sends the message to the dead letter topic after retries.
type EnvelopeHandler func(ctx context.Context, env *EventEnvelope) error

// readerAPI abstracts kafka.Reader for testing.
type readerAPI interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Consumer reads analysis job envelopes from one topic and dispatches them
// to a handler.  Offsets commit only after the handler (or the dead letter
// fallback) has dealt with the message.
type Consumer struct {
	reader   readerAPI
	producer *Producer
	logger   logging.Logger

	maxRetries int
	backoff    time.Duration

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	processed    atomic.Int64
	failed       atomic.Int64
	deadLettered atomic.Int64
}

// NewConsumer builds a group consumer for topic.  deadLetter may be nil to
// drop poisoned messages instead of forwarding them.  Retry behaviour comes
// from worker.
func NewConsumer(cfg config.KafkaConfig, worker config.WorkerConfig, topic string, deadLetter *Producer, log logging.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "kafka brokers required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New(errors.ErrCodeValidation, "kafka group id required")
	}

	startOffset := kafkago.FirstOffset
	if cfg.AutoOffsetReset == "latest" {
		startOffset = kafkago.LastOffset
	}

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		Topic:          topic,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		StartOffset:    startOffset,
		CommitInterval: worker.CommitInterval,
	})

	maxRetries := worker.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	backoff := worker.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	return &Consumer{
		reader:     reader,
		producer:   deadLetter,
		logger:     log,
		maxRetries: maxRetries,
		backoff:    backoff,
	}, nil
}

// newConsumerWithReader is the test seam.
func newConsumerWithReader(r readerAPI, deadLetter *Producer, log logging.Logger) *Consumer {
	return &Consumer{
		reader:     r,
		producer:   deadLetter,
		logger:     log,
		maxRetries: 1,
		backoff:    time.Millisecond,
	}
}

// Start launches the consume loop.  It returns immediately; Close stops the
// loop and waits for it.
func (c *Consumer) Start(ctx context.Context, handler EnvelopeHandler) error {
	if c.running.Swap(true) {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.wg.Add(1)
	go c.consumeLoop(ctx, handler)

	c.logger.Info("kafka consumer started")
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context, handler EnvelopeHandler) {
	defer c.wg.Done()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("fetch failed", logging.Err(err))
			time.Sleep(time.Second)
			continue
		}

		c.handleMessage(ctx, msg, handler)

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("commit failed",
				logging.String("topic", msg.Topic),
				logging.Int64("offset", msg.Offset),
				logging.Err(err),
			)
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg kafkago.Message, handler EnvelopeHandler) {
	env, err := DecodeEnvelope(msg.Value)
	if err != nil {
		c.logger.Warn("undecodable message",
			logging.String("topic", msg.Topic),
			logging.Int64("offset", msg.Offset),
			logging.Err(err),
		)
		c.deadLetter(ctx, msg, err)
		return
	}

	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		err = handler(ctx, env)
		if err == nil {
			c.processed.Add(1)
			return
		}
		if attempt >= c.maxRetries || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	c.failed.Add(1)
	c.logger.Error("message processing failed",
		logging.String("event_type", env.EventType),
		logging.String("event_id", env.EventID),
		logging.Err(err),
	)
	c.deadLetter(ctx, msg, err)
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafkago.Message, cause error) {
	if c.producer == nil {
		return
	}
	env, err := NewEventEnvelope(EventJobFailed, "consumer", JobFailedPayload{
		ErrorCode: errors.GetCode(cause).String(),
		Message:   cause.Error(),
		FailedAt:  time.Now().UTC(),
	})
	if err != nil {
		return
	}
	if err := c.producer.Publish(ctx, TopicDeadLetter, env); err != nil {
		c.logger.Error("dead letter publish failed", logging.Err(err))
		return
	}
	c.deadLettered.Add(1)
}

// Processed returns the count of successfully handled messages.
func (c *Consumer) Processed() int64 { return c.processed.Load() }

// DeadLettered returns the count of messages forwarded to the dead letter
// topic.
func (c *Consumer) DeadLettered() int64 { return c.deadLettered.Load() }

// Close stops the loop and closes the reader.  Safe to call twice.
func (c *Consumer) Close() error {
	if !c.running.CompareAndSwap(true, false) {
		return nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	err := c.reader.Close()
	c.logger.Info("kafka consumer closed", logging.Int64("processed", c.processed.Load()))
	return err
}

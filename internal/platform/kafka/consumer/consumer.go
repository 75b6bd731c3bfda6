package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	dErrors "credpass/pkg/domain-errors"
)

// Message represents a received Kafka message.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Handler processes consumed messages.
//
// A nil return commits the offset. A fatal domain error stops Run without
// committing. Any other error rewinds the partition to the message so it is
// redelivered after the retry backoff.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// Config holds consumer configuration.
type Config struct {
	Brokers         string
	GroupID         string
	AutoOffsetReset string
	RetryBackoff    time.Duration
}

// Consumer wraps the confluent-kafka-go consumer with manual commits.
type Consumer struct {
	consumer *kafka.Consumer
	handler  Handler
	logger   *slog.Logger
	backoff  time.Duration

	mu     sync.RWMutex
	topics []string
	closed bool
}

// New creates a new Kafka consumer.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Consumer, error) {
	if cfg.Brokers == "" {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("kafka consumer group ID not configured")
	}

	autoOffsetReset := cfg.AutoOffsetReset
	if autoOffsetReset == "" {
		autoOffsetReset = "earliest"
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.Brokers,
		"group.id":           cfg.GroupID,
		"auto.offset.reset":  autoOffsetReset,
		"enable.auto.commit": false,
		// Ledger order is per partition; one consumer applies it in order.
		"partition.assignment.strategy": "range",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}

	return &Consumer{
		consumer: consumer,
		handler:  handler,
		logger:   logger,
		backoff:  backoff,
	}, nil
}

// Subscribe starts consuming from the specified topics.
func (c *Consumer) Subscribe(topics []string) error {
	c.mu.Lock()
	c.topics = topics
	c.mu.Unlock()

	if err := c.consumer.SubscribeTopics(topics, nil); err != nil {
		return fmt.Errorf("subscribe to topics: %w", err)
	}
	return nil
}

// Run polls until ctx is done or the handler reports a fatal error, then
// closes the consumer. It returns nil on cancellation.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.Close() //nolint:errcheck // close errors are logged

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := c.poll(ctx); err != nil {
			return err
		}
	}
}

func (c *Consumer) poll(ctx context.Context) error {
	ev := c.consumer.Poll(100)
	if ev == nil {
		return nil
	}

	switch e := ev.(type) {
	case *kafka.Message:
		return c.handleMessage(ctx, e)
	case kafka.Error:
		if e.Code() != kafka.ErrTimedOut {
			c.logger.ErrorContext(ctx, "kafka consumer error",
				"code", e.Code(),
				"error", e.Error(),
			)
		}
		if e.IsFatal() {
			return dErrors.Wrap(e, dErrors.CodeFatal, "kafka consumer failed")
		}
	case kafka.PartitionEOF:
	}
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, km *kafka.Message) error {
	headers := make(map[string]string, len(km.Headers))
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	msg := &Message{
		Partition: km.TopicPartition.Partition,
		Offset:    int64(km.TopicPartition.Offset),
		Key:       km.Key,
		Value:     km.Value,
		Headers:   headers,
		Timestamp: km.Timestamp,
	}
	if km.TopicPartition.Topic != nil {
		msg.Topic = *km.TopicPartition.Topic
	}

	if err := c.handler.Handle(ctx, msg); err != nil {
		if dErrors.IsFatal(err) || errors.Is(err, context.Canceled) {
			return err
		}
		c.logger.ErrorContext(ctx, "failed to handle message, retrying",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return c.retry(ctx, km)
	}

	if _, err := c.consumer.CommitMessage(km); err != nil {
		c.logger.ErrorContext(ctx, "failed to commit offset",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
	}
	return nil
}

// retry rewinds the partition to km so the next poll redelivers it.
func (c *Consumer) retry(ctx context.Context, km *kafka.Message) error {
	if err := c.consumer.Seek(km.TopicPartition, 0); err != nil {
		return dErrors.Wrap(err, dErrors.CodeFatal, "rewind partition for redelivery")
	}
	select {
	case <-ctx.Done():
	case <-time.After(c.backoff):
	}
	return nil
}

// Close closes the consumer. It is safe to call more than once.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.consumer.Close(); err != nil {
		c.logger.Error("close kafka consumer", "error", err)
		return err
	}
	return nil
}

// Check reports whether the consumer is open and holds partition assignments.
func (c *Consumer) Check(_ context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("kafka consumer closed")
	}
	assignment, err := c.consumer.Assignment()
	if err != nil {
		return fmt.Errorf("kafka assignment: %w", err)
	}
	if len(assignment) == 0 {
		return errors.New("kafka consumer has no partition assignment")
	}
	return nil
}

//go:build integration

package consumer_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credpass/internal/platform/kafka/consumer"
	"credpass/internal/platform/kafka/producer"
	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/testutil/containers"
)

type ConsumerIntegrationSuite struct {
	suite.Suite
	kafka    *containers.KafkaContainer
	producer *producer.Producer
}

func TestConsumerIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(ConsumerIntegrationSuite))
}

func (s *ConsumerIntegrationSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())

	prod, err := producer.New(producer.Config{
		Brokers:         s.kafka.Brokers,
		DeliveryTimeout: 10 * time.Second,
	}, nil)
	s.Require().NoError(err)
	s.producer = prod
}

func (s *ConsumerIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close() //nolint:errcheck
	}
}

type recordingHandler struct {
	mu     sync.Mutex
	values []string
	fail   func(*consumer.Message) error
}

func (h *recordingHandler) Handle(_ context.Context, msg *consumer.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail != nil {
		if err := h.fail(msg); err != nil {
			return err
		}
	}
	h.values = append(h.values, string(msg.Value))
	return nil
}

func (h *recordingHandler) Values() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.values...)
}

func (s *ConsumerIntegrationSuite) produce(topic string, values ...string) {
	msgs := make([]*producer.Message, 0, len(values))
	for _, v := range values {
		msgs = append(msgs, &producer.Message{Topic: topic, Key: []byte("ledger"), Value: []byte(v)})
	}
	s.Require().NoError(s.producer.Produce(context.Background(), msgs...))
}

func (s *ConsumerIntegrationSuite) start(topic, group string, h consumer.Handler) (context.CancelFunc, <-chan error) {
	cons, err := consumer.New(consumer.Config{
		Brokers:      s.kafka.Brokers,
		GroupID:      group,
		RetryBackoff: 50 * time.Millisecond,
	}, h, nil)
	s.Require().NoError(err)
	s.Require().NoError(cons.Subscribe([]string{topic}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cons.Run(ctx) }()
	return cancel, done
}

func (s *ConsumerIntegrationSuite) TestDeliversInOrder() {
	topic := "consumer-order"
	s.Require().NoError(s.kafka.CreateTopic(context.Background(), topic, 1, 1))
	s.produce(topic, "1", "2", "3")

	h := &recordingHandler{}
	cancel, done := s.start(topic, "consumer-order-group", h)

	s.Eventually(func() bool { return len(h.Values()) == 3 }, 15*time.Second, 100*time.Millisecond)
	cancel()
	s.NoError(<-done)
	s.Equal([]string{"1", "2", "3"}, h.Values())
}

func (s *ConsumerIntegrationSuite) TestTransientFailureIsRedelivered() {
	topic := "consumer-retry"
	s.Require().NoError(s.kafka.CreateTopic(context.Background(), topic, 1, 1))
	s.produce(topic, "a", "b")

	var attempts atomic.Int32
	h := &recordingHandler{fail: func(m *consumer.Message) error {
		if string(m.Value) == "a" && attempts.Add(1) < 3 {
			return errors.New("journal unavailable")
		}
		return nil
	}}
	cancel, done := s.start(topic, "consumer-retry-group", h)

	s.Eventually(func() bool { return len(h.Values()) == 2 }, 15*time.Second, 100*time.Millisecond)
	cancel()
	s.NoError(<-done)
	s.Equal([]string{"a", "b"}, h.Values())
	s.Equal(int32(3), attempts.Load())
}

func (s *ConsumerIntegrationSuite) TestFatalErrorStopsWithoutCommit() {
	topic := "consumer-fatal"
	group := fmt.Sprintf("consumer-fatal-%d", time.Now().UnixNano())
	s.Require().NoError(s.kafka.CreateTopic(context.Background(), topic, 1, 1))
	s.produce(topic, "x")

	failing := &recordingHandler{fail: func(*consumer.Message) error {
		return dErrors.New(dErrors.CodeFatal, "checkpoint failed")
	}}
	_, done := s.start(topic, group, failing)

	select {
	case err := <-done:
		s.True(dErrors.IsFatal(err))
	case <-time.After(15 * time.Second):
		s.Fail("consumer did not stop on fatal error")
	}

	h := &recordingHandler{}
	cancel, done := s.start(topic, group, h)
	s.Eventually(func() bool { return len(h.Values()) == 1 }, 15*time.Second, 100*time.Millisecond)
	cancel()
	s.NoError(<-done)
}

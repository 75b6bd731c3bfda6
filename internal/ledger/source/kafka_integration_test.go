//go:build integration

package source_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"credpass/internal/ledger/journal"
	"credpass/internal/ledger/source"
	"credpass/internal/platform/kafka/consumer"
	"credpass/internal/platform/kafka/producer"
	projector "credpass/internal/projector/service"
	"credpass/pkg/testutil"
	"credpass/pkg/testutil/containers"
)

type KafkaSourceSuite struct {
	suite.Suite
	kafka *containers.KafkaContainer
}

func TestKafkaSourceSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaSourceSuite))
}

func (s *KafkaSourceSuite) SetupSuite() {
	s.kafka = containers.GetManager().GetKafka(s.T())
}

func (s *KafkaSourceSuite) TestStreamBuildsSnapshot() {
	ctx := context.Background()
	topic := "ledger-events-source"
	s.Require().NoError(s.kafka.CreateTopic(ctx, topic, 1, 1))

	encoded, err := testutil.NewStream(1700000000).Onboarding(1).Encoded()
	s.Require().NoError(err)
	// A redelivered event and a malformed one must not disturb the projection.
	encoded = append(encoded, encoded[2], []byte(`{"seq":10}`))

	prod, err := producer.New(producer.Config{Brokers: s.kafka.Brokers}, nil)
	s.Require().NoError(err)
	defer prod.Close() //nolint:errcheck
	msgs := make([]*producer.Message, 0, len(encoded))
	for _, v := range encoded {
		msgs = append(msgs, &producer.Message{Topic: topic, Key: []byte("ledger"), Value: v})
	}
	s.Require().NoError(prod.Produce(ctx, msgs...))

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	p := projector.New(journal.NewInMemory(), projector.WithLogger(logger))
	cons, err := consumer.New(consumer.Config{
		Brokers: s.kafka.Brokers,
		GroupID: "ledger-events-source-group",
	}, source.NewKafkaHandler(p, logger), logger)
	s.Require().NoError(err)
	s.Require().NoError(cons.Subscribe([]string{topic}))

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- cons.Run(runCtx) }()

	s.Eventually(func() bool { return len(p.Errors()) == 1 }, 20*time.Second, 100*time.Millisecond)
	cancel()
	s.NoError(<-done)

	snap := p.View()
	s.Equal(uint64(9), snap.Cursor)
	s.True(snap.Requests[1].Finalized)
	s.True(snap.Requests[1].Approved)
}

package source

import (
	"context"
	"log/slog"

	"credpass/internal/platform/kafka/consumer"
)

// KafkaHandler applies ledger events consumed from Kafka. Offsets are
// committed once an event is settled; the projector drops redeliveries of
// sequences it has already applied.
type KafkaHandler struct {
	projector Applier
	logger    *slog.Logger
}

// NewKafkaHandler creates a KafkaHandler.
func NewKafkaHandler(projector Applier, logger *slog.Logger) *KafkaHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaHandler{projector: projector, logger: logger}
}

// Handle implements consumer.Handler.
func (h *KafkaHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	outcome, err := deliver(ctx, h.projector, msg.Value)
	if outcome == Malformed {
		h.logger.WarnContext(ctx, "malformed ledger event committed",
			"topic", msg.Topic,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
	}
	return err
}

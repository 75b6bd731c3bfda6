// Package source feeds ledger events into the projector from a Kafka topic
// or a JSON-lines file.
package source

import (
	"context"
	"encoding/json"
	"errors"

	ledger "credpass/internal/ledger/models"
	dErrors "credpass/pkg/domain-errors"
)

// Applier is the projector surface a source drives.
type Applier interface {
	Apply(ctx context.Context, ev ledger.Event) error
	RecordDecodeError(ctx context.Context, seq uint64, err error)
}

// Outcome classifies one delivered event.
type Outcome int

const (
	Applied Outcome = iota
	Skipped
	Malformed
)

// deliver decodes data and applies it. Malformed events and rule violations
// are settled: the projector has recorded them and the stream moves on. The
// returned error is either fatal or a transient failure worth redelivering.
func deliver(ctx context.Context, p Applier, data []byte) (Outcome, error) {
	ev, err := ledger.Decode(data)
	if err != nil {
		p.RecordDecodeError(ctx, peekSeq(data), err)
		return Malformed, nil
	}

	err = p.Apply(ctx, ev)
	switch {
	case err == nil:
		return Applied, nil
	case dErrors.IsFatal(err), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return Skipped, err
	case dErrors.CodeOf(err) != "":
		return Skipped, nil
	default:
		return Skipped, err
	}
}

// peekSeq recovers the sequence number of an envelope that failed to decode,
// or 0 if even that is unreadable.
func peekSeq(data []byte) uint64 {
	var env struct {
		Seq ledger.Quantity `json:"seq"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return 0
	}
	return uint64(env.Seq)
}

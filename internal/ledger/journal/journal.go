// Package journal keeps the append-only history of decoded ledger events the
// projector has accepted. Rebuild replays it from the start; reorgs truncate it.
package journal

import (
	"context"

	"credpass/internal/ledger/models"
)

// Journal stores events keyed by sequence number.
type Journal interface {
	// Append stores ev. Re-appending an existing sequence number is a no-op.
	Append(ctx context.Context, ev models.Event) error
	// Range calls fn for every event with Seq >= fromSeq in ascending order.
	// Iteration stops at the first error fn returns.
	Range(ctx context.Context, fromSeq uint64, fn func(models.Event) error) error
	// TruncateFrom removes every event with Seq >= fromSeq.
	TruncateFrom(ctx context.Context, fromSeq uint64) error
	// Head returns the highest stored sequence number, or zero when empty.
	Head(ctx context.Context) (uint64, error)
}

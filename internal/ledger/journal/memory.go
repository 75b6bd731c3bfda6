package journal

import (
	"context"
	"sort"
	"sync"

	"credpass/internal/ledger/models"
)

// InMemory is a Journal for tests and single-process deployments.
type InMemory struct {
	mu     sync.RWMutex
	events []models.Event
}

// NewInMemory creates an empty in-memory journal.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (j *InMemory) Append(_ context.Context, ev models.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	i := sort.Search(len(j.events), func(i int) bool { return j.events[i].Seq >= ev.Seq })
	if i < len(j.events) && j.events[i].Seq == ev.Seq {
		return nil
	}
	j.events = append(j.events, models.Event{})
	copy(j.events[i+1:], j.events[i:])
	j.events[i] = ev
	return nil
}

func (j *InMemory) Range(ctx context.Context, fromSeq uint64, fn func(models.Event) error) error {
	j.mu.RLock()
	i := sort.Search(len(j.events), func(i int) bool { return j.events[i].Seq >= fromSeq })
	events := append([]models.Event(nil), j.events[i:]...)
	j.mu.RUnlock()

	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return nil
}

func (j *InMemory) TruncateFrom(_ context.Context, fromSeq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	i := sort.Search(len(j.events), func(i int) bool { return j.events[i].Seq >= fromSeq })
	j.events = j.events[:i]
	return nil
}

func (j *InMemory) Head(_ context.Context) (uint64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if len(j.events) == 0 {
		return 0, nil
	}
	return j.events[len(j.events)-1].Seq, nil
}

var _ Journal = (*InMemory)(nil)

package store

import (
	"context"
	"sync"
)

// InMemory keeps the checkpoint in process memory.
type InMemory struct {
	mu sync.RWMutex
	cp *Checkpoint
}

// NewInMemory creates an empty checkpoint store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Load(_ context.Context) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cp == nil {
		return nil, ErrNotFound
	}
	cp := Checkpoint{Cursor: s.cp.Cursor, Snapshot: append([]byte(nil), s.cp.Snapshot...)}
	return &cp, nil
}

func (s *InMemory) Save(_ context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp = &Checkpoint{Cursor: cp.Cursor, Snapshot: append([]byte(nil), cp.Snapshot...)}
	return nil
}

func (s *InMemory) Invalidate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cp = nil
	return nil
}

var _ Store = (*InMemory)(nil)

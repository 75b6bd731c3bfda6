package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	ledger "credpass/internal/ledger/models"
)

// InMemory is a process-local intent store.
type InMemory struct {
	mu      sync.RWMutex
	intents map[ledger.RequestID]Intent
	now     func() time.Time
}

// NewInMemory creates an empty in-memory intent store.
func NewInMemory() *InMemory {
	return &InMemory{intents: make(map[ledger.RequestID]Intent), now: time.Now}
}

func (s *InMemory) Claim(_ context.Context, intent Intent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.intents[intent.RequestID]; exists {
		return false, nil
	}
	s.intents[intent.RequestID] = intent
	return true, nil
}

func (s *InMemory) Get(_ context.Context, requestID ledger.RequestID) (*Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	intent, ok := s.intents[requestID]
	if !ok {
		return nil, ErrNotFound
	}
	return &intent, nil
}

func (s *InMemory) MarkSubmitted(_ context.Context, requestID ledger.RequestID, tx common.Hash) error {
	return s.update(requestID, func(intent *Intent) {
		intent.State = StateSubmitted
		intent.TxHash = &tx
	})
}

func (s *InMemory) MarkSettled(_ context.Context, requestID ledger.RequestID, tokenID ledger.TokenID) error {
	return s.update(requestID, func(intent *Intent) {
		intent.State = StateSettled
		intent.TokenID = &tokenID
	})
}

func (s *InMemory) MarkFailed(_ context.Context, requestID ledger.RequestID, reason string) error {
	return s.update(requestID, func(intent *Intent) {
		intent.State = StateFailed
		intent.LastError = reason
	})
}

func (s *InMemory) update(requestID ledger.RequestID, fn func(*Intent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	intent, ok := s.intents[requestID]
	if !ok {
		return ErrNotFound
	}
	fn(&intent)
	intent.UpdatedAt = s.now()
	s.intents[requestID] = intent
	return nil
}

func (s *InMemory) Release(_ context.Context, requestID ledger.RequestID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.intents[requestID]; !ok {
		return ErrNotFound
	}
	delete(s.intents, requestID)
	return nil
}

func (s *InMemory) Pending(_ context.Context) ([]Intent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Intent, 0, len(s.intents))
	for _, intent := range s.intents {
		if intent.State != StateSettled {
			out = append(out, intent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	return out, nil
}

var _ Store = (*InMemory)(nil)

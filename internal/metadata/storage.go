package metadata

import (
	"context"
	"sync"

	dErrors "credpass/pkg/domain-errors"
	"credpass/pkg/platform/sentinel"
)

// Storage is the content-addressed store contract. Put is idempotent and
// returns an ipfs:// URI; Get fails with an unavailable error rather than
// panicking when content cannot be fetched.
type Storage interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, uri string) ([]byte, error)
}

// Unavailable wraps a fetch or store failure with the unavailable code.
func Unavailable(uri string, cause error) error {
	msg := "content unavailable"
	if uri != "" {
		msg = "content unavailable: " + uri
	}
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return dErrors.Tag(sentinel.ErrUnavailable, dErrors.CodeUnavailable, msg)
}

// InMemory is a Storage kept in process memory.
type InMemory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{objects: map[string][]byte{}}
}

func (s *InMemory) Put(_ context.Context, data []byte) (string, error) {
	id, err := CIDFor(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[id.KeyString()]; !ok {
		s.objects[id.KeyString()] = append([]byte(nil), data...)
	}
	return Scheme + id.String(), nil
}

func (s *InMemory) Get(_ context.Context, uri string) ([]byte, error) {
	id, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[id.KeyString()]
	if !ok {
		return nil, Unavailable(uri, sentinel.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Len reports the number of stored objects.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

var _ Storage = (*InMemory)(nil)

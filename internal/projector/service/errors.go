package service

import (
	"sync"
	"time"

	ledger "credpass/internal/ledger/models"
	dErrors "credpass/pkg/domain-errors"
)

// ProjectionError records one skipped event.
type ProjectionError struct {
	Seq     uint64       `json:"seq"`
	Kind    ledger.Kind  `json:"kind,omitempty"`
	Code    dErrors.Code `json:"code"`
	Message string       `json:"message"`
	At      time.Time    `json:"at"`
}

// errorLog is a fixed-size ring of the most recent skips.
type errorLog struct {
	mu      sync.Mutex
	entries []ProjectionError
	next    int
	full    bool
}

func newErrorLog(size int) *errorLog {
	return &errorLog{entries: make([]ProjectionError, size)}
}

func (l *errorLog) add(e ProjectionError) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

func (l *errorLog) list() []ProjectionError {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.next
	if l.full {
		n = len(l.entries)
	}
	out := make([]ProjectionError, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, l.entries[(l.next-i+len(l.entries))%len(l.entries)])
	}
	return out
}

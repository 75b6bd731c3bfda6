package testutil

import (
	"errors"
	"sync"
	"sync/atomic"

	"credpass/pkg/platform/sentinel"
)

// ConcurrentResult tracks outcomes of concurrent test operations.
type ConcurrentResult struct {
	Successes  int32
	Duplicates int32
	NotFounds  int32
	Errors     int32
}

// Total returns the total number of operations executed.
func (r *ConcurrentResult) Total() int32 {
	return r.Successes + r.Duplicates + r.NotFounds + r.Errors
}

// RunConcurrent runs fn on n goroutines at once and counts the outcomes.
// Issuance duplicates and already-applied events both count as duplicates.
func RunConcurrent(n int, fn func(idx int) error) *ConcurrentResult {
	var (
		wg                                   sync.WaitGroup
		start                                = make(chan struct{})
		successes, dups, notFounds, failures atomic.Int32
	)

	for i := range n {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			err := fn(idx)
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, sentinel.ErrIssuanceDuplicate), errors.Is(err, sentinel.ErrDuplicateApplication):
				dups.Add(1)
			case errors.Is(err, sentinel.ErrNotFound):
				notFounds.Add(1)
			default:
				failures.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	return &ConcurrentResult{
		Successes:  successes.Load(),
		Duplicates: dups.Load(),
		NotFounds:  notFounds.Load(),
		Errors:     failures.Load(),
	}
}

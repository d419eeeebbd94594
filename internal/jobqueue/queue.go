// Package jobqueue provides a FIFO of work items keyed by generated ids.
package jobqueue

import (
	"context"
	"sync"

	"github.com/mikey-austin/screener/internal/adapters/idgen"
)

// IDGen returns unique ids for queued items.
type IDGen interface {
	NewID() string
}

type entry[T any] struct {
	id   string
	item T
}

// Queue is a FIFO of (id, item) pairs. Ids are generated by Put, never
// supplied by callers.
type Queue[T any] struct {
	mu      sync.Mutex
	entries []entry[T]
	ids     IDGen
	ready   chan struct{}
}

// New builds an empty queue. A nil ids uses random UUIDs.
func New[T any](ids IDGen) *Queue[T] {
	if ids == nil {
		ids = idgen.Generator{}
	}
	return &Queue[T]{ids: ids, ready: make(chan struct{}, 1)}
}

// Put appends item and returns its generated id.
func (q *Queue[T]) Put(item T) string {
	q.mu.Lock()
	id := q.ids.NewID()
	q.entries = append(q.entries, entry[T]{id: id, item: item})
	q.mu.Unlock()

	q.signal()
	return id
}

// Get removes and returns the oldest item, blocking until one is available or
// ctx is done.
func (q *Queue[T]) Get(ctx context.Context) (string, T, error) {
	for {
		q.mu.Lock()
		if len(q.entries) > 0 {
			head := q.entries[0]
			q.entries[0] = entry[T]{}
			q.entries = q.entries[1:]
			remaining := len(q.entries)
			q.mu.Unlock()
			if remaining > 0 {
				q.signal()
			}
			return head.id, head.item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return "", zero, ctx.Err()
		case <-q.ready:
		}
	}
}

// Lookup returns the queued item with id without removing it.
func (q *Queue[T]) Lookup(id string) (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if e.id == id {
			return e.item, true
		}
	}
	var zero T
	return zero, false
}

// Cancel removes the queued item with id. It reports false when the id is not
// queued, which includes items already handed to a consumer.
func (q *Queue[T]) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.id == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// IDs returns the queued ids oldest first.
func (q *Queue[T]) IDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, 0, len(q.entries))
	for _, e := range q.entries {
		ids = append(ids, e.id)
	}
	return ids
}

func (q *Queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

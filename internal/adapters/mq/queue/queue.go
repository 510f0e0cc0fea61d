// Package queue holds logged votes whose aggregates still need to be applied.
//
// The queue is a bounded in-memory channel. An optional deduper keeps a vote
// from being queued twice while it is still in flight; consumers call Release
// once they are done with a vote.
package queue

import (
	"context"
	"sync"

	"github.com/okian/duel/internal/domain/dedupe"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
)

// Event is the payload flowing through the queue.
type Event = model.Vote

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a vote. It returns false if the queue is full or closed.
	// A vote that is already in flight is accepted without being queued again.
	Enqueue(ctx context.Context, e Event) bool

	// Dequeue returns a channel that receives votes until the queue is closed.
	Dequeue(ctx context.Context) <-chan Event

	// Release marks a dequeued vote as done so it may be queued again.
	Release(ctx context.Context, id string)

	// Len returns the current number of queued votes.
	Len(ctx context.Context) int

	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan Event
	capacity int
	inFlight dedupe.Deduper

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan Event, q.capacity)

	metrics.UpdateReplayQueueCapacity(q.capacity)
	metrics.UpdateReplayQueueSize(0)
	return q
}

// Enqueue adds a vote to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) bool { //nolint:gocritic // hugeParam: Event is passed by value for channel semantics
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return false
	}
	if q.inFlight != nil && q.inFlight.SeenAndRecord(ctx, e.ID) {
		return true
	}

	select {
	case q.events <- e:
		metrics.UpdateReplayQueueSize(len(q.events))
		return true
	case <-ctx.Done():
	default:
	}
	if q.inFlight != nil {
		q.inFlight.Unrecord(ctx, e.ID)
	}
	return false
}

// Submit hands a vote to the queue. It lets the queue serve as the ingestor's replay sink.
func (q *InMemoryQueue) Submit(ctx context.Context, v model.Vote) bool {
	return q.Enqueue(ctx, v)
}

// Dequeue returns a channel that will receive votes as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for e := range q.events {
			select {
			case out <- e:
				metrics.UpdateReplayQueueSize(len(q.events))
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Release implements Queue.
func (q *InMemoryQueue) Release(ctx context.Context, id string) {
	if q.inFlight != nil {
		q.inFlight.Unrecord(ctx, id)
	}
}

// Len returns the current number of queued votes.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.events)
	metrics.UpdateReplayQueueSize(size)
	return size
}

// Close stops accepting votes and closes the dequeue channel once drained.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

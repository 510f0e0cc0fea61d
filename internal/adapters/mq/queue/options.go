package queue

import "github.com/okian/duel/internal/domain/dedupe"

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum number of queued votes.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithDeduper tracks in-flight vote ids so a vote is never queued twice.
func WithDeduper(d dedupe.Deduper) Option {
	return func(q *InMemoryQueue) {
		q.inFlight = d
	}
}

package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/duel/internal/adapters/mq/queue"
	"github.com/okian/duel/internal/adapters/mq/worker"
	"github.com/okian/duel/internal/domain/dedupe"
	"github.com/okian/duel/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type mockReplayer struct {
	mu      sync.Mutex
	applied []string
	fail    map[string]error
	seen    chan string
}

func newMockReplayer() *mockReplayer {
	return &mockReplayer{fail: make(map[string]error), seen: make(chan string, 16)}
}

func (m *mockReplayer) Replay(_ context.Context, v model.Vote) error {
	m.mu.Lock()
	err := m.fail[v.ID]
	if err == nil {
		m.applied = append(m.applied, v.ID)
	}
	m.mu.Unlock()
	m.seen <- v.ID
	return err
}

func (m *mockReplayer) appliedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.applied...)
}

type mockSource struct {
	votes     []model.Vote
	olderThan time.Time
	err       error
}

func (m *mockSource) PendingVotes(_ context.Context, olderThan time.Time, limit int) ([]model.Vote, error) {
	m.olderThan = olderThan
	if m.err != nil {
		return nil, m.err
	}
	if len(m.votes) > limit {
		return m.votes[:limit], nil
	}
	return m.votes, nil
}

func vote(id string) model.Vote {
	return model.Vote{ID: id, Scope: model.PublicScope(model.SegmentAll), LeftID: "a", RightID: "b", WinnerID: "a"}
}

func waitFor(ch <-chan string, n int) []string {
	out := make([]string, 0, n)
	for len(out) < n {
		select {
		case id := <-ch:
			out = append(out, id)
		case <-time.After(2 * time.Second):
			return out
		}
	}
	return out
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a deduplicating queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(8), queue.WithDeduper(dedupe.NewInMemoryDeduper()))
		replayer := newMockReplayer()
		replayer.fail["bad"] = errors.New("store down")
		pool := worker.NewPool(2, q, replayer)
		pool.Start(ctx)

		convey.Convey("When votes are queued", func() {
			convey.So(q.Enqueue(ctx, vote("v1")), convey.ShouldBeTrue)
			convey.So(q.Enqueue(ctx, vote("bad")), convey.ShouldBeTrue)
			convey.So(q.Enqueue(ctx, vote("v2")), convey.ShouldBeTrue)
			seen := waitFor(replayer.seen, 3)

			convey.Convey("Then every vote should be attempted and successes recorded", func() {
				convey.So(len(seen), convey.ShouldEqual, 3)
				convey.So(replayer.appliedIDs(), convey.ShouldContain, "v1")
				convey.So(replayer.appliedIDs(), convey.ShouldContain, "v2")
				convey.So(replayer.appliedIDs(), convey.ShouldNotContain, "bad")
			})

			convey.Convey("And a processed vote may be queued again", func() {
				time.Sleep(20 * time.Millisecond)
				convey.So(q.Enqueue(ctx, vote("bad")), convey.ShouldBeTrue)
				convey.So(waitFor(replayer.seen, 1), convey.ShouldResemble, []string{"bad"})
			})
		})

		convey.Convey("When the pool shuts down", func() {
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then the queue should be closed", func() {
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
				convey.So(q.Enqueue(ctx, vote("late")), convey.ShouldBeFalse)
			})
		})

		convey.Reset(func() { _ = pool.Shutdown(ctx) })
	})

	convey.Convey("Given a pool with the default size", t, func() {
		pool := worker.NewPool(0, queue.NewInMemoryQueue(), newMockReplayer())

		convey.Convey("Then it should scale with the CPU count", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
		})
	})
}

func TestSweeper(t *testing.T) {
	convey.Convey("Given pending votes in the log", t, func() {
		ctx := context.Background()
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		source := &mockSource{votes: []model.Vote{vote("p1"), vote("p2"), vote("p3")}}
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))
		s := worker.NewSweeper(source, q,
			worker.WithGrace(time.Minute),
			worker.WithBatch(10),
			worker.WithClock(func() time.Time { return now }))

		convey.Convey("When a sweep runs", func() {
			n, err := s.SweepOnce(ctx)

			convey.Convey("Then it should queue what fits and honour the grace period", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(n, convey.ShouldEqual, 2)
				convey.So(q.Len(ctx), convey.ShouldEqual, 2)
				convey.So(source.olderThan, convey.ShouldEqual, now.Add(-time.Minute))
			})
		})

		convey.Convey("When the log cannot be read", func() {
			source.err = errors.New("boom")
			_, err := s.SweepOnce(ctx)

			convey.Convey("Then the error should surface", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

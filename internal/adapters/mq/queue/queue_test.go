package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/okian/duel/internal/domain/dedupe"
	"github.com/okian/duel/internal/domain/model"
)

func vote(id string) model.Vote {
	return model.Vote{ID: id, Scope: model.PublicScope(model.SegmentAll), LeftID: "a", RightID: "b", WinnerID: "a"}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if !q.Enqueue(ctx, vote("v1")) {
		t.Error("expected first enqueue to succeed")
	}
	if !q.Enqueue(ctx, vote("v2")) {
		t.Error("expected second enqueue to succeed")
	}
	if q.Enqueue(ctx, vote("v3")) {
		t.Error("expected enqueue on a full queue to fail")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}

	ch := q.Dequeue(ctx)
	for _, want := range []string{"v1", "v2"} {
		select {
		case got := <-ch:
			if got.ID != want {
				t.Errorf("expected %s, got %s", want, got.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestInMemoryQueue_InFlightDedupe(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4), WithDeduper(dedupe.NewInMemoryDeduper()))
	ctx := context.Background()

	if !q.Enqueue(ctx, vote("v1")) || !q.Enqueue(ctx, vote("v1")) {
		t.Fatal("expected both submissions to be accepted")
	}
	if l := q.Len(ctx); l != 1 {
		t.Fatalf("expected a single queued copy, got %d", l)
	}

	got := <-q.events
	q.Release(ctx, got.ID)
	if !q.Submit(ctx, vote("v1")) {
		t.Fatal("expected resubmission after release to succeed")
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected the released vote to be queued again, got %d", l)
	}
}

func TestInMemoryQueue_FullQueueForgetsRejectedVote(t *testing.T) {
	d := dedupe.NewInMemoryDeduper()
	q := NewInMemoryQueue(WithCapacity(1), WithDeduper(d))
	ctx := context.Background()

	q.Enqueue(ctx, vote("v1"))
	if q.Enqueue(ctx, vote("v2")) {
		t.Fatal("expected the second vote to be rejected")
	}
	if d.Size() != 1 {
		t.Errorf("expected only the queued vote to be tracked, got %d", d.Size())
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	q.Enqueue(ctx, vote("v1"))
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second close should be a no-op: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to report closed")
	}
	if q.Enqueue(ctx, vote("v2")) {
		t.Error("expected enqueue after close to fail")
	}

	n := 0
	for range q.Dequeue(ctx) {
		n++
	}
	if n != 1 {
		t.Errorf("expected the queued vote to drain after close, got %d", n)
	}
}

func BenchmarkInMemoryQueue_Enqueue(b *testing.B) {
	q := NewInMemoryQueue(WithCapacity(b.N + 1))
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		q.Enqueue(ctx, vote(fmt.Sprintf("v%d", i)))
	}
}

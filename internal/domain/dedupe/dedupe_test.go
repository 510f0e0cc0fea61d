package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/okian/duel/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		d := dedupe.NewInMemoryDeduper()

		Convey("When a vote id is recorded for the first time", func() {
			seen := d.SeenAndRecord(ctx, "vote-1")

			Convey("Then it should be reported as new", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And a second record should report it as seen", func() {
				So(d.SeenAndRecord(ctx, "vote-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And after Unrecord it can be recorded again", func() {
				d.Unrecord(ctx, "vote-1")
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "vote-1"), ShouldBeFalse)
			})
		})

		Convey("When unrecording an unknown id", func() {
			Convey("Then nothing should happen", func() {
				So(func() { d.Unrecord(ctx, "never") }, ShouldNotPanic)
				So(d.Size(), ShouldEqual, 0)
			})
		})
	})

	Convey("Given a bounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for i := 1; i <= 4; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("vote-%d", i))
		}

		Convey("Then the oldest id should have been evicted", func() {
			So(d.Size(), ShouldEqual, 3)
			So(d.SeenAndRecord(ctx, "vote-4"), ShouldBeTrue)
			So(d.SeenAndRecord(ctx, "vote-1"), ShouldBeFalse)
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("vote-%d", i))
		}

		Convey("Then it should keep every id", func() {
			So(d.Size(), ShouldEqual, 1000)
		})
	})
}

func TestInMemoryDeduperConcurrent(t *testing.T) {
	Convey("Given many goroutines recording the same id", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var fresh atomic.Int64
		var wg sync.WaitGroup
		for i := 0; i < 64; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(context.Background(), "vote-x") {
					fresh.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one should win", func() {
			So(fresh.Load(), ShouldEqual, 1)
		})
	})
}

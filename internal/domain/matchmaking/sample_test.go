package matchmaking

import (
	"math/rand/v2"
	"testing"

	"github.com/okian/duel/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func pool(ids ...string) []model.Entity {
	out := make([]model.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.Entity{ID: id})
	}
	return out
}

// fixed replays a list of draws.
type fixed []float64

func (f *fixed) Float64() float64 {
	v := (*f)[0]
	*f = (*f)[1:]
	return v
}

func TestWeights(t *testing.T) {
	Convey("Given a pool with uneven comparison counts", t, func() {
		p := pool("a", "b", "c", "d")
		counts := map[string]int64{"b": 3, "c": 10, "d": 10}

		Convey("Then weights should not increase with comparisons", func() {
			w := Weights(p, counts)
			So(w, ShouldResemble, []float64{11, 8, 1, 1})
		})

		Convey("And an all-new pool should weigh everyone equally", func() {
			So(Weights(p, nil), ShouldResemble, []float64{2, 2, 2, 2})
		})
	})
}

func TestSample(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		rng := rand.New(rand.NewPCG(7, 11))

		Convey("When sampling a two entity pool many times", func() {
			p := pool("x", "y")

			Convey("Then both sides should always be distinct", func() {
				for i := 0; i < 500; i++ {
					l, r, err := Sample(p, nil, rng)
					So(err, ShouldBeNil)
					So(l.ID, ShouldNotEqual, r.ID)
				}
			})
		})

		Convey("When one entity is far less compared", func() {
			p := pool("fresh", "old1", "old2")
			counts := map[string]int64{"old1": 10, "old2": 10}
			hits := 0
			const draws = 2000
			for i := 0; i < draws; i++ {
				l, r, err := Sample(p, counts, rng)
				So(err, ShouldBeNil)
				if l.ID == "fresh" || r.ID == "fresh" {
					hits++
				}
			}

			Convey("Then it should appear in nearly every pair", func() {
				So(float64(hits)/draws, ShouldBeGreaterThan, 0.95)
			})
		})

		Convey("When the pool is too small", func() {
			_, _, err := Sample(pool("solo"), nil, rng)

			Convey("Then insufficient candidates should be reported", func() {
				So(err, ShouldEqual, ErrInsufficientCandidates)
			})
		})
	})

	Convey("Given scripted draws", t, func() {
		p := pool("a", "b", "c")

		Convey("When the first draw lands at the end of the range", func() {
			src := fixed{0.999, 0.0}
			l, r, err := Sample(p, nil, &src)

			Convey("Then the last entity goes left and the right draw skips it", func() {
				So(err, ShouldBeNil)
				So(l.ID, ShouldEqual, "c")
				So(r.ID, ShouldEqual, "a")
			})
		})

		Convey("When a draw lands exactly on a boundary", func() {
			// total 6, u*total = 2 lands on a's upper edge.
			src := fixed{1.0 / 3.0, 0.5}
			l, r, err := Sample(p, nil, &src)

			Convey("Then the boundary belongs to the earlier entity", func() {
				So(err, ShouldBeNil)
				So(l.ID, ShouldEqual, "a")
				So(r.ID, ShouldEqual, "b")
			})
		})
	})
}

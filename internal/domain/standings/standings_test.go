package standings_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/okian/duel/internal/adapters/repository/memory"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/scope"
	"github.com/okian/duel/internal/domain/standings"
	"github.com/okian/duel/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

var public = model.PublicScope(model.SegmentAll)

func put(ctx context.Context, s *memory.Store, id string, status model.Status, vis model.Visibility) {
	So(s.PutEntity(ctx, model.Entity{
		ID: id, Slug: id, Name: "N" + id, Category: "meme", Gender: model.GenderMen,
		Status: status, Visibility: vis,
	}), ShouldBeNil)
}

// rate writes a rating record directly.
func rate(ctx context.Context, s *memory.Store, sc model.Scope, id string, value float64, wins, losses int64) {
	_, err := s.UpsertRating(ctx, sc, id, func(cur model.Rating) (model.Rating, bool) {
		cur.Rating = value
		cur.Wins, cur.Losses = wins, losses
		cur.Comparisons = wins + losses
		return cur, true
	})
	So(err, ShouldBeNil)
}

// tally writes a pair record where x won xWins of n.
func tally(ctx context.Context, s *memory.Store, sc model.Scope, x, y string, xWins, n int64) {
	_, err := s.UpsertPair(ctx, sc, x, y, func(cur model.Pair) (model.Pair, bool) {
		if cur.EntityA == x {
			cur.AWins, cur.BWins = xWins, n-xWins
		} else {
			cur.AWins, cur.BWins = n-xWins, xWins
		}
		cur.Comparisons = n
		return cur, true
	})
	So(err, ShouldBeNil)
}

func ids[T any](rows []T, id func(T) string) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, id(r))
	}
	return out
}

func TestLeaderboard(t *testing.T) {
	ctx := context.Background()

	Convey("Given rated entities with mixed visibility", t, func() {
		store := memory.New()
		put(ctx, store, "a", model.StatusActive, model.VisibilityPublic)
		put(ctx, store, "b", model.StatusActive, model.VisibilityPublic)
		put(ctx, store, "c", model.StatusDisabled, model.VisibilityPublic)
		put(ctx, store, "d", model.StatusActive, model.VisibilityPrivate)
		put(ctx, store, "e", model.StatusActive, model.VisibilityPublic)
		rate(ctx, store, public, "a", 1010, 1, 0)
		rate(ctx, store, public, "b", 1010, 1, 0)
		rate(ctx, store, public, "c", 1100, 5, 0)
		rate(ctx, store, public, "d", 1050, 3, 0)
		rate(ctx, store, public, "e", 950, 0, 2)
		d := standings.New(store)

		Convey("When deriving the public leaderboard", func() {
			rows, err := d.Leaderboard(ctx, public, 0)

			Convey("Then hidden entities are dropped and ties break by id", func() {
				So(err, ShouldBeNil)
				So(ids(rows, func(r types.LeaderboardEntry) string { return r.Entity.ID }), ShouldResemble, []string{"a", "b", "e"})
				So(rows[0].Rank, ShouldEqual, 1)
				So(rows[2].Rank, ShouldEqual, 3)
				So(rows[2].Losses, ShouldEqual, 2)
			})

			Convey("And deriving again should give the same answer", func() {
				again, err := d.Leaderboard(ctx, public, 0)
				So(err, ShouldBeNil)
				So(again, ShouldResemble, rows)
			})
		})

		Convey("When the limit is smaller than the visible set", func() {
			rows, err := d.Leaderboard(ctx, public, 2)

			Convey("Then only the top rows are returned", func() {
				So(err, ShouldBeNil)
				So(len(rows), ShouldEqual, 2)
			})
		})

		Convey("When the limit is negative", func() {
			_, err := d.Leaderboard(ctx, public, -1)

			Convey("Then the query is rejected", func() {
				So(err, ShouldWrap, standings.ErrInvalidQuery)
			})
		})

		Convey("When deriving a group leaderboard", func() {
			game := model.GameScope("g", model.SegmentAll)
			So(store.AddToPool(ctx, "g", "d", "e"), ShouldBeNil)
			rate(ctx, store, game, "d", 1020, 1, 0)
			rate(ctx, store, game, "e", 980, 0, 1)
			rate(ctx, store, game, "a", 1100, 4, 0)
			rows, err := d.Leaderboard(ctx, game, 10)

			Convey("Then private members appear and non-members do not", func() {
				So(err, ShouldBeNil)
				So(ids(rows, func(r types.LeaderboardEntry) string { return r.Entity.ID }), ShouldResemble, []string{"d", "e"})
			})
		})
	})

	Convey("Given more rated entities than one page", t, func() {
		store := memory.New()
		for i := 0; i < 130; i++ {
			id := fmt.Sprintf("e%03d", i)
			status := model.StatusActive
			if i%2 == 0 {
				status = model.StatusPendingReview
			}
			put(ctx, store, id, status, model.VisibilityPublic)
			rate(ctx, store, public, id, 2000-float64(i), 1, 0)
		}
		rows, err := standings.New(store).Leaderboard(ctx, public, 60)

		Convey("Then the deriver pages until the limit is filled", func() {
			So(err, ShouldBeNil)
			So(len(rows), ShouldEqual, 60)
			So(rows[0].Entity.ID, ShouldEqual, "e001")
			So(rows[59].Entity.ID, ShouldEqual, "e119")
		})
	})
}

func TestRelationshipGraph(t *testing.T) {
	ctx := context.Background()

	Convey("Given pair tallies", t, func() {
		store := memory.New()
		for _, id := range []string{"a", "b", "c", "d"} {
			put(ctx, store, id, model.StatusActive, model.VisibilityPublic)
		}
		put(ctx, store, "x", model.StatusDisabled, model.VisibilityPublic)
		tally(ctx, store, public, "a", "b", 8, 10)  // a beats b at 0.8
		tally(ctx, store, public, "d", "c", 9, 12)  // d beats c at 0.75
		tally(ctx, store, public, "a", "c", 6, 10)  // too close
		tally(ctx, store, public, "b", "d", 1, 12)  // d beats b at 11/12
		tally(ctx, store, public, "a", "d", 5, 5)   // too few votes
		tally(ctx, store, public, "x", "a", 10, 10) // disabled entity
		d := standings.New(store)

		Convey("When deriving with the defaults", func() {
			edges, err := d.RelationshipGraph(ctx, public, standings.GraphQuery{})

			Convey("Then only confident edges between visible entities remain, strongest first", func() {
				So(err, ShouldBeNil)
				So(len(edges), ShouldEqual, 3)
				So(edges[0].From.ID, ShouldEqual, "d")
				So(edges[0].To.ID, ShouldEqual, "b")
				So(edges[1].From.ID, ShouldEqual, "a")
				So(edges[1].Confidence, ShouldAlmostEqual, 0.8)
				So(edges[2].From.ID, ShouldEqual, "d")
				So(edges[2].To.ID, ShouldEqual, "c")
			})

			Convey("And the derivation should be repeatable", func() {
				again, err := d.RelationshipGraph(ctx, public, standings.GraphQuery{})
				So(err, ShouldBeNil)
				So(again, ShouldResemble, edges)
			})
		})

		Convey("When lowering the minimum and raising the threshold", func() {
			edges, err := d.RelationshipGraph(ctx, public, standings.GraphQuery{MinComparisons: 5, Threshold: 0.9})

			Convey("Then the five-vote sweep qualifies", func() {
				So(err, ShouldBeNil)
				So(len(edges), ShouldEqual, 2)
				So(edges[0].From.ID, ShouldEqual, "a")
				So(edges[0].To.ID, ShouldEqual, "d")
				So(edges[0].Confidence, ShouldEqual, 1)
			})
		})

		Convey("When a limit is set", func() {
			edges, err := d.RelationshipGraph(ctx, public, standings.GraphQuery{Limit: 1})

			Convey("Then the list is truncated", func() {
				So(err, ShouldBeNil)
				So(len(edges), ShouldEqual, 1)
			})
		})

		Convey("When the parameters are out of range", func() {
			_, errMin := d.RelationshipGraph(ctx, public, standings.GraphQuery{MinComparisons: -1})
			_, errHigh := d.RelationshipGraph(ctx, public, standings.GraphQuery{Threshold: 1.5})
			_, errScope := d.RelationshipGraph(ctx, model.Scope{Context: model.ContextGame, Segment: model.SegmentAll}, standings.GraphQuery{})

			Convey("Then they are rejected", func() {
				So(errMin, ShouldWrap, standings.ErrInvalidQuery)
				So(errHigh, ShouldWrap, standings.ErrInvalidQuery)
				So(errScope, ShouldWrap, scope.ErrInvalidScope)
			})
		})
	})
}

func TestHeadToHead(t *testing.T) {
	ctx := context.Background()

	Convey("Given an entity with a few opponents", t, func() {
		store := memory.New()
		for _, id := range []string{"a", "b", "c"} {
			put(ctx, store, id, model.StatusActive, model.VisibilityPublic)
		}
		put(ctx, store, "x", model.StatusDisabled, model.VisibilityPublic)
		rate(ctx, store, public, "a", 1030, 7, 4)
		rate(ctx, store, public, "b", 1040, 2, 1)
		tally(ctx, store, public, "a", "b", 2, 3)
		tally(ctx, store, public, "a", "c", 5, 6)
		tally(ctx, store, public, "a", "x", 0, 2)
		d := standings.New(store)

		Convey("When asking for its record", func() {
			h, err := d.HeadToHead(ctx, public, "a", 0)

			Convey("Then the standing and visible opponents are returned, busiest first", func() {
				So(err, ShouldBeNil)
				So(h.Rank, ShouldEqual, 2)
				So(h.Rating, ShouldEqual, 1030)
				So(len(h.Opponents), ShouldEqual, 2)
				So(h.Opponents[0].Entity.ID, ShouldEqual, "c")
				So(h.Opponents[0].Wins, ShouldEqual, 5)
				So(h.Opponents[0].Losses, ShouldEqual, 1)
				So(h.Opponents[1].Entity.ID, ShouldEqual, "b")
			})
		})

		Convey("When a hidden entity is rated above it", func() {
			rate(ctx, store, public, "x", 1100, 2, 0)
			h, err := d.HeadToHead(ctx, public, "a", 0)
			board, lbErr := d.Leaderboard(ctx, public, 0)

			Convey("Then its rank matches the leaderboard position", func() {
				So(err, ShouldBeNil)
				So(lbErr, ShouldBeNil)
				So(ids(board, func(e types.LeaderboardEntry) string { return e.Entity.ID }), ShouldResemble, []string{"b", "a"})
				So(h.Rank, ShouldEqual, 2)
				So(h.Rank, ShouldEqual, board[1].Rank)
			})
		})

		Convey("When the entity has never been rated", func() {
			h, err := d.HeadToHead(ctx, public, "c", 5)

			Convey("Then it has no rank and a baseline rating", func() {
				So(err, ShouldBeNil)
				So(h.Rank, ShouldEqual, 0)
				So(h.Rating, ShouldEqual, 1000)
				So(len(h.Opponents), ShouldEqual, 1)
			})
		})

		Convey("When the entity is hidden or missing", func() {
			_, errHidden := d.HeadToHead(ctx, public, "x", 0)
			_, errMissing := d.HeadToHead(ctx, public, "nobody", 0)

			Convey("Then it is reported unknown", func() {
				So(errHidden, ShouldWrap, standings.ErrUnknownEntity)
				So(errMissing, ShouldWrap, standings.ErrUnknownEntity)
			})
		})
	})
}

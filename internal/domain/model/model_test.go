package model_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/okian/duel/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func TestScope(t *testing.T) {
	convey.Convey("Given scopes", t, func() {
		public := model.PublicScope(model.SegmentAll)
		game := model.GameScope("g1", model.CategorySegment("sports"))

		convey.Convey("Then keys should be distinct and stable", func() {
			convey.So(public.Key(), convey.ShouldEqual, "public||all")
			convey.So(game.Key(), convey.ShouldEqual, "game|g1|category:sports")
			convey.So(game.WithSegment(model.GenderSegment("women")).Key(), convey.ShouldEqual, "game|g1|gender:women")
		})
	})
}

func TestCanonicalPair(t *testing.T) {
	convey.Convey("Given two entity ids in either order", t, func() {
		a1, b1 := model.CanonicalPair("zed", "amy")
		a2, b2 := model.CanonicalPair("amy", "zed")

		convey.Convey("Then the canonical order should not depend on operand order", func() {
			convey.So(a1, convey.ShouldEqual, "amy")
			convey.So(b1, convey.ShouldEqual, "zed")
			convey.So(a2, convey.ShouldEqual, a1)
			convey.So(b2, convey.ShouldEqual, b1)
		})

		convey.Convey("And a new pair record should be canonical", func() {
			p := model.NewPair(model.PublicScope(model.SegmentAll), "zed", "amy")
			convey.So(p.EntityA, convey.ShouldEqual, "amy")
			convey.So(p.EntityB, convey.ShouldEqual, "zed")
		})
	})
}

func TestPairOpponent(t *testing.T) {
	convey.Convey("Given a pair tally", t, func() {
		p := model.Pair{EntityA: "a", EntityB: "b", AWins: 7, BWins: 3, Comparisons: 10}

		convey.Convey("Then each side should see its own record", func() {
			opp, w, l := p.Opponent("a")
			convey.So(opp, convey.ShouldEqual, "b")
			convey.So(w, convey.ShouldEqual, 7)
			convey.So(l, convey.ShouldEqual, 3)

			opp, w, l = p.Opponent("b")
			convey.So(opp, convey.ShouldEqual, "a")
			convey.So(w, convey.ShouldEqual, 3)
			convey.So(l, convey.ShouldEqual, 7)
		})
	})
}

func TestRememberVote(t *testing.T) {
	convey.Convey("Given a vote list at capacity", t, func() {
		var votes []string
		for i := 0; i < model.MaxRecentVotes; i++ {
			votes = model.RememberVote(votes, fmt.Sprintf("v%d", i))
		}

		convey.Convey("When another vote is remembered", func() {
			next := model.RememberVote(votes, "latest")

			convey.Convey("Then the oldest should be dropped", func() {
				convey.So(len(next), convey.ShouldEqual, model.MaxRecentVotes)
				convey.So(next[len(next)-1], convey.ShouldEqual, "latest")
				convey.So(next, convey.ShouldNotContain, "v0")
			})

			convey.Convey("And the input slice should be left untouched", func() {
				convey.So(votes[0], convey.ShouldEqual, "v0")
			})
		})

		convey.Convey("Then a rating carrying the list should report applied votes", func() {
			r := model.Rating{RecentVotes: votes}
			convey.So(r.Applied("v3"), convey.ShouldBeTrue)
			convey.So(r.Applied("missing"), convey.ShouldBeFalse)
		})
	})
}

func TestEntityProjection(t *testing.T) {
	convey.Convey("Given an active private entity", t, func() {
		e := model.Entity{
			ID: "e1", Slug: "e-one", Name: "E One", Category: "sports", Gender: model.GenderWomen,
			Status: model.StatusActive, Visibility: model.VisibilityPrivate, CreatedAt: time.Now(),
		}

		convey.Convey("Then it should be visible in game scopes only", func() {
			convey.So(e.VisibleIn(model.ContextGame), convey.ShouldBeTrue)
			convey.So(e.VisibleIn(model.ContextPublic), convey.ShouldBeFalse)
		})

		convey.Convey("And its public projection should keep the display fields", func() {
			p := e.Public()
			convey.So(p.ID, convey.ShouldEqual, "e1")
			convey.So(p.Slug, convey.ShouldEqual, "e-one")
			convey.So(p.Category, convey.ShouldEqual, "sports")
		})

		convey.Convey("And a disabled entity should never be visible", func() {
			e.Status = model.StatusDisabled
			convey.So(e.VisibleIn(model.ContextGame), convey.ShouldBeFalse)
		})
	})
}

func TestVoteLoser(t *testing.T) {
	convey.Convey("Given votes", t, func() {
		convey.So(model.Vote{LeftID: "a", RightID: "b", WinnerID: "a"}.LoserID(), convey.ShouldEqual, "b")
		convey.So(model.Vote{LeftID: "a", RightID: "b", WinnerID: "b"}.LoserID(), convey.ShouldEqual, "a")
		convey.So(model.Vote{LeftID: "a", RightID: "b", Skipped: true}.LoserID(), convey.ShouldEqual, "")
		convey.So(model.Vote{}.Pending(), convey.ShouldBeTrue)
	})
}

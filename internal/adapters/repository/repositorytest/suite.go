// Package repositorytest holds the behaviour every storage backend must share.
// Backends call Run from their own tests with a factory for a fresh store.
package repositorytest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// Factory returns an empty store. It is called once per test path.
type Factory func(t *testing.T) repository.Store

var (
	public = model.PublicScope(model.SegmentAll)
	game   = model.GameScope("office", model.SegmentAll)
)

func entity(id, category, gender string, status model.Status, vis model.Visibility) model.Entity {
	return model.Entity{
		ID: id, Slug: id, Name: "Name " + id, Category: category, Gender: gender,
		Status: status, Visibility: vis, CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// Seed loads a small fixed corpus shared by the suite.
func Seed(ctx context.Context, t *testing.T, s repository.Store) {
	t.Helper()
	rows := []model.Entity{
		entity("ana", "sports", model.GenderWomen, model.StatusActive, model.VisibilityPublic),
		entity("ben", "sports", model.GenderMen, model.StatusActive, model.VisibilityPublic),
		entity("cat", "meme", model.GenderWomen, model.StatusActive, model.VisibilityPublic),
		entity("dan", "actor", model.GenderMen, model.StatusActive, model.VisibilityPrivate),
		entity("eve", "sports", model.GenderWomen, model.StatusPendingReview, model.VisibilityPublic),
		entity("fox", "streamer", model.GenderUnspecified, model.StatusDisabled, model.VisibilityPublic),
	}
	for _, e := range rows {
		if err := s.PutEntity(ctx, e); err != nil {
			t.Fatalf("put %s: %v", e.ID, err)
		}
	}
	if err := s.AddToPool(ctx, "office", "ana", "dan", "eve"); err != nil {
		t.Fatalf("add pool: %v", err)
	}
}

func ids(es []model.Entity) []string {
	out := make([]string, 0, len(es))
	for _, e := range es {
		out = append(out, e.ID)
	}
	return out
}

func win(voteID string, delta float64, won bool) repository.RatingMutator {
	return func(cur model.Rating) (model.Rating, bool) {
		if cur.Applied(voteID) {
			return cur, false
		}
		cur.Rating += delta
		if won {
			cur.Wins++
		} else {
			cur.Losses++
		}
		cur.Comparisons++
		cur.RecentVotes = model.RememberVote(cur.RecentVotes, voteID)
		return cur, true
	}
}

func pairWin(voteID, winner string) repository.PairMutator {
	return func(cur model.Pair) (model.Pair, bool) {
		if cur.Applied(voteID) {
			return cur, false
		}
		if winner == cur.EntityA {
			cur.AWins++
		} else {
			cur.BWins++
		}
		cur.Comparisons++
		cur.RecentVotes = model.RememberVote(cur.RecentVotes, voteID)
		return cur, true
	}
}

// Run executes the shared backend suite.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	Convey("Given a seeded store", t, func() {
		s := newStore(t)
		Reset(func() { _ = s.Close(ctx) })
		Seed(ctx, t, s)

		Convey("When listing public candidates", func() {
			got, err := s.ListCandidates(ctx, repository.CandidateQuery{Visibility: model.VisibilityPublic, Limit: 100})

			Convey("Then only active public entities should be returned", func() {
				So(err, ShouldBeNil)
				So(ids(got), ShouldResemble, []string{"ana", "ben", "cat"})
			})
		})

		Convey("When filtering by categories, gender and exclusions", func() {
			byCat, err1 := s.ListCandidates(ctx, repository.CandidateQuery{Visibility: model.VisibilityPublic, Categories: []string{"sports", "meme"}, Limit: 100})
			byGender, err2 := s.ListCandidates(ctx, repository.CandidateQuery{Visibility: model.VisibilityPublic, Gender: model.GenderWomen, Limit: 100})
			excluded, err3 := s.ListCandidates(ctx, repository.CandidateQuery{Visibility: model.VisibilityPublic, ExcludeIDs: []string{"ana", "cat"}, Limit: 100})

			Convey("Then each constraint should apply", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(err3, ShouldBeNil)
				So(ids(byCat), ShouldResemble, []string{"ana", "ben", "cat"})
				So(ids(byGender), ShouldResemble, []string{"ana", "cat"})
				So(ids(excluded), ShouldResemble, []string{"ben"})
			})
		})

		Convey("When the pool is capped", func() {
			got, err := s.ListCandidates(ctx, repository.CandidateQuery{Visibility: model.VisibilityPublic, Limit: 2})

			Convey("Then at most the cap should be returned", func() {
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 2)
			})
		})

		Convey("When listing a group's candidates", func() {
			got, err := s.ListCandidates(ctx, repository.CandidateQuery{GroupID: "office", Limit: 100})
			size, errSize := s.PoolSize(ctx, "office")
			member, errIn := s.PoolContains(ctx, "office", "ana", "dan")
			outsider, _ := s.PoolContains(ctx, "office", "ana", "ben")

			Convey("Then private members are included and inactive ones are not", func() {
				So(err, ShouldBeNil)
				So(errSize, ShouldBeNil)
				So(errIn, ShouldBeNil)
				So(ids(got), ShouldResemble, []string{"ana", "dan"})
				So(size, ShouldEqual, 3)
				So(member, ShouldBeTrue)
				So(outsider, ShouldBeFalse)
			})
		})

		Convey("When fetching entities by id", func() {
			got, err := s.GetEntities(ctx, []string{"ana", "zzz"})

			Convey("Then only existing ones should be returned", func() {
				So(err, ShouldBeNil)
				So(len(got), ShouldEqual, 1)
				So(got["ana"].Category, ShouldEqual, "sports")
				So(got["ana"].Visibility, ShouldEqual, model.VisibilityPublic)
			})
		})

		Convey("When reading a rating that was never written", func() {
			r, err := s.GetRating(ctx, public, "ana")
			_, rankErr := s.RankOf(ctx, public, "ana")

			Convey("Then the baseline record should be returned", func() {
				So(err, ShouldBeNil)
				So(r.Rating, ShouldEqual, repository.DefaultBaseline)
				So(r.Version, ShouldEqual, 0)
				So(r.Comparisons, ShouldEqual, 0)
				So(rankErr, ShouldWrap, repository.ErrNotFound)
			})
		})

		Convey("When a rating is upserted", func() {
			r, err := s.UpsertRating(ctx, public, "ana", win("v1", 12, true))

			Convey("Then the record should be created at version 1", func() {
				So(err, ShouldBeNil)
				So(r.Rating, ShouldEqual, 1012)
				So(r.Wins, ShouldEqual, 1)
				So(r.Comparisons, ShouldEqual, 1)
				So(r.Version, ShouldEqual, 1)

				got, err := s.GetRating(ctx, public, "ana")
				So(err, ShouldBeNil)
				So(got.Rating, ShouldEqual, 1012)
				So(got.RecentVotes, ShouldResemble, []string{"v1"})
			})

			Convey("And replaying the same vote should change nothing", func() {
				again, err := s.UpsertRating(ctx, public, "ana", win("v1", 12, true))
				So(err, ShouldBeNil)
				So(again.Version, ShouldEqual, 1)
				So(again.Comparisons, ShouldEqual, 1)
			})

			Convey("And other scopes should be unaffected", func() {
				other, err := s.GetRating(ctx, game, "ana")
				So(err, ShouldBeNil)
				So(other.Version, ShouldEqual, 0)
				So(other.Rating, ShouldEqual, repository.DefaultBaseline)
			})

			Convey("And comparison counts should reflect it", func() {
				counts, err := s.ComparisonCounts(ctx, public, []string{"ana", "ben"})
				So(err, ShouldBeNil)
				So(counts["ana"], ShouldEqual, 1)
				So(counts, ShouldNotContainKey, "ben")
			})
		})

		Convey("When another writer commits between read and write", func() {
			_, err := s.UpsertRating(ctx, public, "ana", func(cur model.Rating) (model.Rating, bool) {
				if _, innerErr := s.UpsertRating(ctx, public, "ana", win("inner", 5, true)); innerErr != nil {
					panic(innerErr)
				}
				cur.Rating += 7
				cur.Wins++
				cur.Comparisons++
				return cur, true
			})

			Convey("Then the outer write should be rejected as a conflict", func() {
				So(err, ShouldWrap, repository.ErrConflict)
				got, _ := s.GetRating(ctx, public, "ana")
				So(got.Rating, ShouldEqual, 1005)
				So(got.Comparisons, ShouldEqual, 1)
			})
		})

		Convey("When a mutation breaks the record invariants", func() {
			_, err := s.UpsertRating(ctx, public, "ana", func(cur model.Rating) (model.Rating, bool) {
				cur.Wins = 3
				return cur, true
			})

			Convey("Then it should be refused", func() {
				So(err, ShouldWrap, repository.ErrInvalidRecord)
			})
		})

		Convey("When several ratings exist", func() {
			for i, step := range []struct {
				id    string
				delta float64
			}{{"ana", 30}, {"ben", -10}, {"cat", 30}, {"dan", 5}} {
				_, err := s.UpsertRating(ctx, public, step.id, win(fmt.Sprintf("v%d", i), step.delta, step.delta > 0))
				So(err, ShouldBeNil)
			}

			Convey("Then TopRatings should order by rating desc then id asc", func() {
				top, err := s.TopRatings(ctx, public, 0, 10)
				So(err, ShouldBeNil)
				got := make([]string, 0, len(top))
				for _, r := range top {
					got = append(got, r.EntityID)
				}
				So(got, ShouldResemble, []string{"ana", "cat", "dan", "ben"})
			})

			Convey("And paging should continue where the last page stopped", func() {
				page, err := s.TopRatings(ctx, public, 2, 10)
				So(err, ShouldBeNil)
				So(len(page), ShouldEqual, 2)
				So(page[0].EntityID, ShouldEqual, "dan")
			})

			Convey("And RankOf should agree with the order", func() {
				rank, err := s.RankOf(ctx, public, "cat")
				So(err, ShouldBeNil)
				So(rank, ShouldEqual, 2)
				rank, _ = s.RankOf(ctx, public, "ben")
				So(rank, ShouldEqual, 4)
			})

			Convey("And invalid limits should be rejected", func() {
				_, err := s.TopRatings(ctx, public, 0, 0)
				So(err, ShouldWrap, repository.ErrInvalidLimit)
			})
		})

		Convey("When pair records are upserted in both operand orders", func() {
			_, err1 := s.UpsertPair(ctx, public, "ben", "ana", pairWin("v1", "ben"))
			p, err2 := s.UpsertPair(ctx, public, "ana", "ben", pairWin("v2", "ana"))

			Convey("Then a single canonical record should hold both votes", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(p.EntityA, ShouldEqual, "ana")
				So(p.EntityB, ShouldEqual, "ben")
				So(p.AWins, ShouldEqual, 1)
				So(p.BWins, ShouldEqual, 1)
				So(p.Comparisons, ShouldEqual, 2)
				So(p.Version, ShouldEqual, 2)

				got, err := s.GetPair(ctx, public, "ben", "ana")
				So(err, ShouldBeNil)
				So(got.AWins+got.BWins, ShouldEqual, got.Comparisons)
			})

			Convey("And list queries should honour the minimum and the entity", func() {
				_, err := s.UpsertPair(ctx, public, "ana", "cat", pairWin("v3", "cat"))
				So(err, ShouldBeNil)

				all, err := s.ListPairs(ctx, public, 1)
				So(err, ShouldBeNil)
				So(len(all), ShouldEqual, 2)

				busy, err := s.ListPairs(ctx, public, 2)
				So(err, ShouldBeNil)
				So(len(busy), ShouldEqual, 1)

				forAna, err := s.PairsFor(ctx, public, "ana", 10)
				So(err, ShouldBeNil)
				So(len(forAna), ShouldEqual, 2)
				So(forAna[0].EntityB, ShouldEqual, "ben")

				forCat, err := s.PairsFor(ctx, public, "cat", 10)
				So(err, ShouldBeNil)
				So(len(forCat), ShouldEqual, 1)
			})
		})

		Convey("When votes are appended", func() {
			base := time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
			v1 := model.Vote{ID: "v1", CreatedAt: base, Scope: public, LeftID: "ana", RightID: "ben", WinnerID: "ana",
				SessionID: "s1", Filters: model.Filters{Categories: []string{"sports"}, Gender: "women"}}
			v2 := model.Vote{ID: "v2", CreatedAt: base.Add(time.Second), Scope: game, LeftID: "ana", RightID: "dan", Skipped: true}

			_, err1 := s.AppendVote(ctx, v1)
			_, err2 := s.AppendVote(ctx, v2)

			Convey("Then they should be readable and pending", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				got, err := s.GetVote(ctx, "v1")
				So(err, ShouldBeNil)
				So(got.WinnerID, ShouldEqual, "ana")
				So(got.Scope, ShouldResemble, public)
				So(got.Filters.Categories, ShouldResemble, []string{"sports"})
				So(got.Pending(), ShouldBeTrue)

				skip, err := s.GetVote(ctx, "v2")
				So(err, ShouldBeNil)
				So(skip.Skipped, ShouldBeTrue)
				So(skip.Scope, ShouldResemble, game)

				n, err := s.CountVotes(ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
			})

			Convey("And appending the same id again should return the stored vote", func() {
				dup := v1
				dup.WinnerID = "ben"
				stored, err := s.AppendVote(ctx, dup)
				So(err, ShouldWrap, repository.ErrDuplicateVote)
				So(stored.WinnerID, ShouldEqual, "ana")
			})

			Convey("And pending votes should be listed oldest first until applied", func() {
				pending, err := s.PendingVotes(ctx, time.Now().UTC(), 10)
				So(err, ShouldBeNil)
				So(len(pending), ShouldEqual, 2)
				So(pending[0].ID, ShouldEqual, "v1")

				So(s.MarkApplied(ctx, "v1", time.Now()), ShouldBeNil)
				pending, err = s.PendingVotes(ctx, time.Now().UTC(), 10)
				So(err, ShouldBeNil)
				So(len(pending), ShouldEqual, 1)
				So(pending[0].ID, ShouldEqual, "v2")

				got, _ := s.GetVote(ctx, "v1")
				So(got.AppliedAt, ShouldNotBeNil)
			})

			Convey("And the first plan should stick while steps accumulate", func() {
				plan, err := s.PlanVote(ctx, "v1", model.VotePlan{LeftDelta: 12, RightDelta: -12})
				So(err, ShouldBeNil)
				So(plan, ShouldResemble, model.VotePlan{LeftDelta: 12, RightDelta: -12})

				again, err := s.PlanVote(ctx, "v1", model.VotePlan{LeftDelta: 11.5, RightDelta: -11.5})
				So(err, ShouldBeNil)
				So(again, ShouldResemble, plan)

				So(s.MarkStep(ctx, "v1", model.StepLeft), ShouldBeNil)
				So(s.MarkStep(ctx, "v1", model.StepPair), ShouldBeNil)
				So(s.MarkStep(ctx, "v1", model.StepLeft), ShouldBeNil)

				got, err := s.GetVote(ctx, "v1")
				So(err, ShouldBeNil)
				So(got.Plan, ShouldNotBeNil)
				So(*got.Plan, ShouldResemble, plan)
				So(got.Steps, ShouldEqual, model.StepLeft|model.StepPair)
				So(got.Steps.Has(model.StepRight), ShouldBeFalse)
				So(got.Pending(), ShouldBeTrue)

				fresh, _ := s.GetVote(ctx, "v2")
				So(fresh.Plan, ShouldBeNil)
				So(fresh.Steps, ShouldEqual, model.VoteStep(0))

				_, err = s.PlanVote(ctx, "nope", plan)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(s.MarkStep(ctx, "nope", model.StepLeft), repository.ErrNotFound), ShouldBeTrue)
			})

			Convey("And votes newer than the cutoff should not be pending yet", func() {
				pending, err := s.PendingVotes(ctx, base, 10)
				So(err, ShouldBeNil)
				So(pending, ShouldBeEmpty)
			})

			Convey("And unknown ids should not be found", func() {
				_, err := s.GetVote(ctx, "nope")
				So(err, ShouldWrap, repository.ErrNotFound)
				So(s.MarkApplied(ctx, "nope", time.Now()), ShouldWrap, repository.ErrNotFound)
			})
		})

		Convey("When many writers update one entity concurrently", func() {
			const writers = 8
			var wg sync.WaitGroup
			errs := make(chan error, writers)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					voteID := fmt.Sprintf("c%d", i)
					for attempt := 0; attempt < 200; attempt++ {
						_, err := s.UpsertRating(ctx, public, "ana", win(voteID, 1, true))
						if err == nil {
							return
						}
						if !isConflict(err) {
							errs <- err
							return
						}
						time.Sleep(time.Millisecond)
					}
					errs <- fmt.Errorf("writer %d never committed", i)
				}(i)
			}
			wg.Wait()
			close(errs)

			Convey("Then no update should be lost", func() {
				for err := range errs {
					So(err, ShouldBeNil)
				}
				got, err := s.GetRating(ctx, public, "ana")
				So(err, ShouldBeNil)
				So(got.Comparisons, ShouldEqual, writers)
				So(got.Version, ShouldEqual, writers)
			})
		})
	})
}

func isConflict(err error) bool {
	return errors.Is(err, repository.ErrConflict)
}

package simulate_test

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/duel/internal/adapters/http/api"
	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/adapters/repository/memory"
	service "github.com/okian/duel/internal/app"
	"github.com/okian/duel/internal/simulate"
	. "github.com/smartystreets/goconvey/convey"
)

func startServer(t *testing.T, entities int) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	seed := repository.Seed{}
	for i := 0; i < entities; i++ {
		seed.Entities = append(seed.Entities, repository.SeedEntity{
			ID:       fmt.Sprintf("player-%02d", i),
			Name:     fmt.Sprintf("Player %d", i),
			Category: "sports",
			Gender:   "women",
		})
	}
	store := memory.New()
	if _, err := repository.ApplySeed(ctx, store, seed); err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	svc := service.New(service.WithStore(store), service.WithWorkerCount(2), service.WithReplaySchedule(time.Hour, 0))
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	srv := httptest.NewServer(api.NewServer(svc, svc).Handler(ctx))
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Stop(ctx)
	})
	return srv
}

func ladder(entities int) map[string]float64 {
	out := make(map[string]float64, entities)
	for i := 0; i < entities; i++ {
		out[fmt.Sprintf("player-%02d", i)] = float64(i) / float64(entities)
	}
	return out
}

func TestStrength(t *testing.T) {
	Convey("Given hidden strengths", t, func() {
		Convey("Then they should be stable and bounded", func() {
			s := simulate.Strength("player-01")
			So(s, ShouldEqual, simulate.Strength("player-01"))
			So(s, ShouldBeGreaterThanOrEqualTo, 0)
			So(s, ShouldBeLessThan, 1)
		})

		Convey("Then ids differing only in their last byte should spread out", func() {
			lo, hi := 1.0, 0.0
			for i := 0; i < 8; i++ {
				s := simulate.Strength(fmt.Sprintf("player-%02d", i))
				lo, hi = math.Min(lo, s), math.Max(hi, s)
			}
			So(hi-lo, ShouldBeGreaterThan, 0.1)
			So(math.Abs(simulate.Strength("player-00")-simulate.Strength("player-01")), ShouldBeGreaterThan, 1e-6)
		})

		Convey("Then win probabilities should be complementary", func() {
			p := simulate.WinProbability(0.2, 0.7)
			q := simulate.WinProbability(0.7, 0.2)
			So(p+q, ShouldAlmostEqual, 1, 1e-9)
			So(p, ShouldBeLessThan, 0.05)
			So(simulate.WinProbability(0.4, 0.4), ShouldAlmostEqual, 0.5, 1e-9)
		})

		Convey("Then concordance should score orderings", func() {
			strengths := ladder(5)
			strength := func(id string) float64 { return strengths[id] }
			best := []string{"player-04", "player-03", "player-02", "player-01", "player-00"}
			worst := []string{"player-00", "player-01", "player-02", "player-03", "player-04"}
			So(simulate.Concordance(best, strength), ShouldEqual, 1)
			So(simulate.Concordance(worst, strength), ShouldEqual, 0)
			So(simulate.Concordance([]string{"solo"}, strength), ShouldEqual, 1)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running duel API", t, func() {
		srv := startServer(t, 8)

		Convey("When simulating voters with resubmissions", func() {
			stats, err := simulate.Run(context.Background(), simulate.Config{
				BaseURL:       srv.URL,
				Votes:         400,
				Workers:       4,
				Top:           20,
				DuplicateRate: 0.2,
				SkipRate:      0.05,
				Seed:          7,
				Strengths:     ladder(8),
			}, nil)

			Convey("Then every vote should land and duplicates be recognised", func() {
				So(err, ShouldBeNil)
				So(stats.Matchups, ShouldEqual, 400)
				So(stats.Recorded+stats.Skipped+stats.Conflicts, ShouldEqual, 400)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Duplicates, ShouldBeGreaterThan, 0)
				So(stats.DuplicateMismatches, ShouldEqual, 0)
			})

			Convey("Then the leaderboard should mostly follow hidden strength", func() {
				So(stats.LeaderboardEntries, ShouldEqual, 8)
				So(stats.Concordance, ShouldBeGreaterThan, 0.6)
			})
		})

		Convey("When the pool is too small for a matchup", func() {
			small := startServer(t, 1)
			_, err := simulate.Run(context.Background(), simulate.Config{BaseURL: small.URL, Votes: 5, Workers: 1}, nil)

			Convey("Then the run should stop with the matchup error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "matchup")
			})
		})
	})

	Convey("Given an unhealthy service", t, func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		Convey("When starting a run", func() {
			_, err := simulate.Run(context.Background(), simulate.Config{BaseURL: srv.URL}, nil)

			Convey("Then the health check should fail", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "health check")
			})
		})
	})
}

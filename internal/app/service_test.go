package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/duel/internal/adapters/repository"
	service "github.com/okian/duel/internal/app"
	"github.com/okian/duel/internal/config"
	"github.com/okian/duel/internal/domain/ingest"
	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/standings"
	"github.com/okian/duel/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

const seedYAML = `
entities:
  - id: serena
    name: Serena
    category: sports
    gender: women
  - id: venus
    name: Venus
    category: sports
    gender: women
  - id: pewds
    name: Pewds
    category: youtuber
    gender: men
  - id: hidden
    name: Hidden
    category: sports
    gender: men
    visibility: private
groups:
  - id: office
    members: [serena, venus, hidden]
`

func writeSeed(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		ctx := context.Background()
		svc := service.New()

		Convey("When it is used before Start", func() {
			_, errMatch := svc.Matchup(ctx, model.PublicScope(model.SegmentAll), model.Filters{}, nil)
			_, errVote := svc.Vote(ctx, ingest.VoteRequest{})
			_, errBoard := svc.Leaderboard(ctx, model.PublicScope(model.SegmentAll), 10)
			_, errGraph := svc.Graph(ctx, model.PublicScope(model.SegmentAll), standings.GraphQuery{})
			_, errH2H := svc.HeadToHead(ctx, model.PublicScope(model.SegmentAll), "x", 5)

			Convey("Then every operation should report it is not started", func() {
				for _, err := range []error{errMatch, errVote, errBoard, errGraph, errH2H} {
					So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
				}
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			})
		})

		Convey("When it is started and stopped", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			stats := svc.GetStats(ctx)
			So(svc.Stop(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then stats should reflect both states", func() {
				So(stats["started"], ShouldEqual, true)
				So(stats["store"], ShouldEqual, "memory")
				So(stats["votesLogged"], ShouldEqual, int64(0))
				So(svc.GetStats(ctx)["started"], ShouldEqual, false)
			})
		})
	})

	Convey("Given a service configured with an unknown backend", t, func() {
		svc := service.New(service.WithBackend("cassandra", ""))

		Convey("Then Start should fail", func() {
			err := svc.Start(context.Background())
			So(errors.Is(err, repository.ErrUnknownBackend), ShouldBeTrue)
		})
	})

	Convey("Given a service configured with a missing seed file", t, func() {
		svc := service.New(service.WithSeedFile(filepath.Join(t.TempDir(), "nope.yaml")))

		Convey("Then Start should fail", func() {
			So(svc.Start(context.Background()), ShouldNotBeNil)
		})
	})
}

func TestService_WithConfig(t *testing.T) {
	Convey("Given a config selecting sqlite and a seed file", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		cfg.Store = config.StoreSQLite
		cfg.SQLDSN = "file:service_config?mode=memory&cache=shared"
		cfg.SeedFile = writeSeed(t)
		cfg.ReplayWorkers = 2

		svc := service.New(service.WithConfig(cfg))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When a matchup is requested", func() {
			m, err := svc.Matchup(ctx, model.PublicScope(model.SegmentAll), model.Filters{}, nil)

			Convey("Then two distinct public entities should be returned", func() {
				So(err, ShouldBeNil)
				So(m.Left.ID, ShouldNotEqual, m.Right.ID)
				So(m.Left.ID, ShouldNotEqual, "hidden")
				So(m.Right.ID, ShouldNotEqual, "hidden")
				So(svc.GetStats(ctx)["store"], ShouldEqual, "sqlite")
				So(svc.GetStats(ctx)["workerCount"], ShouldEqual, 2)
			})
		})
	})
}

func TestService_Guest(t *testing.T) {
	Convey("Given a guest vote", t, func() {
		svc := service.New()
		res := svc.AcknowledgeGuest(context.Background(), ingest.VoteRequest{Scope: model.PublicScope(model.SegmentAll)})

		Convey("Then it should be acknowledged without a vote id", func() {
			So(res.Result, ShouldEqual, types.ResultGuestVoteAcknowledged)
			So(res.VoteID, ShouldBeEmpty)
		})
	})
}

func TestService_StartTimeout(t *testing.T) {
	Convey("Given a started service and a short stop deadline", t, func() {
		svc := service.New(service.WithWorkerCount(1))
		So(svc.Start(context.Background()), ShouldBeNil)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		Convey("Then an idle pipeline should stop in time", func() {
			So(svc.Stop(ctx), ShouldBeNil)
		})
	})
}

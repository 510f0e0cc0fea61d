package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/okian/duel/internal/adapters/repository"
	"github.com/okian/duel/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type recordingWriter struct {
	entities map[string]model.Entity
	pools    map[string][]string
}

func (w *recordingWriter) PutEntity(_ context.Context, e model.Entity) error {
	w.entities[e.ID] = e
	return nil
}

func (w *recordingWriter) AddToPool(_ context.Context, groupID string, ids ...string) error {
	w.pools[groupID] = append(w.pools[groupID], ids...)
	return nil
}

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestSeed(t *testing.T) {
	Convey("Given a seed file", t, func() {
		path := writeSeed(t, `
entities:
  - id: serena
    name: Serena
    category: sports
    gender: women
  - id: pewds
    name: Pewds
    category: youtuber
    gender: men
    visibility: private
    status: pending_review
groups:
  - id: office
    members: [serena, pewds]
`)
		seed, err := repository.LoadSeed(path)

		Convey("Then it should decode every row", func() {
			So(err, ShouldBeNil)
			So(len(seed.Entities), ShouldEqual, 2)
			So(seed.Groups[0].Members, ShouldResemble, []string{"serena", "pewds"})
		})

		Convey("When applied to a writer", func() {
			w := &recordingWriter{entities: map[string]model.Entity{}, pools: map[string][]string{}}
			n, err := repository.ApplySeed(context.Background(), w, seed)

			Convey("Then entities should get defaults and pools should be written", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
				So(w.entities["serena"].Status, ShouldEqual, model.StatusActive)
				So(w.entities["serena"].Visibility, ShouldEqual, model.VisibilityPublic)
				So(w.entities["serena"].Slug, ShouldEqual, "serena")
				So(w.entities["pewds"].Status, ShouldEqual, model.StatusPendingReview)
				So(w.pools["office"], ShouldResemble, []string{"serena", "pewds"})
			})
		})
	})

	Convey("Given a seed row with an unknown category", t, func() {
		_, err := repository.SeedEntity{ID: "x", Category: "chess"}.Entity(repository.Now())

		Convey("Then it should be rejected", func() {
			So(err, ShouldWrap, repository.ErrInvalidRecord)
		})
	})

	Convey("Given a missing seed file", t, func() {
		_, err := repository.LoadSeed(filepath.Join(t.TempDir(), "missing.yaml"))

		Convey("Then loading should fail", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestCheckPair(t *testing.T) {
	Convey("Given a pair mutation", t, func() {
		prev := model.Pair{EntityA: "a", EntityB: "b", AWins: 1, BWins: 1, Comparisons: 2}

		Convey("Then a conserving update should pass", func() {
			next := prev
			next.AWins++
			next.Comparisons++
			So(repository.CheckPair(prev, next), ShouldBeNil)
		})

		Convey("And a non-conserving update should fail", func() {
			next := prev
			next.Comparisons++
			So(repository.CheckPair(prev, next), ShouldWrap, repository.ErrInvalidRecord)
		})
	})
}

func TestCheckRating(t *testing.T) {
	Convey("Given a rating mutation", t, func() {
		prev := model.Rating{Rating: 1000, Wins: 1, Comparisons: 1}

		Convey("Then decreasing comparisons should fail", func() {
			next := prev
			next.Comparisons = 0
			next.Wins = 0
			So(repository.CheckRating(prev, next), ShouldWrap, repository.ErrInvalidRecord)
		})

		Convey("And a normal win should pass", func() {
			next := prev
			next.Wins++
			next.Comparisons++
			next.Rating += 12
			So(repository.CheckRating(prev, next), ShouldBeNil)
		})
	})
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRegistry(registry))

			Convey("Then it should be created with defaults", func() {
				So(manager, ShouldNotBeNil)
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
				So(manager.Enabled(), ShouldBeTrue)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("arena"),
				WithRefreshInterval(5*time.Second),
				WithConstLabels(map[string]string{"env": "test"}),
				WithRegistry(registry),
			)
			manager.votes.WithLabelValues("public", OutcomeApplied).Inc()

			Convey("Then collectors should carry the namespace and labels", func() {
				So(manager.RefreshInterval(), ShouldEqual, 5*time.Second)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				labels := map[string]string{}
				for _, f := range families {
					if f.GetName() != "arena_engine_votes_total" {
						continue
					}
					for _, l := range f.GetMetric()[0].GetLabel() {
						labels[l.GetName()] = l.GetValue()
					}
				}
				So(labels["env"], ShouldEqual, "test")
				So(labels["outcome"], ShouldEqual, OutcomeApplied)
			})
		})

		Convey("When empty values are passed", func() {
			manager := NewManager(WithNamespace(""), WithRefreshInterval(0), WithRegistry(prometheus.NewRegistry()))

			Convey("Then the defaults should stay", func() {
				So(manager.namespace, ShouldEqual, "duel")
				So(manager.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestConfigure(t *testing.T) {
	Convey("Given the process-wide manager", t, func() {
		prevManager, prevRegistry := globalManager, customRegistry
		Reset(func() { globalManager, customRegistry = prevManager, prevRegistry })

		Convey("When it is reconfigured with a namespace", func() {
			m := Configure(WithNamespace("arena"), WithRefreshInterval(3*time.Second))
			RecordVote("public", OutcomeApplied)

			Convey("Then the new registry should expose the renamed collectors", func() {
				So(Global(), ShouldEqual, m)
				So(GetRegistry(), ShouldNotEqual, prevRegistry)
				So(Global().RefreshInterval(), ShouldEqual, 3*time.Second)
				n, err := testutil.GatherAndCount(GetRegistry(), "arena_engine_votes_total")
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
			})
		})

		Convey("When it is reconfigured disabled", func() {
			Configure(WithEnabled(false))
			RecordVote("public", OutcomeApplied)

			Convey("Then recording should be a no-op", func() {
				So(Global().Enabled(), ShouldBeFalse)
				So(testutil.ToFloat64(globalManager.votes.WithLabelValues("public", OutcomeApplied)), ShouldEqual, 0)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording a vote", func() {
			before := testutil.ToFloat64(globalManager.votes.WithLabelValues("public", OutcomeApplied))
			RecordVote("public", OutcomeApplied)
			after := testutil.ToFloat64(globalManager.votes.WithLabelValues("public", OutcomeApplied))

			Convey("Then the counter should increase by one", func() {
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When updating the replay queue gauges", func() {
			UpdateReplayQueueCapacity(128)
			UpdateReplayQueueSize(7)

			Convey("Then the gauges should hold the last value", func() {
				So(testutil.ToFloat64(globalManager.replayQueueCapacity), ShouldEqual, 128)
				So(testutil.ToFloat64(globalManager.replayQueueSize), ShouldEqual, 7)
			})
		})

		Convey("When recording the remaining collectors", func() {
			Convey("Then nothing should panic", func() {
				So(func() {
					RecordVoteLatency(3.5)
					RecordCASConflict("rating")
					RecordMatchup("game", OutcomeInsufficientPool)
					RecordMatchupPoolSize(42)
					RecordDerivationLatency("leaderboard", 1.2)
					RecordStoreLatency("memory", "upsert_rating", 0.2)
					RecordStoreError("sql", "append_vote")
					RecordReplay(OutcomeApplied)
					RecordReplayLatency(4)
					UpdateWorkerActiveCount(2)
					UpdateFeedSubscribers(3)
					RecordFeedDropped()
					RecordHTTPRequest("/v1/votes", "POST", "200")
					RecordHTTPRequestDuration("/v1/votes", "POST", "200", 12)
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(12)
					RecordSystemGCPauseTime(0.3)
				}, ShouldNotPanic)
			})
		})

		Convey("When measuring elapsed time", func() {
			start := time.Now().Add(-5 * time.Millisecond)

			Convey("Then Since should report milliseconds", func() {
				So(Since(start), ShouldBeGreaterThanOrEqualTo, 5)
			})
		})

		Convey("When exposing the registry", func() {
			Convey("Then it should be the custom registry", func() {
				So(GetRegistry(), ShouldEqual, customRegistry)
				So(Global(), ShouldNotBeNil)
			})
		})
	})
}

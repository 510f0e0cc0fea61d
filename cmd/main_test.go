package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/duel/internal/adapters/http/feed"
	service "github.com/okian/duel/internal/app"
	"github.com/okian/duel/internal/config"
	"github.com/okian/duel/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigFromEnvironment(t *testing.T) {
	convey.Convey("Given duel environment variables", t, func() {
		t.Setenv("DUEL_ADDR", ":8080")
		t.Setenv("DUEL_REPLAY_QUEUE_SIZE", "1000")
		t.Setenv("DUEL_REPLAY_WORKERS", "4")

		convey.Convey("Then configuration should be loadable", func() {
			cfg, err := config.Load(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.ReplayQueueSize, convey.ShouldEqual, 1000)
			convey.So(cfg.ReplayWorkers, convey.ShouldEqual, 4)
		})
	})
}

func TestBuildHandler(t *testing.T) {
	convey.Convey("Given a started service and feed hub", t, func() {
		ctx := context.Background()
		cfg := config.New(ctx)
		hub := feed.NewHub()
		svc := service.New(service.WithConfig(cfg), service.WithPublisher(hub))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)
		convey.Reset(func() {
			hub.Close()
			_ = svc.Stop(ctx)
		})

		handler := buildHandler(ctx, cfg, svc, hub, logger.Nop())

		convey.Convey("Then operational and API routes should be served", func() {
			for _, path := range []string{"/healthz", "/stats", "/api-docs", "/openapi.yaml", "/v1/leaderboard"} {
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			}
		})

		convey.Convey("Then an empty pool should not produce a matchup", func() {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/matchup", http.NoBody))
			convey.So(rec.Code, convey.ShouldEqual, http.StatusConflict)
		})

		convey.Convey("Then the metric updaters should not panic", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
			convey.So(func() { updateServiceMetrics(ctx, svc) }, convey.ShouldNotPanic)

			short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			convey.So(func() {
				startSystemMetricsUpdater(short)
				startServiceMetricsUpdater(short, svc)
			}, convey.ShouldNotPanic)
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a configuration on an ephemeral port", t, func() {
		cfg := config.New(context.Background())
		cfg.Addr = "127.0.0.1:0"

		convey.Convey("When the context is cancelled", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			err := run(ctx, cfg, logger.Nop())

			convey.Convey("Then run should shut down cleanly", func() {
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the store backend is unknown", func() {
			cfg.Store = "cassandra"
			err := run(context.Background(), cfg, logger.Nop())

			convey.Convey("Then run should fail before serving", func() {
				convey.So(err, convey.ShouldNotBeNil)
			})
		})
	})
}

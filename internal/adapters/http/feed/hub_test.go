package feed_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/duel/internal/adapters/http/feed"
	"github.com/okian/duel/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func dial(t *testing.T, srv *httptest.Server, scope string) *websocket.Conn {
	t.Helper()
	target := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?scope=" + url.QueryEscape(scope)
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitSubscribers(h *feed.Hub, scope string, n int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.Subscribers(scope) == n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestHub(t *testing.T) {
	Convey("Given a hub behind a test server", t, func() {
		hub := feed.NewHub()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hub.Serve(w, r, r.URL.Query().Get("scope"))
		}))
		Reset(func() {
			hub.Close()
			srv.Close()
		})

		public := dial(t, srv, "public||all")
		game := dial(t, srv, "game|office|all")
		defer public.Close()
		defer game.Close()
		So(waitSubscribers(hub, "public||all", 1), ShouldBeTrue)
		So(waitSubscribers(hub, "game|office|all", 1), ShouldBeTrue)

		Convey("When a vote is published to one scope", func() {
			hub.Publish(context.Background(), types.FeedEvent{VoteID: "v1", Scope: "public||all", WinnerID: "a", LoserID: "b"})

			Convey("Then only that scope's subscribers should receive it", func() {
				var got types.FeedEvent
				_ = public.SetReadDeadline(time.Now().Add(2 * time.Second))
				So(public.ReadJSON(&got), ShouldBeNil)
				So(got.VoteID, ShouldEqual, "v1")
				So(got.WinnerID, ShouldEqual, "a")

				_ = game.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
				_, _, err := game.ReadMessage()
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When a subscriber disconnects", func() {
			_ = public.Close()

			Convey("Then it should be forgotten", func() {
				So(waitSubscribers(hub, "public||all", 0), ShouldBeTrue)
				So(hub.Subscribers("game|office|all"), ShouldEqual, 1)
			})
		})

		Convey("When the hub closes", func() {
			hub.Close()

			Convey("Then subscribers should be disconnected", func() {
				So(hub.Subscribers("public||all"), ShouldEqual, 0)
				_ = public.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, _, err := public.ReadMessage()
				So(err, ShouldNotBeNil)
			})
		})
	})
}

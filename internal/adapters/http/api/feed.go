package api

import (
	"net/http"

	"github.com/okian/duel/pkg/logger"
)

// FeedHandler subscribes callers to applied votes of one scope.
type FeedHandler struct {
	feed FeedServer
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(feed FeedServer) *FeedHandler {
	return &FeedHandler{feed: feed}
}

// HandleFeed handles GET /v1/feed as a websocket upgrade.
func (h *FeedHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
	const op = "api.feed"
	s, err := viewableScope(r)
	if err != nil {
		writeError(r.Context(), w, logger.Nop(), Wrap(op, err))
		return
	}
	h.feed.Serve(w, r, s.Key())
}

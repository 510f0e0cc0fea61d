package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/standings"
	"github.com/okian/duel/internal/domain/types"
	"github.com/okian/duel/pkg/logger"
)

// StandingsDependencies defines the interface for derived read models.
type StandingsDependencies interface {
	Leaderboard(ctx context.Context, s model.Scope, limit int) ([]types.LeaderboardEntry, error)
	Graph(ctx context.Context, s model.Scope, q standings.GraphQuery) ([]types.Edge, error)
	HeadToHead(ctx context.Context, s model.Scope, entityID string, limit int) (types.HeadToHead, error)
}

// StandingsHandler handles leaderboard, graph and head-to-head requests.
type StandingsHandler struct {
	deps   StandingsDependencies
	logger logger.Logger
}

// NewStandingsHandler creates a new standings handler.
func NewStandingsHandler(deps StandingsDependencies, log logger.Logger) *StandingsHandler {
	return &StandingsHandler{deps: deps, logger: log}
}

// viewableScope parses the scope and checks the caller may see it.
func viewableScope(r *http.Request) (model.Scope, error) {
	s, err := scopeFrom(r.URL.Query())
	if err != nil {
		return model.Scope{}, err
	}
	if !CallerFrom(r.Context()).CanView(s) {
		return model.Scope{}, fmt.Errorf("group %s: %w", s.GroupID, ErrForbidden)
	}
	return s, nil
}

// HandleGetLeaderboard handles GET /v1/leaderboard?limit=N.
func (h *StandingsHandler) HandleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_leaderboard"
	ctx := r.Context()
	s, err := viewableScope(r)
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	entries, err := h.deps.Leaderboard(ctx, s, limit)
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleGetGraph handles GET /v1/graph.
func (h *StandingsHandler) HandleGetGraph(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_graph"
	ctx := r.Context()
	s, err := viewableScope(r)
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	q := r.URL.Query()
	minComparisons, err := intParam(q, "min_comparisons")
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	threshold, err := floatParam(q, "threshold")
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	edges, err := h.deps.Graph(ctx, s, standings.GraphQuery{
		MinComparisons: int64(minComparisons),
		Threshold:      threshold,
		Limit:          limit,
	})
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, edges)
}

// HandleGetHeadToHead handles GET /v1/entities/{id}/head-to-head.
func (h *StandingsHandler) HandleGetHeadToHead(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_head_to_head"
	ctx := r.Context()
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		writeError(ctx, w, h.logger, NewKind(op, ErrInvalidQuery))
		return
	}
	s, err := viewableScope(r)
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	limit, err := intParam(r.URL.Query(), "limit")
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	h2h, err := h.deps.HeadToHead(ctx, s, id, limit)
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, h2h)
}

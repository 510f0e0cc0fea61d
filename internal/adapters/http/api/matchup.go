package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/okian/duel/internal/domain/model"
	"github.com/okian/duel/internal/domain/scope"
	"github.com/okian/duel/internal/domain/types"
	"github.com/okian/duel/pkg/logger"
)

// MatchupDependencies defines the interface for matchup selection.
type MatchupDependencies interface {
	Matchup(ctx context.Context, s model.Scope, f model.Filters, exclude []string) (types.Matchup, error)
}

// MatchupHandler handles matchup requests.
type MatchupHandler struct {
	deps   MatchupDependencies
	logger logger.Logger
}

// NewMatchupHandler creates a new matchup handler.
func NewMatchupHandler(deps MatchupDependencies, log logger.Logger) *MatchupHandler {
	return &MatchupHandler{deps: deps, logger: log}
}

// HandleGetMatchup handles GET /v1/matchup.
func (h *MatchupHandler) HandleGetMatchup(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_matchup"
	ctx := r.Context()
	q := r.URL.Query()

	s, err := scopeFrom(q)
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	if !CallerFrom(ctx).CanView(s) {
		writeError(ctx, w, h.logger, WrapKind(op, ErrForbidden, fmt.Errorf("group %s", s.GroupID)))
		return
	}
	filters, err := scope.ResolveFilters(csv(q.Get("categories")), q.Get("category"), q.Get("gender"))
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	m, err := h.deps.Matchup(ctx, s, filters, csv(q.Get("exclude")))
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, m)
}

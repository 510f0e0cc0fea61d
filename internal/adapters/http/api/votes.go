package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/okian/duel/internal/domain/ingest"
	"github.com/okian/duel/internal/domain/scope"
	"github.com/okian/duel/internal/domain/types"
	"github.com/okian/duel/pkg/logger"
)

// maxVoteBody bounds the vote request body.
const maxVoteBody = 1 << 16

// VoteDependencies defines the interface for vote ingestion.
type VoteDependencies interface {
	Vote(ctx context.Context, req ingest.VoteRequest) (types.VoteResult, error)
	AcknowledgeGuest(ctx context.Context, req ingest.VoteRequest) types.VoteResult
}

// voteRequest mirrors the OpenAPI schema for POST /v1/votes.
type voteRequest struct {
	Context   string       `json:"context"`
	GroupID   string       `json:"group_id"`
	Segment   string       `json:"segment"`
	LeftID    string       `json:"left_id"`
	RightID   string       `json:"right_id"`
	WinnerID  string       `json:"winner_id"`
	Skipped   bool         `json:"skipped"`
	SessionID string       `json:"session_id"`
	VoteID    string       `json:"vote_id"`
	Filters   *filtersBody `json:"filters"`
}

type filtersBody struct {
	Categories []string `json:"categories"`
	Category   string   `json:"category"`
	Gender     string   `json:"gender"`
}

// VoteHandler handles vote submissions.
type VoteHandler struct {
	deps   VoteDependencies
	logger logger.Logger
}

// NewVoteHandler creates a new vote handler.
func NewVoteHandler(deps VoteDependencies, log logger.Logger) *VoteHandler {
	return &VoteHandler{deps: deps, logger: log}
}

// HandlePostVote handles POST /v1/votes.
func (h *VoteHandler) HandlePostVote(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_vote"
	ctx := r.Context()

	var body voteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxVoteBody)).Decode(&body); err != nil {
		writeError(ctx, w, h.logger, WrapKind(op, ErrInvalidBody, err))
		return
	}
	s, err := scope.Parse(body.Context, body.GroupID, body.Segment)
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	caller := CallerFrom(ctx)
	if !caller.CanView(s) {
		writeError(ctx, w, h.logger, WrapKind(op, ErrForbidden, fmt.Errorf("group %s", s.GroupID)))
		return
	}

	req := ingest.VoteRequest{
		VoteID:    body.VoteID,
		Scope:     s,
		LeftID:    body.LeftID,
		RightID:   body.RightID,
		WinnerID:  body.WinnerID,
		Skipped:   body.Skipped,
		SessionID: body.SessionID,
		VoterID:   caller.UserID,
	}
	if body.Filters != nil {
		f, err := scope.ResolveFilters(body.Filters.Categories, body.Filters.Category, body.Filters.Gender)
		if err != nil {
			writeError(ctx, w, h.logger, WrapKind(op, ErrInvalidBody, err))
			return
		}
		req.Filters = f
	}

	if !caller.CanVote {
		writeJSON(w, http.StatusOK, h.deps.AcknowledgeGuest(ctx, req))
		return
	}
	res, err := h.deps.Vote(ctx, req)
	if err != nil {
		writeError(ctx, w, h.logger, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

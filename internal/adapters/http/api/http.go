// Package api exposes the voting engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/okian/duel/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	MatchupDependencies
	VoteDependencies
	StandingsDependencies
}

// FeedServer upgrades a request into a live feed subscription.
type FeedServer interface {
	Serve(w http.ResponseWriter, r *http.Request, scopeKey string)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	matchupHandler   *MatchupHandler
	voteHandler      *VoteHandler
	standingsHandler *StandingsHandler
	feedHandler      *FeedHandler

	auth    *Authenticator
	origins []string
	logger  logger.Logger
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithAuthenticator enables caller resolution from bearer tokens.
func WithAuthenticator(a *Authenticator) Option {
	return func(s *Server) {
		if a != nil {
			s.auth = a
		}
	}
}

// WithFeed serves the live vote feed.
func WithFeed(f FeedServer) Option {
	return func(s *Server) {
		if f != nil {
			s.feedHandler = NewFeedHandler(f)
		}
	}
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		auth:    NewAuthenticator(""),
		origins: []string{"*"},
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(statsProvider)
	s.matchupHandler = NewMatchupHandler(deps, s.logger)
	s.voteHandler = NewVoteHandler(deps, s.logger)
	s.standingsHandler = NewStandingsHandler(deps, s.logger)
	return s
}

// Register attaches all HTTP routes to router.
func (s *Server) Register(_ context.Context, router *mux.Router) {
	router.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz")).Methods(http.MethodGet)
	router.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats")).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(s.auth.Middleware)
	v1.HandleFunc("/matchup", MetricsMiddleware(s.matchupHandler.HandleGetMatchup, "matchup")).Methods(http.MethodGet)
	v1.HandleFunc("/votes", MetricsMiddleware(s.voteHandler.HandlePostVote, "votes")).Methods(http.MethodPost)
	v1.HandleFunc("/leaderboard", MetricsMiddleware(s.standingsHandler.HandleGetLeaderboard, "leaderboard")).Methods(http.MethodGet)
	v1.HandleFunc("/graph", MetricsMiddleware(s.standingsHandler.HandleGetGraph, "graph")).Methods(http.MethodGet)
	v1.HandleFunc("/entities/{id}/head-to-head", MetricsMiddleware(s.standingsHandler.HandleGetHeadToHead, "head_to_head")).Methods(http.MethodGet)
	if s.feedHandler != nil {
		v1.HandleFunc("/feed", s.feedHandler.HandleFeed).Methods(http.MethodGet)
	}
}

// Handler builds the complete HTTP handler. Extra registrars add routes such
// as the API docs to the same router.
func (s *Server) Handler(ctx context.Context, extra ...func(*mux.Router)) http.Handler {
	router := mux.NewRouter()
	s.Register(ctx, router)
	for _, register := range extra {
		register(router)
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
	})
	return c.Handler(router)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError classifies err into a status and code. Internal errors are
// logged and reported without detail.
func writeError(ctx context.Context, w http.ResponseWriter, log logger.Logger, err error) {
	status, code := classify(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		log.Error(ctx, "request failed", logger.Error(err))
		msg = http.StatusText(status)
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", retryAfterSeconds)
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

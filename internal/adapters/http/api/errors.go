package api

import (
	"errors"
	"net/http"

	"github.com/okian/duel/internal/domain/ingest"
	"github.com/okian/duel/internal/domain/matchmaking"
	"github.com/okian/duel/internal/domain/scope"
	"github.com/okian/duel/internal/domain/standings"
)

// Sentinel kinds for API errors.
var (
	ErrInvalidBody  = errors.New("invalid request body")
	ErrInvalidQuery = errors.New("invalid query parameter")
	ErrForbidden    = errors.New("forbidden")
)

// Error codes returned in the error body.
const (
	CodeInvalidVote            = "INVALID_VOTE"
	CodeInvalidScope           = "INVALID_SCOPE"
	CodeInvalidQuery           = "INVALID_QUERY"
	CodeUnknownEntity          = "UNKNOWN_ENTITY"
	CodeInsufficientPool       = "INSUFFICIENT_POOL"
	CodeInsufficientCandidates = "INSUFFICIENT_CANDIDATES"
	CodeForbidden              = "FORBIDDEN"
	CodeConcurrencyConflict    = "CONCURRENCY_CONFLICT"
	CodeInternal               = "INTERNAL"
)

// retryAfterSeconds is sent with CONCURRENCY_CONFLICT.
const retryAfterSeconds = "1"

// Error records the handler operation that failed and the kind of failure.
type Error struct {
	Op   string
	Kind error
	Err  error
}

// NewKind returns an error of kind for op.
func NewKind(op string, kind error) *Error { return &Error{Op: op, Kind: kind} }

// Wrap attaches op to err.
func Wrap(op string, err error) *Error { return &Error{Op: op, Err: err} }

// WrapKind attaches op and kind to err.
func WrapKind(op string, kind, err error) *Error { return &Error{Op: op, Kind: kind, Err: err} }

func (e *Error) Error() string {
	switch {
	case e.Kind != nil && e.Err != nil:
		return e.Op + ": " + e.Kind.Error() + ": " + e.Err.Error()
	case e.Err != nil:
		return e.Op + ": " + e.Err.Error()
	case e.Kind != nil:
		return e.Op + ": " + e.Kind.Error()
	default:
		return e.Op
	}
}

// Unwrap exposes both the kind and the cause to errors.Is.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// classify maps an error to its HTTP status and code.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, scope.ErrInvalidScope):
		return http.StatusBadRequest, CodeInvalidScope
	case errors.Is(err, ErrInvalidBody), errors.Is(err, ingest.ErrInvalidVote):
		return http.StatusBadRequest, CodeInvalidVote
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, scope.ErrInvalidFilter), errors.Is(err, standings.ErrInvalidQuery):
		return http.StatusBadRequest, CodeInvalidQuery
	case errors.Is(err, ingest.ErrUnknownEntity), errors.Is(err, standings.ErrUnknownEntity):
		return http.StatusNotFound, CodeUnknownEntity
	case errors.Is(err, matchmaking.ErrInsufficientPool):
		return http.StatusConflict, CodeInsufficientPool
	case errors.Is(err, matchmaking.ErrInsufficientCandidates):
		return http.StatusConflict, CodeInsufficientCandidates
	case errors.Is(err, ingest.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable, CodeConcurrencyConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

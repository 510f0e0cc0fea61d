package api

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/duel/internal/domain/model"
)

// Caller is the identity behind a request.
type Caller struct {
	UserID  string
	CanVote bool
	Groups  []string
	// AllGroups lets the caller view every game scope. Set when auth is disabled.
	AllGroups bool
}

// CanView reports whether the caller may read or vote in s.
func (c Caller) CanView(s model.Scope) bool {
	if s.Context != model.ContextGame {
		return true
	}
	return c.AllGroups || slices.Contains(c.Groups, s.GroupID)
}

// Claims is the token payload understood by the API.
type Claims struct {
	UserID string   `json:"userId"`
	Groups []string `json:"groups,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator resolves callers from HMAC-signed bearer tokens. A zero
// secret disables authentication and every caller may vote everywhere.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an Authenticator for secret.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Enabled reports whether tokens are checked.
func (a *Authenticator) Enabled() bool { return a != nil && len(a.secret) > 0 }

// Issue signs a token for userID. Used by tools and tests.
func (a *Authenticator) Issue(userID string, groups []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Groups: groups,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Resolve returns the caller of r. A missing or invalid token yields a guest.
func (a *Authenticator) Resolve(r *http.Request) Caller {
	if !a.Enabled() {
		return Caller{CanVote: true, AllGroups: true}
	}
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return Caller{}
	}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(raw), &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrForbidden
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return Caller{}
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return Caller{}
	}
	return Caller{UserID: claims.UserID, CanVote: true, Groups: claims.Groups}
}

type callerKey struct{}

// Middleware stores the resolved caller in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := a.Resolve(r)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), callerKey{}, caller)))
	})
}

// CallerFrom returns the caller stored by Middleware, or a guest.
func CallerFrom(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey{}).(Caller)
	return c
}

package session

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/starford/scribe/internal/apperr"
	"github.com/starford/scribe/internal/remote"
)

// Guard attaches the session credential to every request it carries. A
// request without a credential never reaches the network, and any 401 clears
// the session.
type Guard struct {
	session *Session
	next    http.RoundTripper
	now     func() time.Time
}

// NewGuard wraps next (http.DefaultTransport when nil).
func NewGuard(s *Session, next http.RoundTripper) *Guard {
	if next == nil {
		next = http.DefaultTransport
	}
	return &Guard{session: s, next: next, now: time.Now}
}

// RoundTrip implements http.RoundTripper.
func (g *Guard) RoundTrip(req *http.Request) (*http.Response, error) {
	token, ok := g.session.Token()
	if !ok {
		closeBody(req)
		return nil, apperr.Auth(0, "Please log in to continue.")
	}
	if expired(token, g.now()) {
		closeBody(req)
		g.session.invalidateToken(token, ReasonExpired)
		return nil, apperr.Auth(0, "")
	}

	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+token)

	resp, err := g.next.RoundTrip(r)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		g.session.invalidateToken(token, ReasonRejected)
	}
	return resp, nil
}

// Client returns a backend client whose every request passes through a Guard
// over base.
func (s *Session) Client(baseURL string, base http.RoundTripper) (*remote.Client, error) {
	return remote.New(baseURL, NewGuard(s, base))
}

// expired reports whether token is a JWT whose exp claim has passed. Opaque
// tokens and tokens without exp are left for the backend to judge.
func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return !now.Before(exp.Time)
}

func closeBody(req *http.Request) {
	if req.Body != nil {
		_ = req.Body.Close()
	}
}

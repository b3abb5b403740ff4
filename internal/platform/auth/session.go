package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNoSession is returned when a request carries no verifiable session.
	ErrNoSession = errors.New("auth: no session")
	// ErrTokenUnavailable is returned when a session exists but no bearer
	// token could be obtained for backend calls.
	ErrTokenUnavailable = errors.New("auth: token unavailable")
	// ErrInvalidToken wraps verification failures.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Session describes the signed-in user as known from the identity provider.
type Session struct {
	UserID    string
	SessionID string
	Email     string
	Username  string
	FirstName string
	LastName  string
	// Token is the raw credential the session was verified from.
	Token     string
	ExpiresAt time.Time
	Provider  string
}

// Key identifies the session for once-per-session bookkeeping. It falls
// back to the user id when the provider issues no session id.
func (s *Session) Key() string {
	if s == nil {
		return ""
	}
	if id := strings.TrimSpace(s.SessionID); id != "" {
		return id
	}
	return strings.TrimSpace(s.UserID)
}

// DisplayName picks the best human label for templates.
func (s *Session) DisplayName() string {
	if s == nil {
		return ""
	}
	if name := strings.TrimSpace(strings.TrimSpace(s.FirstName) + " " + strings.TrimSpace(s.LastName)); name != "" {
		return name
	}
	if s.Username != "" {
		return s.Username
	}
	return s.Email
}

// SessionVerifier turns a raw credential into a Session.
type SessionVerifier interface {
	Verify(ctx context.Context, raw string) (*Session, error)
}

// TokenSource yields the bearer token presented to the backend on behalf of
// a session.
type TokenSource interface {
	Token(ctx context.Context, session *Session) (string, error)
}

// Profile is the identity data held by the provider for a user.
type Profile struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
}

// ProfileSource looks up what the session token does not carry.
type ProfileSource interface {
	Profile(ctx context.Context, session *Session) (Profile, error)
}

type ProfileSourceFunc func(ctx context.Context, session *Session) (Profile, error)

func (f ProfileSourceFunc) Profile(ctx context.Context, session *Session) (Profile, error) {
	return f(ctx, session)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context, session *Session) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context, session *Session) (string, error) {
	return f(ctx, session)
}

type sessionKey struct{}

// WithSession stores the session on the context.
func WithSession(ctx context.Context, session *Session) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the verified session, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	session, ok := ctx.Value(sessionKey{}).(*Session)
	if !ok || session == nil {
		return nil, false
	}
	return session, true
}

// PresentedTokenSource returns the credential the session was verified from
// while it remains valid for at least minTTL.
type PresentedTokenSource struct {
	MinTTL time.Duration
	Now    func() time.Time
}

func (p PresentedTokenSource) Token(_ context.Context, session *Session) (string, error) {
	if session == nil {
		return "", ErrNoSession
	}
	if strings.TrimSpace(session.Token) == "" {
		return "", ErrTokenUnavailable
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	if !session.ExpiresAt.IsZero() && !now().Add(p.MinTTL).Before(session.ExpiresAt) {
		return "", ErrTokenUnavailable
	}
	return session.Token, nil
}

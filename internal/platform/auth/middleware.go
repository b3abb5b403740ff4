package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/requestctx"
)

const (
	ReasonMissingToken = "missing_token"
	ReasonTokenInvalid = "token_invalid"
	ReasonTokenExpired = "token_expired"
)

// SessionCookie is the cookie the Clerk frontend SDK writes the session JWT to.
const SessionCookie = "__session"

// Sessions verifies the credential carried by the request, if any, and
// stores the resulting Session on the context. It never rejects: routes
// decide for themselves what a missing session means.
func Sessions(verifier SessionVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := RequestToken(r)
			if raw == "" || verifier == nil {
				next.ServeHTTP(w, r)
				return
			}
			session, err := verifier.Verify(r.Context(), raw)
			if err != nil || session == nil {
				requestctx.Logger(r.Context()).Debug("session rejected",
					zap.String("reason", reasonFor(err)),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}
			logger := requestctx.Logger(r.Context()).With(zap.String("user_id", sanitizeID(session.UserID)))
			ctx := requestctx.WithLogger(WithSession(r.Context(), session), logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSession redirects anonymous visitors to loginPath, preserving the
// requested URL as redirect_url.
func RequireSession(loginPath string) func(http.Handler) http.Handler {
	if loginPath == "" {
		loginPath = "/auth/login"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := SessionFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			target := loginPath
			if u, err := url.Parse(loginPath); err == nil {
				q := u.Query()
				q.Set("redirect_url", r.URL.RequestURI())
				u.RawQuery = q.Encode()
				target = u.String()
			}
			http.Redirect(w, r, target, http.StatusFound)
		})
	}
}

// RequestToken extracts the credential from the Authorization header or the
// session cookie.
func RequestToken(r *http.Request) string {
	if token := parseBearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	for _, name := range []string{SessionCookie, "idToken"} {
		c, err := r.Cookie(name)
		if err != nil {
			continue
		}
		if val := strings.TrimSpace(c.Value); val != "" {
			return val
		}
	}
	return ""
}

func parseBearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}

func reasonFor(err error) string {
	switch {
	case err == nil, errors.Is(err, ErrNoSession):
		return ReasonMissingToken
	case strings.Contains(err.Error(), "expired"):
		return ReasonTokenExpired
	default:
		return ReasonTokenInvalid
	}
}

func sanitizeID(id string) string {
	if len(id) > 64 {
		return id[:64]
	}
	return id
}

// DebugVerifier accepts "debug:<uid>" credentials. It exists for local
// development without an identity provider and must never be wired in
// production.
type DebugVerifier struct{}

func (DebugVerifier) Verify(_ context.Context, raw string) (*Session, error) {
	uid, ok := strings.CutPrefix(strings.TrimSpace(raw), "debug:")
	if !ok || strings.TrimSpace(uid) == "" {
		return nil, ErrInvalidToken
	}
	uid = strings.TrimSpace(uid)
	return &Session{
		UserID:    uid,
		SessionID: "debug-" + uid,
		Email:     uid + "@example.com",
		Username:  uid,
		Token:     raw,
		Provider:  "debug",
	}, nil
}

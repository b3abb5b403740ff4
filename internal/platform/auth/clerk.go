package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

const (
	clerkProvider      = "clerk"
	defaultClockLeeway = 5 * time.Second
	clerkKeyPrefixTest = "pk_test_"
	clerkKeyPrefixLive = "pk_live_"
	clerkJWKSPath      = "/.well-known/jwks.json"
)

// ClerkJWKSURL derives the frontend API JWKS endpoint from a publishable key
// of the form pk_(test|live)_base64("<frontend-api-host>$").
func ClerkJWKSURL(publishableKey string) (string, error) {
	key := strings.TrimSpace(publishableKey)
	var encoded string
	switch {
	case strings.HasPrefix(key, clerkKeyPrefixTest):
		encoded = strings.TrimPrefix(key, clerkKeyPrefixTest)
	case strings.HasPrefix(key, clerkKeyPrefixLive):
		encoded = strings.TrimPrefix(key, clerkKeyPrefixLive)
	default:
		return "", fmt.Errorf("auth: unrecognised clerk publishable key")
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return "", fmt.Errorf("auth: decode clerk publishable key: %w", err)
		}
	}
	host := strings.TrimSuffix(strings.TrimSpace(string(decoded)), "$")
	if host == "" || strings.ContainsAny(host, "/ ") {
		return "", fmt.Errorf("auth: clerk publishable key has no frontend api host")
	}
	return "https://" + host + clerkJWKSPath, nil
}

// ClerkVerifier validates Clerk session JWTs against the instance JWKS.
type ClerkVerifier struct {
	keys              *JWKSCache
	issuer            string
	authorizedParties map[string]struct{}
	leeway            time.Duration
	now               func() time.Time
}

type ClerkOption func(*ClerkVerifier)

// WithClerkIssuer requires the iss claim to match.
func WithClerkIssuer(issuer string) ClerkOption {
	return func(v *ClerkVerifier) {
		v.issuer = strings.TrimRight(strings.TrimSpace(issuer), "/")
	}
}

// WithClerkAuthorizedParties restricts the azp claim to the given origins.
func WithClerkAuthorizedParties(origins ...string) ClerkOption {
	return func(v *ClerkVerifier) {
		for _, origin := range origins {
			if origin = strings.TrimRight(strings.TrimSpace(origin), "/"); origin != "" {
				v.authorizedParties[origin] = struct{}{}
			}
		}
	}
}

func WithClerkClock(now func() time.Time) ClerkOption {
	return func(v *ClerkVerifier) {
		if now != nil {
			v.now = now
		}
	}
}

func NewClerkVerifier(keys *JWKSCache, opts ...ClerkOption) *ClerkVerifier {
	v := &ClerkVerifier{
		keys:              keys,
		authorizedParties: map[string]struct{}{},
		leeway:            defaultClockLeeway,
		now:               time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// Verify checks the signature and standard claims of a session token.
func (v *ClerkVerifier) Verify(ctx context.Context, raw string) (*Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoSession
	}

	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if _, err := parser.ParseWithClaims(raw, claims, v.keys.Keyfunc(ctx)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	now := v.now()
	exp, ok := timeClaim(claims, "exp")
	if !ok {
		return nil, fmt.Errorf("%w: missing exp", ErrInvalidToken)
	}
	if now.After(exp.Add(v.leeway)) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}
	if nbf, ok := timeClaim(claims, "nbf"); ok && now.Add(v.leeway).Before(nbf) {
		return nil, fmt.Errorf("%w: token not yet valid", ErrInvalidToken)
	}
	if v.issuer != "" && strings.TrimRight(stringClaim(claims, "iss"), "/") != v.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}
	if len(v.authorizedParties) > 0 {
		if azp := stringClaim(claims, "azp"); azp != "" {
			if _, ok := v.authorizedParties[strings.TrimRight(azp, "/")]; !ok {
				return nil, fmt.Errorf("%w: unauthorized party %q", ErrInvalidToken, azp)
			}
		}
	}

	subject := stringClaim(claims, "sub")
	if subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &Session{
		UserID:    subject,
		SessionID: stringClaim(claims, "sid"),
		Email:     firstClaim(claims, "email", "primary_email", "email_address"),
		Username:  stringClaim(claims, "username"),
		FirstName: stringClaim(claims, "first_name"),
		LastName:  stringClaim(claims, "last_name"),
		Token:     raw,
		ExpiresAt: exp,
		Provider:  clerkProvider,
	}, nil
}

// ClerkTokenSource mints a fresh session token through the Clerk Backend API
// when one is configured, falling back to the presented token.
type ClerkTokenSource struct {
	api      *ClerkAPI
	logger   *zap.Logger
	fallback PresentedTokenSource
}

type ClerkTokenOption func(*ClerkTokenSource)

func WithClerkTokenLogger(logger *zap.Logger) ClerkTokenOption {
	return func(s *ClerkTokenSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClerkTokenClock sets the clock used to judge presented-token expiry.
func WithClerkTokenClock(now func() time.Time) ClerkTokenOption {
	return func(s *ClerkTokenSource) {
		s.fallback.Now = now
	}
}

// NewClerkTokenSource mints through api. A nil api relays presented tokens.
func NewClerkTokenSource(api *ClerkAPI, opts ...ClerkTokenOption) *ClerkTokenSource {
	s := &ClerkTokenSource{
		api:      api,
		logger:   zap.NewNop(),
		fallback: PresentedTokenSource{MinTTL: 5 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *ClerkTokenSource) Token(ctx context.Context, session *Session) (string, error) {
	if session == nil {
		return "", ErrNoSession
	}
	if s.api != nil && session.SessionID != "" {
		token, err := s.api.MintToken(ctx, session.SessionID)
		if err == nil {
			return token, nil
		}
		s.logger.Warn("clerk token mint failed, using presented token", zap.Error(err))
	}
	token, err := s.fallback.Token(ctx, session)
	if err != nil {
		return "", ErrTokenUnavailable
	}
	return token, nil
}

func stringClaim(claims jwt.MapClaims, name string) string {
	value, _ := claims[name].(string)
	return strings.TrimSpace(value)
}

func firstClaim(claims jwt.MapClaims, names ...string) string {
	for _, name := range names {
		if value := stringClaim(claims, name); value != "" {
			return value
		}
	}
	return ""
}

func timeClaim(claims jwt.MapClaims, name string) (time.Time, bool) {
	switch value := claims[name].(type) {
	case float64:
		return time.Unix(int64(value), 0), true
	case json.Number:
		n, err := value.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(n, 0), true
	case int64:
		return time.Unix(value, 0), true
	default:
		return time.Time{}, false
	}
}

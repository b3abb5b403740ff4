package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	"github.com/clerk/clerk-sdk-go/v2/session"
	"github.com/clerk/clerk-sdk-go/v2/user"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

const (
	defaultClerkAPITimeout = 5 * time.Second
	defaultProfileTTL      = 10 * time.Minute
	defaultProfileCache    = 1024
)

// ClerkAPI is the slice of the Clerk Backend API the site calls: session
// token minting and user lookup.
type ClerkAPI struct {
	sessions *session.Client
	users    *user.Client
}

type ClerkAPIOption func(*clerk.ClientConfig)

// WithClerkAPIURL overrides the Backend API origin.
func WithClerkAPIURL(raw string) ClerkAPIOption {
	return func(cfg *clerk.ClientConfig) {
		if raw = strings.TrimRight(strings.TrimSpace(raw), "/"); raw != "" {
			cfg.URL = clerk.String(raw)
		}
	}
}

func WithClerkHTTPClient(client *http.Client) ClerkAPIOption {
	return func(cfg *clerk.ClientConfig) {
		if client != nil {
			cfg.HTTPClient = client
		}
	}
}

// NewClerkAPI returns nil when secretKey is empty.
func NewClerkAPI(secretKey string, opts ...ClerkAPIOption) *ClerkAPI {
	secretKey = strings.TrimSpace(secretKey)
	if secretKey == "" {
		return nil
	}
	cfg := &clerk.ClientConfig{}
	cfg.Key = clerk.String(secretKey)
	cfg.HTTPClient = &http.Client{Timeout: defaultClerkAPITimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return &ClerkAPI{
		sessions: session.NewClient(cfg),
		users:    user.NewClient(cfg),
	}
}

// MintToken issues a fresh session JWT for sessionID.
func (a *ClerkAPI) MintToken(ctx context.Context, sessionID string) (string, error) {
	token, err := a.sessions.CreateToken(ctx, &session.CreateTokenParams{ID: sessionID})
	if err != nil {
		return "", fmt.Errorf("clerk: mint token: %w", err)
	}
	if token == nil || strings.TrimSpace(token.JWT) == "" {
		return "", errors.New("clerk: empty token")
	}
	return token.JWT, nil
}

// User reads the profile of userID, preferring the primary email address.
func (a *ClerkAPI) User(ctx context.Context, userID string) (Profile, error) {
	u, err := a.users.Get(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("clerk: get user: %w", err)
	}
	profile := Profile{
		Username:  deref(u.Username),
		FirstName: deref(u.FirstName),
		LastName:  deref(u.LastName),
	}
	primary := deref(u.PrimaryEmailAddressID)
	for _, addr := range u.EmailAddresses {
		if addr == nil {
			continue
		}
		if addr.ID == primary {
			profile.Email = addr.EmailAddress
			break
		}
		if profile.Email == "" {
			profile.Email = addr.EmailAddress
		}
	}
	return profile, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// ClerkProfiles fills session profiles from the Backend API, caching them
// per user.
type ClerkProfiles struct {
	api    *ClerkAPI
	cache  *expirable.LRU[string, Profile]
	logger *zap.Logger
}

type ClerkProfilesOption func(*ClerkProfiles)

func WithClerkProfilesLogger(logger *zap.Logger) ClerkProfilesOption {
	return func(p *ClerkProfiles) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewClerkProfiles(api *ClerkAPI, opts ...ClerkProfilesOption) *ClerkProfiles {
	p := &ClerkProfiles{
		api:    api,
		cache:  expirable.NewLRU[string, Profile](defaultProfileCache, nil, defaultProfileTTL),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Profile merges the session claims over the looked-up profile. The API is
// only called when the claims lack an email.
func (p *ClerkProfiles) Profile(ctx context.Context, s *Session) (Profile, error) {
	if s == nil || s.UserID == "" {
		return Profile{}, ErrNoSession
	}
	claims := Profile{Email: s.Email, Username: s.Username, FirstName: s.FirstName, LastName: s.LastName}
	if claims.Email != "" || p.api == nil {
		return claims, nil
	}
	looked, ok := p.cache.Get(s.UserID)
	if !ok {
		var err error
		looked, err = p.api.User(ctx, s.UserID)
		if err != nil {
			p.logger.Warn("clerk user lookup failed", zap.String("user_id", s.UserID), zap.Error(err))
			return claims, err
		}
		p.cache.Add(s.UserID, looked)
	}
	return mergeProfile(claims, looked), nil
}

func mergeProfile(primary, fallback Profile) Profile {
	pick := func(a, b string) string {
		if a != "" {
			return a
		}
		return b
	}
	return Profile{
		Email:     pick(primary.Email, fallback.Email),
		Username:  pick(primary.Username, fallback.Username),
		FirstName: pick(primary.FirstName, fallback.FirstName),
		LastName:  pick(primary.LastName, fallback.LastName),
	}
}

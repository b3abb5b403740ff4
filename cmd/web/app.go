package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/GearConnect-Official/gearconnect-landing/internal/accountsync"
	"github.com/GearConnect-Official/gearconnect-landing/internal/backend"
	"github.com/GearConnect-Official/gearconnect-landing/internal/cms"
	"github.com/GearConnect-Official/gearconnect-landing/internal/handlers"
	"github.com/GearConnect-Official/gearconnect-landing/internal/i18n"
	"github.com/GearConnect-Official/gearconnect-landing/internal/middleware"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/auth"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/config"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/httpx"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/observability"
	"github.com/GearConnect-Official/gearconnect-landing/internal/playstore"
)

const (
	providerDebug  = "debug"
	tokenMinTTL    = 5 * time.Second
	compressLevel  = 5
	healthResponse = "ok"
)

type app struct {
	handler  http.Handler
	limiter  *middleware.RateLimiter
	provider string
}

// newApp wires every collaborator from cfg.
func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (*app, error) {
	client, err := backend.NewClient(cfg.Backend.URL, backend.WithMetrics(metrics))
	if err != nil {
		return nil, fmt.Errorf("initialise backend client: %w", err)
	}

	sa, err := newSessionAuth(ctx, cfg, logger.Named("auth"))
	if err != nil {
		return nil, err
	}

	renderer, err := handlers.NewRenderer(cfg.Paths.Templates, cfg.DevMode)
	if err != nil {
		return nil, fmt.Errorf("initialise templates: %w", err)
	}

	contentOpts := []cms.Option{cms.WithMetrics(metrics)}
	if cfg.DevMode {
		contentOpts = append(contentOpts, cms.WithCacheTTL(0))
	}
	content := cms.NewStore(cfg.Paths.Content, contentOpts...)

	ratings, err := newRatings(cfg, logger.Named("playstore"), metrics)
	if err != nil {
		return nil, err
	}

	syncOpts := []accountsync.Option{
		accountsync.WithMetrics(metrics),
		accountsync.WithTimeout(cfg.Backend.WriteTimeout),
	}
	if sa.profiles != nil {
		syncOpts = append(syncOpts, accountsync.WithProfiles(sa.profiles))
	}
	syncer := accountsync.NewSyncer(
		accountsync.NewRegistry(cfg.Sync.MaxSessions, cfg.Sync.LatchTTL),
		client,
		sa.tokens,
		accountsync.NewMatcher(cfg.Sync.ExistingPhrases),
		syncOpts...,
	)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.ContactPerMinute)

	h := handlers.New(handlers.Deps{
		Backend:  client,
		Tokens:   sa.tokens,
		Syncer:   syncer,
		Ratings:  ratings,
		Content:  content,
		Renderer: renderer,
		Limiter:  limiter,
		Metrics:  metrics,
		Options: handlers.Options{
			DevMode:        cfg.DevMode,
			SupportUserID:  cfg.Support.UserID,
			ReadTimeout:    cfg.Backend.ReadTimeout,
			WriteTimeout:   cfg.Backend.WriteTimeout,
			PublishableKey: cfg.Auth.Clerk.PublishableKey,
			AuthProvider:   sa.provider,
			PublicURL:      cfg.Server.PublicURL,
		},
	})

	if cfg.Support.UserID == 0 {
		logger.Warn("SUPPORT_USER_ID is not set; support conversations will fail")
	}

	return &app{
		handler:  newRouter(cfg, logger, metrics, sa.verifier, h),
		limiter:  limiter,
		provider: sa.provider,
	}, nil
}

func newRouter(cfg config.Config, logger *zap.Logger, metrics *observability.Metrics, verifier auth.SessionVerifier, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(observability.InjectLogger(logger))
	r.Use(observability.TraceMiddleware())
	r.Use(observability.RequestLogger(metrics))
	r.Use(observability.Recovery())
	r.Use(chimw.Compress(compressLevel))
	r.Use(chimw.Timeout(cfg.Server.WriteTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": healthResponse})
	})
	r.Handle("/metrics", metrics.Handler())
	r.Handle("/assets/*", middleware.Assets("/assets/", filepath.Join(cfg.Paths.Public, "assets")))
	r.NotFound(h.NotFound)

	r.Group(func(r chi.Router) {
		r.Use(auth.Sessions(verifier))
		r.Use(middleware.Locale(i18n.NewResolver()))
		h.Register(r)
	})
	return r
}

// sessionAuth groups what the configured identity provider contributes.
type sessionAuth struct {
	verifier auth.SessionVerifier
	tokens   auth.TokenSource
	// profiles is nil when session claims always carry the email.
	profiles *auth.ClerkProfiles
	provider string
}

// newSessionAuth picks the session verifier and backend token source for
// the configured provider. Without Clerk settings outside production, the
// debug verifier is used.
func newSessionAuth(ctx context.Context, cfg config.Config, logger *zap.Logger) (sessionAuth, error) {
	switch cfg.Auth.Provider {
	case config.ProviderFirebase:
		verifier, err := auth.NewFirebaseVerifier(ctx, auth.FirebaseConfig{
			ProjectID:       cfg.Auth.Firebase.ProjectID,
			CredentialsFile: cfg.Auth.Firebase.CredentialsFile,
		})
		if err != nil {
			return sessionAuth{}, fmt.Errorf("initialise firebase verifier: %w", err)
		}
		return sessionAuth{
			verifier: verifier,
			tokens:   auth.PresentedTokenSource{MinTTL: tokenMinTTL},
			provider: config.ProviderFirebase,
		}, nil

	case config.ProviderClerk:
		if !cfg.ClerkConfigured() {
			if cfg.IsProduction() {
				return sessionAuth{}, errors.New("clerk is not configured")
			}
			logger.Warn("clerk is not configured; accepting debug sessions")
			return sessionAuth{
				verifier: auth.DebugVerifier{},
				tokens:   auth.PresentedTokenSource{},
				provider: providerDebug,
			}, nil
		}
		jwksURL := cfg.Auth.Clerk.JWKSURL
		if jwksURL == "" {
			derived, err := auth.ClerkJWKSURL(cfg.Auth.Clerk.PublishableKey)
			if err != nil {
				return sessionAuth{}, fmt.Errorf("derive clerk jwks url: %w", err)
			}
			jwksURL = derived
		}
		opts := []auth.ClerkOption{auth.WithClerkAuthorizedParties(cfg.Auth.Clerk.AuthorizedParties...)}
		if cfg.Auth.Clerk.Issuer != "" {
			opts = append(opts, auth.WithClerkIssuer(cfg.Auth.Clerk.Issuer))
		}
		api := auth.NewClerkAPI(cfg.Auth.Clerk.SecretKey, auth.WithClerkAPIURL(cfg.Auth.Clerk.APIURL))
		if api == nil {
			logger.Warn("clerk secret key is not set; relaying session tokens and skipping user lookups")
		}
		return sessionAuth{
			verifier: auth.NewClerkVerifier(auth.NewJWKSCache(jwksURL, auth.WithJWKSLogger(logger)), opts...),
			tokens:   auth.NewClerkTokenSource(api, auth.WithClerkTokenLogger(logger)),
			profiles: auth.NewClerkProfiles(api, auth.WithClerkProfilesLogger(logger)),
			provider: config.ProviderClerk,
		}, nil
	}
	return sessionAuth{}, fmt.Errorf("unsupported auth provider %q", cfg.Auth.Provider)
}

func newRatings(cfg config.Config, logger *zap.Logger, metrics *observability.Metrics) (*playstore.Cache, error) {
	var fetcher playstore.Fetcher = playstore.StaticFetcher{}
	if cfg.PlayStore.StatsURL != "" {
		remote, err := playstore.NewHTTPFetcher(cfg.PlayStore.StatsURL, cfg.PlayStore.AppID, nil)
		if err != nil {
			return nil, err
		}
		fetcher = remote
	}
	return playstore.NewCache(fetcher, cfg.PlayStore.CacheTTL,
		playstore.WithLogger(logger),
		playstore.WithMetrics(metrics),
	), nil
}

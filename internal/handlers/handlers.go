// Package handlers serves the public pages, the support dashboard and the
// JSON routes that proxy to the backend.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/GearConnect-Official/gearconnect-landing/internal/accountsync"
	"github.com/GearConnect-Official/gearconnect-landing/internal/backend"
	"github.com/GearConnect-Official/gearconnect-landing/internal/cms"
	"github.com/GearConnect-Official/gearconnect-landing/internal/i18n"
	"github.com/GearConnect-Official/gearconnect-landing/internal/middleware"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/auth"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/observability"
	"github.com/GearConnect-Official/gearconnect-landing/internal/playstore"
	"github.com/GearConnect-Official/gearconnect-landing/internal/proxy"
)

// Options carries the settings handlers read at request time.
type Options struct {
	// DevMode registers debugging routes such as /api/get-token.
	DevMode       bool
	SupportUserID int64
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	// PublishableKey is exposed to the login page for the Clerk frontend SDK.
	PublishableKey string
	AuthProvider   string
	// PublicURL prefixes canonical and hreflang links. Empty keeps them relative.
	PublicURL string
}

// Deps are the collaborators shared by all handlers.
type Deps struct {
	Backend  *backend.Client
	Tokens   auth.TokenSource
	Syncer   *accountsync.Syncer
	Ratings  *playstore.Cache
	Content  *cms.Store
	Renderer *Renderer
	Limiter  *middleware.RateLimiter
	Metrics  *observability.Metrics
	Options  Options
}

type Handlers struct {
	backend  *backend.Client
	tokens   auth.TokenSource
	proxy    *proxy.Proxy
	syncer   *accountsync.Syncer
	ratings  *playstore.Cache
	content  *cms.Store
	renderer *Renderer
	limiter  *middleware.RateLimiter
	validate *validator.Validate
	opts     Options
	now      func() time.Time
}

func New(deps Deps) *Handlers {
	opts := deps.Options
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 15 * time.Second
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(0)
	}
	return &Handlers{
		backend:  deps.Backend,
		tokens:   deps.Tokens,
		proxy:    proxy.New(deps.Tokens, deps.Metrics),
		syncer:   deps.Syncer,
		ratings:  deps.Ratings,
		content:  deps.Content,
		renderer: deps.Renderer,
		limiter:  limiter,
		validate: newValidator(),
		opts:     opts,
		now:      time.Now,
	}
}

// Register mounts every page and API route on r. Session and locale
// middleware are expected to run before r.
func (h *Handlers) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Get("/", h.HomePage)
		r.Get("/features", h.FeaturesPage)
		r.Get("/faq", h.FAQPage)
		r.Get("/contact", h.ContactPage)
		r.Get("/privacy", h.LegalPage("privacy"))
		r.Get("/terms", h.LegalPage("terms"))
		r.Get("/auth/login", h.LoginPage)
		r.Get("/auth/register", h.SignUpPage)
		r.Get("/auth/forgot-password", h.ForgotPasswordPage)
		r.Get("/sign-up", h.SignUpPage)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireSession("/auth/login"))
			r.Get("/dashboard", h.DashboardPage)
			r.Get("/dashboard/tickets/{ticketId}", h.TicketPage)
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/sync", h.Sync)
		r.Get("/auth/sync", h.SyncStatus)
		r.With(h.limiter.Middleware).Post("/contact", h.Contact)
		r.Get("/conversations", h.Conversations)
		r.Get("/tickets/{ticketId}/messages", h.TicketMessages)
		r.Post("/tickets/{ticketId}/messages", h.PostTicketMessage)
		r.Patch("/tickets/{ticketId}/status", h.UpdateTicketStatus)
		r.Post("/support/conversations", h.CreateSupportConversation)
		r.Get("/support/requests", h.SupportRequests)
		r.Get("/backend", h.BackendPassthrough)
		r.Post("/backend", h.BackendPassthrough)
		r.Get("/playstore", h.PlayStore)
		if h.opts.DevMode {
			r.Get("/get-token", h.GetToken)
		}
	})
}

// policies for the proxied routes; reads fail open to their empty shape.
func (h *Handlers) readPolicy(route string, empty func() any) proxy.Policy {
	return proxy.Policy{Route: route, OnFailure: proxy.FailOpen, Empty: empty, Timeout: h.opts.ReadTimeout}
}

func (h *Handlers) writePolicy(route string) proxy.Policy {
	return proxy.Policy{Route: route, OnFailure: proxy.FailClosed, Timeout: h.opts.WriteTimeout}
}

func emptyTickets() any {
	return map[string]any{"tickets": []any{}, "byCategory": map[string]any{}, "categories": []any{}}
}

func emptyMessages() any {
	return map[string]any{"messages": []any{}}
}

func emptyRequests() any {
	return map[string]any{"requests": []any{}}
}

func lang(r *http.Request) i18n.Language {
	return middleware.Lang(r)
}

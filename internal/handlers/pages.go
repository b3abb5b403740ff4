package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/GearConnect-Official/gearconnect-landing/internal/accountsync"
	"github.com/GearConnect-Official/gearconnect-landing/internal/apperr"
	"github.com/GearConnect-Official/gearconnect-landing/internal/cms"
	"github.com/GearConnect-Official/gearconnect-landing/internal/i18n"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/auth"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/httpx"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/requestctx"
	"github.com/GearConnect-Official/gearconnect-landing/internal/playstore"
	"github.com/GearConnect-Official/gearconnect-landing/internal/proxy"
	"github.com/GearConnect-Official/gearconnect-landing/internal/seo"
)

const siteName = "GearConnect"

// LangOption is one entry of the language switcher.
type LangOption struct {
	Code   string
	Name   string
	URL    string
	Active bool
}

// Page is the data every template receives.
type Page struct {
	Title     string
	Path      string
	Lang      string
	Languages []LangOption
	Navbar    cms.Navbar
	Footer    cms.Footer
	Session   *auth.Session
	SEO       seo.Meta
	Data      any
}

func (h *Handlers) page(r *http.Request, title string, data any) Page {
	l := lang(r)
	p := Page{
		Title:     title,
		Path:      r.URL.Path,
		Lang:      string(l),
		Languages: languageOptions(r, l),
		SEO:       h.meta(r, title, l),
		Data:      data,
	}
	if session, ok := auth.SessionFromContext(r.Context()); ok {
		p.Session = session
	}
	logger := requestctx.Logger(r.Context())
	var err error
	if p.Navbar, err = h.content.Navbar(string(l)); err != nil {
		logger.Warn("navbar content unavailable", zap.Error(err))
	}
	if p.Footer, err = h.content.Footer(string(l)); err != nil {
		logger.Warn("footer content unavailable", zap.Error(err))
	}
	return p
}

func languageOptions(r *http.Request, active i18n.Language) []LangOption {
	options := make([]LangOption, 0, len(i18n.Supported))
	for _, l := range i18n.Supported {
		u := url.URL{Path: r.URL.Path}
		q := r.URL.Query()
		q.Set("lang", string(l))
		u.RawQuery = q.Encode()
		options = append(options, LangOption{Code: string(l), Name: l.Name(), URL: u.String(), Active: l == active})
	}
	return options
}

func (h *Handlers) meta(r *http.Request, title string, active i18n.Language) seo.Meta {
	m := seo.Meta{
		Title:     title,
		Canonical: seo.Localized(h.opts.PublicURL, r.URL.Path, nil, string(active)),
		OG:        seo.OpenGraph{Title: title, Type: "website"},
	}
	for _, l := range i18n.Supported {
		m.Alternates = append(m.Alternates, seo.Alternate{Lang: string(l), URL: seo.Localized(h.opts.PublicURL, r.URL.Path, nil, string(l))})
	}
	return m
}

// pageDoc is a loaded document plus the head metadata it contributes.
type pageDoc struct {
	Data        any
	Description string
	Schemas     []map[string]any
}

// contentPage loads a document and renders it, answering 404 when no
// language carries it.
func (h *Handlers) contentPage(w http.ResponseWriter, r *http.Request, tmpl, title string, load func(lang string) (pageDoc, error)) {
	doc, err := load(string(lang(r)))
	if err != nil {
		if errors.Is(err, cms.ErrNotFound) {
			h.renderer.Render(w, r, http.StatusNotFound, "notfound", h.page(r, "Not found", nil))
			return
		}
		requestctx.Logger(r.Context()).Error("content load failed", zap.String("page", tmpl), zap.Error(err))
		http.Error(w, "content error", http.StatusInternalServerError)
		return
	}
	p := h.page(r, title, doc.Data)
	p.SEO.Description = doc.Description
	p.SEO.OG.Description = doc.Description
	p.SEO.Schemas = doc.Schemas
	h.renderer.Render(w, r, http.StatusOK, tmpl, p)
}

// NotFound answers JSON under /api and the 404 page elsewhere.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		httpx.WriteError(r.Context(), w, httpx.NewError(http.StatusNotFound, apperr.MsgNotFound))
		return
	}
	h.renderer.Render(w, r, http.StatusNotFound, "notfound", h.page(r, "Not found", nil))
}

type homeData struct {
	Content cms.Home
	Ratings playstore.Stats
}

func (h *Handlers) HomePage(w http.ResponseWriter, r *http.Request) {
	h.contentPage(w, r, "home", siteName, func(l string) (pageDoc, error) {
		doc, err := h.content.Home(l)
		if err != nil {
			return pageDoc{}, err
		}
		ratings := h.ratings.GetOrRefresh(r.Context(), h.now())
		return pageDoc{
			Data:        homeData{Content: doc, Ratings: ratings},
			Description: doc.Hero.Description,
			Schemas: []map[string]any{
				seo.Organization(siteName, seo.Absolute(h.opts.PublicURL, "/"), "", ""),
				seo.MobileApplication(siteName, doc.Hero.PrimaryLink, seo.AppRating{Value: ratings.Rating, Count: ratings.Reviews}),
			},
		}, nil
	})
}

func (h *Handlers) FeaturesPage(w http.ResponseWriter, r *http.Request) {
	h.contentPage(w, r, "features", "Features", func(l string) (pageDoc, error) {
		doc, err := h.content.Features(l)
		return pageDoc{Data: doc, Description: doc.Hero.Description}, err
	})
}

func (h *Handlers) FAQPage(w http.ResponseWriter, r *http.Request) {
	h.contentPage(w, r, "faq", "FAQ", func(l string) (pageDoc, error) {
		doc, err := h.content.FAQ(l)
		if err != nil {
			return pageDoc{}, err
		}
		questions := make([]seo.Question, 0, len(doc.Questions))
		for _, qa := range doc.Questions {
			questions = append(questions, seo.Question{Question: qa.Question, Answer: qa.Answer})
		}
		return pageDoc{
			Data:        doc,
			Description: doc.Hero.Description,
			Schemas:     []map[string]any{seo.FAQPage(questions)},
		}, nil
	})
}

func (h *Handlers) ContactPage(w http.ResponseWriter, r *http.Request) {
	h.contentPage(w, r, "contact", "Contact", func(l string) (pageDoc, error) {
		doc, err := h.content.Contact(l)
		if err != nil {
			return pageDoc{}, err
		}
		org := seo.Organization(siteName, seo.Absolute(h.opts.PublicURL, "/"), "", doc.Info.Email.Address)
		return pageDoc{Data: doc, Description: doc.Hero.Description, Schemas: []map[string]any{org}}, nil
	})
}

type legalData struct {
	Hero     cms.Hero
	Sections []cms.LegalSection
}

func (h *Handlers) LegalPage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.contentPage(w, r, "legal", name, func(l string) (pageDoc, error) {
			hero, sections, err := h.content.Legal(l, name)
			if err != nil {
				return pageDoc{}, err
			}
			return pageDoc{Data: legalData{Hero: hero, Sections: sections}, Description: hero.Description}, nil
		})
	}
}

// Auth page modes, passed to the Clerk component mounted by site.js.
const (
	modeSignIn         = "sign-in"
	modeSignUp         = "sign-up"
	modeForgotPassword = "forgot-password"
)

type loginData struct {
	RedirectURL    string
	PublishableKey string
	Provider       string
	Mode           string
	SignUp         bool
}

func (h *Handlers) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, "login", h.page(r, "Sign in", h.loginData(r, modeSignIn)))
}

func (h *Handlers) SignUpPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, "login", h.page(r, "Sign up", h.loginData(r, modeSignUp)))
}

// ForgotPasswordPage mounts the sign-in flow, which carries the password
// reset steps.
func (h *Handlers) ForgotPasswordPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, "login", h.page(r, "Reset password", h.loginData(r, modeForgotPassword)))
}

func (h *Handlers) loginData(r *http.Request, mode string) loginData {
	redirect := r.URL.Query().Get("redirect_url")
	if !isLocalPath(redirect) {
		redirect = "/dashboard"
	}
	return loginData{
		RedirectURL:    redirect,
		PublishableKey: h.opts.PublishableKey,
		Provider:       h.opts.AuthProvider,
		Mode:           mode,
		SignUp:         mode == modeSignUp,
	}
}

// isLocalPath accepts only same-origin absolute paths.
func isLocalPath(p string) bool {
	if p == "" || p[0] != '/' || len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
		return false
	}
	u, err := url.Parse(p)
	return err == nil && u.Scheme == "" && u.Host == ""
}

// Ticket is the dashboard's view of a support ticket.
type Ticket struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Subject   string `json:"subject"`
	Status    string `json:"status"`
	Category  string `json:"category"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

// UnmarshalJSON accepts numeric or string ids.
func (t *Ticket) UnmarshalJSON(data []byte) error {
	type plain Ticket
	var aux struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = Ticket(aux.plain)
	t.ID = rawID(aux.ID)
	return nil
}

type Message struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Sender    string `json:"sender"`
	CreatedAt string `json:"createdAt"`
	FromStaff bool   `json:"fromStaff"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var aux struct {
		plain
		ID      json.RawMessage `json:"id"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*m = Message(aux.plain)
	m.ID = rawID(aux.ID)
	if m.Content == "" {
		m.Content = aux.Message
	}
	return nil
}

func rawID(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n.String()
	}
	return ""
}

type dashboardData struct {
	Sync      accountsync.Result
	SyncError string
	Tickets   []Ticket
	Notice    string
}

// DashboardPage triggers the account sync with the session's claims, then
// lists tickets. Neither failure blocks rendering.
func (h *Handlers) DashboardPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx)
	session, _ := auth.SessionFromContext(ctx)

	data := dashboardData{}
	if h.syncer != nil {
		result, err := h.syncer.Sync(ctx, session, accountsync.Input{Email: session.Email, Username: session.Username})
		if err != nil {
			logger.Warn("dashboard sync rejected", zap.Error(err))
			data.SyncError = apperr.As(err).Message
		} else {
			data.Sync = result
			if result.Err != nil {
				data.SyncError = result.Err.Message
			}
		}
	}

	var listing struct {
		Tickets []Ticket `json:"tickets"`
	}
	token, err := h.proxyToken(r)
	if err == nil {
		rctx, cancel := contextWithTimeout(ctx, h.opts.ReadTimeout)
		resp, callErr := h.backend.ListTickets(rctx, token)
		cancel()
		switch {
		case callErr == nil:
			if err := resp.Decode(&listing); err != nil {
				logger.Warn("ticket listing undecodable", zap.Error(err))
			}
		default:
			appErr := proxy.Classify(callErr)
			logger.Warn("ticket listing unavailable", zap.String("kind", appErr.Kind.String()), zap.Error(callErr))
			if appErr.Kind == apperr.KindUnauthorized {
				data.Notice = appErr.Message
			}
		}
	} else {
		data.Notice = apperr.MsgTokenMissing
	}
	data.Tickets = listing.Tickets

	h.renderer.Render(w, r, http.StatusOK, "dashboard", h.page(r, "Dashboard", data))
}

type ticketData struct {
	TicketID string
	Messages []Message
	Statuses []string
	Notice   string
}

func (h *Handlers) TicketPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ticketID := chi.URLParam(r, "ticketId")
	if !validTicketID(ticketID) {
		h.renderer.Render(w, r, http.StatusNotFound, "notfound", h.page(r, "Not found", nil))
		return
	}

	data := ticketData{TicketID: ticketID, Statuses: ticketStatuses}
	var thread struct {
		Messages []Message `json:"messages"`
	}
	token, err := h.proxyToken(r)
	if err == nil {
		rctx, cancel := contextWithTimeout(ctx, h.opts.ReadTimeout)
		resp, callErr := h.backend.TicketMessages(rctx, token, ticketID)
		cancel()
		if callErr == nil {
			if err := resp.Decode(&thread); err != nil {
				requestctx.Logger(ctx).Warn("ticket thread undecodable", zap.Error(err))
			}
		} else {
			appErr := proxy.Classify(callErr)
			requestctx.Logger(ctx).Warn("ticket thread unavailable", zap.String("kind", appErr.Kind.String()), zap.Error(callErr))
			if appErr.Kind == apperr.KindUnauthorized {
				data.Notice = appErr.Message
			}
		}
	} else {
		data.Notice = apperr.MsgTokenMissing
	}
	data.Messages = thread.Messages

	h.renderer.Render(w, r, http.StatusOK, "ticket", h.page(r, "Ticket", data))
}

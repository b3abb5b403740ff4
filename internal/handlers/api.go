package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/GearConnect-Official/gearconnect-landing/internal/accountsync"
	"github.com/GearConnect-Official/gearconnect-landing/internal/apperr"
	"github.com/GearConnect-Official/gearconnect-landing/internal/backend"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/auth"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/httpx"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/requestctx"
	"github.com/GearConnect-Official/gearconnect-landing/internal/proxy"
)

const (
	msgContactSent        = "Your message has been sent successfully to our support team. You will receive a response soon."
	msgContactRequired    = "Subject and message are required"
	msgMessageRequired    = "Message is required"
	msgStatusInvalid      = "Status must be one of OPEN, IN_PROGRESS, RESOLVED, CLOSED"
	msgTicketInvalid      = "Invalid ticket id"
	msgEndpointRequired   = "Endpoint parameter is required"
	msgEndpointInvalid    = "Endpoint must be a backend /api/ path"
	msgSupportUnset       = "Support is not configured. Please try again later."
	msgSupportSelf        = "The support account cannot open a conversation with itself"
	msgInvalidBody        = "Invalid request body"
	msgTokenNotAvailable  = "Token not available"
	msgNotAuthenticated   = "Not authenticated"
	msgAlreadyRegistered  = "User already exists in backend"
	msgSyncInFlight       = "Account sync already in progress"
	defaultConversationNm = "Support"
)

func contextWithTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// proxyToken fetches the bearer token for server-rendered pages that call
// the backend outside the proxy.
func (h *Handlers) proxyToken(r *http.Request) (string, error) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		return "", auth.ErrNoSession
	}
	if h.tokens == nil {
		return "", auth.ErrTokenUnavailable
	}
	token, err := h.tokens.Token(r.Context(), session)
	if err == nil && token == "" {
		err = auth.ErrTokenUnavailable
	}
	return token, err
}

// decode reads and validates a JSON body. An empty body is treated as {}
// so that validation reports the missing fields.
func (h *Handlers) decode(ctx context.Context, r *http.Request, dst any, message string) error {
	if err := httpx.DecodeJSON(r, dst); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
		return apperr.Validation(msgInvalidBody)
	}
	if err := h.validate.StructCtx(ctx, dst); err != nil {
		requestctx.Logger(ctx).Info("request rejected by validation", zap.Strings("fields", fieldErrors(err)))
		return apperr.Validation(message)
	}
	return nil
}

// Contact creates a support ticket from the contact form.
func (h *Handlers) Contact(w http.ResponseWriter, r *http.Request) {
	call := func(ctx context.Context, token string) (*backend.Response, error) {
		var in contactInput
		if err := h.decode(ctx, r, &in, msgContactRequired); err != nil {
			return nil, err
		}
		subject := strings.TrimSpace(in.Subject)
		title := strings.TrimSpace(in.Title)
		if title == "" {
			title = subject
		}
		return h.backend.SubmitContact(ctx, token, backend.ContactRequest{
			Title:   title,
			Subject: subject,
			Message: strings.TrimSpace(in.Message),
		})
	}
	h.proxy.Serve(w, r, h.writePolicy("contact"), call, respondContact)
}

func respondContact(w http.ResponseWriter, _ *http.Request, resp *backend.Response) {
	var payload struct {
		TicketID json.RawMessage `json:"ticketId"`
		ID       json.RawMessage `json:"id"`
	}
	_ = resp.Decode(&payload)
	ticketID := rawID(payload.TicketID)
	if ticketID == "" {
		ticketID = rawID(payload.ID)
	}
	body := map[string]any{"success": true, "message": msgContactSent}
	if ticketID != "" {
		body["ticketId"] = ticketID
	}
	httpx.WriteJSON(w, http.StatusOK, body)
}

// Conversations lists the user's contact tickets.
func (h *Handlers) Conversations(w http.ResponseWriter, r *http.Request) {
	call := func(ctx context.Context, token string) (*backend.Response, error) {
		return h.backend.ListTickets(ctx, token)
	}
	h.proxy.Serve(w, r, h.readPolicy("conversations", emptyTickets), call, nil)
}

func (h *Handlers) TicketMessages(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")
	call := func(ctx context.Context, token string) (*backend.Response, error) {
		if !validTicketID(ticketID) {
			return nil, apperr.Validation(msgTicketInvalid)
		}
		return h.backend.TicketMessages(ctx, token, ticketID)
	}
	h.proxy.Serve(w, r, h.readPolicy("ticket_messages", emptyMessages), call, nil)
}

func (h *Handlers) PostTicketMessage(w http.ResponseWriter, r *http.Request) {
	call := func(ctx context.Context, token string) (*backend.Response, error) {
		in := ticketMessageInput{TicketID: chi.URLParam(r, "ticketId")}
		if !validTicketID(in.TicketID) {
			return nil, apperr.Validation(msgTicketInvalid)
		}
		if err := h.decode(ctx, r, &in, msgMessageRequired); err != nil {
			return nil, err
		}
		return h.backend.PostTicketMessage(ctx, token, in.TicketID, backend.TicketMessageRequest{Message: strings.TrimSpace(in.Message)})
	}
	h.proxy.Serve(w, r, h.writePolicy("ticket_message_post"), call, nil)
}

// UpdateTicketStatus relays a status change and returns the backend's
// updated ticket unchanged.
func (h *Handlers) UpdateTicketStatus(w http.ResponseWriter, r *http.Request) {
	call := func(ctx context.Context, token string) (*backend.Response, error) {
		in := ticketStatusInput{TicketID: chi.URLParam(r, "ticketId")}
		if !validTicketID(in.TicketID) {
			return nil, apperr.Validation(msgTicketInvalid)
		}
		if err := h.decode(ctx, r, &in, msgStatusInvalid); err != nil {
			return nil, err
		}
		status := strings.ToUpper(strings.TrimSpace(in.Status))
		return h.backend.UpdateTicketStatus(ctx, token, in.TicketID, backend.TicketStatusRequest{Status: status})
	}
	h.proxy.Serve(w, r, h.writePolicy("ticket_status"), call, nil)
}

// CreateSupportConversation resolves the caller's backend id, then opens a
// direct conversation with the support account.
func (h *Handlers) CreateSupportConversation(w http.ResponseWriter, r *http.Request) {
	call := func(ctx context.Context, token string) (*backend.Response, error) {
		if h.opts.SupportUserID <= 0 {
			return nil, apperr.New(apperr.KindServerError, msgSupportUnset, errors.New("SUPPORT_USER_ID is not set"))
		}
		var in conversationInput
		if err := h.decode(ctx, r, &in, msgInvalidBody); err != nil {
			return nil, err
		}
		me, err := h.backend.Me(ctx, token)
		if err != nil {
			return nil, err
		}
		if me == h.opts.SupportUserID {
			return nil, apperr.Validation(msgSupportSelf)
		}
		name := strings.TrimSpace(in.Name)
		if name == "" {
			name = defaultConversationNm
		}
		return h.backend.CreateConversation(ctx, token, backend.CreateConversationRequest{
			ParticipantIDs: []int64{me, h.opts.SupportUserID},
			IsGroup:        false,
			Name:           name,
		})
	}
	h.proxy.Serve(w, r, h.writePolicy("support_conversation"), call, nil)
}

func (h *Handlers) SupportRequests(w http.ResponseWriter, r *http.Request) {
	call := func(ctx context.Context, token string) (*backend.Response, error) {
		return h.backend.SupportRequests(ctx, token)
	}
	h.proxy.Serve(w, r, h.readPolicy("support_requests", emptyRequests), call, nil)
}

// BackendPassthrough forwards GET or POST to any backend /api/ path given
// in the endpoint query parameter.
func (h *Handlers) BackendPassthrough(w http.ResponseWriter, r *http.Request) {
	call := func(ctx context.Context, token string) (*backend.Response, error) {
		endpoint := strings.TrimSpace(r.URL.Query().Get("endpoint"))
		if endpoint == "" {
			return nil, apperr.Validation(msgEndpointRequired)
		}
		target, err := url.Parse(endpoint)
		if err != nil || target.Scheme != "" || target.Host != "" || !strings.HasPrefix(target.Path, "/api/") {
			return nil, apperr.Validation(msgEndpointInvalid)
		}
		req := backend.Request{
			Op:     "passthrough",
			Method: r.Method,
			Path:   target.Path,
			Query:  target.Query(),
			Token:  token,
		}
		if r.Method == http.MethodPost {
			var body json.RawMessage
			if err := httpx.DecodeJSON(r, &body); err != nil && !errors.Is(err, httpx.ErrEmptyBody) {
				return nil, apperr.Validation(msgInvalidBody)
			}
			if len(body) == 0 {
				body = json.RawMessage(`{}`)
			}
			req.Body = body
		}
		resp, err := h.backend.Do(ctx, req)
		if errors.Is(err, backend.ErrInvalidPath) {
			return nil, apperr.Validation(msgEndpointInvalid)
		}
		return resp, err
	}
	h.proxy.Serve(w, r, h.writePolicy("passthrough"), call, nil)
}

// GetToken echoes the caller's bearer token. Registered in dev mode only.
func (h *Handlers) GetToken(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		httpx.WriteJSON(w, http.StatusUnauthorized, map[string]string{
			"error":   msgNotAuthenticated,
			"message": "Please log in first to get your token",
		})
		return
	}
	token, err := h.proxyToken(r)
	if err != nil {
		httpx.WriteJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   msgTokenNotAvailable,
			"message": "Could not retrieve a token for the current session",
		})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"token":   token,
		"userId":  session.UserID,
		"message": "Copy the token value and use it in your tests",
	})
}

func (h *Handlers) PlayStore(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, h.ratings.GetOrRefresh(r.Context(), h.now()))
}

// Sync registers the signed-in user with the backend, at most once per
// session.
func (h *Handlers) Sync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		proxy.WriteError(ctx, w, apperr.Unauthorized())
		return
	}
	var in syncInput
	if err := h.decode(ctx, r, &in, "Email is invalid"); err != nil {
		proxy.WriteError(ctx, w, apperr.As(err))
		return
	}
	result, err := h.syncer.Sync(ctx, session, accountsync.Input{Email: in.Email, Username: in.Username})
	if err != nil {
		proxy.WriteError(ctx, w, apperr.As(err))
		return
	}

	switch {
	case result.Synced:
		body := map[string]any{"success": true, "synced": true, "state": result.State.String()}
		if result.AlreadyRegistered {
			body["alreadyRegistered"] = true
			body["message"] = msgAlreadyRegistered
		}
		if result.Duplicate {
			body["duplicate"] = true
		}
		httpx.WriteJSON(w, http.StatusOK, body)
	case result.Err != nil:
		proxy.WriteError(ctx, w, result.Err)
	default:
		httpx.WriteJSON(w, http.StatusAccepted, map[string]any{
			"success":   true,
			"synced":    false,
			"state":     result.State.String(),
			"duplicate": true,
			"message":   msgSyncInFlight,
		})
	}
}

// SyncStatus reports the latch state for the current session.
func (h *Handlers) SyncStatus(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		proxy.WriteError(r.Context(), w, apperr.Unauthorized())
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h.syncer.Status(session))
}

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/GearConnect-Official/gearconnect-landing/internal/apperr"
)

const (
	PathSignup        = "/api/auth/signup"
	PathMe            = "/api/auth/me"
	PathContact       = "/api/landing/contact"
	PathTickets       = "/api/landing/contact/tickets"
	PathConversations = "/api/messaging/conversations"
	PathRequests      = "/api/messaging/requests"
)

// TicketMessagesPath is the messages collection of one ticket. ticketID must
// already be validated as a path-safe token.
func TicketMessagesPath(ticketID string) string {
	return PathTickets + "/" + ticketID + "/messages"
}

func TicketStatusPath(ticketID string) string {
	return PathTickets + "/" + ticketID + "/status"
}

// SignupRequest is the idempotent account upsert sent after sign-in. The
// password is always empty because credentials live with the identity provider.
type SignupRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type ContactRequest struct {
	Title   string `json:"title"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type TicketMessageRequest struct {
	Message string `json:"message"`
}

type TicketStatusRequest struct {
	Status string `json:"status"`
}

type CreateConversationRequest struct {
	ParticipantIDs []int64 `json:"participantIds"`
	IsGroup        bool    `json:"isGroup"`
	Name           string  `json:"name,omitempty"`
}

func (c *Client) Signup(ctx context.Context, token string, req SignupRequest) (*Response, error) {
	return c.Do(ctx, Request{Op: "auth.signup", Method: http.MethodPost, Path: PathSignup, Token: token, Body: req})
}

func (c *Client) SubmitContact(ctx context.Context, token string, req ContactRequest) (*Response, error) {
	return c.Do(ctx, Request{Op: "contact.create", Method: http.MethodPost, Path: PathContact, Token: token, Body: req})
}

func (c *Client) ListTickets(ctx context.Context, token string) (*Response, error) {
	return c.Do(ctx, Request{Op: "tickets.list", Method: http.MethodGet, Path: PathTickets, Token: token})
}

func (c *Client) TicketMessages(ctx context.Context, token, ticketID string) (*Response, error) {
	return c.Do(ctx, Request{Op: "tickets.messages.list", Method: http.MethodGet, Path: TicketMessagesPath(ticketID), Token: token})
}

func (c *Client) PostTicketMessage(ctx context.Context, token, ticketID string, req TicketMessageRequest) (*Response, error) {
	return c.Do(ctx, Request{Op: "tickets.messages.create", Method: http.MethodPost, Path: TicketMessagesPath(ticketID), Token: token, Body: req})
}

func (c *Client) UpdateTicketStatus(ctx context.Context, token, ticketID string, req TicketStatusRequest) (*Response, error) {
	return c.Do(ctx, Request{Op: "tickets.status.update", Method: http.MethodPatch, Path: TicketStatusPath(ticketID), Token: token, Body: req})
}

func (c *Client) CreateConversation(ctx context.Context, token string, req CreateConversationRequest) (*Response, error) {
	return c.Do(ctx, Request{Op: "conversations.create", Method: http.MethodPost, Path: PathConversations, Token: token, Body: req})
}

func (c *Client) SupportRequests(ctx context.Context, token string) (*Response, error) {
	return c.Do(ctx, Request{Op: "conversations.requests", Method: http.MethodGet, Path: PathRequests, Token: token})
}

// Me resolves the backend's numeric id for the token holder. The backend
// answers either {"id": ...} or {"user": {"id": ...}}; ids may be numbers
// or numeric strings.
func (c *Client) Me(ctx context.Context, token string) (int64, error) {
	resp, err := c.Do(ctx, Request{Op: "auth.me", Method: http.MethodGet, Path: PathMe, Token: token})
	if err != nil {
		return 0, err
	}
	var payload struct {
		ID   json.RawMessage `json:"id"`
		User struct {
			ID json.RawMessage `json:"id"`
		} `json:"user"`
		Data struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if err := resp.Decode(&payload); err != nil {
		return 0, apperr.New(apperr.KindServerError, apperr.MsgServerError, fmt.Errorf("backend: decode me: %w", err))
	}
	for _, raw := range []json.RawMessage{payload.ID, payload.User.ID, payload.Data.ID} {
		if id, ok := parseID(raw); ok {
			return id, nil
		}
	}
	return 0, apperr.New(apperr.KindServerError, apperr.MsgServerError, fmt.Errorf("backend: me response has no user id"))
}

func parseID(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if id, err := n.Int64(); err == nil && id > 0 {
			return id, true
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}

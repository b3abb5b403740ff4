package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// Error is the JSON error envelope returned by every API route:
// {"error": "...", "details": ..., "request_id": "..."}.
type Error struct {
	Status    int
	Message   string
	Details   any
	RequestID string
}

// NewError builds an Error, defaulting the status to 500.
func NewError(status int, message string) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{Status: status, Message: sanitize(message, 512)}
}

// WithDetails attaches JSON-serialisable metadata.
func (e Error) WithDetails(details any) Error {
	e.Details = details
	return e
}

// WithRequestID overrides the request id otherwise taken from context.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = sanitize(id, 80)
	return e
}

// WriteError writes err as JSON.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	requestID := err.RequestID
	if requestID == "" {
		requestID = sanitize(middleware.GetReqID(ctx), 80)
	}

	payload := map[string]any{"error": err.Message}
	if err.Details != nil {
		payload["details"] = err.Details
	}
	if requestID != "" {
		payload["request_id"] = requestID
	}
	WriteJSON(w, status, payload)
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteRawJSON relays an already-encoded JSON body.
func WriteRawJSON(w http.ResponseWriter, status int, body []byte) {
	if len(strings.TrimSpace(string(body))) == 0 {
		body = []byte("{}")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}

// Package apperr classifies failures of backend-facing operations and maps
// them to the status codes and messages shown to browsers.
package apperr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind is the failure taxonomy shared by the proxy and the sync protocol.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnauthorized
	KindValidation
	KindNotFound
	KindTimeout
	KindUnreachable
	KindServerError
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindTimeout:
		return "timeout"
	case KindUnreachable:
		return "unreachable"
	case KindServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

const (
	MsgUnauthorized   = "Unauthorized"
	MsgTokenMissing   = "Failed to get authentication token"
	MsgInvalidRequest = "Invalid request. Please check that all fields are filled correctly."
	MsgAuthFailed     = "Authentication failed. Please log in again."
	MsgNotFound       = "Resource not found."
	MsgServerError    = "Server error. Please try again later."
	MsgTimeout        = "The server is taking too long to respond. Please try again."
	MsgUnreachable    = "Cannot connect to the backend server. Please try again later."
	MsgUnexpected     = "An unexpected error occurred. Please try again."
)

// Error is a classified failure carrying the status and message to present.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	// Body is the backend's JSON body relayed for statuses outside the
	// normalization table.
	Body json.RawMessage
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with the default status for kind.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Status: StatusFor(kind), Message: message, Err: err}
}

// Unauthorized is the no-session error.
func Unauthorized() *Error {
	return &Error{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: MsgUnauthorized}
}

// TokenMissing is the session-without-token error.
func TokenMissing(err error) *Error {
	return &Error{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: MsgTokenMissing, Err: err}
}

// Validation reports invalid user input.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Status: http.StatusBadRequest, Message: message}
}

// Timeout reports a backend call that exceeded its deadline.
func Timeout(err error) *Error {
	return &Error{Kind: KindTimeout, Status: http.StatusGatewayTimeout, Message: MsgTimeout, Err: err}
}

// Unreachable reports a backend that refused or dropped the connection.
func Unreachable(err error) *Error {
	return &Error{Kind: KindUnreachable, Status: http.StatusServiceUnavailable, Message: MsgUnreachable, Err: err}
}

// StatusFor returns the HTTP status presented for kind.
func StatusFor(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindUnreachable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// KindOf extracts the Kind of err, treating context deadlines as timeouts.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// As returns err as *Error, wrapping unclassified errors as KindUnknown 500s.
func As(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout(err)
	}
	return &Error{Kind: KindUnknown, Status: http.StatusInternalServerError, Message: MsgUnexpected, Err: err}
}

// KindForStatus classifies a backend HTTP status.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindUnauthorized
	case status == http.StatusBadRequest || status == http.StatusConflict || status == http.StatusUnprocessableEntity:
		return KindValidation
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable:
		return KindUnreachable
	case status >= 500:
		return KindServerError
	default:
		return KindUnknown
	}
}

// Normalize maps a non-2xx backend response to the error presented to the
// browser: 400 keeps the backend's own message when it has one, 401/404/500
// get fixed messages, and every other status is relayed with its body.
func Normalize(status int, body []byte) *Error {
	kind := KindForStatus(status)
	switch status {
	case http.StatusBadRequest:
		msg := BackendMessage(body)
		if msg == "" {
			msg = MsgInvalidRequest
		}
		return &Error{Kind: kind, Status: status, Message: msg}
	case http.StatusUnauthorized:
		return &Error{Kind: kind, Status: status, Message: MsgAuthFailed}
	case http.StatusNotFound:
		return &Error{Kind: kind, Status: status, Message: MsgNotFound}
	case http.StatusInternalServerError:
		return &Error{Kind: kind, Status: status, Message: MsgServerError}
	}
	msg := BackendMessage(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	e := &Error{Kind: kind, Status: status, Message: msg}
	if json.Valid(body) {
		e.Body = append(json.RawMessage(nil), body...)
	}
	return e
}

// BackendMessage extracts error/message from a JSON error body.
func BackendMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	var errText string
	if len(payload.Error) > 0 && json.Unmarshal(payload.Error, &errText) == nil && strings.TrimSpace(errText) != "" {
		return strings.TrimSpace(errText)
	}
	// Some backend errors nest as {"error":{"message":"..."}}.
	var nested struct {
		Message string `json:"message"`
	}
	if len(payload.Error) > 0 && json.Unmarshal(payload.Error, &nested) == nil && strings.TrimSpace(nested.Message) != "" {
		return strings.TrimSpace(nested.Message)
	}
	return strings.TrimSpace(payload.Message)
}

// BackendCode extracts a structured error code from a JSON error body.
func BackendCode(body []byte) string {
	var payload struct {
		Code  string          `json:"code"`
		Error json.RawMessage `json:"error"`
	}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		return ""
	}
	if payload.Code != "" {
		return strings.TrimSpace(payload.Code)
	}
	var nested struct {
		Code string `json:"code"`
	}
	if len(payload.Error) > 0 && json.Unmarshal(payload.Error, &nested) == nil {
		return strings.TrimSpace(nested.Code)
	}
	return ""
}

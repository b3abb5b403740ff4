// Package proxy relays browser requests to the backend on behalf of the
// signed-in user, attaching their bearer token and normalizing failures.
package proxy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/GearConnect-Official/gearconnect-landing/internal/apperr"
	"github.com/GearConnect-Official/gearconnect-landing/internal/backend"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/auth"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/httpx"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/observability"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/requestctx"
)

// FailurePolicy decides what a route answers when the backend cannot.
type FailurePolicy int

const (
	// FailClosed surfaces every failure as an error response.
	FailClosed FailurePolicy = iota
	// FailOpen answers 200 with an empty shape when there is no session or
	// the backend timed out, was unreachable or returned 404.
	FailOpen
)

// Policy configures one proxied route.
type Policy struct {
	Route     string
	OnFailure FailurePolicy
	// Empty builds the empty-but-valid body served by FailOpen routes.
	Empty   func() any
	Timeout time.Duration
}

// Outcome is the terminal state of one proxied request.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeEmpty        Outcome = "empty"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeTokenMissing Outcome = "token_missing"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeUnreachable  Outcome = "unreachable"
	OutcomeError        Outcome = "error"
)

// Call performs the backend request with the session's bearer token.
type Call func(ctx context.Context, token string) (*backend.Response, error)

// Responder writes a successful backend response.
type Responder func(w http.ResponseWriter, r *http.Request, resp *backend.Response)

type Proxy struct {
	tokens  auth.TokenSource
	metrics *observability.Metrics
}

func New(tokens auth.TokenSource, metrics *observability.Metrics) *Proxy {
	return &Proxy{tokens: tokens, metrics: metrics}
}

// Serve runs one request through session check, token fetch, the backend
// call and response shaping. A nil respond relays the backend body verbatim.
func (p *Proxy) Serve(w http.ResponseWriter, r *http.Request, policy Policy, call Call, respond Responder) Outcome {
	outcome := p.serve(w, r, policy, call, respond)
	p.metrics.RecordProxyOutcome(policy.Route, string(outcome))
	return outcome
}

func (p *Proxy) serve(w http.ResponseWriter, r *http.Request, policy Policy, call Call, respond Responder) Outcome {
	ctx := r.Context()
	logger := requestctx.Logger(ctx).With(zap.String("proxy_route", policy.Route))

	session, ok := auth.SessionFromContext(ctx)
	if !ok {
		if policy.OnFailure == FailOpen {
			writeEmpty(w, policy)
			return OutcomeEmpty
		}
		WriteError(ctx, w, apperr.Unauthorized())
		return OutcomeUnauthorized
	}

	token, err := p.token(ctx, session)
	if err != nil {
		logger.Warn("bearer token unavailable", zap.Error(err))
		WriteError(ctx, w, apperr.TokenMissing(err))
		return OutcomeTokenMissing
	}

	callCtx := ctx
	if policy.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, policy.Timeout)
		defer cancel()
	}

	resp, err := call(callCtx, token)
	if err != nil {
		appErr := Classify(err)
		logger.Warn("proxied call failed",
			zap.String("kind", appErr.Kind.String()),
			zap.Int("status", appErr.Status),
			zap.Error(err),
		)
		if policy.OnFailure == FailOpen && emptyOnFailure(appErr.Kind) {
			writeEmpty(w, policy)
			return OutcomeEmpty
		}
		WriteError(ctx, w, appErr)
		switch appErr.Kind {
		case apperr.KindTimeout:
			return OutcomeTimeout
		case apperr.KindUnreachable:
			return OutcomeUnreachable
		default:
			return OutcomeError
		}
	}

	if respond == nil {
		respond = Relay
	}
	respond(w, r, resp)
	return OutcomeSuccess
}

func (p *Proxy) token(ctx context.Context, session *auth.Session) (string, error) {
	if p.tokens == nil {
		return "", auth.ErrTokenUnavailable
	}
	token, err := p.tokens.Token(ctx, session)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", auth.ErrTokenUnavailable
	}
	return token, nil
}

// Classify converts backend and transport errors into presentable errors.
func Classify(err error) *apperr.Error {
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Normalized()
	}
	return apperr.As(err)
}

func emptyOnFailure(kind apperr.Kind) bool {
	switch kind {
	case apperr.KindTimeout, apperr.KindUnreachable, apperr.KindNotFound:
		return true
	default:
		return false
	}
}

func writeEmpty(w http.ResponseWriter, policy Policy) {
	var body any = map[string]any{}
	if policy.Empty != nil {
		body = policy.Empty()
	}
	httpx.WriteJSON(w, http.StatusOK, body)
}

// Relay writes the backend's status and body unchanged.
func Relay(w http.ResponseWriter, _ *http.Request, resp *backend.Response) {
	httpx.WriteRawJSON(w, resp.Status, resp.Body)
}

// WriteError writes a classified error. Statuses outside the normalization
// table relay the backend's JSON body when it sent one.
func WriteError(ctx context.Context, w http.ResponseWriter, err *apperr.Error) {
	if len(err.Body) > 0 {
		httpx.WriteRawJSON(w, err.Status, err.Body)
		return
	}
	httpx.WriteError(ctx, w, httpx.NewError(err.Status, err.Message))
}

package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GearConnect-Official/gearconnect-landing/internal/apperr"
	"github.com/GearConnect-Official/gearconnect-landing/internal/backend"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/auth"
)

var listPolicy = Policy{
	Route:     "conversations",
	OnFailure: FailOpen,
	Empty: func() any {
		return map[string]any{"tickets": []any{}, "byCategory": map[string]any{}, "categories": []any{}}
	},
	Timeout: time.Second,
}

var writePolicy = Policy{Route: "contact", OnFailure: FailClosed, Timeout: time.Second}

func staticTokens(token string, err error) auth.TokenSource {
	return auth.TokenSourceFunc(func(context.Context, *auth.Session) (string, error) {
		return token, err
	})
}

func signedIn(r *http.Request) *http.Request {
	return r.WithContext(auth.WithSession(r.Context(), &auth.Session{UserID: "user_1", SessionID: "sess_1"}))
}

func serve(t *testing.T, p *Proxy, policy Policy, req *http.Request, call Call) (*httptest.ResponseRecorder, Outcome, map[string]any) {
	t.Helper()
	rr := httptest.NewRecorder()
	outcome := p.Serve(rr, req, policy, call, nil)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr, outcome, body
}

func TestServe_NoSession(t *testing.T) {
	p := New(staticTokens("tok", nil), nil)
	called := false
	call := func(context.Context, string) (*backend.Response, error) {
		called = true
		return nil, nil
	}

	rr, outcome, body := serve(t, p, listPolicy, httptest.NewRequest(http.MethodGet, "/api/conversations", nil), call)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, OutcomeEmpty, outcome)
	require.Equal(t, []any{}, body["tickets"])

	rr, outcome, body = serve(t, p, writePolicy, httptest.NewRequest(http.MethodPost, "/api/contact", nil), call)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, OutcomeUnauthorized, outcome)
	require.Equal(t, apperr.MsgUnauthorized, body["error"])
	require.False(t, called)
}

func TestServe_TokenMissingIsDistinctFromNoSession(t *testing.T) {
	p := New(staticTokens("", auth.ErrTokenUnavailable), nil)
	call := func(context.Context, string) (*backend.Response, error) {
		t.Fatal("backend must not be called without a token")
		return nil, nil
	}

	for _, policy := range []Policy{listPolicy, writePolicy} {
		rr, outcome, body := serve(t, p, policy, signedIn(httptest.NewRequest(http.MethodGet, "/", nil)), call)
		require.Equal(t, http.StatusUnauthorized, rr.Code)
		require.Equal(t, OutcomeTokenMissing, outcome)
		require.Equal(t, apperr.MsgTokenMissing, body["error"])
	}
}

func TestServe_FailOpenOnTransportFailuresAndNotFound(t *testing.T) {
	p := New(staticTokens("tok", nil), nil)
	failures := map[string]error{
		"timeout":     apperr.Timeout(context.DeadlineExceeded),
		"unreachable": apperr.Unreachable(errors.New("connection refused")),
		"not found":   &backend.StatusError{Status: http.StatusNotFound},
	}
	for name, failure := range failures {
		t.Run(name, func(t *testing.T) {
			call := func(context.Context, string) (*backend.Response, error) { return nil, failure }
			rr, outcome, body := serve(t, p, listPolicy, signedIn(httptest.NewRequest(http.MethodGet, "/", nil)), call)
			require.Equal(t, http.StatusOK, rr.Code)
			require.Equal(t, OutcomeEmpty, outcome)
			require.Equal(t, map[string]any{}, body["byCategory"])
		})
	}
}

func TestServe_FailOpenStillReportsAuthFailures(t *testing.T) {
	p := New(staticTokens("tok", nil), nil)
	call := func(context.Context, string) (*backend.Response, error) {
		return nil, &backend.StatusError{Status: http.StatusUnauthorized}
	}
	rr, _, body := serve(t, p, listPolicy, signedIn(httptest.NewRequest(http.MethodGet, "/", nil)), call)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, apperr.MsgAuthFailed, body["error"])
}

func TestServe_FailClosedDistinctMessages(t *testing.T) {
	p := New(staticTokens("tok", nil), nil)
	cases := []struct {
		err     error
		status  int
		message string
		outcome Outcome
	}{
		{apperr.Timeout(context.DeadlineExceeded), http.StatusGatewayTimeout, apperr.MsgTimeout, OutcomeTimeout},
		{apperr.Unreachable(errors.New("refused")), http.StatusServiceUnavailable, apperr.MsgUnreachable, OutcomeUnreachable},
		{&backend.StatusError{Status: 500, Body: []byte(`{"error":"db down"}`)}, http.StatusInternalServerError, apperr.MsgServerError, OutcomeError},
		{&backend.StatusError{Status: 400, Body: []byte(`{"error":"Subject is required"}`)}, http.StatusBadRequest, "Subject is required", OutcomeError},
		{&backend.StatusError{Status: 404}, http.StatusNotFound, apperr.MsgNotFound, OutcomeError},
	}
	seen := map[string]bool{}
	for _, tc := range cases {
		call := func(context.Context, string) (*backend.Response, error) { return nil, tc.err }
		rr, outcome, body := serve(t, p, writePolicy, signedIn(httptest.NewRequest(http.MethodPost, "/", nil)), call)
		require.Equal(t, tc.status, rr.Code)
		require.Equal(t, tc.message, body["error"])
		require.Equal(t, tc.outcome, outcome)
		seen[tc.message] = true
	}
	require.Len(t, seen, len(cases))
}

func TestServe_RelaysUnlistedStatusBody(t *testing.T) {
	p := New(staticTokens("tok", nil), nil)
	call := func(context.Context, string) (*backend.Response, error) {
		return nil, &backend.StatusError{Status: http.StatusUnprocessableEntity, Body: []byte(`{"error":"bad status","allowed":["OPEN"]}`)}
	}
	rr := httptest.NewRecorder()
	p.Serve(rr, signedIn(httptest.NewRequest(http.MethodPatch, "/", nil)), writePolicy, call, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.JSONEq(t, `{"error":"bad status","allowed":["OPEN"]}`, rr.Body.String())
}

func TestServe_PassesTokenAndDeadline(t *testing.T) {
	p := New(staticTokens("tok_abc", nil), nil)
	call := func(ctx context.Context, token string) (*backend.Response, error) {
		require.Equal(t, "tok_abc", token)
		_, hasDeadline := ctx.Deadline()
		require.True(t, hasDeadline)
		return &backend.Response{Status: http.StatusCreated, Body: []byte(`{"id":1}`)}, nil
	}
	rr := httptest.NewRecorder()
	outcome := p.Serve(rr, signedIn(httptest.NewRequest(http.MethodPost, "/", nil)), writePolicy, call, nil)
	require.Equal(t, OutcomeSuccess, outcome)
	require.Equal(t, http.StatusCreated, rr.Code)
	require.JSONEq(t, `{"id":1}`, rr.Body.String())
}

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/GearConnect-Official/gearconnect-landing/internal/apperr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL)
	require.NoError(t, err)
	return client
}

func TestSubmitContact_SendsBearerAndBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, PathContact, r.URL.Path)
		require.Equal(t, "Bearer tok_123", r.Header.Get("Authorization"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NotEmpty(t, r.Header.Get("Idempotency-Key"))

		var body ContactRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, ContactRequest{Title: "Hi", Subject: "Billing", Message: "Help"}, body)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ticketId":"t_1"}`))
	})

	resp, err := client.SubmitContact(context.Background(), "tok_123", ContactRequest{Title: "Hi", Subject: "Billing", Message: "Help"})
	require.NoError(t, err)
	require.JSONEq(t, `{"ticketId":"t_1"}`, string(resp.Body))
}

func TestDo_ReadsCarryNoIdempotencyKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Idempotency-Key"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"tickets":[]}`))
	})
	_, err := client.ListTickets(context.Background(), "tok")
	require.NoError(t, err)
}

func TestDo_StatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Cet email est déjà utilisé"}`))
	})

	_, err := client.Signup(context.Background(), "tok", SignupRequest{Email: "a@b.c", Username: "a"})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadRequest, statusErr.Status)
	require.Equal(t, "Cet email est déjà utilisé", statusErr.Normalized().Message)
}

func TestDo_TimeoutIsClassified(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := client.ListTickets(ctx, "tok")
	require.Equal(t, apperr.KindTimeout, apperr.KindOf(err))
}

func TestDo_RefusedIsUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := NewClient(url)
	require.NoError(t, err)
	_, err = client.ListTickets(context.Background(), "tok")
	require.Equal(t, apperr.KindUnreachable, apperr.KindOf(err))
}

func TestDo_RejectsForeignPaths(t *testing.T) {
	client, err := NewClient("http://backend.local")
	require.NoError(t, err)

	for _, path := range []string{"http://evil.test/api", "//evil.test/api", "/api/../admin", "api/x"} {
		_, err := client.Do(context.Background(), Request{Method: http.MethodGet, Path: path})
		require.Error(t, err, path)
	}
}

func TestResolve_KeepsBasePath(t *testing.T) {
	client, err := NewClient("https://backend.local/v2/")
	require.NoError(t, err)
	got, err := client.resolve(TicketStatusPath("t_1"), nil)
	require.NoError(t, err)
	require.Equal(t, "https://backend.local/v2/api/landing/contact/tickets/t_1/status", got)
}

func TestMe_ParsesIDShapes(t *testing.T) {
	bodies := []string{`{"id":7}`, `{"user":{"id":7}}`, `{"user":{"id":"7"}}`, `{"data":{"id":7}}`}
	for _, body := range bodies {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, PathMe, r.URL.Path)
			_, _ = io.WriteString(w, body)
		})
		id, err := client.Me(context.Background(), "tok")
		require.NoError(t, err, body)
		require.EqualValues(t, 7, id, body)
	}
}

func TestMe_NotFoundKeepsStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := client.Me(context.Background(), "tok")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, apperr.KindNotFound, statusErr.Normalized().Kind)
}

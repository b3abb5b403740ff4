package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		kind    Kind
		message string
	}{
		{"400 with backend error", 400, `{"error":"Email is invalid"}`, KindValidation, "Email is invalid"},
		{"400 with backend message", 400, `{"message":"Subject too long"}`, KindValidation, "Subject too long"},
		{"400 without body", 400, ``, KindValidation, MsgInvalidRequest},
		{"401", 401, `{"error":"jwt expired"}`, KindUnauthorized, MsgAuthFailed},
		{"404", 404, `{"error":"no ticket"}`, KindNotFound, MsgNotFound},
		{"500", 500, `{"error":"stack trace"}`, KindServerError, MsgServerError},
		{"422 relays", 422, `{"error":"Status not allowed"}`, KindValidation, "Status not allowed"},
		{"502 relays", 502, `not json`, KindUnreachable, "Bad Gateway"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.status, []byte(tc.body))
			require.Equal(t, tc.status, got.Status)
			require.Equal(t, tc.kind, got.Kind)
			require.Equal(t, tc.message, got.Message)
		})
	}
}

func TestNormalize_RelaysBodyOutsideTable(t *testing.T) {
	got := Normalize(http.StatusConflict, []byte(`{"error":"taken","code":"ALREADY_EXISTS"}`))
	require.JSONEq(t, `{"error":"taken","code":"ALREADY_EXISTS"}`, string(got.Body))

	got = Normalize(http.StatusBadRequest, []byte(`{"error":"bad"}`))
	require.Nil(t, got.Body)
}

func TestTransportErrorsHaveDistinctMessages(t *testing.T) {
	timeout := Timeout(context.DeadlineExceeded)
	unreachable := Unreachable(errors.New("connection refused"))

	require.Equal(t, http.StatusGatewayTimeout, timeout.Status)
	require.Equal(t, http.StatusServiceUnavailable, unreachable.Status)
	require.NotEqual(t, timeout.Message, unreachable.Message)
	require.NotEqual(t, timeout.Message, MsgServerError)
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("calling backend: %w", Unreachable(errors.New("refused")))
	require.Equal(t, KindUnreachable, KindOf(wrapped))
	require.Equal(t, KindTimeout, KindOf(fmt.Errorf("x: %w", context.DeadlineExceeded)))
	require.Equal(t, KindUnknown, KindOf(errors.New("other")))
	require.Equal(t, http.StatusInternalServerError, As(errors.New("other")).Status)
}

func TestBackendCode(t *testing.T) {
	require.Equal(t, "USER_ALREADY_EXISTS", BackendCode([]byte(`{"code":"USER_ALREADY_EXISTS"}`)))
	require.Equal(t, "EMAIL_ALREADY_EXISTS", BackendCode([]byte(`{"error":{"code":"EMAIL_ALREADY_EXISTS","message":"x"}}`)))
	require.Equal(t, "", BackendCode([]byte(`oops`)))
	require.Equal(t, "x", BackendMessage([]byte(`{"error":{"code":"EMAIL_ALREADY_EXISTS","message":"x"}}`)))
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/auth"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/config"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/observability"
)

func testEnv(backendURL string) map[string]string {
	return map[string]string{
		"WEB_ENV":         "local",
		"BACKEND_URL":     backendURL,
		"AUTH_PROVIDER":   "clerk",
		"SUPPORT_USER_ID": "7",
		"TEMPLATES_DIR":   "../../templates",
		"CONTENT_DIR":     "../../content",
		"PUBLIC_DIR":      "../../public",
	}
}

func newTestServer(t *testing.T, backendHandler http.Handler) http.Handler {
	t.Helper()

	upstream := httptest.NewServer(backendHandler)
	t.Cleanup(upstream.Close)

	cfg, err := config.Load(context.Background(),
		config.WithEnvFile(""),
		config.WithoutSystemEnv(),
		config.WithEnvMap(testEnv(upstream.URL)),
	)
	require.NoError(t, err)

	a, err := newApp(context.Background(), cfg, zap.NewNop(), observability.NewMetrics())
	require.NoError(t, err)
	require.Equal(t, providerDebug, a.provider)
	return a.handler
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetrics(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, http.NotFoundHandler())

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "gearconnect_landing_http_requests_total")
}

func TestAssetsServedWithETag(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, http.NotFoundHandler())

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/assets/css/site.css", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	require.Contains(t, rec.Header().Get("Cache-Control"), "max-age")

	req := httptest.NewRequest(http.MethodGet, "/assets/css/site.css", nil)
	req.Header.Set("If-None-Match", etag)
	require.Equal(t, http.StatusNotModified, serve(h, req).Code)
}

func TestPagesNegotiateLanguage(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/faq", nil)
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.5")
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "fr", rec.Header().Get("Content-Language"))
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var langCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "lang" {
			langCookie = c
		}
	}
	require.NotNil(t, langCookie)
	require.Equal(t, "fr", langCookie.Value)

	doc, err := goquery.NewDocumentFromReader(rec.Body)
	require.NoError(t, err)
	require.Equal(t, "fr", doc.Find("html").AttrOr("lang", ""))
}

func TestNotFoundResponses(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, http.NotFoundHandler())

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = serve(h, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestSessionCookieReachesProxy(t *testing.T) {
	t.Parallel()

	var gotAuth string
	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tickets":[{"id":1}],"byCategory":{},"categories":[]}`))
	})
	h := newTestServer(t, upstream)

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.AddCookie(&http.Cookie{Name: "__session", Value: "debug:alice"})
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, "Bearer debug:alice", gotAuth)

	var payload struct {
		Tickets []map[string]any `json:"tickets"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Tickets, 1)
}

func TestDevModeExposesGetToken(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, http.NotFoundHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/get-token", nil)
	req.Header.Set("Authorization", "Bearer debug:bob")
	rec := serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "debug:bob")
}

func TestProductionRequiresClerk(t *testing.T) {
	t.Parallel()

	cfg := config.Config{Environment: config.EnvProd, Auth: config.AuthConfig{Provider: config.ProviderClerk}}
	_, err := newSessionAuth(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)

	cfg.Auth.Provider = "okta"
	_, err = newSessionAuth(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "unsupported auth provider")
}

func TestClerkAuthLooksUpProfiles(t *testing.T) {
	t.Parallel()

	cfg := config.Config{
		Environment: config.EnvLocal,
		Auth: config.AuthConfig{
			Provider: config.ProviderClerk,
			Clerk: config.ClerkConfig{
				PublishableKey: "pk_test_Y2xlcmsuZXhhbXBsZS5jb20k",
				SecretKey:      "sk_test_secret",
				APIURL:         "https://api.clerk.test",
			},
		},
	}
	sa, err := newSessionAuth(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, config.ProviderClerk, sa.provider)
	require.NotNil(t, sa.profiles)
	require.IsType(t, &auth.ClerkTokenSource{}, sa.tokens)

	cfg.Auth.Clerk = config.ClerkConfig{}
	sa, err = newSessionAuth(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, providerDebug, sa.provider)
	require.Nil(t, sa.profiles)
}

func TestCheckEnv(t *testing.T) {
	t.Parallel()

	upstream := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(upstream.Close)

	var out bytes.Buffer
	values := testEnv(upstream.URL)
	values["CLERK_SECRET_KEY"] = "sk_test_value"
	require.NoError(t, runCheckEnv(context.Background(), &out, values, nil))
	require.Contains(t, out.String(), "answered 404")
	require.Contains(t, out.String(), "All checks passed")
	require.NotContains(t, out.String(), "sk_test_value")

	closed := httptest.NewServer(http.NotFoundHandler())
	closedURL := closed.URL
	closed.Close()

	out.Reset()
	err := runCheckEnv(context.Background(), &out, testEnv(closedURL), nil)
	require.ErrorContains(t, err, "backend is unreachable")

	out.Reset()
	values = testEnv(upstream.URL)
	delete(values, "BACKEND_URL")
	err = runCheckEnv(context.Background(), &out, values, nil)
	require.Error(t, err)
	require.Contains(t, out.String(), "BACKEND_URL")
}

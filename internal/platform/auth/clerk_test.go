package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

var testNow = time.Unix(1_700_000_000, 0)

type jwksFixture struct {
	key      *rsa.PrivateKey
	server   *httptest.Server
	requests atomic.Int32
}

func newJWKSFixture(t *testing.T) *jwksFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	f := &jwksFixture{key: key}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "ins_1", Algorithm: "RS256", Use: "sig"}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) sign(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":   "user_2abc",
		"sid":   "sess_2xyz",
		"iss":   "https://clerk.gearconnect.test",
		"azp":   "https://gearconnect.test",
		"exp":   testNow.Add(time.Minute).Unix(),
		"nbf":   testNow.Add(-time.Minute).Unix(),
		"iat":   testNow.Add(-time.Minute).Unix(),
		"email": "driver@gearconnect.test",
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "ins_1"
	signed, err := token.SignedString(f.key)
	require.NoError(t, err)
	return signed
}

func (f *jwksFixture) verifier(opts ...ClerkOption) *ClerkVerifier {
	cache := NewJWKSCache(f.server.URL, WithJWKSClock(func() time.Time { return testNow }))
	opts = append([]ClerkOption{WithClerkClock(func() time.Time { return testNow })}, opts...)
	return NewClerkVerifier(cache, opts...)
}

func TestClerkVerifier_Verify(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.verifier(
		WithClerkIssuer("https://clerk.gearconnect.test/"),
		WithClerkAuthorizedParties("https://gearconnect.test"),
	)

	session, err := v.Verify(context.Background(), f.sign(t, nil))
	require.NoError(t, err)
	require.Equal(t, "user_2abc", session.UserID)
	require.Equal(t, "sess_2xyz", session.SessionID)
	require.Equal(t, "sess_2xyz", session.Key())
	require.Equal(t, "driver@gearconnect.test", session.Email)
	require.Equal(t, testNow.Add(time.Minute).Unix(), session.ExpiresAt.Unix())

	_, err = v.Verify(context.Background(), f.sign(t, nil))
	require.NoError(t, err)
	require.EqualValues(t, 1, f.requests.Load(), "jwks should be cached")
}

func TestClerkVerifier_Rejects(t *testing.T) {
	f := newJWKSFixture(t)
	v := f.verifier(
		WithClerkIssuer("https://clerk.gearconnect.test"),
		WithClerkAuthorizedParties("https://gearconnect.test"),
	)

	cases := map[string]func(jwt.MapClaims){
		"expired":      func(c jwt.MapClaims) { c["exp"] = testNow.Add(-time.Minute).Unix() },
		"not yet":      func(c jwt.MapClaims) { c["nbf"] = testNow.Add(time.Minute).Unix() },
		"wrong issuer": func(c jwt.MapClaims) { c["iss"] = "https://evil.test" },
		"wrong azp":    func(c jwt.MapClaims) { c["azp"] = "https://evil.test" },
		"no subject":   func(c jwt.MapClaims) { delete(c, "sub") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), f.sign(t, mutate))
			require.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err := v.Verify(context.Background(), "")
	require.ErrorIs(t, err, ErrNoSession)
}

func TestClerkVerifier_RejectsForeignKey(t *testing.T) {
	f := newJWKSFixture(t)
	other := newJWKSFixture(t)

	_, err := f.verifier().Verify(context.Background(), other.sign(t, nil))
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestClerkJWKSURL(t *testing.T) {
	pk := "pk_test_" + base64.StdEncoding.EncodeToString([]byte("happy-cat-12.clerk.accounts.dev$"))
	got, err := ClerkJWKSURL(pk)
	require.NoError(t, err)
	require.Equal(t, "https://happy-cat-12.clerk.accounts.dev/.well-known/jwks.json", got)

	_, err = ClerkJWKSURL("sk_test_nope")
	require.Error(t, err)
}

func TestClerkTokenSource_Mints(t *testing.T) {
	var gotAuth, gotPath string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]string{"object": "token", "jwt": "fresh.jwt.value"})
	}))
	t.Cleanup(api.Close)

	src := NewClerkTokenSource(NewClerkAPI("sk_test_secret", WithClerkAPIURL(api.URL)))
	token, err := src.Token(context.Background(), &Session{UserID: "user_1", SessionID: "sess_1", Token: "old"})
	require.NoError(t, err)
	require.Equal(t, "fresh.jwt.value", token)
	require.Equal(t, "Bearer sk_test_secret", gotAuth)
	require.Equal(t, "/v1/sessions/sess_1/tokens", gotPath)
}

func TestClerkTokenSource_FallsBackToPresentedToken(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(api.Close)

	src := NewClerkTokenSource(NewClerkAPI("sk_test_secret", WithClerkAPIURL(api.URL)),
		WithClerkTokenClock(func() time.Time { return testNow }),
	)

	token, err := src.Token(context.Background(), &Session{SessionID: "sess_1", Token: "presented", ExpiresAt: testNow.Add(time.Minute)})
	require.NoError(t, err)
	require.Equal(t, "presented", token)

	_, err = src.Token(context.Background(), &Session{SessionID: "sess_1", Token: "presented", ExpiresAt: testNow})
	require.True(t, errors.Is(err, ErrTokenUnavailable))

	_, err = src.Token(context.Background(), &Session{SessionID: "sess_1"})
	require.ErrorIs(t, err, ErrTokenUnavailable)
}

func TestClerkTokenSource_WithoutSecretRelaysPresentedToken(t *testing.T) {
	require.Nil(t, NewClerkAPI("  "))

	src := NewClerkTokenSource(nil, WithClerkTokenClock(func() time.Time { return testNow }))
	token, err := src.Token(context.Background(), &Session{SessionID: "sess_1", Token: "presented", ExpiresAt: testNow.Add(time.Minute)})
	require.NoError(t, err)
	require.Equal(t, "presented", token)
}

func TestClerkProfiles_LooksUpUsersWithoutEmailClaim(t *testing.T) {
	var lookups atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lookups.Add(1)
		require.Equal(t, "/v1/users/user_2x", r.URL.Path)
		require.Equal(t, "Bearer sk_test_secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "user",
			"id": "user_2x",
			"username": "pitlane",
			"first_name": "Ada",
			"primary_email_address_id": "idn_2",
			"email_addresses": [
				{"id": "idn_1", "object": "email_address", "email_address": "old@gearconnect.app"},
				{"id": "idn_2", "object": "email_address", "email_address": "ada@gearconnect.app"}
			]
		}`))
	}))
	t.Cleanup(api.Close)

	profiles := NewClerkProfiles(NewClerkAPI("sk_test_secret", WithClerkAPIURL(api.URL)))
	session := &Session{UserID: "user_2x", SessionID: "sess_2x", Provider: clerkProvider}

	for i := 0; i < 2; i++ {
		profile, err := profiles.Profile(context.Background(), session)
		require.NoError(t, err)
		require.Equal(t, Profile{Email: "ada@gearconnect.app", Username: "pitlane", FirstName: "Ada"}, profile)
	}
	require.EqualValues(t, 1, lookups.Load())

	withEmail := &Session{UserID: "user_3", Email: "claims@gearconnect.app", Username: "claims"}
	profile, err := profiles.Profile(context.Background(), withEmail)
	require.NoError(t, err)
	require.Equal(t, "claims@gearconnect.app", profile.Email)
	require.EqualValues(t, 1, lookups.Load())
}

func TestClerkProfiles_LookupFailure(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"errors":[{"code":"resource_not_found","message":"not found"}]}`))
	}))
	t.Cleanup(api.Close)

	profiles := NewClerkProfiles(NewClerkAPI("sk_test_secret", WithClerkAPIURL(api.URL)))
	_, err := profiles.Profile(context.Background(), &Session{UserID: "user_gone"})
	require.Error(t, err)

	_, err = profiles.Profile(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoSession)
}

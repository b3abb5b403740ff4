package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

const (
	firebaseProvider     = "firebase"
	defaultVerifyTimeout = 5 * time.Second
)

// FirebaseConfig carries the Admin SDK settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// FirebaseVerifier verifies Firebase ID tokens as an alternative identity
// provider.
type FirebaseVerifier struct {
	client  idTokenVerifier
	timeout time.Duration
}

// NewFirebaseVerifier initialises the Admin SDK for the configured project.
func NewFirebaseVerifier(ctx context.Context, cfg FirebaseConfig) (*FirebaseVerifier, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("firebase project id is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client, timeout: defaultVerifyTimeout}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, raw string) (*Session, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoSession
	}
	if v == nil || v.client == nil {
		return nil, errors.New("firebase verifier not initialised")
	}
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	token, err := v.client.VerifyIDToken(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	session := &Session{
		UserID:    token.UID,
		Token:     raw,
		ExpiresAt: time.Unix(token.Expires, 0),
		Provider:  firebaseProvider,
	}
	if email, ok := token.Claims["email"].(string); ok {
		session.Email = email
	}
	if name, ok := token.Claims["name"].(string); ok {
		session.FirstName = name
	}
	if sid, ok := token.Claims["auth_time"].(float64); ok {
		// Firebase has no session id; one sign-in is identified by its auth_time.
		session.SessionID = fmt.Sprintf("%s:%d", token.UID, int64(sid))
	}
	return session, nil
}

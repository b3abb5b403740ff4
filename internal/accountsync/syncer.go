package accountsync

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GearConnect-Official/gearconnect-landing/internal/apperr"
	"github.com/GearConnect-Official/gearconnect-landing/internal/backend"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/auth"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/observability"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/requestctx"
)

const (
	msgEmailRequired      = "Email is required"
	msgProfileUnavailable = "Account details are unavailable, try again later"
)

// Sync outcomes recorded in metrics.
const (
	resultSynced            = "synced"
	resultAlreadyRegistered = "already_registered"
	resultFailed            = "failed"
	resultTokenMissing      = "token_missing"
	resultDuplicate         = "duplicate"
)

// Registrar performs the backend account upsert.
type Registrar interface {
	Signup(ctx context.Context, token string, req backend.SignupRequest) (*backend.Response, error)
}

// Input carries the claims submitted for registration.
type Input struct {
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
}

// Result describes a sync attempt as seen by one caller. Duplicate is set
// when the caller observed an attempt started by another call.
type Result struct {
	State             State         `json:"-"`
	Synced            bool          `json:"synced"`
	AlreadyRegistered bool          `json:"alreadyRegistered,omitempty"`
	Duplicate         bool          `json:"duplicate,omitempty"`
	Err               *apperr.Error `json:"-"`
	CompletedAt       time.Time     `json:"completedAt,omitempty"`
}

// Status is the JSON view of a session's sync state.
type Status struct {
	State  string `json:"state"`
	Synced bool   `json:"synced"`
	Error  string `json:"error,omitempty"`
}

type Syncer struct {
	registry *Registry
	backend  Registrar
	tokens   auth.TokenSource
	profiles auth.ProfileSource
	matcher  Matcher
	metrics  *observability.Metrics
	timeout  time.Duration
	now      func() time.Time
}

type Option func(*Syncer)

func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Syncer) {
		s.metrics = metrics
	}
}

// WithProfiles fills the email and username from the identity provider when
// neither the request nor the session claims carry them.
func WithProfiles(profiles auth.ProfileSource) Option {
	return func(s *Syncer) {
		s.profiles = profiles
	}
}

// WithTimeout bounds the signup call.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Syncer) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Syncer) {
		if now != nil {
			s.now = now
		}
	}
}

func NewSyncer(registry *Registry, registrar Registrar, tokens auth.TokenSource, matcher Matcher, opts ...Option) *Syncer {
	s := &Syncer{
		registry: registry,
		backend:  registrar,
		tokens:   tokens,
		matcher:  matcher,
		timeout:  15 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync registers the session's user with the backend at most once per
// session. Callers that lose the race get the current state of the attempt
// in flight or its recorded result. A returned error means the input was
// rejected before any attempt was made.
func (s *Syncer) Sync(ctx context.Context, session *auth.Session, in Input) (Result, error) {
	if session == nil || session.Key() == "" {
		return Result{}, apperr.Unauthorized()
	}
	if latch, ok := s.registry.Peek(session.Key()); ok && latch.State() != StateNotStarted {
		return s.duplicate(latch), nil
	}

	in, err := s.complete(ctx, session, in)
	if err != nil {
		return Result{}, err
	}

	latch := s.registry.Latch(session.Key())
	if !latch.Begin() {
		return s.duplicate(latch), nil
	}

	result := s.attempt(ctx, session, in.Email, in.Username)
	latch.Finish(result)
	result.State = latch.State()
	return result, nil
}

func (s *Syncer) duplicate(latch *Latch) Result {
	s.metrics.RecordSync(resultDuplicate)
	result := latch.Result()
	result.State = latch.State()
	result.Duplicate = true
	return result
}

// complete resolves the email and username from the input, then the session
// claims, then the profile source.
func (s *Syncer) complete(ctx context.Context, session *auth.Session, in Input) (Input, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	if in.Email == "" {
		in.Email = strings.TrimSpace(session.Email)
	}
	if in.Username == "" {
		in.Username = strings.TrimSpace(session.Username)
	}
	if in.Email == "" && s.profiles != nil {
		profile, err := s.profiles.Profile(ctx, session)
		if err != nil {
			requestctx.Logger(ctx).Warn("account sync profile lookup failed", zap.Error(err))
			return in, apperr.New(apperr.KindOf(err), msgProfileUnavailable, err)
		}
		in.Email = strings.TrimSpace(profile.Email)
		if in.Username == "" {
			in.Username = strings.TrimSpace(profile.Username)
		}
	}
	if in.Email == "" {
		return in, apperr.Validation(msgEmailRequired)
	}
	return in, nil
}

func (s *Syncer) attempt(ctx context.Context, session *auth.Session, email, username string) Result {
	logger := requestctx.Logger(ctx).With(zap.String("sync_session", session.Key()))

	token, err := s.token(ctx, session)
	if err != nil {
		logger.Warn("account sync skipped: bearer token unavailable", zap.Error(err))
		s.metrics.RecordSync(resultTokenMissing)
		return Result{Err: apperr.TokenMissing(err), CompletedAt: s.now()}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := backend.SignupRequest{Email: email, Username: usernameFor(username, email)}
	_, err = s.backend.Signup(callCtx, token, req)
	if err == nil {
		logger.Info("account synced")
		s.metrics.RecordSync(resultSynced)
		return Result{Synced: true, CompletedAt: s.now()}
	}

	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) {
		if s.matcher.AlreadyRegistered(statusErr.Status, statusErr.Body) {
			logger.Info("account already registered", zap.Int("backend_status", statusErr.Status))
			s.metrics.RecordSync(resultAlreadyRegistered)
			return Result{Synced: true, AlreadyRegistered: true, CompletedAt: s.now()}
		}
		appErr := statusErr.Normalized()
		logger.Warn("account sync failed",
			zap.Int("backend_status", statusErr.Status),
			zap.String("kind", appErr.Kind.String()),
			zap.String("backend_message", appErr.Message),
		)
		s.metrics.RecordSync(resultFailed)
		return Result{Err: appErr, CompletedAt: s.now()}
	}

	appErr := apperr.As(err)
	logger.Warn("account sync failed", zap.String("kind", appErr.Kind.String()), zap.Error(err))
	s.metrics.RecordSync(resultFailed)
	return Result{Err: appErr, CompletedAt: s.now()}
}

func (s *Syncer) token(ctx context.Context, session *auth.Session) (string, error) {
	if s.tokens == nil {
		return "", auth.ErrTokenUnavailable
	}
	token, err := s.tokens.Token(ctx, session)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", auth.ErrTokenUnavailable
	}
	return token, nil
}

// Status reports the latch state for a session without starting an attempt.
func (s *Syncer) Status(session *auth.Session) Status {
	if session == nil {
		return Status{State: StateNotStarted.String()}
	}
	latch, ok := s.registry.Peek(session.Key())
	if !ok {
		return Status{State: StateNotStarted.String()}
	}
	status := Status{State: latch.State().String()}
	if latch.State().Done() {
		result := latch.Result()
		status.Synced = result.Synced
		if result.Err != nil {
			status.Error = result.Err.Message
		}
	}
	return status
}

// usernameFor falls back to the local part of the email.
func usernameFor(username, email string) string {
	if username = strings.TrimSpace(username); username != "" {
		return username
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}

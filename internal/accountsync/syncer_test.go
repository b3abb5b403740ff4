package accountsync

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GearConnect-Official/gearconnect-landing/internal/apperr"
	"github.com/GearConnect-Official/gearconnect-landing/internal/backend"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/auth"
	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/config"
)

type stubRegistrar struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
	last    backend.SignupRequest
	mu      sync.Mutex
}

func (s *stubRegistrar) Signup(ctx context.Context, token string, req backend.SignupRequest) (*backend.Response, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.last = req
	s.mu.Unlock()
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &backend.Response{Status: http.StatusCreated, Body: []byte(`{"id":1}`)}, nil
}

func tokens(token string, err error) auth.TokenSource {
	return auth.TokenSourceFunc(func(context.Context, *auth.Session) (string, error) {
		return token, err
	})
}

func newSyncer(reg Registrar, ts auth.TokenSource) *Syncer {
	return NewSyncer(NewRegistry(100, time.Hour), reg, ts, NewMatcher(config.DefaultExistingPhrases))
}

var session = &auth.Session{UserID: "user_1", SessionID: "sess_1"}

func TestSync_TwoCallsOneBackendCall(t *testing.T) {
	reg := &stubRegistrar{}
	s := newSyncer(reg, tokens("tok", nil))

	first, err := s.Sync(context.Background(), session, Input{Email: "driver@gearconnect.app"})
	require.NoError(t, err)
	require.True(t, first.Synced)
	require.Equal(t, StateSucceeded, first.State)

	second, err := s.Sync(context.Background(), session, Input{Email: "driver@gearconnect.app"})
	require.NoError(t, err)
	require.True(t, second.Synced)
	require.True(t, second.Duplicate)
	require.EqualValues(t, 1, reg.calls.Load())
	require.Equal(t, "driver", reg.last.Username)
	require.Empty(t, reg.last.Password)
}

func TestSync_ConcurrentCallersShareOneAttempt(t *testing.T) {
	reg := &stubRegistrar{release: make(chan struct{})}
	s := newSyncer(reg, tokens("tok", nil))

	var wg sync.WaitGroup
	results := make(chan Result, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := s.Sync(context.Background(), session, Input{Email: "a@b.c", Username: "ace"})
			assert.NoError(t, err)
			results <- result
		}()
	}

	require.Eventually(t, func() bool { return reg.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(reg.release)
	wg.Wait()
	close(results)

	var duplicates int
	for result := range results {
		if result.Duplicate {
			duplicates++
		}
	}
	require.Equal(t, 7, duplicates)
	require.EqualValues(t, 1, reg.calls.Load())
	require.Equal(t, "ace", reg.last.Username)
}

func TestSync_AlreadyRegisteredIsSuccess(t *testing.T) {
	cases := map[string]*backend.StatusError{
		"conflict":         {Status: http.StatusConflict},
		"structured code":  {Status: http.StatusBadRequest, Body: []byte(`{"code":"EMAIL_ALREADY_EXISTS","error":"nope"}`)},
		"localized phrase": {Status: http.StatusBadRequest, Body: []byte(`{"error":"Cet email est DÉJÀ utilisé"}`)},
		"english phrase":   {Status: http.StatusBadRequest, Body: []byte(`{"message":"User already exists"}`)},
	}
	for name, failure := range cases {
		t.Run(name, func(t *testing.T) {
			s := newSyncer(&stubRegistrar{err: failure}, tokens("tok", nil))
			result, err := s.Sync(context.Background(), session, Input{Email: "a@b.c"})
			require.NoError(t, err)
			require.True(t, result.Synced)
			require.True(t, result.AlreadyRegistered)
		})
	}
}

func TestSync_FailureIsRecordedAndNotRetried(t *testing.T) {
	reg := &stubRegistrar{err: &backend.StatusError{Status: http.StatusBadRequest, Body: []byte(`{"error":"Invalid email"}`)}}
	s := newSyncer(reg, tokens("tok", nil))

	result, err := s.Sync(context.Background(), session, Input{Email: "a@b.c"})
	require.NoError(t, err)
	require.False(t, result.Synced)
	require.Equal(t, StateFailed, result.State)
	require.Equal(t, "Invalid email", result.Err.Message)

	_, err = s.Sync(context.Background(), session, Input{Email: "a@b.c"})
	require.NoError(t, err)
	require.EqualValues(t, 1, reg.calls.Load())

	status := s.Status(session)
	require.Equal(t, "failed", status.State)
	require.Equal(t, "Invalid email", status.Error)
}

func TestSync_TransportFailureKeepsKind(t *testing.T) {
	reg := &stubRegistrar{err: apperr.Unreachable(errors.New("connection refused"))}
	s := newSyncer(reg, tokens("tok", nil))

	result, err := s.Sync(context.Background(), session, Input{Email: "a@b.c"})
	require.NoError(t, err)
	require.Equal(t, apperr.KindUnreachable, result.Err.Kind)
}

func TestSync_TokenMissingFailsWithoutBackendCall(t *testing.T) {
	reg := &stubRegistrar{}
	s := newSyncer(reg, tokens("", auth.ErrTokenUnavailable))

	result, err := s.Sync(context.Background(), session, Input{Email: "a@b.c"})
	require.NoError(t, err)
	require.False(t, result.Synced)
	require.Equal(t, apperr.MsgTokenMissing, result.Err.Message)
	require.Zero(t, reg.calls.Load())
}

func TestSync_MissingEmailDoesNotConsumeLatch(t *testing.T) {
	reg := &stubRegistrar{}
	s := newSyncer(reg, tokens("tok", nil))

	_, err := s.Sync(context.Background(), session, Input{})
	require.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	require.Equal(t, "not_started", s.Status(session).State)

	result, err := s.Sync(context.Background(), session, Input{Email: "a@b.c"})
	require.NoError(t, err)
	require.True(t, result.Synced)
	require.Equal(t, "succeeded", s.Status(session).State)
}

func TestSync_SessionEmailIsUsedWhenInputOmitsIt(t *testing.T) {
	reg := &stubRegistrar{}
	s := newSyncer(reg, tokens("tok", nil))

	withEmail := &auth.Session{UserID: "user_2", Email: "pit@crew.io"}
	result, err := s.Sync(context.Background(), withEmail, Input{})
	require.NoError(t, err)
	require.True(t, result.Synced)
	require.Equal(t, "pit", reg.last.Username)
}

func TestSync_ProfileFillsMissingEmail(t *testing.T) {
	reg := &stubRegistrar{}
	var lookups atomic.Int32
	profiles := auth.ProfileSourceFunc(func(_ context.Context, s *auth.Session) (auth.Profile, error) {
		lookups.Add(1)
		require.Equal(t, "user_2x", s.UserID)
		return auth.Profile{Email: "ada@gearconnect.app", Username: "pitlane"}, nil
	})
	s := NewSyncer(NewRegistry(100, time.Hour), reg, tokens("tok", nil), NewMatcher(nil), WithProfiles(profiles))

	noEmail := &auth.Session{UserID: "user_2x", SessionID: "sess_2x", Provider: "clerk"}
	first, err := s.Sync(context.Background(), noEmail, Input{})
	require.NoError(t, err)
	require.True(t, first.Synced)
	require.Equal(t, backend.SignupRequest{Email: "ada@gearconnect.app", Username: "pitlane"}, reg.last)

	second, err := s.Sync(context.Background(), noEmail, Input{})
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.EqualValues(t, 1, reg.calls.Load())
	require.EqualValues(t, 1, lookups.Load())
}

func TestSync_ProfileFailureDoesNotConsumeLatch(t *testing.T) {
	reg := &stubRegistrar{}
	fail := true
	profiles := auth.ProfileSourceFunc(func(context.Context, *auth.Session) (auth.Profile, error) {
		if fail {
			return auth.Profile{}, errors.New("clerk down")
		}
		return auth.Profile{Email: "ada@gearconnect.app"}, nil
	})
	s := NewSyncer(NewRegistry(100, time.Hour), reg, tokens("tok", nil), NewMatcher(nil), WithProfiles(profiles))

	_, err := s.Sync(context.Background(), session, Input{})
	require.Error(t, err)
	require.Equal(t, "not_started", s.Status(session).State)
	require.Zero(t, reg.calls.Load())

	fail = false
	result, err := s.Sync(context.Background(), session, Input{})
	require.NoError(t, err)
	require.True(t, result.Synced)
	require.Equal(t, "ada", reg.last.Username)
}

func TestSync_NoSession(t *testing.T) {
	s := newSyncer(&stubRegistrar{}, tokens("tok", nil))
	_, err := s.Sync(context.Background(), nil, Input{Email: "a@b.c"})
	require.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
}

func TestMatcher_OnlyTreats400PhrasesAsRegistered(t *testing.T) {
	m := NewMatcher([]string{" already exists ", ""})
	require.True(t, m.AlreadyRegistered(http.StatusBadRequest, []byte(`{"error":"Account ALREADY EXISTS"}`)))
	require.False(t, m.AlreadyRegistered(http.StatusInternalServerError, []byte(`{"error":"already exists"}`)))
	require.False(t, m.AlreadyRegistered(http.StatusBadRequest, []byte(`{"error":"bad email"}`)))
	require.False(t, m.AlreadyRegistered(http.StatusBadRequest, nil))
}

func TestMatcher_StructuredCodeOnlyOnClientErrors(t *testing.T) {
	m := NewMatcher(nil)
	require.True(t, m.AlreadyRegistered(http.StatusConflict, nil))
	require.True(t, m.AlreadyRegistered(http.StatusBadRequest, []byte(`{"code":"USER_ALREADY_EXISTS"}`)))
	require.True(t, m.AlreadyRegistered(http.StatusUnprocessableEntity, []byte(`{"code":"already_exists"}`)))
	require.False(t, m.AlreadyRegistered(http.StatusInternalServerError, []byte(`{"code":"ALREADY_EXISTS"}`)))
	require.False(t, m.AlreadyRegistered(http.StatusBadGateway, []byte(`{"code":"EMAIL_ALREADY_EXISTS"}`)))
}

func TestLatch_FinishOnlyOnce(t *testing.T) {
	l := NewLatch()
	l.Finish(Result{Synced: true})
	require.Equal(t, StateNotStarted, l.State())

	require.True(t, l.Begin())
	require.False(t, l.Begin())
	l.Finish(Result{Synced: true})
	l.Finish(Result{})
	require.Equal(t, StateSucceeded, l.State())
	require.True(t, l.Result().Synced)

	select {
	case <-l.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

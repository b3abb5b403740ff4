package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

var (
	ErrJWKSKeyNotFound = errors.New("auth: jwks key not found")
	ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")
)

const (
	defaultJWKSValidity = 15 * time.Minute
	defaultJWKSTimeout  = 5 * time.Second
)

// JWKSCache fetches a JSON Web Key Set on demand and keeps it for the
// lifetime advertised by Cache-Control max-age. Unknown key ids trigger one
// refetch so provider key rotation is picked up without a restart.
type JWKSCache struct {
	url      string
	client   *http.Client
	logger   *zap.Logger
	now      func() time.Time
	validity time.Duration
	timeout  time.Duration

	mu     sync.RWMutex
	keys   map[string]jose.JSONWebKey
	expiry time.Time

	refreshMu sync.Mutex
}

type JWKSOption func(*JWKSCache)

func NewJWKSCache(url string, opts ...JWKSOption) *JWKSCache {
	cache := &JWKSCache{
		url:      url,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   zap.NewNop(),
		now:      time.Now,
		validity: defaultJWKSValidity,
		timeout:  defaultJWKSTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(cache)
		}
	}
	return cache
}

func WithJWKSHTTPClient(client *http.Client) JWKSOption {
	return func(c *JWKSCache) {
		if client != nil {
			c.client = client
		}
	}
}

func WithJWKSLogger(logger *zap.Logger) JWKSOption {
	return func(c *JWKSCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithJWKSClock injects a time source for tests.
func WithJWKSClock(now func() time.Time) JWKSOption {
	return func(c *JWKSCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithJWKSValidity sets the fallback lifetime used when the response has no
// cache headers.
func WithJWKSValidity(d time.Duration) JWKSOption {
	return func(c *JWKSCache) {
		if d > 0 {
			c.validity = d
		}
	}
}

// Keyfunc returns a jwt.Keyfunc resolving RS256 keys by kid.
func (c *JWKSCache) Keyfunc(ctx context.Context) jwt.Keyfunc {
	if ctx == nil {
		ctx = context.Background()
	}
	return func(token *jwt.Token) (any, error) {
		if token.Method == nil || token.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("auth: unexpected signing method %v", token.Header["alg"])
		}
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("auth: token missing kid header")
		}
		return c.Key(ctx, kid)
	}
}

// Key resolves the public key for kid.
func (c *JWKSCache) Key(ctx context.Context, kid string) (any, error) {
	if c.stale(c.now()) {
		if err := c.refresh(ctx); err != nil {
			return nil, err
		}
	}
	if key, ok := c.cached(kid); ok {
		return key, nil
	}
	if err := c.refresh(ctx); err != nil {
		return nil, err
	}
	if key, ok := c.cached(kid); ok {
		return key, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrJWKSKeyNotFound, kid)
}

func (c *JWKSCache) cached(kid string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	jwk, ok := c.keys[kid]
	if !ok {
		return nil, false
	}
	return jwk.Key, true
}

func (c *JWKSCache) stale(now time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys) == 0 || !now.Before(c.expiry)
}

func (c *JWKSCache) refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrJWKSFetchFailed, resp.StatusCode)
	}

	var set jose.JSONWebKeySet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("%w: decode jwks: %v", ErrJWKSFetchFailed, err)
	}
	keys := make(map[string]jose.JSONWebKey, len(set.Keys))
	for _, jwk := range set.Keys {
		if jwk.KeyID == "" || !jwk.Valid() {
			continue
		}
		keys[jwk.KeyID] = jwk
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty key set", ErrJWKSFetchFailed)
	}

	validity := c.validity
	if maxAge := parseMaxAge(resp.Header.Get("Cache-Control")); maxAge > 0 {
		validity = maxAge
	}

	c.mu.Lock()
	c.keys = keys
	c.expiry = c.now().Add(validity)
	c.mu.Unlock()

	c.logger.Debug("jwks refreshed", zap.Int("keys", len(keys)), zap.Duration("valid_for", validity))
	return nil
}

func parseMaxAge(header string) time.Duration {
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		value, ok := strings.CutPrefix(part, "max-age=")
		if !ok {
			continue
		}
		seconds, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	return 0
}

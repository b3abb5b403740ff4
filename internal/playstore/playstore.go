// Package playstore serves the app's store rating figures from a TTL cache.
package playstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/observability"
)

const (
	DefaultRating    = 4.5
	DefaultReviews   = 1250
	DefaultDownloads = "10K+"
	DefaultTTL       = time.Hour
	// RetryAfter spaces out fetches while the stats service keeps failing.
	RetryAfter = time.Minute

	cacheName = "playstore"
)

// Stats is the JSON payload served to the landing page.
type Stats struct {
	Rating      float64   `json:"rating"`
	Reviews     int       `json:"reviews"`
	Downloads   string    `json:"downloads"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Defaults returns the static figures used when no fetch has succeeded.
func Defaults(now time.Time) Stats {
	return Stats{Rating: DefaultRating, Reviews: DefaultReviews, Downloads: DefaultDownloads, LastUpdated: now.UTC()}
}

// Fetcher retrieves fresh figures.
type Fetcher interface {
	Fetch(ctx context.Context) (Stats, error)
}

// StaticFetcher always returns the defaults.
type StaticFetcher struct {
	Now func() time.Time
}

func (f StaticFetcher) Fetch(context.Context) (Stats, error) {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return Defaults(now()), nil
}

// HTTPFetcher reads figures from a stats service answering with the Stats
// JSON shape for ?appId=.
type HTTPFetcher struct {
	endpoint string
	appID    string
	client   *http.Client
}

func NewHTTPFetcher(endpoint, appID string, client *http.Client) (*HTTPFetcher, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("playstore: invalid stats url %q", endpoint)
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPFetcher{endpoint: u.String(), appID: appID, client: client}, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (Stats, error) {
	endpoint, err := url.Parse(f.endpoint)
	if err != nil {
		return Stats{}, err
	}
	q := endpoint.Query()
	if f.appID != "" {
		q.Set("appId", f.appID)
	}
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return Stats{}, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.client.Do(req)
	if err != nil {
		return Stats{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Stats{}, fmt.Errorf("playstore: stats status %d", resp.StatusCode)
	}

	var stats Stats
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&stats); err != nil {
		return Stats{}, fmt.Errorf("playstore: decode stats: %w", err)
	}
	if stats.Rating <= 0 && stats.Reviews <= 0 {
		return Stats{}, errors.New("playstore: empty stats")
	}
	if stats.Downloads == "" {
		stats.Downloads = DefaultDownloads
	}
	return stats, nil
}

// Cache holds the last good figures with an explicit expiry. Concurrent
// refreshes collapse into one fetch.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics

	mu        sync.RWMutex
	value     *Stats
	expiresAt time.Time
	retryAt   time.Time
	retry     time.Duration

	group singleflight.Group
}

type Option func(*Cache)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(c *Cache) {
		c.metrics = metrics
	}
}

func NewCache(fetcher Fetcher, ttl time.Duration, opts ...Option) *Cache {
	if fetcher == nil {
		fetcher = StaticFetcher{}
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{fetcher: fetcher, ttl: ttl, retry: min(RetryAfter, ttl), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrRefresh returns cached figures while they are fresh at now, otherwise
// fetches new ones. A failed fetch serves the stale value, or the defaults
// when nothing was ever cached, and holds off the next fetch for the retry
// interval; it never returns an error.
func (c *Cache) GetOrRefresh(ctx context.Context, now time.Time) Stats {
	c.mu.RLock()
	value, expiresAt, retryAt := c.value, c.expiresAt, c.retryAt
	c.mu.RUnlock()
	if value != nil && now.Before(expiresAt) {
		c.metrics.RecordCacheLookup(cacheName, "hit")
		return *value
	}
	if now.Before(retryAt) {
		c.metrics.RecordCacheLookup(cacheName, "stale")
		return c.fallback(now)
	}
	c.metrics.RecordCacheLookup(cacheName, "miss")

	result, _, _ := c.group.Do(cacheName, func() (any, error) {
		stats, err := c.fetcher.Fetch(ctx)
		if err != nil {
			c.logger.Warn("playstore stats refresh failed", zap.Error(err), zap.Duration("retry_in", c.retry))
			c.mu.Lock()
			c.retryAt = now.Add(c.retry)
			c.mu.Unlock()
			return c.fallback(now), nil
		}
		if stats.LastUpdated.IsZero() {
			stats.LastUpdated = now.UTC()
		}
		c.mu.Lock()
		c.value = &stats
		c.expiresAt = now.Add(c.ttl)
		c.retryAt = time.Time{}
		c.mu.Unlock()
		return stats, nil
	})
	return result.(Stats)
}

func (c *Cache) fallback(now time.Time) Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.value != nil {
		return *c.value
	}
	return Defaults(now)
}

// ExpiresAt reports when the cached value goes stale; zero when empty.
func (c *Cache) ExpiresAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.expiresAt
}

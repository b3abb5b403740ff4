// Package cms loads the localized YAML documents behind the public pages.
package cms

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"gopkg.in/yaml.v3"

	"github.com/GearConnect-Official/gearconnect-landing/internal/platform/observability"
)

// ErrNotFound is returned when no language has the requested document.
var ErrNotFound = errors.New("cms: document not found")

const (
	defaultLang     = "en"
	defaultCacheTTL = 5 * time.Minute
	cacheSize       = 256
	cacheName       = "content"
)

var docName = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)

// Store reads content/<lang>/<name>.yaml, falling back to English.
type Store struct {
	dir      string
	fallback string
	cache    *expirable.LRU[string, []byte]
	metrics  *observability.Metrics
	markdown goldmark.Markdown
	policy   *bluemonday.Policy
}

type Option func(*Store)

// WithCacheTTL sets how long raw documents stay cached; zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl <= 0 {
			s.cache = nil
			return
		}
		s.cache = expirable.NewLRU[string, []byte](cacheSize, nil, ttl)
	}
}

func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Store) {
		s.metrics = metrics
	}
}

func NewStore(dir string, opts ...Option) *Store {
	if strings.TrimSpace(dir) == "" {
		dir = "content"
	}
	s := &Store{
		dir:      dir,
		fallback: defaultLang,
		cache:    expirable.NewLRU[string, []byte](cacheSize, nil, defaultCacheTTL),
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:   newContentPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newContentPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	return policy
}

// Load decodes the named document for lang into dst.
func (s *Store) Load(lang, name string, dst any) error {
	raw, err := s.raw(lang, name)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("cms: parse %s/%s: %w", lang, name, err)
	}
	return nil
}

func (s *Store) raw(lang, name string) ([]byte, error) {
	if !docName.MatchString(name) {
		return nil, ErrNotFound
	}
	lang = strings.ToLower(strings.TrimSpace(lang))
	candidates := []string{lang}
	if lang != s.fallback {
		candidates = append(candidates, s.fallback)
	}
	for _, candidate := range candidates {
		if candidate == "" || !docName.MatchString(candidate) {
			continue
		}
		key := candidate + "/" + name
		if s.cache != nil {
			if raw, ok := s.cache.Get(key); ok {
				s.metrics.RecordCacheLookup(cacheName, "hit")
				return raw, nil
			}
			s.metrics.RecordCacheLookup(cacheName, "miss")
		}
		raw, err := os.ReadFile(filepath.Join(s.dir, candidate, name+".yaml"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("cms: read %s: %w", key, err)
		}
		if s.cache != nil {
			s.cache.Add(key, raw)
		}
		return raw, nil
	}
	return nil, ErrNotFound
}

// Markdown renders source to sanitized HTML.
func (s *Store) Markdown(source string) template.HTML {
	source = strings.TrimSpace(source)
	if source == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := s.markdown.Convert([]byte(source), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(source))
	}
	return template.HTML(strings.TrimSpace(s.policy.Sanitize(buf.String())))
}

// Purge drops all cached documents.
func (s *Store) Purge() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

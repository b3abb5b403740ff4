package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultFallbackPath = ".secrets.local"

// ErrNotFound is returned when neither Secret Manager nor the fallback file
// holds the requested secret.
var ErrNotFound = errors.New("secrets: not found")

var clientFactory = func(ctx context.Context, opts ...option.ClientOption) (secretManagerClient, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret:// references against Google Secret Manager,
// caching values for the process lifetime. A local KEY=VALUE file serves
// references when no project is configured or the API is unreachable.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	projectID  string

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[string]string
}

type fetcherConfig struct {
	logger       *zap.Logger
	projectID    string
	fallbackPath string
	client       secretManagerClient
	clientOpts   []option.ClientOption
}

type Option func(*fetcherConfig)

func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithProject sets the Google Cloud project holding the secrets.
func WithProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.projectID = strings.TrimSpace(projectID) }
}

// WithFallbackFile overrides the local fallback file path.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		if strings.TrimSpace(path) != "" {
			cfg.fallbackPath = strings.TrimSpace(path)
		}
	}
}

// WithSecretManagerClient injects a client, mainly for tests.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// NewFetcher builds a Fetcher. A Secret Manager client is only created when
// a project is configured; failures to create one degrade to fallback mode.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{logger: zap.NewNop(), fallbackPath: defaultFallbackPath}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	f := &Fetcher{
		logger:       cfg.logger,
		projectID:    cfg.projectID,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]string),
	}
	switch {
	case cfg.client != nil:
		f.client = cfg.client
	case cfg.projectID != "":
		client, err := clientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secret manager client unavailable, using fallback file", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}
	return f, nil
}

func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// ResolveSecret implements config.SecretResolver.
func (f *Fetcher) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f.Resolve(ctx, ref)
}

// Resolve returns the value behind ref. Supported forms are
// secret://name, secret://name?version=3 and secret://name?project=other.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	key := parsed.canonical + "#" + parsed.version

	f.mu.RLock()
	value, ok := f.cache[key]
	f.mu.RUnlock()
	if ok {
		return value, nil
	}

	project := parsed.project
	if project == "" {
		project = f.projectID
	}
	if project != "" && f.client != nil {
		value, err := f.fetchRemote(ctx, project, parsed.name, parsed.version)
		if err == nil {
			f.store(key, value)
			return value, nil
		}
		if !isFallbackError(err) {
			return "", fmt.Errorf("secrets: fetch %s: %w", parsed.canonical, err)
		}
		f.logger.Debug("secret manager unavailable, trying fallback file", zap.String("ref", parsed.canonical), zap.Error(err))
	}

	value, ok, err = f.lookupFallback(parsed)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, parsed.canonical)
	}
	f.store(key, value)
	return value, nil
}

func (f *Fetcher) store(key, value string) {
	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
}

func (f *Fetcher) fetchRemote(ctx context.Context, project, name, version string) (string, error) {
	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", resource)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (f *Fetcher) lookupFallback(ref parsedReference) (string, bool, error) {
	f.fallbackOnce.Do(func() {
		f.fallback = map[string]string{}
		path, err := filepath.Abs(f.fallbackPath)
		if err != nil {
			path = f.fallbackPath
		}
		values, err := godotenv.Read(path)
		if errors.Is(err, os.ErrNotExist) {
			return
		}
		if err != nil {
			f.fallbackErr = fmt.Errorf("secrets: read fallback file %s: %w", path, err)
			return
		}
		for k, v := range values {
			f.fallback[strings.TrimSpace(k)] = v
		}
	})
	if f.fallbackErr != nil {
		return "", false, f.fallbackErr
	}
	// The fallback file is dotenv-formatted, so keys are bare secret names.
	for _, candidate := range []string{ref.name + "_" + ref.version, ref.name} {
		if value, ok := f.fallback[candidate]; ok {
			return value, true, nil
		}
	}
	return "", false, nil
}

type parsedReference struct {
	canonical string
	name      string
	version   string
	project   string
}

func parseReference(ref string) (parsedReference, error) {
	ref = strings.TrimSpace(ref)
	if rest, ok := strings.CutPrefix(ref, "sm://"); ok {
		ref = "secret://" + rest
	}
	u, err := url.Parse(ref)
	if err != nil {
		return parsedReference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return parsedReference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return parsedReference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	version := strings.TrimSpace(u.Query().Get("version"))
	if version == "" {
		version = "latest"
	}
	return parsedReference{
		canonical: "secret://" + name,
		name:      name,
		version:   version,
		project:   strings.TrimSpace(u.Query().Get("project")),
	}, nil
}

func isFallbackError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded, codes.NotFound:
		return true
	default:
		return false
	}
}

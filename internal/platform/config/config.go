package config

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultBackendURL      = "http://localhost:3001"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 15 * time.Second
	defaultServerTimeout   = 30 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultClerkAPIURL     = "https://api.clerk.com"
	defaultPlayStoreAppID  = "com.gearconnect.app"
	defaultPlayStoreTTL    = time.Hour
	defaultContactPerMin   = 10
	defaultSyncLatchTTL    = 12 * time.Hour
	defaultSyncMaxSessions = 10000
)

const (
	EnvLocal = "local"
	EnvProd  = "prod"

	ProviderClerk    = "clerk"
	ProviderFirebase = "firebase"
)

// DefaultExistingPhrases are the backend error fragments that mean the
// account is already registered.
var DefaultExistingPhrases = []string{"déjà utilisé", "already exists", "already registered", "already in use"}

// Config is the complete runtime configuration of the web server.
type Config struct {
	Environment string
	DevMode     bool
	LogLevel    string

	Server    ServerConfig
	Backend   BackendConfig
	Auth      AuthConfig
	Support   SupportConfig
	PlayStore PlayStoreConfig
	Sync      SyncConfig
	RateLimit RateLimitConfig
	Paths     PathsConfig
	Secrets   SecretsConfig
}

type ServerConfig struct {
	Port string
	// PublicURL is the canonical origin used in links and structured data.
	PublicURL       string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// BackendConfig points at the GearConnect backend that owns all business data.
type BackendConfig struct {
	URL          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type AuthConfig struct {
	Provider string
	Clerk    ClerkConfig
	Firebase FirebaseConfig
}

type ClerkConfig struct {
	PublishableKey    string
	SecretKey         string
	JWKSURL           string
	Issuer            string
	APIURL            string
	AuthorizedParties []string
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// SupportConfig identifies the backend user that receives support conversations.
// Zero means not configured.
type SupportConfig struct {
	UserID int64
}

type PlayStoreConfig struct {
	AppID    string
	StatsURL string
	CacheTTL time.Duration
}

type SyncConfig struct {
	ExistingPhrases []string
	LatchTTL        time.Duration
	MaxSessions     int
}

type RateLimitConfig struct {
	ContactPerMinute int
}

type PathsConfig struct {
	Templates string
	Content   string
	Public    string
}

type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
}

// IsProduction reports whether the server runs with production safeguards.
func (c Config) IsProduction() bool {
	return c.Environment == EnvProd
}

// ClerkConfigured reports whether enough Clerk settings exist to verify sessions.
func (c Config) ClerkConfigured() bool {
	return c.Auth.Clerk.JWKSURL != "" || c.Auth.Clerk.PublishableKey != ""
}

// SecretResolver resolves secret references such as secret://name.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

type SecretResolverFunc func(context.Context, string) (string, error)

func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError lists configuration fields that are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the offending field names.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes a failed secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the dotenv file; an empty path disables it.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects explicit values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

func newOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// EnvironmentValues returns the merged environment with the same precedence
// as Load: dotenv < process environment < explicit map.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newOptions(opts)
	dotenv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(dotenv))
	for k, v := range dotenv {
		values[k] = v
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[key] = value
			}
		}
	}
	for k, v := range options.envMap {
		values[k] = v
	}
	return values, nil
}

// Load builds the configuration from defaults, dotenv, the environment and
// resolved secret references, then validates it.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newOptions(opts)

	dotenv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotenv[key]
		return value, ok
	}

	var invalid []string

	env := strings.ToLower(stringWithDefault(lookup, "WEB_ENV", EnvLocal))
	if env == "production" {
		env = EnvProd
	}

	cfg := Config{
		Environment: env,
		DevMode:     boolWithDefault(lookup, "WEB_DEV", env != EnvProd),
		LogLevel:    stringWithDefault(lookup, "LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:            firstWithDefault(lookup, []string{"WEB_PORT", "PORT"}, defaultPort),
			PublicURL:       strings.TrimRight(stringWithDefault(lookup, "WEB_PUBLIC_URL", ""), "/"),
			ReadTimeout:     durationWithDefault(lookup, "WEB_READ_TIMEOUT", defaultServerTimeout),
			WriteTimeout:    durationWithDefault(lookup, "WEB_WRITE_TIMEOUT", defaultServerTimeout),
			IdleTimeout:     durationWithDefault(lookup, "WEB_IDLE_TIMEOUT", 2*defaultServerTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "WEB_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Backend: BackendConfig{
			URL:          strings.TrimRight(firstWithDefault(lookup, []string{"BACKEND_URL", "NEXT_PUBLIC_BACKEND_URL"}, defaultBackendURL), "/"),
			ReadTimeout:  durationWithDefault(lookup, "BACKEND_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "BACKEND_WRITE_TIMEOUT", defaultWriteTimeout),
		},
		Auth: AuthConfig{
			Provider: strings.ToLower(stringWithDefault(lookup, "AUTH_PROVIDER", ProviderClerk)),
			Clerk: ClerkConfig{
				PublishableKey:    firstWithDefault(lookup, []string{"CLERK_PUBLISHABLE_KEY", "NEXT_PUBLIC_CLERK_PUBLISHABLE_KEY"}, ""),
				SecretKey:         stringWithDefault(lookup, "CLERK_SECRET_KEY", ""),
				JWKSURL:           stringWithDefault(lookup, "CLERK_JWKS_URL", ""),
				Issuer:            stringWithDefault(lookup, "CLERK_ISSUER", ""),
				APIURL:            stringWithDefault(lookup, "CLERK_API_URL", defaultClerkAPIURL),
				AuthorizedParties: csvWithDefault(lookup, "CLERK_AUTHORIZED_PARTIES"),
			},
			Firebase: FirebaseConfig{
				ProjectID:       stringWithDefault(lookup, "FIREBASE_PROJECT_ID", ""),
				CredentialsFile: stringWithDefault(lookup, "FIREBASE_CREDENTIALS_FILE", ""),
			},
		},
		PlayStore: PlayStoreConfig{
			AppID:    stringWithDefault(lookup, "PLAYSTORE_APP_ID", defaultPlayStoreAppID),
			StatsURL: stringWithDefault(lookup, "PLAYSTORE_STATS_URL", ""),
			CacheTTL: durationWithDefault(lookup, "PLAYSTORE_CACHE_TTL", defaultPlayStoreTTL),
		},
		Sync: SyncConfig{
			ExistingPhrases: csvWithDefault(lookup, "SYNC_EXISTING_PHRASES"),
			LatchTTL:        durationWithDefault(lookup, "SYNC_LATCH_TTL", defaultSyncLatchTTL),
			MaxSessions:     intWithDefault(lookup, "SYNC_MAX_SESSIONS", defaultSyncMaxSessions),
		},
		RateLimit: RateLimitConfig{
			ContactPerMinute: intWithDefault(lookup, "CONTACT_RATE_PER_MIN", defaultContactPerMin),
		},
		Paths: PathsConfig{
			Templates: stringWithDefault(lookup, "TEMPLATES_DIR", "templates"),
			Content:   stringWithDefault(lookup, "CONTENT_DIR", "content"),
			Public:    stringWithDefault(lookup, "PUBLIC_DIR", "public"),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "SECRETS_PROJECT_ID", ""),
			FallbackFile: stringWithDefault(lookup, "SECRETS_FALLBACK_FILE", ""),
		},
	}
	if len(cfg.Sync.ExistingPhrases) == 0 {
		cfg.Sync.ExistingPhrases = append([]string(nil), DefaultExistingPhrases...)
	}

	if raw, ok := lookup("SUPPORT_USER_ID"); ok && strings.TrimSpace(raw) != "" {
		id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil || id <= 0 {
			invalid = append(invalid, "Support.UserID")
		} else {
			cfg.Support.UserID = id
		}
	}

	secret, err := resolveSecret(ctx, cfg.Auth.Clerk.SecretKey, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.Auth.Clerk.SecretKey = secret

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config, invalid []string) error {
	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if u, err := url.Parse(cfg.Backend.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		invalid = append(invalid, "Backend.URL")
	}
	if cfg.Server.PublicURL != "" {
		if u, err := url.Parse(cfg.Server.PublicURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			invalid = append(invalid, "Server.PublicURL")
		}
	}
	if cfg.Backend.ReadTimeout <= 0 {
		invalid = append(invalid, "Backend.ReadTimeout")
	}
	if cfg.Backend.WriteTimeout <= 0 {
		invalid = append(invalid, "Backend.WriteTimeout")
	}
	switch cfg.Auth.Provider {
	case ProviderClerk:
		if cfg.IsProduction() && !cfg.ClerkConfigured() {
			invalid = append(invalid, "Auth.Clerk.PublishableKey")
		}
	case ProviderFirebase:
		if cfg.Auth.Firebase.ProjectID == "" {
			invalid = append(invalid, "Auth.Firebase.ProjectID")
		}
	default:
		invalid = append(invalid, "Auth.Provider")
	}
	if cfg.PlayStore.CacheTTL <= 0 {
		invalid = append(invalid, "PlayStore.CacheTTL")
	}
	if cfg.RateLimit.ContactPerMinute <= 0 {
		invalid = append(invalid, "RateLimit.ContactPerMinute")
	}
	if cfg.Sync.MaxSessions <= 0 {
		invalid = append(invalid, "Sync.MaxSessions")
	}
	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !IsSecretReference(value) {
		return value, nil
	}
	ref := NormalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

// IsSecretReference reports whether value names a secret rather than holding one.
func IsSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

// NormalizeSecretReference rewrites sm:// references to secret://.
func NormalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	values, err := godotenv.Read(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", abs, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func firstWithDefault(lookup func(string) (string, bool), keys []string, fallback string) string {
	for _, key := range keys {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

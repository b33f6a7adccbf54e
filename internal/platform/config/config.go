package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	envPrefix = "CARDS_"

	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultCollection         = "christmasCards"
	defaultPublicBaseURL      = "https://firebasestorage.googleapis.com"
	defaultUploadMaxBytes     = 10 << 20
	defaultUploadMaxDimension = 800
	defaultUploadTargetBytes  = 512 << 10
	defaultOpenDelay          = 650 * time.Millisecond
	defaultSessionTTL         = 30 * time.Minute
	defaultMaxSessions        = 10000
	defaultSubmitPerMinute    = 20
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultIdempotencyColl    = "cardSubmissionKeys"

	// StoreFirestore persists cards in Firestore and photos in Cloud Storage.
	StoreFirestore = "firestore"
	// StoreMemory keeps everything in process; intended for local development.
	StoreMemory = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server       ServerConfig
	Store        string
	Firebase     FirebaseConfig
	Firestore    FirestoreConfig
	Storage      StorageConfig
	Telemetry    TelemetryConfig
	Uploads      UploadConfig
	Site         SiteConfig
	Presentation PresentationConfig
	RateLimits   RateLimitConfig
	Idempotency  IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
}

// StorageConfig names the bucket that receives uploaded photos.
type StorageConfig struct {
	Bucket        string
	PublicBaseURL string
	EmulatorHost  string
}

// TelemetryConfig selects where analytics events are published. An empty topic
// keeps events in the application log only.
type TelemetryConfig struct {
	Topic        string
	EmulatorHost string
}

// UploadConfig bounds photo uploads on the legacy form.
type UploadConfig struct {
	MaxBytes     int64
	MaxDimension int
	TargetBytes  int
}

// SiteConfig describes the public face of the service.
type SiteConfig struct {
	Origin  string
	DevMode bool
}

// PresentationConfig tunes the card viewer.
type PresentationConfig struct {
	OpenDelay   time.Duration
	SessionTTL  time.Duration
	MaxSessions int
}

// RateLimitConfig controls submission throttling.
type RateLimitConfig struct {
	SubmitPerMinute int
}

// IdempotencyConfig controls how long API submission keys are remembered.
type IdempotencyConfig struct {
	TTL        time.Duration
	Collection string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the application configuration by combining defaults, .env overrides
// and environment variables.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	if err := ctx.Err(); err != nil {
		return Config{}, err
	}

	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		key = envPrefix + key
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnvValues != nil {
			if value, ok := dotEnvValues[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Store: strings.ToLower(stringWithDefault(lookup, "STORE", StoreFirestore)),
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
			Collection:   stringWithDefault(lookup, "FIRESTORE_COLLECTION", defaultCollection),
		},
		Storage: StorageConfig{
			Bucket:        stringWithDefault(lookup, "STORAGE_BUCKET", ""),
			PublicBaseURL: strings.TrimRight(stringWithDefault(lookup, "STORAGE_PUBLIC_BASE_URL", defaultPublicBaseURL), "/"),
			EmulatorHost:  stringWithDefault(lookup, "STORAGE_EMULATOR_HOST", ""),
		},
		Telemetry: TelemetryConfig{
			Topic:        stringWithDefault(lookup, "TELEMETRY_TOPIC", ""),
			EmulatorHost: stringWithDefault(lookup, "TELEMETRY_EMULATOR_HOST", ""),
		},
		Uploads: UploadConfig{
			MaxBytes:     int64(intWithDefault(lookup, "UPLOAD_MAX_BYTES", defaultUploadMaxBytes)),
			MaxDimension: intWithDefault(lookup, "UPLOAD_MAX_DIMENSION", defaultUploadMaxDimension),
			TargetBytes:  intWithDefault(lookup, "UPLOAD_TARGET_BYTES", defaultUploadTargetBytes),
		},
		Site: SiteConfig{
			Origin:  strings.TrimRight(stringWithDefault(lookup, "SITE_ORIGIN", ""), "/"),
			DevMode: boolWithDefault(lookup, "SITE_DEV_MODE", false),
		},
		Presentation: PresentationConfig{
			OpenDelay:   durationWithDefault(lookup, "PRESENTATION_OPEN_DELAY", defaultOpenDelay),
			SessionTTL:  durationWithDefault(lookup, "PRESENTATION_SESSION_TTL", defaultSessionTTL),
			MaxSessions: intWithDefault(lookup, "PRESENTATION_MAX_SESSIONS", defaultMaxSessions),
		},
		RateLimits: RateLimitConfig{
			SubmitPerMinute: intWithDefault(lookup, "RATELIMIT_SUBMIT_PER_MIN", defaultSubmitPerMinute),
		},
		Idempotency: IdempotencyConfig{
			TTL:        durationWithDefault(lookup, "IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			Collection: stringWithDefault(lookup, "IDEMPOTENCY_COLLECTION", defaultIdempotencyColl),
		},
	}

	// Firestore project defaults to Firebase project when unspecified.
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	switch cfg.Store {
	case StoreMemory:
	case StoreFirestore:
		if cfg.Firebase.ProjectID == "" {
			missing = append(missing, "Firebase.ProjectID")
		}
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
		if strings.TrimSpace(cfg.Firestore.Collection) == "" {
			missing = append(missing, "Firestore.Collection")
		}
		if cfg.Storage.Bucket == "" {
			missing = append(missing, "Storage.Bucket")
		}
	default:
		missing = append(missing, "Store")
	}
	if cfg.Site.Origin != "" {
		if u, err := url.Parse(cfg.Site.Origin); err != nil || u.Scheme == "" || u.Host == "" {
			missing = append(missing, "Site.Origin")
		}
	}
	if cfg.Uploads.MaxBytes <= 0 {
		missing = append(missing, "Uploads.MaxBytes")
	}
	if cfg.Uploads.MaxDimension <= 0 {
		missing = append(missing, "Uploads.MaxDimension")
	}
	if cfg.Presentation.OpenDelay <= 0 {
		missing = append(missing, "Presentation.OpenDelay")
	}
	if cfg.Presentation.SessionTTL <= 0 {
		missing = append(missing, "Presentation.SessionTTL")
	}
	if cfg.Presentation.MaxSessions <= 0 {
		missing = append(missing, "Presentation.MaxSessions")
	}
	if cfg.RateLimits.SubmitPerMinute <= 0 {
		missing = append(missing, "RateLimits.SubmitPerMinute")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return n
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

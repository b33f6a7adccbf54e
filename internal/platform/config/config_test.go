package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"CARDS_FIREBASE_PROJECT_ID": "cards-dev",
		"CARDS_STORAGE_BUCKET":      "cards-dev.appspot.com",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Store != StoreFirestore {
		t.Errorf("expected firestore store by default, got %s", cfg.Store)
	}
	if cfg.Firestore.ProjectID != "cards-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Firestore.Collection != "christmasCards" {
		t.Errorf("unexpected default collection %q", cfg.Firestore.Collection)
	}
	if cfg.Storage.PublicBaseURL != defaultPublicBaseURL {
		t.Errorf("unexpected public base url %q", cfg.Storage.PublicBaseURL)
	}
	if cfg.Presentation.OpenDelay != 650*time.Millisecond {
		t.Errorf("unexpected open delay %s", cfg.Presentation.OpenDelay)
	}
	if cfg.Uploads.MaxDimension != 800 {
		t.Errorf("unexpected max dimension %d", cfg.Uploads.MaxDimension)
	}
	if cfg.RateLimits.SubmitPerMinute != 20 {
		t.Errorf("unexpected submit rate limit: %d", cfg.RateLimits.SubmitPerMinute)
	}
	if cfg.Telemetry.Topic != "" {
		t.Errorf("expected telemetry topic to be empty, got %q", cfg.Telemetry.Topic)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	env := map[string]string{
		"CARDS_SERVER_PORT":               "9090",
		"CARDS_SERVER_WRITE_TIMEOUT":      "25s",
		"CARDS_FIREBASE_PROJECT_ID":       "cards-prod",
		"CARDS_FIRESTORE_PROJECT_ID":      "cards-fire",
		"CARDS_FIRESTORE_COLLECTION":      "cards",
		"CARDS_STORAGE_BUCKET":            "cards-prod",
		"CARDS_STORAGE_PUBLIC_BASE_URL":   "https://cdn.example.com/",
		"CARDS_TELEMETRY_TOPIC":           "card-events",
		"CARDS_SITE_ORIGIN":               "https://cards.example.com/",
		"CARDS_SITE_DEV_MODE":             "true",
		"CARDS_PRESENTATION_OPEN_DELAY":   "1s",
		"CARDS_PRESENTATION_SESSION_TTL":  "5m",
		"CARDS_PRESENTATION_MAX_SESSIONS": "500",
		"CARDS_UPLOAD_MAX_DIMENSION":      "1024",
		"CARDS_RATELIMIT_SUBMIT_PER_MIN":  "5",
		"CARDS_UPLOAD_MAX_BYTES":          "1048576",
		"CARDS_FIRESTORE_EMULATOR_HOST":   "localhost:8081",
		"CARDS_TELEMETRY_EMULATOR_HOST":   "localhost:8085",
		"CARDS_FIREBASE_CREDENTIALS_FILE": "/secrets/sa.json",
		"CARDS_STORAGE_EMULATOR_HOST":     "localhost:9199",
		"CARDS_UPLOAD_TARGET_BYTES":       "262144",
		"CARDS_IDEMPOTENCY_TTL":           "2h",
		"CARDS_SERVER_IDLE_TIMEOUT":       "not-a-duration",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.WriteTimeout != 25*time.Second {
		t.Errorf("unexpected write timeout %s", cfg.Server.WriteTimeout)
	}
	if cfg.Server.IdleTimeout != defaultIdleTimeout {
		t.Errorf("expected invalid duration to fall back, got %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.ProjectID != "cards-fire" || cfg.Firestore.Collection != "cards" {
		t.Errorf("unexpected firestore config %+v", cfg.Firestore)
	}
	if cfg.Storage.PublicBaseURL != "https://cdn.example.com" {
		t.Errorf("expected trailing slash trimmed, got %q", cfg.Storage.PublicBaseURL)
	}
	if cfg.Site.Origin != "https://cards.example.com" || !cfg.Site.DevMode {
		t.Errorf("unexpected site config %+v", cfg.Site)
	}
	if cfg.Presentation.OpenDelay != time.Second || cfg.Presentation.SessionTTL != 5*time.Minute || cfg.Presentation.MaxSessions != 500 {
		t.Errorf("unexpected presentation config %+v", cfg.Presentation)
	}
	if cfg.Uploads.MaxBytes != 1<<20 || cfg.Uploads.MaxDimension != 1024 || cfg.Uploads.TargetBytes != 256<<10 {
		t.Errorf("unexpected upload config %+v", cfg.Uploads)
	}
	if cfg.Telemetry.Topic != "card-events" || cfg.Telemetry.EmulatorHost != "localhost:8085" {
		t.Errorf("unexpected telemetry config %+v", cfg.Telemetry)
	}
	if cfg.RateLimits.SubmitPerMinute != 5 {
		t.Errorf("unexpected rate limit %d", cfg.RateLimits.SubmitPerMinute)
	}
	if cfg.Idempotency.TTL != 2*time.Hour || cfg.Idempotency.Collection != "cardSubmissionKeys" {
		t.Errorf("unexpected idempotency config %+v", cfg.Idempotency)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local overrides\nexport CARDS_SERVER_PORT=7070\nCARDS_FIREBASE_PROJECT_ID=\"cards-dot\"\nCARDS_STORAGE_BUCKET=cards-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "cards-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadEnvMapOverridesDotEnv(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("CARDS_SERVER_PORT=7070\nCARDS_STORE=memory\n"), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv(), WithEnvMap(map[string]string{
		"CARDS_SERVER_PORT": "6060",
	}))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "6060" {
		t.Errorf("expected env map to win, got %s", cfg.Server.Port)
	}
	if cfg.Store != StoreMemory {
		t.Errorf("expected memory store from dotenv, got %s", cfg.Store)
	}
}

func TestLoadMemoryStoreNeedsNoCloudSettings(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{"CARDS_STORE": "MEMORY"}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Store != StoreMemory {
		t.Fatalf("expected memory store, got %s", cfg.Store)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := vErr.Fields()
	for _, want := range []string{"Firebase.ProjectID", "Storage.Bucket"} {
		if !slices.Contains(fields, want) {
			t.Errorf("expected %s in %v", want, fields)
		}
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	env := map[string]string{
		"CARDS_STORE":                   "sqlite",
		"CARDS_SITE_ORIGIN":             "cards.example.com",
		"CARDS_PRESENTATION_OPEN_DELAY": "-1s",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for _, want := range []string{"Store", "Site.Origin", "Presentation.OpenDelay"} {
		if !slices.Contains(vErr.Fields(), want) {
			t.Errorf("expected %s in %v", want, vErr.Fields())
		}
	}
}

func TestLoadHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Load(ctx, WithoutSystemEnv(), WithEnvFile("")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

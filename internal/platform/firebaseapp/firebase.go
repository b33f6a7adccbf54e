// Package firebaseapp initialises the Firebase Admin SDK for the card store.
package firebaseapp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/hanko-field/greetings/internal/platform/config"
)

// storageEmulatorEnv is honoured by the Cloud Storage client underneath the Admin SDK.
const storageEmulatorEnv = "STORAGE_EMULATOR_HOST"

// New builds the Firebase app bound to the configured project and bucket.
func New(ctx context.Context, cfg config.FirebaseConfig, storageCfg config.StorageConfig) (*firebase.App, error) {
	if strings.TrimSpace(cfg.ProjectID) == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if host := strings.TrimSpace(storageCfg.EmulatorHost); host != "" {
		if err := os.Setenv(storageEmulatorEnv, host); err != nil {
			return nil, fmt.Errorf("configure storage emulator: %w", err)
		}
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: storageCfg.Bucket,
	}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	return app, nil
}

// DefaultBucket resolves the app's storage bucket handle.
func DefaultBucket(ctx context.Context, app *firebase.App) (*gcs.BucketHandle, error) {
	if app == nil {
		return nil, errors.New("firebase app not initialised")
	}
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase storage client: %w", err)
	}
	bucket, err := client.DefaultBucket()
	if err != nil {
		return nil, fmt.Errorf("resolve default bucket: %w", err)
	}
	return bucket, nil
}

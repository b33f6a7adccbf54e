package firebaseapp

import (
	"context"
	"testing"

	"github.com/hanko-field/greetings/internal/platform/config"
)

func TestNewRequiresProjectID(t *testing.T) {
	if _, err := New(context.Background(), config.FirebaseConfig{}, config.StorageConfig{Bucket: "b"}); err == nil {
		t.Fatalf("expected error for missing project id")
	}
}

func TestDefaultBucketRequiresApp(t *testing.T) {
	if _, err := DefaultBucket(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil app")
	}
}

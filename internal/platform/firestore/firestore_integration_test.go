//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	pconfig "github.com/hanko-field/greetings/internal/platform/config"
	pfirestore "github.com/hanko-field/greetings/internal/platform/firestore"
	"github.com/hanko-field/greetings/internal/platform/firestore/firestoretest"
)

type sampleCard struct {
	SenderName string `firestore:"senderName"`
	Message    string `firestore:"message"`
}

func TestProviderAndRepositoryIntegration(t *testing.T) {
	endpoint := firestoretest.StartEmulator(t)

	cfg := pconfig.FirestoreConfig{
		ProjectID:    "cards-test",
		EmulatorHost: endpoint,
		Collection:   "christmasCards",
	}

	provider := pfirestore.NewProvider(cfg)
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("expected firestore client, got error: %v", err)
	}
	if client == nil {
		t.Fatalf("provider returned nil client")
	}

	repo := pfirestore.NewBaseRepository[sampleCard](provider, "christmasCards", nil, nil)

	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("ping on empty collection failed: %v", err)
	}

	id, _, err := repo.Create(ctx, sampleCard{SenderName: "Alex", Message: "Happy Holidays!"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}

	doc, err := repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if doc.Data.SenderName != "Alex" || doc.Data.Message != "Happy Holidays!" {
		t.Fatalf("unexpected data: %#v", doc.Data)
	}
	if doc.CreateTime.IsZero() {
		t.Fatalf("expected create time to be set")
	}

	if _, err := repo.Update(ctx, id, []firestore.Update{{Path: "message", Value: "Merry!"}}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	doc, err = repo.Get(ctx, id)
	if err != nil {
		t.Fatalf("get after update failed: %v", err)
	}
	if doc.Data.Message != "Merry!" {
		t.Fatalf("expected patched message, got %q", doc.Data.Message)
	}

	type repoClassifier interface{ IsNotFound() bool }
	for _, missing := range []string{"missing", "a/b"} {
		_, err := repo.Get(ctx, missing)
		var cls repoClassifier
		if !errors.As(err, &cls) || !cls.IsNotFound() {
			t.Fatalf("expected not found classification for %q, got %v", missing, err)
		}
	}
	if _, err := repo.Update(ctx, "missing", []firestore.Update{{Path: "message", Value: "x"}}); err == nil {
		t.Fatalf("expected update of missing document to fail")
	} else {
		var cls repoClassifier
		if !errors.As(err, &cls) || !cls.IsNotFound() {
			t.Fatalf("expected not found classification, got %v", err)
		}
	}
}

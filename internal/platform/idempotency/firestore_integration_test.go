//go:build integration

package idempotency_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	pconfig "github.com/hanko-field/greetings/internal/platform/config"
	pfirestore "github.com/hanko-field/greetings/internal/platform/firestore"
	"github.com/hanko-field/greetings/internal/platform/firestore/firestoretest"
	"github.com/hanko-field/greetings/internal/platform/idempotency"
)

func TestFirestoreStoreIntegration(t *testing.T) {
	endpoint := firestoretest.StartEmulator(t)
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "cards-test", EmulatorHost: endpoint})
	t.Cleanup(func() {
		_ = provider.Close(context.Background())
	})

	store, err := idempotency.NewFirestoreStore(provider, idempotency.WithCollection("submissionKeysTest"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	now := time.Date(2025, 12, 24, 18, 0, 0, 0, time.UTC)

	claim, err := store.Claim(ctx, "client|k1", "fp", now, time.Hour)
	if err != nil || claim.Outcome != idempotency.OutcomeFresh {
		t.Fatalf("expected fresh claim, got %+v %v", claim, err)
	}
	claim, err = store.Claim(ctx, "client|k1", "fp", now, time.Hour)
	if err != nil || claim.Outcome != idempotency.OutcomeBusy {
		t.Fatalf("expected busy claim, got %+v %v", claim, err)
	}

	resp := idempotency.Response{
		Status: http.StatusCreated,
		Header: http.Header{"Location": {"/api/v1/cards/abc"}},
		Body:   []byte(`{"id":"abc"}`),
	}
	if err := store.Complete(ctx, "client|k1", "fp", resp, now, time.Hour); err != nil {
		t.Fatalf("complete: %v", err)
	}
	claim, err = store.Claim(ctx, "client|k1", "fp", now, time.Hour)
	if err != nil || claim.Outcome != idempotency.OutcomeReplay {
		t.Fatalf("expected replay, got %+v %v", claim, err)
	}
	if claim.Entry.Status != http.StatusCreated || string(claim.Entry.Body) != `{"id":"abc"}` {
		t.Fatalf("unexpected stored entry %+v", claim.Entry)
	}

	if _, err := store.Claim(ctx, "client|k1", "other", now, time.Hour); !errors.Is(err, idempotency.ErrKeyReused) {
		t.Fatalf("expected ErrKeyReused, got %v", err)
	}

	removed, err := store.Purge(ctx, now.Add(2*time.Hour), 10)
	if err != nil || removed != 1 {
		t.Fatalf("expected one purged key, got %d %v", removed, err)
	}
	if err := store.Abandon(ctx, "client|missing"); err != nil {
		t.Fatalf("abandon missing key: %v", err)
	}
}

package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

var fixedTime = time.Date(2025, time.December, 24, 18, 0, 0, 0, time.UTC)

func newSubmission(body, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/cards", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:51000"
	if key != "" {
		req.Header.Set(HeaderKey, key)
	}
	return req
}

func createdHandler(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Location", "/api/v1/cards/card-1")
		w.Header().Set("X-Request-Id", "req-1")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"card-1"}`))
	})
}

func TestGuardPassesThroughWithoutKey(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	handler := Guard(store, WithClock(func() time.Time { return fixedTime }))(createdHandler(&calls))

	for range 2 {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newSubmission(`{"recipientName":"Sam"}`, ""))
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d", rr.Code)
		}
	}
	if calls != 2 {
		t.Fatalf("requests without a key must not be deduplicated, got %d calls", calls)
	}
	if store.Len() != 0 {
		t.Fatalf("nothing should be remembered without a key")
	}
}

func TestGuardReplaysStoredResponse(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	handler := Guard(store, WithClock(func() time.Time { return fixedTime }))(createdHandler(&calls))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, newSubmission(`{"recipientName":"Sam"}`, "retry-1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, newSubmission(`{"recipientName":"Sam"}`, "retry-1"))

	if calls != 1 {
		t.Fatalf("expected a single card creation, got %d", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Fatalf("unexpected replay %d %s", second.Code, second.Body.String())
	}
	if second.Header().Get(HeaderReplayed) != "true" {
		t.Fatalf("expected replay marker")
	}
	if second.Header().Get("Location") != "/api/v1/cards/card-1" {
		t.Fatalf("expected location to be replayed")
	}
	if second.Header().Get("X-Request-Id") != "" {
		t.Fatalf("per-request headers must not be replayed")
	}
}

func TestGuardScopesKeysPerClient(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	handler := Guard(store)(createdHandler(&calls))

	handler.ServeHTTP(httptest.NewRecorder(), newSubmission(`{}`, "shared"))
	other := newSubmission(`{}`, "shared")
	other.RemoteAddr = "198.51.100.2:4000"
	handler.ServeHTTP(httptest.NewRecorder(), other)

	if calls != 2 {
		t.Fatalf("the same key from different clients must not collide, got %d calls", calls)
	}
}

func TestGuardRejectsReusedKey(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	handler := Guard(store)(createdHandler(&calls))

	handler.ServeHTTP(httptest.NewRecorder(), newSubmission(`{"recipientName":"Sam"}`, "k"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newSubmission(`{"recipientName":"Alex"}`, "k"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "idempotency_key_reused")
}

func TestGuardReportsInFlightSubmission(t *testing.T) {
	store := NewMemoryStore()
	req := newSubmission(`{}`, "busy")
	body, err := readAndReplayBody(req, defaultMaxBodyBytes)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if _, err := store.Claim(context.Background(), clientScope(req)+"|busy", requestFingerprint(req, body), fixedTime, time.Hour); err != nil {
		t.Fatalf("seed claim: %v", err)
	}

	handler := Guard(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run while the key is pending")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict || rr.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected 409 with Retry-After, got %d %q", rr.Code, rr.Header().Get("Retry-After"))
	}
	assertErrorCode(t, rr.Body.Bytes(), "submission_in_progress")
}

func TestGuardForgetsServerErrors(t *testing.T) {
	store := NewMemoryStore()
	calls := 0
	handler := Guard(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), newSubmission(`{}`, "flaky"))
	handler.ServeHTTP(httptest.NewRecorder(), newSubmission(`{}`, "flaky"))

	if calls != 2 {
		t.Fatalf("a failed submission must be retryable, got %d calls", calls)
	}
	if store.Len() != 0 {
		t.Fatalf("failed submissions must not be remembered")
	}
}

func TestGuardRejectsMalformedKey(t *testing.T) {
	handler := Guard(NewMemoryStore())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newSubmission(`{}`, string(bytes.Repeat([]byte("k"), maxKeyLength+1))))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "invalid_idempotency_key")
}

func TestGuardRejectsOversizedBody(t *testing.T) {
	handler := Guard(NewMemoryStore(), WithMaxBodyBytes(8))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newSubmission(`{"recipientName":"Sam"}`, "big"))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rr.Code)
	}
	assertErrorCode(t, rr.Body.Bytes(), "payload_too_large")
}

func TestGuardStoreFailure(t *testing.T) {
	handler := Guard(failingStore{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newSubmission(`{}`, "k"))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestMemoryStoreExpiryAndPurge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Claim(ctx, "a", "fp", fixedTime, time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Complete(ctx, "a", "fp", Response{Status: http.StatusCreated}, fixedTime, time.Minute); err != nil {
		t.Fatalf("complete: %v", err)
	}
	claim, err := store.Claim(ctx, "a", "other", fixedTime.Add(2*time.Minute), time.Minute)
	if err != nil || claim.Outcome != OutcomeFresh {
		t.Fatalf("expired key must be claimable again, got %+v %v", claim, err)
	}

	removed, err := store.Purge(ctx, fixedTime.Add(time.Hour), 0)
	if err != nil || removed != 1 || store.Len() != 0 {
		t.Fatalf("expected purge to drop expired key, removed=%d err=%v", removed, err)
	}
}

type failingStore struct{}

func (failingStore) Claim(context.Context, string, string, time.Time, time.Duration) (Claim, error) {
	return Claim{}, errors.New("firestore unavailable")
}

func (failingStore) Complete(context.Context, string, string, Response, time.Time, time.Duration) error {
	return nil
}

func (failingStore) Abandon(context.Context, string) error { return nil }

func (failingStore) Purge(context.Context, time.Time, int) (int, error) { return 0, nil }

func assertErrorCode(t *testing.T, payload []byte, expected string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error %s, got %s", expected, body.Error)
	}
}

package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"time"
)

// DefaultTTL is how long a submission key is remembered.
const DefaultTTL = 24 * time.Hour

// State is the lifecycle of a remembered submission.
type State string

const (
	// StatePending means a request holding the key is still being handled.
	StatePending State = "pending"
	// StateDone means the response is stored and will be replayed.
	StateDone State = "done"
)

// Outcome tells the guard what to do with a claimed key.
type Outcome int

const (
	// OutcomeFresh means the key was unused; the caller handles the request.
	OutcomeFresh Outcome = iota
	// OutcomeReplay means a stored response exists for the key.
	OutcomeReplay
	// OutcomeBusy means another request is handling the key right now.
	OutcomeBusy
)

// ErrKeyReused is returned when a key comes back with a different request body.
var ErrKeyReused = errors.New("idempotency: key reused for a different submission")

// Entry is what a store remembers about one key.
type Entry struct {
	Key         string
	Fingerprint string
	State       State
	Status      int
	Header      map[string][]string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// Claim is the result of Store.Claim.
type Claim struct {
	Outcome Outcome
	Entry   Entry
}

// Response is the handler output stored for replay.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store remembers submissions by key.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Abandon(ctx context.Context, key string) error
	Purge(ctx context.Context, now time.Time, limit int) (int, error)
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

func pendingEntry(key, fingerprint string, now time.Time, ttl time.Duration) Entry {
	return Entry{
		Key:         key,
		Fingerprint: fingerprint,
		State:       StatePending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func claimFor(entry Entry, fingerprint string) (Claim, error) {
	if entry.Fingerprint != fingerprint {
		return Claim{}, ErrKeyReused
	}
	if entry.State == StateDone {
		return Claim{Outcome: OutcomeReplay, Entry: entry}, nil
	}
	return Claim{Outcome: OutcomeBusy, Entry: entry}, nil
}

func documentID(key string) string {
	return sha256Hex([]byte(key))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// replayedHeaders lists the response headers worth replaying. Per-request
// headers such as X-Request-Id are regenerated on every response.
var replayedHeaders = []string{"Content-Type", "Location", "Cache-Control", "Retry-After"}

func storedHeader(header http.Header) map[string][]string {
	out := make(map[string][]string)
	for _, name := range replayedHeaders {
		if values := header.Values(name); len(values) > 0 {
			out[name] = append([]string(nil), values...)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}

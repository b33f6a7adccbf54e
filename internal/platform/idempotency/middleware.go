package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/hanko-field/greetings/internal/platform/httpx"
	"github.com/hanko-field/greetings/internal/platform/requestctx"
)

const (
	// HeaderKey carries the client chosen submission key.
	HeaderKey = "Idempotency-Key"
	// HeaderReplayed marks responses served from the store.
	HeaderReplayed = "Idempotent-Replayed"

	maxKeyLength        = 255
	defaultMaxBodyBytes = 32 << 20
)

var errBodyTooLarge = errors.New("idempotency: request body too large")

type guardConfig struct {
	ttl      time.Duration
	clock    func() time.Time
	maxBytes int64
}

// GuardOption customises Guard.
type GuardOption func(*guardConfig)

// WithTTL sets how long keys are remembered.
func WithTTL(ttl time.Duration) GuardOption {
	return func(cfg *guardConfig) {
		if ttl > 0 {
			cfg.ttl = ttl
		}
	}
}

// WithMaxBodyBytes bounds how much of a keyed request is buffered.
func WithMaxBodyBytes(limit int64) GuardOption {
	return func(cfg *guardConfig) {
		if limit > 0 {
			cfg.maxBytes = limit
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) GuardOption {
	return func(cfg *guardConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// Guard replays the stored response when a client resubmits with the same
// Idempotency-Key, so a retried submission never creates a second card.
// Requests without the header pass straight through. Keys are scoped to the
// client address. Server errors are not remembered so the client may retry.
func Guard(store Store, opts ...GuardOption) func(http.Handler) http.Handler {
	cfg := guardConfig{ttl: DefaultTTL, clock: time.Now, maxBytes: defaultMaxBodyBytes}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderKey))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if !validKey(key) {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_idempotency_key", "Idempotency-Key must be 1-255 printable characters", http.StatusBadRequest))
				return
			}

			body, err := readAndReplayBody(r, cfg.maxBytes)
			if errors.Is(err, errBodyTooLarge) {
				httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge))
				return
			}
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request_body", "unable to read request body", http.StatusBadRequest))
				return
			}

			scoped := clientScope(r) + "|" + key
			fingerprint := requestFingerprint(r, body)
			logger := requestctx.Logger(ctx).With(zap.String("idempotencyKey", key))

			claim, err := store.Claim(ctx, scoped, fingerprint, cfg.clock(), cfg.ttl)
			switch {
			case errors.Is(err, ErrKeyReused):
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_reused", "Idempotency-Key was already used for a different submission", http.StatusConflict))
				return
			case err != nil:
				logger.Warn("idempotency.claim_failed", zap.Error(err))
				httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "unable to check submission key", http.StatusServiceUnavailable))
				return
			}

			switch claim.Outcome {
			case OutcomeReplay:
				writeReplay(w, claim.Entry)
				return
			case OutcomeBusy:
				w.Header().Set("Retry-After", "1")
				httpx.WriteError(ctx, w, httpx.NewError("submission_in_progress", "a submission with this Idempotency-Key is still being processed", http.StatusConflict))
				return
			}

			rec := newBufferedWriter(w)
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError {
				if err := store.Abandon(ctx, scoped); err != nil {
					logger.Warn("idempotency.abandon_failed", zap.Error(err))
				}
			} else {
				resp := Response{Status: rec.status, Header: rec.Header(), Body: rec.body.Bytes()}
				if err := store.Complete(ctx, scoped, fingerprint, resp, cfg.clock(), cfg.ttl); err != nil {
					logger.Warn("idempotency.complete_failed", zap.Error(err))
					_ = store.Abandon(ctx, scoped)
				}
			}
			rec.flush()
		})
	}
}

// Sweep purges expired keys every interval until ctx is done.
func Sweep(ctx context.Context, store Store, interval time.Duration, logger *zap.Logger) {
	if store == nil || interval <= 0 {
		return
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			purgeCtx, cancel := context.WithTimeout(ctx, interval)
			removed, err := store.Purge(purgeCtx, now, 0)
			cancel()
			if err != nil {
				logger.Warn("idempotency.purge_failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("idempotency.purged", zap.Int("removed", removed))
			}
		}
	}
}

func validKey(key string) bool {
	if len(key) > maxKeyLength {
		return false
	}
	for _, r := range key {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}

func readAndReplayBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requestFingerprint(r *http.Request, body []byte) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte('|')
	b.WriteString(r.URL.Path)
	b.WriteByte('|')
	b.WriteString(r.Header.Get("Content-Type"))
	b.WriteByte('|')
	b.WriteString(sha256Hex(body))
	return sha256Hex([]byte(b.String()))
}

func clientScope(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "" {
		return "unknown"
	}
	return host
}

func writeReplay(w http.ResponseWriter, entry Entry) {
	for name, values := range entry.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(HeaderReplayed, "true")
	status := entry.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(entry.Body) > 0 {
		_, _ = w.Write(entry.Body)
	}
}

// bufferedWriter holds the handler response until the key is settled.
type bufferedWriter struct {
	parent http.ResponseWriter
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedWriter(parent http.ResponseWriter) *bufferedWriter {
	return &bufferedWriter{parent: parent, header: make(http.Header), status: http.StatusOK}
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if status > 0 {
		b.status = status
	}
}

func (b *bufferedWriter) Write(data []byte) (int, error) {
	return b.body.Write(data)
}

func (b *bufferedWriter) flush() {
	dst := b.parent.Header()
	for name, values := range b.header {
		dst[name] = values
	}
	b.parent.WriteHeader(b.status)
	if b.body.Len() > 0 {
		_, _ = b.parent.Write(b.body.Bytes())
	}
}

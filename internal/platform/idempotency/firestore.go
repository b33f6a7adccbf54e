package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/hanko-field/greetings/internal/platform/firestore"
)

const (
	// DefaultCollection holds submission keys unless configured otherwise.
	DefaultCollection  = "cardSubmissionKeys"
	defaultMaxAttempts = 5
	defaultPurgeLimit  = 100
)

// FirestoreOption customises a FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection name.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// WithMaxAttempts bounds transaction retries.
func WithMaxAttempts(attempts int) FirestoreOption {
	return func(s *FirestoreStore) {
		if attempts > 0 {
			s.maxAttempts = attempts
		}
	}
}

// FirestoreStore remembers submission keys in Firestore so every instance
// behind the load balancer sees the same keys.
type FirestoreStore struct {
	provider    *pfirestore.Provider
	collection  string
	maxAttempts int
}

var _ Store = (*FirestoreStore)(nil)

type entryDocument struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	State       string              `firestore:"state"`
	Status      int                 `firestore:"status"`
	Header      map[string][]string `firestore:"header,omitempty"`
	Body        []byte              `firestore:"body,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

// NewFirestoreStore constructs a Firestore-backed store.
func NewFirestoreStore(provider *pfirestore.Provider, opts ...FirestoreOption) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency store requires firestore provider")
	}
	s := &FirestoreStore{
		provider:    provider,
		collection:  DefaultCollection,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Claim implements Store.
func (s *FirestoreStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	now = now.UTC()
	client, err := s.provider.Client(ctx)
	if err != nil {
		return Claim{}, err
	}
	ref := client.Collection(s.collection).Doc(documentID(key))

	var claim Claim
	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var doc entryDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			entry := doc.entry()
			if !entry.expired(now) {
				claim, err = claimFor(entry, fingerprint)
				return err
			}
		}
		entry := pendingEntry(key, fingerprint, now, ttlOrDefault(ttl))
		if err := tx.Set(ref, newEntryDocument(entry)); err != nil {
			return err
		}
		claim = Claim{Outcome: OutcomeFresh, Entry: entry}
		return nil
	}, firestore.MaxAttempts(s.maxAttempts))
	if errors.Is(err, ErrKeyReused) {
		return Claim{}, err
	}
	if err != nil {
		return Claim{}, pfirestore.WrapError(s.collection+".claim", err)
	}
	return claim, nil
}

// Complete implements Store.
func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	client, err := s.provider.Client(ctx)
	if err != nil {
		return err
	}
	ref := client.Collection(s.collection).Doc(documentID(key))
	header := storedHeader(resp.Header)
	body := append([]byte(nil), resp.Body...)

	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		entry := Entry{Key: key, Fingerprint: fingerprint, CreatedAt: now}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var doc entryDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Fingerprint != fingerprint {
				return ErrKeyReused
			}
			entry = doc.entry()
		case status.Code(err) != codes.NotFound:
			return err
		}
		entry.State = StateDone
		entry.Status = resp.Status
		entry.Header = header
		entry.Body = body
		entry.ExpiresAt = now.Add(ttlOrDefault(ttl))
		return tx.Set(ref, newEntryDocument(entry))
	}, firestore.MaxAttempts(s.maxAttempts))
	if errors.Is(err, ErrKeyReused) {
		return err
	}
	return pfirestore.WrapError(s.collection+".complete", err)
}

// Abandon implements Store.
func (s *FirestoreStore) Abandon(ctx context.Context, key string) error {
	client, err := s.provider.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.Collection(s.collection).Doc(documentID(key)).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return pfirestore.WrapError(s.collection+".abandon", err)
}

// Purge implements Store.
func (s *FirestoreStore) Purge(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultPurgeLimit
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	docs, err := client.Collection(s.collection).
		Where("expiresAt", "<=", now.UTC()).
		Limit(limit).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError(s.collection+".purge", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	writer := client.BulkWriter(ctx)
	jobs := make([]*firestore.BulkWriterJob, 0, len(docs))
	for _, doc := range docs {
		job, err := writer.Delete(doc.Ref)
		if err != nil {
			writer.End()
			return 0, pfirestore.WrapError(s.collection+".purge", err)
		}
		jobs = append(jobs, job)
	}
	writer.End()

	removed := 0
	for _, job := range jobs {
		if _, err := job.Results(); err == nil {
			removed++
		}
	}
	return removed, nil
}

func newEntryDocument(e Entry) entryDocument {
	return entryDocument{
		Key:         e.Key,
		Fingerprint: e.Fingerprint,
		State:       string(e.State),
		Status:      e.Status,
		Header:      e.Header,
		Body:        e.Body,
		CreatedAt:   e.CreatedAt,
		ExpiresAt:   e.ExpiresAt,
	}
}

func (d entryDocument) entry() Entry {
	return Entry{
		Key:         d.Key,
		Fingerprint: d.Fingerprint,
		State:       State(d.State),
		Status:      d.Status,
		Header:      d.Header,
		Body:        d.Body,
		CreatedAt:   d.CreatedAt,
		ExpiresAt:   d.ExpiresAt,
	}
}

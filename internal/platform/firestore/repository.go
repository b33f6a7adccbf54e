package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

const maxDocumentIDBytes = 1500

// Document represents a strongly typed Firestore document with metadata timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// Encoder serialises the strongly typed entity prior to persistence.
type Encoder[T any] func(ctx context.Context, value T) (any, error)

// Decoder hydrates the strongly typed entity from a snapshot.
type Decoder[T any] func(ctx context.Context, snap *firestore.DocumentSnapshot) (T, error)

// BaseRepository provides typed helpers wrapping a single Firestore collection.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
	encode     Encoder[T]
	decode     Decoder[T]
}

// NewBaseRepository constructs a BaseRepository bound to a collection.
func NewBaseRepository[T any](provider *Provider, collection string, encode Encoder[T], decode Decoder[T]) *BaseRepository[T] {
	if encode == nil {
		encode = IdentityEncoder[T]()
	}
	if decode == nil {
		decode = StructDecoder[T]()
	}
	return &BaseRepository[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
		encode:     encode,
		decode:     decode,
	}
}

// Collection returns the bound collection name.
func (r *BaseRepository[T]) Collection() string {
	return r.collection
}

// Create writes value under a document ID generated by Firestore and returns that ID.
func (r *BaseRepository[T]) Create(ctx context.Context, value T) (string, time.Time, error) {
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return "", time.Time{}, err
	}

	payload, err := r.encode(ctx, value)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("firestore: encode new %s document: %w", r.collection, err)
	}

	doc := coll.NewDoc()
	result, err := doc.Create(ctx, payload)
	if err != nil {
		return "", time.Time{}, WrapError(r.op("create"), err)
	}
	return doc.ID, result.UpdateTime, nil
}

// Update applies partial updates to an existing document. A missing document
// surfaces as a not-found error.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update) (time.Time, error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	result, err := doc.Update(ctx, updates)
	if err != nil {
		return time.Time{}, WrapError(r.op("update"), err)
	}
	return result.UpdateTime, nil
}

// Get fetches the document by ID and decodes it into the strongly typed entity.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := r.documentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}

	snapshot, err := doc.Get(ctx)
	if err != nil {
		return Document[T]{}, wrapLookupError(r.op("get"), err)
	}

	entity, err := r.decode(ctx, snapshot)
	if err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
	}
	return Document[T]{
		ID:         snapshot.Ref.ID,
		Data:       entity,
		CreateTime: snapshot.CreateTime,
		UpdateTime: snapshot.UpdateTime,
	}, nil
}

// Ping issues the cheapest possible read against the collection.
func (r *BaseRepository[T]) Ping(ctx context.Context) error {
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return err
	}
	iter := coll.Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return WrapError(r.op("ping"), err)
	}
	return nil
}

func (r *BaseRepository[T]) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, WrapError(r.op("collection"), errors.New("firestore: provider is nil"))
	}
	if r.collection == "" {
		return nil, WrapError(r.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

func (r *BaseRepository[T]) documentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	id = strings.TrimSpace(id)
	if !validDocumentID(id) {
		return nil, NotFoundError(r.op("document"), fmt.Errorf("firestore: invalid document id %q", id))
	}
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// validDocumentID mirrors Firestore's document id constraints so a malformed
// id reads as a missing document instead of an RPC failure.
func validDocumentID(id string) bool {
	switch {
	case id == "", id == ".", id == "..":
		return false
	case len(id) > maxDocumentIDBytes:
		return false
	case strings.Contains(id, "/"):
		return false
	case len(id) >= 4 && strings.HasPrefix(id, "__") && strings.HasSuffix(id, "__"):
		return false
	}
	return true
}

func (r *BaseRepository[T]) op(action string) string {
	name := "firestore"
	if r != nil && r.collection != "" {
		name = r.collection
	}
	return name + "." + strings.ToLower(action)
}

// IdentityEncoder returns an encoder that writes the value unchanged.
func IdentityEncoder[T any]() Encoder[T] {
	return func(_ context.Context, value T) (any, error) {
		return value, nil
	}
}

// StructDecoder populates the target struct using Firestore's native decoding.
func StructDecoder[T any]() Decoder[T] {
	return func(_ context.Context, snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		err := snap.DataTo(&target)
		return target, err
	}
}

package storage

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
)

// downloadTokenKey is the object metadata key Firebase Storage reads to
// authorise tokenised download URLs.
const downloadTokenKey = "firebaseStorageDownloadTokens"

const defaultPublicBaseURL = "https://firebasestorage.googleapis.com"

var (
	errInvalidBucket = errors.New("storage: bucket name is required")
	errInvalidObject = errors.New("storage: object name is required")
	errEmptyContent  = errors.New("storage: content is empty")
)

// Uploader stores a blob and returns a URL anyone can fetch it from.
type Uploader interface {
	Upload(ctx context.Context, object string, content []byte, contentType string) (string, error)
}

type objectOpener func(ctx context.Context, object string, attrs gcs.ObjectAttrs) io.WriteCloser

// BucketUploader writes objects into a Cloud Storage bucket and returns
// Firebase style download URLs.
type BucketUploader struct {
	bucket   string
	baseURL  string
	open     objectOpener
	newToken func() string
}

// BucketOption customises a BucketUploader.
type BucketOption func(*BucketUploader)

// WithPublicBaseURL overrides the download host, e.g. for the storage emulator.
func WithPublicBaseURL(base string) BucketOption {
	return func(u *BucketUploader) {
		base = strings.TrimRight(strings.TrimSpace(base), "/")
		if base != "" {
			u.baseURL = base
		}
	}
}

// WithTokenGenerator overrides how download tokens are minted.
func WithTokenGenerator(fn func() string) BucketOption {
	return func(u *BucketUploader) {
		if fn != nil {
			u.newToken = fn
		}
	}
}

// NewBucketUploader binds an uploader to handle, whose name is bucket.
func NewBucketUploader(handle *gcs.BucketHandle, bucket string, opts ...BucketOption) (*BucketUploader, error) {
	if handle == nil {
		return nil, errors.New("storage: bucket handle is required")
	}
	open := func(ctx context.Context, object string, attrs gcs.ObjectAttrs) io.WriteCloser {
		w := handle.Object(object).NewWriter(ctx)
		w.ContentType = attrs.ContentType
		w.CacheControl = attrs.CacheControl
		w.Metadata = attrs.Metadata
		return w
	}
	return newBucketUploader(bucket, open, opts...)
}

func newBucketUploader(bucket string, open objectOpener, opts ...BucketOption) (*BucketUploader, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errInvalidBucket
	}
	u := &BucketUploader{
		bucket:  bucket,
		baseURL: defaultPublicBaseURL,
		open:    open,
		newToken: func() string {
			return strings.ToLower(ulid.MustNew(ulid.Now(), rand.Reader).String())
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u, nil
}

// Upload writes content to object and returns its tokenised download URL.
func (u *BucketUploader) Upload(ctx context.Context, object string, content []byte, contentType string) (string, error) {
	object = strings.TrimSpace(object)
	if object == "" {
		return "", errInvalidObject
	}
	if len(content) == 0 {
		return "", errEmptyContent
	}
	token := u.newToken()
	w := u.open(ctx, object, gcs.ObjectAttrs{
		ContentType:  contentType,
		CacheControl: "public, max-age=31536000, immutable",
		Metadata:     map[string]string{downloadTokenKey: token},
	})
	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("storage: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: finalise %s: %w", object, err)
	}
	return u.DownloadURL(object, token), nil
}

// DownloadURL formats the public URL of object authorised by token.
func (u *BucketUploader) DownloadURL(object, token string) string {
	query := url.Values{"alt": {"media"}}
	if token != "" {
		query.Set("token", token)
	}
	return fmt.Sprintf("%s/v0/b/%s/o/%s?%s", u.baseURL, url.PathEscape(u.bucket), url.PathEscape(object), query.Encode())
}

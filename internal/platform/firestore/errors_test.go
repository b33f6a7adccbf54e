package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/greetings/internal/platform/config"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{code: codes.NotFound, notFound: true},
		{code: codes.AlreadyExists, conflict: true},
		{code: codes.Aborted, conflict: true},
		{code: codes.Unavailable, unavailable: true},
		{code: codes.ResourceExhausted, unavailable: true},
		{code: codes.PermissionDenied},
	}

	for _, tc := range cases {
		err := WrapError("christmasCards.get", status.Error(tc.code, "boom"))
		var fsErr *Error
		if !errors.As(err, &fsErr) {
			t.Fatalf("%s: expected *Error, got %T", tc.code, err)
		}
		if fsErr.IsNotFound() != tc.notFound || fsErr.IsConflict() != tc.conflict || fsErr.IsUnavailable() != tc.unavailable {
			t.Fatalf("%s: unexpected classification %+v", tc.code, fsErr)
		}
		if fsErr.Op() != "christmasCards.get" {
			t.Fatalf("%s: unexpected op %q", tc.code, fsErr.Op())
		}
	}
}

func TestWrapErrorPassesCancellationThrough(t *testing.T) {
	if err := WrapError("op", status.Error(codes.Canceled, "gone")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestWrapErrorKeepsExistingClassification(t *testing.T) {
	inner := NotFoundError("", errors.New("invalid id"))
	wrapped := WrapError("christmasCards.document", inner)
	var fsErr *Error
	if !errors.As(wrapped, &fsErr) || !fsErr.IsNotFound() {
		t.Fatalf("expected not found to survive wrapping, got %v", wrapped)
	}
	if fsErr.Op() != "christmasCards.document" {
		t.Fatalf("expected op to be filled in, got %q", fsErr.Op())
	}
}

func TestProviderRejectsUseAfterClose(t *testing.T) {
	p := NewProvider(config.FirestoreConfig{ProjectID: "cards-test"})
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := p.Client(context.Background()); !errors.Is(err, ErrProviderClosed) {
		t.Fatalf("expected ErrProviderClosed, got %v", err)
	}
}

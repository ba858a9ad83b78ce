package photostore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get and Delete when no blob exists for a key.
var ErrNotFound = errors.New("photo not found")

// PhotoStore keeps image blobs addressed by opaque storage keys. Keys are
// grouped under a caller-chosen prefix (a draft or a listing).
type PhotoStore interface {
	Save(ctx context.Context, prefix, mimeType string, r io.Reader) (storageKey string, err error)
	Get(ctx context.Context, storageKey string) (io.ReadCloser, string, error)
	Delete(ctx context.Context, storageKey string) error
}

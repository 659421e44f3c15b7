// Package blob defines a minimal key/value object store contract used by
// the object-storage sync adapter. Implementations exist for a local or
// in-memory filesystem (internal/blob/localfs) and Amazon S3
// (internal/blob/s3).
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get for a key with no object behind it.
var ErrNotFound = errors.New("object not found")

// Store is a flat key/object namespace. Keys may contain '/' but carry no
// directory semantics beyond prefix listing.
type Store interface {
	// String identifies the store for log and error messages.
	String() string

	// Has reports whether an object exists at key.
	Has(ctx context.Context, key string) (bool, error)

	// Get opens the object at key. The caller closes the reader.
	// Missing objects return ErrNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Put writes the object at key, replacing any existing object.
	Put(ctx context.Context, key string, r io.Reader) error

	// Delete removes the object at key. Deleting a missing key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// Keys lists every key with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

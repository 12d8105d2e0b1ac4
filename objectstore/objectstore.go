// Package objectstore is the external collaborator contract the core
// consumes: it describes what the core needs from an object-store
// transport, not how one is built. Concrete adapters (backend/s3store,
// backend/cephstore) implement ObjectStore against real services.
package objectstore

import (
	"context"
	"errors"
)

// ErrNoSuchKey is returned by Get when the object does not exist. It is
// never wrapped in errs.TransientTransportError; callers distinguish
// "absent" from "broken".
var ErrNoSuchKey = errors.New("objectstore: no such key")

// ObjectStore is the minimal surface the core needs from an object-store
// transport: get, put, and two flavors of listing (flat key listing, and
// delimiter-bounded immediate-child-prefix listing, mirroring S3's
// ListObjectsV2 with Delimiter="/").
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte) error
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
	ListPrefixes(ctx context.Context, bucket, parent, delimiter string) ([]string, error)
}

// Transient is implemented by adapter errors that represent a transport
// hiccup (connection reset, EOF, timeout) rather than a recognized
// domain/service exception. The cache retries transient errors and
// propagates everything else immediately.
type Transient interface {
	Transient() bool
}

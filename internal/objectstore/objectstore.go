// Package objectstore abstracts the key->bytes backing store used by the
// ingester (C11) and the data access layer (C12). Per spec §1, the object
// store itself is out of scope beyond its get/put/list contract; this
// package defines that contract plus a local-disk implementation for tests
// and single-node deployments, and an S3-backed implementation for
// production.
package objectstore

import "context"

// Store is a key->bytes object store with prefix listing.
type Store interface {
	// Get returns the bytes stored at key, or a NOT_FOUND xerrors.Error if absent.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes value at key, overwriting any existing value.
	Put(ctx context.Context, key string, value []byte) error
	// List returns all keys beginning with prefix, in lexicographic order.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Package storage defines the uniform contract every storage-layer backend
// implements: content-addressed put/get/has over a blob. See spec §4.C4.
package storage

import "context"

// Layer is a single storage backend: a content-addressed network gateway, an
// S3-compatible bucket, or a local directory. Every implementation must be
// idempotent: Put(b) called twice for the same blob b returns the same key
// both times. See spec §4.C4 and the "Idempotent storage keys" testable
// property in spec §8.
type Layer interface {
	// Put writes blob and returns its layer-specific key.
	Put(ctx context.Context, blob []byte) (key string, err error)
	// Get returns the blob stored under key, failing with ErrNotFound
	// (spec §7) if absent.
	Get(ctx context.Context, key string) (blob []byte, err error)
	// Has reports whether key is present in this layer.
	Has(ctx context.Context, key string) (bool, error)
	// Name identifies the layer for logging/metrics/error messages.
	Name() string
}
